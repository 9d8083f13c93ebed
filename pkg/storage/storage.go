package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrKeyNotFound is returned when the requested record has never been stored.
var ErrKeyNotFound = errors.New("storage: key not found")

// Namespaces for the persisted client-side state. Each store owns exactly one.
const (
	NamespaceCart     = "cart"
	NamespaceWishlist = "wishlist"
	NamespaceSession  = "session"
	NamespaceAddress  = "address"
	NamespaceProduct  = "product"
)

// Store is the durable client-side key-value cache. It is a warm cache, not a
// source of truth: every record is superseded by a successful server fetch.
type Store interface {
	Get(ctx context.Context, namespace, key string, out any) error
	Put(ctx context.Context, namespace, key string, value any) error
	Delete(ctx context.Context, namespace, key string) error
	Close() error
}

func storageKey(namespace, key string) string {
	return fmt.Sprintf("%s/%s", namespace, key)
}

func encode(value any) ([]byte, error) {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode storage value: %w", err)
	}
	return data, nil
}

func decode(data []byte, out any) error {
	if err := msgpack.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode storage value: %w", err)
	}
	return nil
}
