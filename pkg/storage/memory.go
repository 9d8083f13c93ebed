package storage

import (
	"context"
	"sync"
)

// MemoryStore is a non-durable Store used in tests and ephemeral sessions.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]byte{}}
}

func (s *MemoryStore) Get(ctx context.Context, namespace, key string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	data, ok := s.data[storageKey(namespace, key)]
	s.mu.RUnlock()
	if !ok {
		return ErrKeyNotFound
	}
	return decode(data, out)
}

func (s *MemoryStore) Put(ctx context.Context, namespace, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[storageKey(namespace, key)] = data
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.data, storageKey(namespace, key))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
