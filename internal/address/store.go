package address

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nmoraleda/storefront/pkg/config"
	"github.com/nmoraleda/storefront/pkg/logger"
	"github.com/nmoraleda/storefront/pkg/storage"
	"github.com/nmoraleda/storefront/pkg/storeapi"
)

const stateKey = "state"

type backend interface {
	ListAddresses(ctx context.Context) ([]storeapi.Address, error)
}

type identity interface {
	LoggedIn() bool
}

type persistedState struct {
	Addresses []storeapi.Address `msgpack:"addresses"`
	LastSync  time.Time          `msgpack:"last_sync"`
}

// StoreParams groups dependencies for the address store.
type StoreParams struct {
	API     backend
	Session identity
	Storage storage.Store
	Logger  *logger.Logger
	Cache   config.CacheConfig
}

// Store is a fetch-cache-display store over the customer's address book:
// time-based staleness, no optimistic mutation.
type Store struct {
	api     backend
	session identity
	storage storage.Store
	logger  *logger.Logger
	stale   time.Duration

	mu        sync.Mutex
	addresses []storeapi.Address
	lastSync  time.Time
	hydrated  bool

	now func() time.Time
}

func NewStore(params StoreParams) (*Store, error) {
	if params.API == nil {
		return nil, errors.New("address backend is required")
	}
	if params.Session == nil {
		return nil, errors.New("address session is required")
	}
	if params.Storage == nil {
		return nil, errors.New("address storage is required")
	}
	if params.Logger == nil {
		return nil, errors.New("address logger is required")
	}
	stale := params.Cache.StaleWindow
	if stale <= 0 {
		stale = 5 * time.Minute
	}
	return &Store{
		api:     params.API,
		session: params.Session,
		storage: params.Storage,
		logger:  params.Logger,
		stale:   stale,
		now:     time.Now,
	}, nil
}

func (s *Store) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hydrated {
		return nil
	}
	var state persistedState
	err := s.storage.Get(ctx, storage.NamespaceAddress, stateKey, &state)
	switch {
	case err == nil:
		s.addresses = state.Addresses
		s.lastSync = state.LastSync
	case errors.Is(err, storage.ErrKeyNotFound):
	default:
		return err
	}
	s.hydrated = true
	return nil
}

func (s *Store) Addresses() []storeapi.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storeapi.Address(nil), s.addresses...)
}

// Fetch loads the address book; no-op for guests, cache served while fresh,
// existing data kept on failure.
func (s *Store) Fetch(ctx context.Context, force bool) error {
	if !s.session.LoggedIn() {
		return nil
	}

	s.mu.Lock()
	if s.hydrated && !force && !s.lastSync.IsZero() && s.now().Sub(s.lastSync) < s.stale {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	addresses, err := s.api.ListAddresses(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.addresses = addresses
	s.lastSync = s.now()
	state := persistedState{
		Addresses: append([]storeapi.Address(nil), s.addresses...),
		LastSync:  s.lastSync,
	}
	s.mu.Unlock()

	if err := s.storage.Put(ctx, storage.NamespaceAddress, stateKey, state); err != nil {
		s.logger.Error(ctx, "persist address state", err)
	}
	return nil
}
