package product

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
	ListProducts(ctx context.Context) ([]storeapi.Product, error)
	SearchProducts(ctx context.Context, query string) ([]storeapi.Product, error)
}

type persistedState struct {
	Products []storeapi.Product `msgpack:"products"`
	LastSync time.Time          `msgpack:"last_sync"`
}

// StoreParams groups dependencies for the product store.
type StoreParams struct {
	API      backend
	Storage  storage.Store
	Logger   *logger.Logger
	Cache    config.CacheConfig
	Debounce time.Duration
}

// Store caches the product listing with time-based staleness, and runs
// free-text search with a debounce window. A new keystroke generation cancels
// the in-flight search it supersedes.
type Store struct {
	api      backend
	storage  storage.Store
	logger   *logger.Logger
	stale    time.Duration
	debounce time.Duration

	mu       sync.Mutex
	products []storeapi.Product
	lastSync time.Time
	hydrated bool

	searchMu     sync.Mutex
	searchTimer  *time.Timer
	searchCancel context.CancelFunc
	searchGen    uint64

	now func() time.Time
}

// SearchCallback receives the search outcome for the generation that
// triggered it. Superseded generations are never delivered.
type SearchCallback func(results []storeapi.Product, err error)

func NewStore(params StoreParams) (*Store, error) {
	if params.API == nil {
		return nil, errors.New("product backend is required")
	}
	if params.Storage == nil {
		return nil, errors.New("product storage is required")
	}
	if params.Logger == nil {
		return nil, errors.New("product logger is required")
	}
	stale := params.Cache.StaleWindow
	if stale <= 0 {
		stale = 5 * time.Minute
	}
	debounce := params.Debounce
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &Store{
		api:      params.API,
		storage:  params.Storage,
		logger:   params.Logger,
		stale:    stale,
		debounce: debounce,
		now:      time.Now,
	}, nil
}

func (s *Store) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hydrated {
		return nil
	}
	var state persistedState
	err := s.storage.Get(ctx, storage.NamespaceProduct, stateKey, &state)
	switch {
	case err == nil:
		s.products = state.Products
		s.lastSync = state.LastSync
	case errors.Is(err, storage.ErrKeyNotFound):
	default:
		return err
	}
	s.hydrated = true
	return nil
}

func (s *Store) Products() []storeapi.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storeapi.Product(nil), s.products...)
}

// Fetch loads the catalog. The catalog is public, so this works for guests
// too; cached data is served while fresh and kept on failure.
func (s *Store) Fetch(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.hydrated && !force && !s.lastSync.IsZero() && s.now().Sub(s.lastSync) < s.stale {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	products, err := s.api.ListProducts(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.products = products
	s.lastSync = s.now()
	state := persistedState{
		Products: append([]storeapi.Product(nil), s.products...),
		LastSync: s.lastSync,
	}
	s.mu.Unlock()

	if err := s.storage.Put(ctx, storage.NamespaceProduct, stateKey, state); err != nil {
		s.logger.Error(ctx, "persist product state", err)
	}
	return nil
}

// Search schedules a debounced search for query. Each call supersedes the
// previous one: the pending timer is reset and any in-flight request is
// cancelled, so only the latest generation's outcome reaches the callback.
func (s *Store) Search(query string, deliver SearchCallback) {
	if deliver == nil {
		return
	}

	s.searchMu.Lock()
	defer s.searchMu.Unlock()

	s.searchGen++
	gen := s.searchGen

	if s.searchTimer != nil {
		s.searchTimer.Stop()
	}
	if s.searchCancel != nil {
		s.searchCancel()
		s.searchCancel = nil
	}

	s.searchTimer = time.AfterFunc(s.debounce, func() {
		s.runSearch(gen, query, deliver)
	})
}

// CancelSearch drops any pending or in-flight search.
func (s *Store) CancelSearch() {
	s.searchMu.Lock()
	defer s.searchMu.Unlock()
	s.searchGen++
	if s.searchTimer != nil {
		s.searchTimer.Stop()
		s.searchTimer = nil
	}
	if s.searchCancel != nil {
		s.searchCancel()
		s.searchCancel = nil
	}
}

func (s *Store) runSearch(gen uint64, query string, deliver SearchCallback) {
	s.searchMu.Lock()
	if gen != s.searchGen {
		s.searchMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.searchCancel = cancel
	s.searchMu.Unlock()

	results, err := s.api.SearchProducts(ctx, query)

	s.searchMu.Lock()
	current := gen == s.searchGen
	if current {
		s.searchCancel = nil
	}
	s.searchMu.Unlock()

	if !current {
		return
	}
	deliver(results, err)
}
