package wishlist

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/nmoraleda/storefront/internal/optimistic"
	"github.com/nmoraleda/storefront/pkg/config"
	pkgerrors "github.com/nmoraleda/storefront/pkg/errors"
	"github.com/nmoraleda/storefront/pkg/logger"
	"github.com/nmoraleda/storefront/pkg/metrics"
	"github.com/nmoraleda/storefront/pkg/storage"
	"github.com/nmoraleda/storefront/pkg/storeapi"
)

const (
	storeName = "wishlist"
	stateKey  = "state"
)

// Item is one authenticated wishlist record. Guests track presence only, as
// a product-ID set.
type Item struct {
	ProductID string  `msgpack:"product_id"`
	Name      string  `msgpack:"name"`
	Price     float64 `msgpack:"price"`
	Image     string  `msgpack:"image"`
	Quantity  int     `msgpack:"quantity"`
	Model     string  `msgpack:"model"`
}

type backend interface {
	GetWishlist(ctx context.Context) ([]storeapi.WishlistItem, error)
	AddWishlistItem(ctx context.Context, productID string) ([]storeapi.WishlistItem, error)
	RemoveWishlistItem(ctx context.Context, productID string) ([]storeapi.WishlistItem, error)
	SyncWishlist(ctx context.Context, productIDs []string) ([]storeapi.WishlistItem, error)
}

type identity interface {
	LoggedIn() bool
}

type persistedState struct {
	Items    []Item    `msgpack:"items"`
	GuestIDs []string  `msgpack:"guest_ids"`
	LastSync time.Time `msgpack:"last_sync"`
}

// StoreParams groups dependencies for the wishlist store.
type StoreParams struct {
	API     backend
	Session identity
	Storage storage.Store
	Logger  *logger.Logger
	Metrics *metrics.StoreMetrics
	Cache   config.CacheConfig
	Retry   config.RetryConfig
}

// Store follows the cart's optimistic-mutate/rollback contract on a simpler
// presence set. Every authenticated network call goes through a fixed retry
// wrapper with linearly increasing delay.
type Store struct {
	api           backend
	session       identity
	storage       storage.Store
	logger        *logger.Logger
	metrics       *metrics.StoreMetrics
	stale         time.Duration
	bgWindow      time.Duration
	retryAttempts int
	retryStep     time.Duration

	mu       sync.Mutex
	items    []Item
	guestIDs map[string]struct{}
	lastSync time.Time
	hydrated bool
	gen      uint64

	now func() time.Time
}

func NewStore(params StoreParams) (*Store, error) {
	if params.API == nil {
		return nil, errors.New("wishlist backend is required")
	}
	if params.Session == nil {
		return nil, errors.New("wishlist session is required")
	}
	if params.Storage == nil {
		return nil, errors.New("wishlist storage is required")
	}
	if params.Logger == nil {
		return nil, errors.New("wishlist logger is required")
	}
	stale := params.Cache.StaleWindow
	if stale <= 0 {
		stale = 5 * time.Minute
	}
	bg := params.Cache.BackgroundRefresh
	if bg <= 0 {
		bg = time.Minute
	}
	attempts := params.Retry.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	step := params.Retry.Step
	if step <= 0 {
		step = time.Second
	}
	return &Store{
		api:           params.API,
		session:       params.Session,
		storage:       params.Storage,
		logger:        params.Logger,
		metrics:       params.Metrics,
		stale:         stale,
		bgWindow:      bg,
		retryAttempts: attempts,
		retryStep:     step,
		guestIDs:      map[string]struct{}{},
		now:           time.Now,
	}, nil
}

// Hydrate restores the persisted wishlist state.
func (s *Store) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hydrated {
		return nil
	}
	var state persistedState
	err := s.storage.Get(ctx, storage.NamespaceWishlist, stateKey, &state)
	switch {
	case err == nil:
		s.items = state.Items
		s.lastSync = state.LastSync
		for _, id := range state.GuestIDs {
			s.guestIDs[id] = struct{}{}
		}
	case errors.Is(err, storage.ErrKeyNotFound):
	default:
		return err
	}
	s.hydrated = true
	return nil
}

// Items returns the authenticated wishlist records.
func (s *Store) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.items...)
}

// Contains reports wishlist membership in either mode.
func (s *Store) Contains(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.session.LoggedIn() {
		_, ok := s.guestIDs[productID]
		return ok
	}
	for _, item := range s.items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// GuestIDs returns the guest product-ID set, sorted for stable output.
func (s *Store) GuestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.guestIDs))
	for id := range s.guestIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Fetch loads the server wishlist; no-op for guests. Fresh cached records
// are served as-is, with a non-blocking background refresh once they are
// older than the background window. A failed fetch keeps existing records.
func (s *Store) Fetch(ctx context.Context, force bool) error {
	if !s.session.LoggedIn() {
		return nil
	}

	s.mu.Lock()
	if s.hydrated && !force && !s.lastSync.IsZero() {
		age := s.now().Sub(s.lastSync)
		if age < s.stale {
			needsRefresh := age >= s.bgWindow
			s.mu.Unlock()
			if needsRefresh {
				go s.backgroundRefresh(context.WithoutCancel(ctx))
			}
			return nil
		}
	}
	gen := s.gen
	s.mu.Unlock()

	var fetched []storeapi.WishlistItem
	err := s.withRetry(ctx, "fetch", func(ctx context.Context) error {
		items, err := s.api.GetWishlist(ctx)
		if err != nil {
			return err
		}
		fetched = items
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return nil
	}
	s.adoptLocked(fetched)
	state := s.snapshotStateLocked()
	s.mu.Unlock()

	s.persist(ctx, state)
	return nil
}

func (s *Store) backgroundRefresh(ctx context.Context) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	var fetched []storeapi.WishlistItem
	err := s.withRetry(ctx, "background_refresh", func(ctx context.Context) error {
		items, err := s.api.GetWishlist(ctx)
		if err != nil {
			return err
		}
		fetched = items
		return nil
	})
	if err != nil {
		s.logger.Warn(s.logger.WithStore(ctx, storeName), "background wishlist refresh failed")
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.adoptLocked(fetched)
	state := s.snapshotStateLocked()
	s.mu.Unlock()

	s.persist(ctx, state)
}

// Add puts a product on the wishlist. Guest mode records presence locally
// with no network call.
func (s *Store) Add(ctx context.Context, product storeapi.Product) error {
	if product.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	if !s.session.LoggedIn() {
		s.mu.Lock()
		s.guestIDs[product.ID] = struct{}{}
		state := s.snapshotStateLocked()
		s.mu.Unlock()
		s.persist(ctx, state)
		s.metrics.IncMutation(storeName, "add")
		return nil
	}

	var snapshot []Item
	var serverItems []storeapi.WishlistItem
	err := optimistic.Run(ctx, optimistic.Tx{
		Begin: func() uint64 {
			s.mu.Lock()
			defer s.mu.Unlock()
			snapshot = append([]Item(nil), s.items...)
			s.items = append(s.items, Item{
				ProductID: product.ID,
				Name:      product.Name,
				Price:     product.Price.InexactFloat64(),
				Image:     product.Image,
				Quantity:  1,
				Model:     product.Model,
			})
			s.gen++
			return s.gen
		},
		Call: func(ctx context.Context) error {
			return s.withRetry(ctx, "add", func(ctx context.Context) error {
				items, err := s.api.AddWishlistItem(ctx, product.ID)
				if err != nil {
					return err
				}
				serverItems = items
				return nil
			})
		},
		Commit:   func(gen uint64) { s.commit(ctx, gen, serverItems) },
		Rollback: func(gen uint64) { s.rollback(ctx, gen, snapshot, "add") },
	})
	if err != nil {
		return err
	}
	s.metrics.IncMutation(storeName, "add")
	return nil
}

// Remove drops a product from the wishlist.
func (s *Store) Remove(ctx context.Context, productID string) error {
	if !s.session.LoggedIn() {
		s.mu.Lock()
		delete(s.guestIDs, productID)
		state := s.snapshotStateLocked()
		s.mu.Unlock()
		s.persist(ctx, state)
		s.metrics.IncMutation(storeName, "remove")
		return nil
	}

	var snapshot []Item
	var serverItems []storeapi.WishlistItem
	err := optimistic.Run(ctx, optimistic.Tx{
		Begin: func() uint64 {
			s.mu.Lock()
			defer s.mu.Unlock()
			snapshot = append([]Item(nil), s.items...)
			next := s.items[:0]
			for _, item := range s.items {
				if item.ProductID != productID {
					next = append(next, item)
				}
			}
			s.items = next
			s.gen++
			return s.gen
		},
		Call: func(ctx context.Context) error {
			return s.withRetry(ctx, "remove", func(ctx context.Context) error {
				items, err := s.api.RemoveWishlistItem(ctx, productID)
				if err != nil {
					return err
				}
				serverItems = items
				return nil
			})
		},
		Commit:   func(gen uint64) { s.commit(ctx, gen, serverItems) },
		Rollback: func(gen uint64) { s.rollback(ctx, gen, snapshot, "remove") },
	})
	if err != nil {
		return err
	}
	s.metrics.IncMutation(storeName, "remove")
	return nil
}

// MergeGuestIDs flushes the guest product-ID set to the account in one sync
// call, then clears it. One-time, one-directional; registered as a login
// observer.
func (s *Store) MergeGuestIDs(ctx context.Context) error {
	ids := s.GuestIDs()
	if len(ids) == 0 {
		return s.Fetch(ctx, true)
	}

	var serverItems []storeapi.WishlistItem
	err := s.withRetry(ctx, "sync", func(ctx context.Context) error {
		items, err := s.api.SyncWishlist(ctx, ids)
		if err != nil {
			return err
		}
		serverItems = items
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.gen++
	s.guestIDs = map[string]struct{}{}
	s.adoptLocked(serverItems)
	state := s.snapshotStateLocked()
	s.mu.Unlock()

	s.persist(ctx, state)
	s.metrics.IncMutation(storeName, "merge_guest")
	return nil
}

// withRetry applies the fixed retry policy to every wishlist network call,
// regardless of whether the failure looks transient.
func (s *Store) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(s.retryAttempts-1), linearBackoff(s.retryStep))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && attempt < s.retryAttempts {
			s.logger.Warn(s.logger.WithStore(ctx, storeName), op+" attempt failed, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
}

// linearBackoff waits step, 2*step, 3*step, ...
func linearBackoff(step time.Duration) retry.Backoff {
	attempt := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * step, false
	})
}

func (s *Store) commit(ctx context.Context, gen uint64, items []storeapi.WishlistItem) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.adoptLocked(items)
	state := s.snapshotStateLocked()
	s.mu.Unlock()
	s.persist(ctx, state)
}

func (s *Store) rollback(ctx context.Context, gen uint64, snapshot []Item, op string) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.items = snapshot
	s.mu.Unlock()
	s.metrics.IncRollback(storeName, op)
	s.logger.Warn(s.logger.WithStore(ctx, storeName), op+" rolled back")
}

func (s *Store) adoptLocked(items []storeapi.WishlistItem) {
	next := make([]Item, 0, len(items))
	for _, item := range items {
		next = append(next, Item{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Image:     item.Image,
			Quantity:  item.Quantity,
			Model:     item.Model,
		})
	}
	s.items = next
	s.lastSync = s.now()
}

func (s *Store) snapshotStateLocked() persistedState {
	ids := make([]string, 0, len(s.guestIDs))
	for id := range s.guestIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return persistedState{
		Items:    append([]Item(nil), s.items...),
		GuestIDs: ids,
		LastSync: s.lastSync,
	}
}

func (s *Store) persist(ctx context.Context, state persistedState) {
	if err := s.storage.Put(ctx, storage.NamespaceWishlist, stateKey, state); err != nil {
		s.logger.Error(s.logger.WithStore(ctx, storeName), "persist wishlist state", err)
	}
}
