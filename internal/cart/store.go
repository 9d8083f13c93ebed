package cart

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/nmoraleda/storefront/internal/optimistic"
	"github.com/nmoraleda/storefront/pkg/config"
	pkgerrors "github.com/nmoraleda/storefront/pkg/errors"
	"github.com/nmoraleda/storefront/pkg/logger"
	"github.com/nmoraleda/storefront/pkg/metrics"
	"github.com/nmoraleda/storefront/pkg/storage"
	"github.com/nmoraleda/storefront/pkg/storeapi"
)

const (
	storeName      = "cart"
	stateKey       = "state"
	guestKeyPrefix = "guest_"
)

// Line is one cart line as displayed. Total is recomputed on every mutation
// and never trusted from stale state.
type Line struct {
	Key       string  `msgpack:"key"`
	ProductID string  `msgpack:"product_id"`
	Name      string  `msgpack:"name"`
	Price     float64 `msgpack:"price"`
	Quantity  int     `msgpack:"quantity"`
	Total     float64 `msgpack:"total"`
	Image     string  `msgpack:"image"`
	Model     string  `msgpack:"model"`
}

// ProductRef is the product data needed to add a line.
type ProductRef struct {
	ID    string
	Name  string
	Price float64
	Image string
	Model string
}

type backend interface {
	GetCart(ctx context.Context) (storeapi.Cart, error)
	AddCartItem(ctx context.Context, productID string, quantity int) (storeapi.Cart, error)
	UpdateCartItem(ctx context.Context, key string, quantity int) (storeapi.Cart, error)
	RemoveCartItem(ctx context.Context, key string) (storeapi.Cart, error)
	EmptyCart(ctx context.Context) error
}

type identity interface {
	LoggedIn() bool
}

type persistedState struct {
	Items    []Line    `msgpack:"items"`
	LastSync time.Time `msgpack:"last_sync"`
}

// StoreParams groups dependencies for the cart store.
type StoreParams struct {
	API     backend
	Session identity
	Storage storage.Store
	Logger  *logger.Logger
	Metrics *metrics.StoreMetrics
	Cache   config.CacheConfig
}

// Store maintains the authoritative-for-display cart line collection. Guest
// mutations stay local; authenticated mutations apply optimistically and roll
// back when the server rejects them.
type Store struct {
	api      backend
	session  identity
	storage  storage.Store
	logger   *logger.Logger
	metrics  *metrics.StoreMetrics
	stale    time.Duration
	bgWindow time.Duration

	mu       sync.Mutex
	lines    []Line
	lastSync time.Time
	hydrated bool
	loading  bool
	gen      uint64

	now func() time.Time
}

func NewStore(params StoreParams) (*Store, error) {
	if params.API == nil {
		return nil, errors.New("cart backend is required")
	}
	if params.Session == nil {
		return nil, errors.New("cart session is required")
	}
	if params.Storage == nil {
		return nil, errors.New("cart storage is required")
	}
	if params.Logger == nil {
		return nil, errors.New("cart logger is required")
	}
	stale := params.Cache.StaleWindow
	if stale <= 0 {
		stale = 5 * time.Minute
	}
	bg := params.Cache.BackgroundRefresh
	if bg <= 0 {
		bg = time.Minute
	}
	return &Store{
		api:      params.API,
		session:  params.Session,
		storage:  params.Storage,
		logger:   params.Logger,
		metrics:  params.Metrics,
		stale:    stale,
		bgWindow: bg,
		now:      time.Now,
	}, nil
}

// Hydrate reads the persisted lines and last-sync timestamp back from
// storage. Staleness is never judged before hydration has happened.
func (s *Store) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hydrated {
		return nil
	}
	var state persistedState
	err := s.storage.Get(ctx, storage.NamespaceCart, stateKey, &state)
	switch {
	case err == nil:
		s.lines = state.Items
		s.lastSync = state.LastSync
	case errors.Is(err, storage.ErrKeyNotFound):
	default:
		return err
	}
	s.hydrated = true
	return nil
}

// Lines returns a copy of the current line collection.
func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Line(nil), s.lines...)
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Total sums price*quantity over all lines. A NaN contribution counts as
// zero instead of poisoning the sum.
func (s *Store) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, line := range s.lines {
		v := line.Price * float64(line.Quantity)
		if math.IsNaN(v) {
			continue
		}
		total += v
	}
	return total
}

// ItemCount sums quantities over all lines.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int
	for _, line := range s.lines {
		count += line.Quantity
	}
	return count
}

// Fetch loads the server cart. It is a no-op for guests. Fresh cached data is
// served as-is, with a non-blocking background refresh once it is older than
// the background window; force always hits the server. A failed fetch keeps
// the existing lines.
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
	s.loading = true
	gen := s.gen
	s.mu.Unlock()

	cart, err := s.api.GetCart(ctx)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.gen != gen {
		// a mutation started while the fetch was in flight; its outcome wins
		s.mu.Unlock()
		return nil
	}
	s.adoptLocked(cart)
	state := s.snapshotStateLocked()
	s.mu.Unlock()

	s.persist(ctx, state)
	return nil
}

func (s *Store) backgroundRefresh(ctx context.Context) {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	cart, err := s.api.GetCart(ctx)
	if err != nil {
		s.logger.Warn(s.logger.WithStore(ctx, storeName), "background cart refresh failed")
		return
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.adoptLocked(cart)
	state := s.snapshotStateLocked()
	s.mu.Unlock()

	s.persist(ctx, state)
}

// AddItem adds quantity of a product. Guests mutate locally with a synthetic
// key; authenticated sessions add optimistically and adopt the server's
// authoritative collection on success.
func (s *Store) AddItem(ctx context.Context, product ProductRef, quantity int) error {
	if product.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	if !s.session.LoggedIn() {
		s.addGuestLine(ctx, product, quantity)
		return nil
	}

	// an existing line means this is a quantity change, not a new line
	s.mu.Lock()
	var existing *Line
	for i := range s.lines {
		if s.lines[i].ProductID == product.ID {
			existing = &s.lines[i]
			break
		}
	}
	if existing != nil {
		key, combined := existing.Key, existing.Quantity+quantity
		s.mu.Unlock()
		return s.UpdateQuantity(ctx, key, combined)
	}
	s.mu.Unlock()

	var snapshot []Line
	var serverCart storeapi.Cart
	err := optimistic.Run(ctx, optimistic.Tx{
		Begin: func() uint64 {
			s.mu.Lock()
			defer s.mu.Unlock()
			snapshot = append([]Line(nil), s.lines...)
			s.lines = append(s.lines, Line{
				Key:       pendingKey(product.ID),
				ProductID: product.ID,
				Name:      product.Name,
				Price:     product.Price,
				Quantity:  quantity,
				Total:     product.Price * float64(quantity),
				Image:     product.Image,
				Model:     product.Model,
			})
			s.gen++
			return s.gen
		},
		Call: func(ctx context.Context) error {
			cart, err := s.api.AddCartItem(ctx, product.ID, quantity)
			if err != nil {
				return err
			}
			serverCart = cart
			return nil
		},
		Commit:   func(gen uint64) { s.commit(ctx, gen, serverCart) },
		Rollback: func(gen uint64) { s.rollback(ctx, gen, snapshot, "add_item") },
	})
	if err != nil {
		return err
	}
	s.metrics.IncMutation(storeName, "add_item")
	return nil
}

// UpdateQuantity sets a line's quantity. A quantity of zero or less is
// equivalent to RemoveItem.
func (s *Store) UpdateQuantity(ctx context.Context, key string, quantity int) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, key)
	}

	if !s.session.LoggedIn() {
		s.mu.Lock()
		matched := false
		for i := range s.lines {
			if s.lines[i].Key == key {
				s.lines[i].Quantity = quantity
				s.lines[i].Total = s.lines[i].Price * float64(quantity)
				matched = true
				break
			}
		}
		if !matched {
			s.mu.Unlock()
			return nil
		}
		state := s.snapshotStateLocked()
		s.mu.Unlock()
		s.persist(ctx, state)
		s.metrics.IncMutation(storeName, "update_quantity")
		return nil
	}

	var snapshot []Line
	var serverCart storeapi.Cart
	err := optimistic.Run(ctx, optimistic.Tx{
		Begin: func() uint64 {
			s.mu.Lock()
			defer s.mu.Unlock()
			snapshot = append([]Line(nil), s.lines...)
			for i := range s.lines {
				if s.lines[i].Key == key {
					s.lines[i].Quantity = quantity
					s.lines[i].Total = s.lines[i].Price * float64(quantity)
					break
				}
			}
			s.gen++
			return s.gen
		},
		Call: func(ctx context.Context) error {
			cart, err := s.api.UpdateCartItem(ctx, key, quantity)
			if err != nil {
				return err
			}
			serverCart = cart
			return nil
		},
		Commit:   func(gen uint64) { s.commit(ctx, gen, serverCart) },
		Rollback: func(gen uint64) { s.rollback(ctx, gen, snapshot, "update_quantity") },
	})
	if err != nil {
		return err
	}
	s.metrics.IncMutation(storeName, "update_quantity")
	return nil
}

// RemoveItem drops a line.
func (s *Store) RemoveItem(ctx context.Context, key string) error {
	if !s.session.LoggedIn() {
		s.mu.Lock()
		s.lines = removeLine(s.lines, key)
		state := s.snapshotStateLocked()
		s.mu.Unlock()
		s.persist(ctx, state)
		s.metrics.IncMutation(storeName, "remove_item")
		return nil
	}

	var snapshot []Line
	var serverCart storeapi.Cart
	err := optimistic.Run(ctx, optimistic.Tx{
		Begin: func() uint64 {
			s.mu.Lock()
			defer s.mu.Unlock()
			snapshot = append([]Line(nil), s.lines...)
			s.lines = removeLine(s.lines, key)
			s.gen++
			return s.gen
		},
		Call: func(ctx context.Context) error {
			cart, err := s.api.RemoveCartItem(ctx, key)
			if err != nil {
				return err
			}
			serverCart = cart
			return nil
		},
		Commit:   func(gen uint64) { s.commit(ctx, gen, serverCart) },
		Rollback: func(gen uint64) { s.rollback(ctx, gen, snapshot, "remove_item") },
	})
	if err != nil {
		return err
	}
	s.metrics.IncMutation(storeName, "remove_item")
	return nil
}

// Clear empties the cart. The full pre-clear snapshot is restored when the
// server rejects the empty-cart call.
func (s *Store) Clear(ctx context.Context) error {
	if !s.session.LoggedIn() {
		s.mu.Lock()
		s.lines = nil
		state := s.snapshotStateLocked()
		s.mu.Unlock()
		s.persist(ctx, state)
		s.metrics.IncMutation(storeName, "clear")
		return nil
	}

	var snapshot []Line
	err := optimistic.Run(ctx, optimistic.Tx{
		Begin: func() uint64 {
			s.mu.Lock()
			defer s.mu.Unlock()
			snapshot = append([]Line(nil), s.lines...)
			s.lines = nil
			s.gen++
			return s.gen
		},
		Call: func(ctx context.Context) error {
			return s.api.EmptyCart(ctx)
		},
		Commit: func(gen uint64) {
			s.mu.Lock()
			if s.gen != gen {
				s.mu.Unlock()
				return
			}
			s.lastSync = s.now()
			state := s.snapshotStateLocked()
			s.mu.Unlock()
			s.persist(ctx, state)
		},
		Rollback: func(gen uint64) { s.rollback(ctx, gen, snapshot, "clear") },
	})
	if err != nil {
		return err
	}
	s.metrics.IncMutation(storeName, "clear")
	return nil
}

// MergeGuestLines replays guest-accumulated lines against the server cart and
// clears them. Registered as a login observer; runs once per transition.
func (s *Store) MergeGuestLines(ctx context.Context) error {
	s.mu.Lock()
	var guestLines []Line
	for _, line := range s.lines {
		if strings.HasPrefix(line.Key, guestKeyPrefix) {
			guestLines = append(guestLines, line)
		}
	}
	s.mu.Unlock()

	if len(guestLines) == 0 {
		return s.Fetch(ctx, true)
	}

	var lastCart storeapi.Cart
	var merged bool
	for _, line := range guestLines {
		cart, err := s.api.AddCartItem(ctx, line.ProductID, line.Quantity)
		if err != nil {
			// lines not yet merged stay local for the next attempt
			if merged {
				s.adoptMerge(ctx, lastCart)
			}
			return err
		}
		lastCart = cart
		merged = true
		s.mu.Lock()
		s.lines = removeLine(s.lines, line.Key)
		s.mu.Unlock()
	}

	s.adoptMerge(ctx, lastCart)
	s.metrics.IncMutation(storeName, "merge_guest")
	return nil
}

func (s *Store) adoptMerge(ctx context.Context, cart storeapi.Cart) {
	s.mu.Lock()
	var unmerged []Line
	for _, line := range s.lines {
		if strings.HasPrefix(line.Key, guestKeyPrefix) {
			unmerged = append(unmerged, line)
		}
	}
	s.gen++
	s.adoptLocked(cart)
	s.lines = append(s.lines, unmerged...)
	state := s.snapshotStateLocked()
	s.mu.Unlock()
	s.persist(ctx, state)
}

func (s *Store) commit(ctx context.Context, gen uint64, cart storeapi.Cart) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.adoptLocked(cart)
	state := s.snapshotStateLocked()
	s.mu.Unlock()
	s.persist(ctx, state)
}

func (s *Store) rollback(ctx context.Context, gen uint64, snapshot []Line, op string) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.lines = snapshot
	s.mu.Unlock()
	s.metrics.IncRollback(storeName, op)
	s.logger.Warn(s.logger.WithStore(ctx, storeName), op+" rolled back")
}

func (s *Store) addGuestLine(ctx context.Context, product ProductRef, quantity int) {
	s.mu.Lock()
	var found bool
	for i := range s.lines {
		if s.lines[i].ProductID == product.ID {
			s.lines[i].Quantity += quantity
			s.lines[i].Total = s.lines[i].Price * float64(s.lines[i].Quantity)
			found = true
			break
		}
	}
	if !found {
		s.lines = append(s.lines, Line{
			Key:       s.guestKey(product.ID),
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  quantity,
			Total:     product.Price * float64(quantity),
			Image:     product.Image,
			Model:     product.Model,
		})
	}
	state := s.snapshotStateLocked()
	s.mu.Unlock()
	s.persist(ctx, state)
	s.metrics.IncMutation(storeName, "add_item")
}

// adoptLocked replaces the line collection with server truth.
func (s *Store) adoptLocked(cart storeapi.Cart) {
	lines := make([]Line, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		lines = append(lines, Line{
			Key:       l.Key,
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     l.Price,
			Quantity:  l.Quantity,
			Total:     l.Price * float64(l.Quantity),
			Image:     l.Image,
			Model:     l.Model,
		})
	}
	s.lines = lines
	s.lastSync = s.now()
}

func (s *Store) snapshotStateLocked() persistedState {
	return persistedState{
		Items:    append([]Line(nil), s.lines...),
		LastSync: s.lastSync,
	}
}

func (s *Store) persist(ctx context.Context, state persistedState) {
	if err := s.storage.Put(ctx, storage.NamespaceCart, stateKey, state); err != nil {
		s.logger.Error(s.logger.WithStore(ctx, storeName), "persist cart state", err)
	}
}

func (s *Store) guestKey(productID string) string {
	return fmt.Sprintf("%s%d_%s", guestKeyPrefix, s.now().Unix(), productID)
}

func pendingKey(productID string) string {
	return "pending_" + productID
}

func removeLine(lines []Line, key string) []Line {
	next := lines[:0]
	for _, line := range lines {
		if line.Key != key {
			next = append(next, line)
		}
	}
	return next
}
