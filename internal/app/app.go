// Package app composes the storefront client: storage, backend client,
// session gate, and the state stores. Everything is dependency-injected and
// constructed once per application instance; Close tears the instance down.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/nmoraleda/storefront/internal/address"
	"github.com/nmoraleda/storefront/internal/cart"
	"github.com/nmoraleda/storefront/internal/checkout"
	"github.com/nmoraleda/storefront/internal/checkout/gateway"
	"github.com/nmoraleda/storefront/internal/product"
	"github.com/nmoraleda/storefront/internal/session"
	"github.com/nmoraleda/storefront/internal/wishlist"
	"github.com/nmoraleda/storefront/pkg/config"
	"github.com/nmoraleda/storefront/pkg/logger"
	"github.com/nmoraleda/storefront/pkg/metrics"
	"github.com/nmoraleda/storefront/pkg/storage"
	"github.com/nmoraleda/storefront/pkg/storeapi"
)

const closeTimeout = 5 * time.Second

type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Storage  storage.Store
	API      *storeapi.Client
	Session  *session.Manager
	Cart     *cart.Store
	Wishlist *wishlist.Store
	Checkout *checkout.Store
	Address  *address.Store
	Product  *product.Store
	Listener *gateway.Listener
}

func New(ctx context.Context, cfg *config.Config, logg *logger.Logger, reg prometheus.Registerer) (*App, error) {
	met := metrics.NewStoreMetrics(reg)

	store, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap storage: %w", err)
	}

	api, err := storeapi.NewClient(cfg.API, logg, met)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("bootstrap backend client: %w", err)
	}

	sess, err := session.NewManager(session.ManagerParams{
		API:     api,
		Storage: store,
		Logger:  logg,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	cartStore, err := cart.NewStore(cart.StoreParams{
		API:     api,
		Session: sess,
		Storage: store,
		Logger:  logg,
		Metrics: met,
		Cache:   cfg.Cache,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	wishlistStore, err := wishlist.NewStore(wishlist.StoreParams{
		API:     api,
		Session: sess,
		Storage: store,
		Logger:  logg,
		Metrics: met,
		Cache:   cfg.Cache,
		Retry:   cfg.Retry,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	checkoutStore, err := checkout.NewStore(checkout.StoreParams{
		API:     api,
		Cart:    cartStore,
		Logger:  logg,
		Metrics: met,
		Payment: cfg.Payment,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	addressStore, err := address.NewStore(address.StoreParams{
		API:     api,
		Session: sess,
		Storage: store,
		Logger:  logg,
		Cache:   cfg.Cache,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	productStore, err := product.NewStore(product.StoreParams{
		API:      api,
		Storage:  store,
		Logger:   logg,
		Cache:    cfg.Cache,
		Debounce: cfg.Search.Debounce,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	listener, err := gateway.NewListener(cfg.Payment.CallbackAddr, logg, checkoutStore.HandleGatewaySignal)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	// guest state merges on the guest-to-authenticated transition
	sess.OnLogin(cartStore.MergeGuestLines)
	sess.OnLogin(wishlistStore.MergeGuestIDs)

	a := &App{
		Config:   cfg,
		Logger:   logg,
		Storage:  store,
		API:      api,
		Session:  sess,
		Cart:     cartStore,
		Wishlist: wishlistStore,
		Checkout: checkoutStore,
		Address:  addressStore,
		Product:  productStore,
		Listener: listener,
	}

	if err := a.hydrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("hydrate stores: %w", err)
	}
	return a, nil
}

func (a *App) hydrate(ctx context.Context) error {
	if err := a.Session.Hydrate(ctx); err != nil {
		return err
	}
	if err := a.Cart.Hydrate(ctx); err != nil {
		return err
	}
	if err := a.Wishlist.Hydrate(ctx); err != nil {
		return err
	}
	if err := a.Address.Hydrate(ctx); err != nil {
		return err
	}
	return a.Product.Hydrate(ctx)
}

// Close tears the application instance down, aggregating component errors.
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	var err error
	a.Product.CancelSearch()
	err = multierr.Append(err, a.Listener.Shutdown(ctx))
	err = multierr.Append(err, a.Storage.Close())
	return err
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverRedis:
		return storage.NewRedisStore(ctx, cfg.Redis)
	case config.StorageDriverMemory:
		return storage.NewMemoryStore(), nil
	default:
		return storage.NewBadgerStore(cfg.Storage.Path)
	}
}
