package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	pkgerrors "github.com/nmoraleda/storefront/pkg/errors"
	"github.com/nmoraleda/storefront/pkg/logger"
	"github.com/nmoraleda/storefront/pkg/storage"
	"github.com/nmoraleda/storefront/pkg/storeapi"
)

const stateKey = "state"

type api interface {
	Login(ctx context.Context, email, password string) (storeapi.LoginResult, error)
	Logout(ctx context.Context) error
}

// Observer runs on the guest-to-authenticated transition. Observers are fired
// sequentially; a failing observer is logged and does not block the others.
type Observer func(ctx context.Context) error

type persistedState struct {
	Token      string `msgpack:"token"`
	Email      string `msgpack:"email"`
	CustomerID string `msgpack:"customer_id"`
	LoggedIn   bool   `msgpack:"logged_in"`
}

// ManagerParams groups dependencies for the session manager.
type ManagerParams struct {
	API     api
	Storage storage.Store
	Logger  *logger.Logger
}

// Manager is the identity gate: it decides guest vs authenticated mode for
// every store and owns the login-transition observer registry.
type Manager struct {
	api     api
	storage storage.Store
	logger  *logger.Logger

	mu        sync.Mutex
	state     persistedState
	hydrated  bool
	observers []Observer
}

func NewManager(params ManagerParams) (*Manager, error) {
	if params.API == nil {
		return nil, errors.New("session api is required")
	}
	if params.Storage == nil {
		return nil, errors.New("session storage is required")
	}
	if params.Logger == nil {
		return nil, errors.New("session logger is required")
	}
	return &Manager{
		api:     params.API,
		storage: params.Storage,
		logger:  params.Logger,
	}, nil
}

// Hydrate restores the persisted session from storage. A missing record is
// not an error; it simply means a fresh guest session.
func (m *Manager) Hydrate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hydrated {
		return nil
	}
	var state persistedState
	err := m.storage.Get(ctx, storage.NamespaceSession, stateKey, &state)
	switch {
	case err == nil:
		m.state = state
	case errors.Is(err, storage.ErrKeyNotFound):
	default:
		return err
	}
	m.hydrated = true
	return nil
}

// LoggedIn reports authenticated mode. An expired session token demotes the
// session to guest mode without a network call.
func (m *Manager) LoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LoggedIn && tokenValid(m.state.Token)
}

func (m *Manager) Email() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Email
}

// OnLogin registers an observer for the guest-to-authenticated transition.
func (m *Manager) OnLogin(obs Observer) {
	if obs == nil {
		return
	}
	m.mu.Lock()
	m.observers = append(m.observers, obs)
	m.mu.Unlock()
}

// Login authenticates the customer and fires the login observers when the
// session moves from guest to authenticated mode.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email and password are required")
	}

	wasLoggedIn := m.LoggedIn()

	result, err := m.api.Login(ctx, email, password)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.state = persistedState{
		Token:      result.Token,
		Email:      result.Email,
		CustomerID: result.CustomerID,
		LoggedIn:   true,
	}
	state := m.state
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	if err := m.storage.Put(ctx, storage.NamespaceSession, stateKey, state); err != nil {
		m.logger.Error(ctx, "persist session state", err)
	}

	if !wasLoggedIn {
		m.notifyLogin(ctx, observers)
	}
	return nil
}

// Logout clears the customer session locally even when the server call fails;
// a stale server session is harmless, a stale local one is not.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.api.Logout(ctx)

	m.mu.Lock()
	m.state = persistedState{}
	m.mu.Unlock()

	if perr := m.storage.Delete(ctx, storage.NamespaceSession, stateKey); perr != nil {
		m.logger.Error(ctx, "clear persisted session", perr)
	}
	return err
}

func (m *Manager) notifyLogin(ctx context.Context, observers []Observer) {
	for _, obs := range observers {
		if err := obs(ctx); err != nil {
			m.logger.Error(ctx, "login observer failed", err)
		}
	}
}

// tokenValid treats a token without an exp claim, or one that does not parse
// as a JWT, as valid; the backend remains the authority either way.
func tokenValid(token string) bool {
	if token == "" {
		return false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return exp.Time.After(nowFunc())
}

// nowFunc is swapped in tests.
var nowFunc = time.Now
