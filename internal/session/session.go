// Package session owns the process-wide auth state: the bearer token,
// the current user, and the explicit lifecycle around them. The token
// is restored from the store at startup and mutated only by login,
// logout, and invalidation.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jhalvorsen/ledgerview/internal/domain"

	"go.uber.org/zap"
)

// AuthAPI is the slice of the transport the session manager depends on.
type AuthAPI interface {
	Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error)
	Signup(ctx context.Context, req *domain.SignupRequest) error
	Me(ctx context.Context, token string) (*domain.User, error)
}

// Store persists the credential across runs (the localStorage analogue).
type Store interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// Manager holds the session. Safe for concurrent use.
type Manager struct {
	api    AuthAPI
	store  Store
	logger *zap.Logger

	mu       sync.Mutex
	token    string
	user     *domain.User
	onChange func()
}

// NewManager creates a Manager and restores any persisted credential.
func NewManager(api AuthAPI, store Store, logger *zap.Logger) *Manager {
	m := &Manager{api: api, store: store, logger: logger}
	if token, err := store.Load(); err == nil {
		m.token = strings.TrimSpace(token)
	}
	return m
}

// OnChange registers the callback fired after every credential change
// (login, logout, invalidation). Fired outside the lock.
func (m *Manager) OnChange(fn func()) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Token returns the current bearer token, or "" when logged out.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// IsAuthenticated reports whether a credential is held.
func (m *Manager) IsAuthenticated() bool {
	return m.Token() != ""
}

// CurrentUser returns the user behind the credential, if known.
func (m *Manager) CurrentUser() *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user
}

// Login exchanges credentials for a token, persists it and remembers
// the returned user.
func (m *Manager) Login(ctx context.Context, usernameOrEmail, password string) (*domain.User, error) {
	resp, err := m.api.Login(ctx, &domain.LoginRequest{
		UsernameOrEmail: usernameOrEmail,
		Password:        password,
	})
	if err != nil {
		return nil, err
	}
	token := ""
	var user *domain.User
	if resp != nil {
		token = strings.TrimSpace(resp.Token)
		user = resp.User
	}
	if token == "" {
		// Defensively treat a token-less 200 as a failed login.
		return nil, &domain.ErrUnauthorized{Message: "login response carried no token"}
	}

	if err := m.store.Save(token); err != nil {
		m.logger.Warn("session: could not persist token", zap.Error(err))
	}

	m.mu.Lock()
	m.token = token
	m.user = user
	fn := m.onChange
	m.mu.Unlock()

	m.logger.Info("session: logged in")
	if fn != nil {
		fn()
	}
	return user, nil
}

// Signup registers a new account. It does not log in: the caller logs
// in explicitly afterwards, matching the backend flow.
func (m *Manager) Signup(ctx context.Context, username, email, password string) error {
	return m.api.Signup(ctx, &domain.SignupRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
}

// Logout tears the session down explicitly.
func (m *Manager) Logout() {
	m.clear("logged out")
}

// Invalidate tears the session down in response to a 401/403 observed
// anywhere in the client.
func (m *Manager) Invalidate() {
	m.clear("credential rejected by backend")
}

func (m *Manager) clear(reason string) {
	m.mu.Lock()
	hadToken := m.token != ""
	m.token = ""
	m.user = nil
	fn := m.onChange
	m.mu.Unlock()

	if err := m.store.Clear(); err != nil {
		m.logger.Warn("session: could not clear token store", zap.Error(err))
	}
	if hadToken {
		m.logger.Info("session: cleared", zap.String("reason", reason))
		if fn != nil {
			fn()
		}
	}
}

// RefreshMe resolves the user behind the persisted token. A 401/403
// invalidates the session and reports success (the session is simply
// logged out now); any other failure is returned to the caller.
func (m *Manager) RefreshMe(ctx context.Context) error {
	token := m.Token()
	if token == "" {
		m.mu.Lock()
		m.user = nil
		m.mu.Unlock()
		return nil
	}

	user, err := m.api.Me(ctx, token)
	if err != nil {
		var unauthorized *domain.ErrUnauthorized
		if errors.As(err, &unauthorized) {
			m.Invalidate()
			return nil
		}
		return err
	}

	m.mu.Lock()
	m.user = user
	m.mu.Unlock()
	return nil
}
