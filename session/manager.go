// Package session owns the credential lifecycle of the client: storage,
// verification against the remote service, silent refresh and logout.
// It is the only writer of the persisted credential set.
package session

import (
	"chat-client/auth"
	"chat-client/domain"
	"chat-client/errors"
	"chat-client/storage"
	"chat-client/transport"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Well-known keys of the persisted credential set.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserID       = "user_id"
	KeyEmail        = "email"
	KeyUsername     = "username"
)

var allKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUserID, KeyEmail, KeyUsername}

// writeOrder puts the access token first and the optional refresh token last.
var writeOrder = []string{KeyAccessToken, KeyUserID, KeyEmail, KeyUsername, KeyRefreshToken}

// Listener is told about every transition between authenticated and unauthenticated,
// and about every credential update while authenticated.
type Listener func(identity domain.Identity, authenticated bool)

type Manager struct {
	store storage.KeyValueStore
	api   transport.AuthAPI
	log   *slog.Logger
	now   func() time.Time

	// refreshMu serializes refreshes so concurrent callers never race on the access token.
	refreshMu sync.Mutex
	// stateMu guards every write to the credential set and the listener calls that follow it.
	stateMu sync.Mutex

	mu        sync.Mutex
	listeners []Listener
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(store storage.KeyValueStore, api transport.AuthAPI, log *slog.Logger, opts ...Option) *Manager {
	m := &Manager{store: store, api: api, log: log, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnChange registers a listener. Listeners run synchronously on the calling goroutine
// and must not call Store, Refresh or Logout.
func (m *Manager) OnChange(listener Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// Store persists a complete credential set. An incomplete set is ignored.
// Stores supporting batches write the set atomically; otherwise, if a write fails
// halfway, the keys already written are removed again.
func (m *Manager) Store(creds domain.Credentials) error {
	if !creds.Complete() {
		m.log.Debug("Ignoring incomplete credential set")
		return nil
	}
	set := map[string]string{
		KeyAccessToken: creds.AccessToken,
		KeyUserID:      creds.Identity.UserID,
		KeyEmail:       creds.Identity.Email,
		KeyUsername:    creds.Identity.DisplayName,
	}
	var remove []string
	if creds.RefreshToken != "" {
		set[KeyRefreshToken] = creds.RefreshToken
	} else {
		// A refresh token left by an earlier session must not outlive it.
		remove = append(remove, KeyRefreshToken)
	}

	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if batch, ok := m.store.(storage.BatchStore); ok {
		if err := batch.Apply(set, remove...); err != nil {
			return fmt.Errorf("storing credentials: %w", err)
		}
	} else if err := m.storeEach(set, remove); err != nil {
		return err
	}
	m.notify(creds.Identity, true)
	return nil
}

func (m *Manager) storeEach(set map[string]string, remove []string) error {
	var written []string
	for _, key := range writeOrder {
		value, ok := set[key]
		if !ok {
			continue
		}
		if err := m.store.Set(key, value); err != nil {
			if rmErr := m.store.Remove(written...); rmErr != nil {
				m.log.Error("Rolling back partial credential write failed", "error", rmErr)
			}
			return fmt.Errorf("storing %s: %w", key, err)
		}
		written = append(written, key)
	}
	if len(remove) > 0 {
		if err := m.store.Remove(remove...); err != nil {
			m.log.Warn("Could not clear previous refresh token", "error", err)
		}
	}
	return nil
}

// Current returns the stored identity. It never touches the network.
func (m *Manager) Current() (domain.Identity, bool) {
	userID, ok1 := m.read(KeyUserID)
	email, ok2 := m.read(KeyEmail)
	name, ok3 := m.read(KeyUsername)
	identity := domain.Identity{UserID: userID, Email: email, DisplayName: name}
	if !ok1 || !ok2 || !ok3 || !identity.Complete() {
		return domain.Identity{}, false
	}
	return identity, true
}

// Credentials rebuilds the full credential set from storage.
func (m *Manager) Credentials() (domain.Credentials, bool) {
	identity, ok := m.Current()
	if !ok {
		return domain.Credentials{}, false
	}
	access, ok := m.AccessToken()
	if !ok {
		return domain.Credentials{}, false
	}
	refresh, _ := m.RefreshToken()
	return domain.Credentials{AccessToken: access, RefreshToken: refresh, Identity: identity}, true
}

func (m *Manager) AccessToken() (string, bool) {
	return m.read(KeyAccessToken)
}

func (m *Manager) RefreshToken() (string, bool) {
	return m.read(KeyRefreshToken)
}

func (m *Manager) IsLoggedIn() bool {
	_, ok := m.Credentials()
	return ok
}

// Token implements transport.TokenSource.
func (m *Manager) Token(_ context.Context) (string, bool) {
	return m.AccessToken()
}

// Verify asks the remote service whether the stored access token is still accepted.
// Network failures count as rejection.
func (m *Manager) Verify(ctx context.Context) bool {
	token, ok := m.AccessToken()
	if !ok {
		return false
	}
	accepted, err := m.api.Verify(ctx, token)
	if err != nil {
		m.log.Debug("Token verification failed", "error", err)
		return false
	}
	return accepted
}

// Refresh exchanges the stored refresh token for a new access token.
// Only the access token is rewritten; on any failure storage is left untouched.
func (m *Manager) Refresh(ctx context.Context) (domain.Credentials, bool) {
	creds, err := m.refresh(ctx)
	if err != nil {
		m.log.Debug("Token refresh failed", "error", err)
		return domain.Credentials{}, false
	}
	return creds, true
}

// refresh reports why a refresh failed: ErrNoIdentity when there is no session to
// refresh (or it changed meanwhile), ErrAuthentication when the service rejected the
// refresh token, ErrTransport when the answer is unknown.
func (m *Manager) refresh(ctx context.Context) (domain.Credentials, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	refresh, ok := m.RefreshToken()
	if !ok {
		return domain.Credentials{}, fmt.Errorf("%w: no refresh token", errors.ErrNoIdentity)
	}
	identity, ok := m.Current()
	if !ok {
		m.log.Debug("Refresh token present without a complete identity")
		return domain.Credentials{}, fmt.Errorf("%w: incomplete identity", errors.ErrNoIdentity)
	}

	result, err := m.api.Refresh(ctx, refresh)
	switch {
	case err == nil:
	case stderrors.Is(err, errors.ErrAuthentication), stderrors.Is(err, errors.ErrTransport):
		return domain.Credentials{}, err
	default:
		return domain.Credentials{}, fmt.Errorf("%w: %v", errors.ErrTransport, err)
	}
	if result.AccessToken == "" {
		return domain.Credentials{}, fmt.Errorf("%w: empty access token", errors.ErrAuthentication)
	}
	if result.UserID != "" && result.UserID != identity.UserID {
		m.log.Warn("Refreshed token belongs to another user", "stored", identity.UserID, "received", result.UserID)
		return domain.Credentials{}, fmt.Errorf("%w: token issued for another user", errors.ErrAuthentication)
	}

	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	// A logout or a new login may have happened while the request was in flight.
	currentRefresh, _ := m.RefreshToken()
	current, ok := m.Current()
	if !ok || currentRefresh != refresh || current.UserID != identity.UserID {
		m.log.Debug("Session changed during refresh, discarding new token")
		return domain.Credentials{}, fmt.Errorf("%w: session changed during refresh", errors.ErrNoIdentity)
	}
	if err := m.store.Set(KeyAccessToken, result.AccessToken); err != nil {
		return domain.Credentials{}, fmt.Errorf("persisting refreshed token: %w", err)
	}
	m.notify(identity, true)
	return domain.Credentials{AccessToken: result.AccessToken, RefreshToken: refresh, Identity: identity}, nil
}

// AutoLogin restores the session at startup: verify first, refresh only when verification fails.
func (m *Manager) AutoLogin(ctx context.Context) (domain.Credentials, bool) {
	if m.Verify(ctx) {
		if creds, ok := m.Credentials(); ok {
			return creds, true
		}
	}
	return m.Refresh(ctx)
}

// Logout removes every persisted field. Calling it twice is harmless.
func (m *Manager) Logout() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if err := m.store.Remove(allKeys...); err != nil {
		m.log.Error("Clearing credentials failed", "error", err)
	}
	m.notify(domain.Identity{}, false)
}

// Login authenticates interactively and stores the resulting credential set.
func (m *Manager) Login(ctx context.Context, email, password string) (domain.Credentials, error) {
	if err := auth.ValidateLogin(auth.LoginRequest{Email: email, Password: password}); err != nil {
		return domain.Credentials{}, err
	}
	creds, err := m.api.Login(ctx, email, password)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("login: %w", err)
	}
	return creds, m.Store(creds)
}

// Register starts a registration. The account becomes usable after ConfirmRegistration.
func (m *Manager) Register(ctx context.Context, email, username, password string) error {
	req := auth.RegisterRequest{Email: email, Username: username, Password: password}
	if err := auth.ValidateRegister(req); err != nil {
		return err
	}
	if err := m.api.Register(ctx, email, username, password); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

// ConfirmRegistration completes a registration and stores the resulting credential set.
func (m *Manager) ConfirmRegistration(ctx context.Context, email, code string) (domain.Credentials, error) {
	if err := auth.ValidateConfirm(auth.ConfirmRequest{Email: email, Code: code}); err != nil {
		return domain.Credentials{}, err
	}
	creds, err := m.api.ConfirmRegistration(ctx, email, code)
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("confirm registration: %w", err)
	}
	return creds, m.Store(creds)
}

func (m *Manager) read(key string) (string, bool) {
	value, ok, err := m.store.Get(key)
	if err != nil {
		m.log.Warn("Reading credential failed", "key", key, "error", err)
		return "", false
	}
	return value, ok && value != ""
}

func (m *Manager) notify(identity domain.Identity, authenticated bool) {
	m.mu.Lock()
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()
	for _, l := range listeners {
		l(identity, authenticated)
	}
}
