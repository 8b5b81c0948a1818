package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okarro/taskmaster/internal/firebase"
)

// Manager owns the active session. It coordinates the durable Store, the
// in-memory TokenManager and the auth backend, and is the single place the
// rest of the application asks about login state. It replaces the global
// current-user variable of earlier designs; exactly one session is active
// per process.
type Manager struct {
	mu      sync.Mutex
	current *Session

	store  Store
	tokens *TokenManager
	auth   firebase.AuthClient
	now    func() time.Time
}

func NewManager(store Store, auth firebase.AuthClient, tokenTTL time.Duration) *Manager {
	return &Manager{
		store:  store,
		tokens: NewTokenManager(auth, tokenTTL),
		auth:   auth,
		now:    time.Now,
	}
}

// Restore seeds the manager from the session persisted on disk. Guest
// sessions found on disk are cleared instead of restored; they must not
// survive a restart.
func (m *Manager) Restore() error {
	sess, err := m.store.Load()
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	if sess.IsGuest {
		log.Info().Str("userId", sess.UserID).Msg("clearing stale guest session")
		return m.store.Clear()
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	m.tokens.SetRefreshToken(sess.RefreshToken)
	if sess.IDToken != "" {
		m.tokens.SetToken(sess.IDToken)
	}
	log.Info().Str("email", sess.Email).Msg("session restored")
	return nil
}

// Login signs the user in and persists the resulting session.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	creds, err := m.auth.SignIn(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	return m.adopt(creds, false)
}

// SignUp creates a new account and persists the resulting session.
func (m *Manager) SignUp(ctx context.Context, email, password string) error {
	creds, err := m.auth.SignUp(ctx, email, password)
	if err != nil {
		return fmt.Errorf("signup failed: %w", err)
	}
	return m.adopt(creds, false)
}

// GuestLogin starts an ephemeral guest session. Guests have no credentials;
// their remote data lives under the generated guest id until Logout.
func (m *Manager) GuestLogin() error {
	sess := NewGuestSession(m.now())

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	m.tokens.Clear()

	if err := m.store.Save(sess.UserID, sess.Email, "", "", true); err != nil {
		return err
	}
	log.Info().Str("userId", sess.UserID).Msg("guest session started")
	return nil
}

func (m *Manager) adopt(creds *firebase.Credentials, isGuest bool) error {
	sess := &Session{
		UserID:       creds.UserID,
		Email:        creds.Email,
		LoggedIn:     true,
		IDToken:      creds.IDToken,
		RefreshToken: creds.RefreshToken,
		IsGuest:      isGuest,
	}

	m.mu.Lock()
	m.current = sess
	m.mu.Unlock()
	m.tokens.SetToken(creds.IDToken)
	m.tokens.SetRefreshToken(creds.RefreshToken)

	return m.store.Save(sess.UserID, sess.Email, sess.IDToken, sess.RefreshToken, sess.IsGuest)
}

// Logout clears the persisted session, the token cache and the in-memory
// state. Guest remote data cleanup happens inside Store.Clear.
func (m *Manager) Logout() error {
	err := m.store.Clear()
	m.tokens.Clear()
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	log.Info().Msg("logged out")
	return err
}

// ResetPassword asks the backend to email a password reset link.
func (m *Manager) ResetPassword(ctx context.Context, email string) error {
	return m.auth.SendPasswordReset(ctx, email)
}

// DeleteAccount deletes the remote account, then logs out locally.
func (m *Manager) DeleteAccount(ctx context.Context) error {
	token, err := m.Token(ctx, false)
	if err != nil {
		return err
	}
	if err := m.auth.DeleteAccount(ctx, token); err != nil {
		return fmt.Errorf("account deletion failed: %w", err)
	}
	return m.Logout()
}

// Current returns a copy of the active session, or nil when logged out.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	sess := *m.current
	return &sess
}

func (m *Manager) LoggedIn() bool {
	return m.Current() != nil
}

// Token implements firebase.TokenSource. A refresh that produced a new token
// is written back to the store so the next process start picks it up.
func (m *Manager) Token(ctx context.Context, force bool) (string, error) {
	m.mu.Lock()
	if m.current == nil {
		m.mu.Unlock()
		return "", firebase.ErrNoValidToken
	}
	if m.current.IsGuest {
		m.mu.Unlock()
		// Guests call the backend unauthenticated.
		return "", firebase.ErrNoValidToken
	}
	// Work from a value snapshot; the keep-alive goroutine mutates
	// m.current through this same method.
	snap := *m.current
	m.mu.Unlock()

	token, err := m.tokens.Token(ctx, force)
	if err != nil {
		return "", err
	}
	if token == snap.IDToken {
		return token, nil
	}

	m.mu.Lock()
	if m.current == nil {
		// Logged out while the refresh was in flight; do not resurrect
		// the session on disk.
		m.mu.Unlock()
		return token, nil
	}
	m.current.IDToken = token
	m.current.RefreshToken = m.tokens.RefreshToken()
	snap = *m.current
	m.mu.Unlock()

	if err := m.store.Save(snap.UserID, snap.Email, snap.IDToken, snap.RefreshToken, snap.IsGuest); err != nil {
		log.Warn().Err(err).Msg("failed to persist refreshed session")
	}
	return token, nil
}
