package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okarro/taskmaster/internal/firebase"
)

// DefaultTokenTTL is how long a freshly minted id token is trusted. It is
// deliberately shorter than the backend's own token lifetime so the manager
// refreshes proactively instead of dispatching a request with a token that
// expires mid-flight.
const DefaultTokenTTL = 55 * time.Minute

// Refresher mints a new id token from a refresh token. Satisfied by
// firebase.AuthClient.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*firebase.Credentials, error)
}

// TokenManager is the in-memory cache of the current id token, its expiry
// and the refresh token needed to mint replacements. It answers "give me a
// currently valid token" with as few backend calls as possible.
type TokenManager struct {
	mu           sync.Mutex
	token        string
	expiry       time.Time
	refreshToken string

	refresher Refresher
	ttl       time.Duration
	now       func() time.Time
}

func NewTokenManager(refresher Refresher, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{
		refresher: refresher,
		ttl:       ttl,
		now:       time.Now,
	}
}

// SetToken stores token and stamps its expiry at now + TTL.
func (m *TokenManager) SetToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.expiry = m.now().Add(m.ttl)
}

func (m *TokenManager) SetRefreshToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshToken = token
}

func (m *TokenManager) RefreshToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshToken
}

// IsValid reports whether a token is present and not yet expired.
func (m *TokenManager) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validLocked()
}

func (m *TokenManager) validLocked() bool {
	return m.token != "" && m.now().Before(m.expiry)
}

// Token returns a currently valid id token, refreshing through the auth
// backend when the cached one has expired or force is set. With no refresh
// token available, or when the refresh fails, it returns ErrNoValidToken.
func (m *TokenManager) Token(ctx context.Context, force bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !force && m.validLocked() {
		return m.token, nil
	}
	if m.refreshToken == "" {
		return "", firebase.ErrNoValidToken
	}

	creds, err := m.refresher.Refresh(ctx, m.refreshToken)
	if err != nil {
		log.Error().Err(err).Msg("token refresh failed")
		return "", firebase.ErrNoValidToken
	}

	m.token = creds.IDToken
	m.expiry = m.now().Add(m.ttl)
	if creds.RefreshToken != "" {
		m.refreshToken = creds.RefreshToken
	}
	log.Info().Msg("token refreshed")
	return m.token, nil
}

// Clear wipes the token, its expiry and the refresh token. Used on logout.
func (m *TokenManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiry = time.Time{}
	m.refreshToken = ""
}
