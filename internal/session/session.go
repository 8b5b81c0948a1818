// Package session owns the durable login state of the application: the
// session record persisted under the user's data directory, the in-memory
// token cache, and the manager that keeps the two in sync with the auth
// backend.
package session

import (
	"context"
	"fmt"
	"time"
)

// Session is the persisted record identifying the logged-in (or guest)
// identity and its credentials. Field names match the on-disk format used
// since the first release.
type Session struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	LoggedIn     bool   `json:"logged_in"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	IsGuest      bool   `json:"is_guest"`
}

// Store persists at most one session record.
type Store interface {
	Save(userID, email, token, refreshToken string, isGuest bool) error
	// Load returns (nil, nil) when no session exists. A corrupt session
	// file is deleted and reported as no session.
	Load() (*Session, error)
	Clear() error
}

// GuestCleaner removes a guest user's remote data. Failures are best-effort
// only; Clear ignores them.
type GuestCleaner interface {
	RemoveUserData(ctx context.Context, userID string) error
}

const guestIDTimeLayout = "20060102_150405"

// NewGuestSession creates an ephemeral guest identity. Guest sessions never
// survive an application restart.
func NewGuestSession(now time.Time) *Session {
	return &Session{
		UserID:   fmt.Sprintf("guest_%s", now.Format(guestIDTimeLayout)),
		Email:    "",
		LoggedIn: true,
		IsGuest:  true,
	}
}
