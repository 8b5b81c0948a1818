package session

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/okarro/taskmaster/internal/firebase"
)

// KeepAlive periodically refreshes the id token so a long-running process
// never dispatches a request with an expired token. It runs until ctx is
// cancelled. A failed refresh is logged and retried on the next tick; a
// missing session is normal (logged out) and skipped silently.
func KeepAlive(ctx context.Context, m *Manager, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("stopping token keep-alive")
			return ctx.Err()
		case <-ticker.C:
			if !m.LoggedIn() {
				continue
			}
			if _, err := m.Token(ctx, true); err != nil && !errors.Is(err, firebase.ErrNoValidToken) {
				log.Warn().Err(err).Msg("keep-alive token refresh failed")
			}
		}
	}
}
