package firebase

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// ErrNoValidToken means no usable id token could be produced, not even by
// refreshing. Callers must treat it as "session expired, force re-login".
var ErrNoValidToken = errors.New("no valid authentication token")

// TokenSource supplies a currently valid id token. force requests that the
// token be refreshed even if the cached one has not expired yet.
type TokenSource interface {
	Token(ctx context.Context, force bool) (string, error)
}

// Limiter gates outbound calls. Wait blocks until the call may proceed.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Operation is a single backend call parameterized by the token to present.
// Results are captured by the closure.
type Operation func(ctx context.Context, token string) error

const maxAttempts = 2

// Executor applies the uniform auth policy to backend calls: fetch a token,
// invoke, and on a permission-denied failure force one refresh and retry
// once. An optional Limiter is consulted before each execution.
type Executor struct {
	tokens  TokenSource
	limiter Limiter
}

func NewExecutor(tokens TokenSource) *Executor {
	return &Executor{tokens: tokens}
}

// NewRateLimitedExecutor returns an executor that waits on limiter before
// every execution, not just retries.
func NewRateLimitedExecutor(tokens TokenSource, limiter Limiter) *Executor {
	return &Executor{tokens: tokens, limiter: limiter}
}

// Execute runs op with a valid token, retrying exactly once after a forced
// token refresh if the backend reports permission denied. All other failures
// propagate as-is.
func (e *Executor) Execute(ctx context.Context, op Operation) error {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// Force a refresh on the retry; the first attempt uses whatever
		// token is cached and still valid.
		token, err := e.tokens.Token(ctx, attempt > 1)
		if err != nil {
			return err
		}
		if token == "" {
			return ErrNoValidToken
		}

		err = op(ctx, token)
		if err == nil {
			return nil
		}
		lastErr = err

		if IsPermissionDenied(err) && attempt < maxAttempts {
			log.Info().Int("attempt", attempt).Msg("permission denied, refreshing token and retrying")
			continue
		}
		break
	}
	return lastErr
}
