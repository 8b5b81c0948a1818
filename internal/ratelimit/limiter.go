// Package ratelimit implements a blocking sliding-window rate limiter for
// outbound backend calls. It never rejects a call, only delays it until the
// oldest request in the window ages out.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultLimit  = 100
	DefaultWindow = time.Minute
)

// Limiter caps calls to limit per window. Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	stamps []time.Time
	limit  int
	window time.Duration

	// overridable in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Wait blocks until the call is allowed to proceed and records it. If the
// window is full, the caller sleeps until the oldest recorded call leaves
// the window. Cancelling ctx aborts the wait without recording the call.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := l.now()
	l.evict(now)

	if len(l.stamps) >= l.limit {
		sleepFor := l.stamps[0].Add(l.window).Sub(now)
		l.mu.Unlock()
		if sleepFor > 0 {
			log.Debug().Dur("sleep", sleepFor).Msg("rate limit reached, delaying request")
			if err := l.sleep(ctx, sleepFor); err != nil {
				return err
			}
		}
		l.mu.Lock()
		now = l.now()
		l.evict(now)
	}

	l.stamps = append(l.stamps, now)
	l.mu.Unlock()
	return nil
}

// evict drops timestamps that have left the trailing window. Caller holds mu.
func (l *Limiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
