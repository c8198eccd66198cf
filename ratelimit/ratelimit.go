// Package ratelimit paces outbound requests to the Federal Register API.
// All request flows share one Limiter so concurrent agency runs stay under
// the configured rate together.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates request starts. Beyond the steady token rate it honors a
// shared hold instant: when the upstream asks everyone to back off (a 429
// with Retry-After), Hold pushes the instant forward and every subsequent
// Acquire waits it out first.
type Limiter struct {
	limiter *rate.Limiter

	mu        sync.Mutex
	holdUntil time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Limiter allowing rps requests per second with the given
// burst. burst below 1 is raised to 1 so Acquire can ever succeed.
func New(rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

// Acquire blocks until a request may start or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		wait := l.holdUntil.Sub(l.now())
		l.mu.Unlock()
		if wait <= 0 {
			break
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return l.limiter.Wait(ctx)
}

// Hold delays all Acquire calls until d from now. A shorter hold never
// shrinks one already in effect.
func (l *Limiter) Hold(d time.Duration) {
	if d <= 0 {
		return
	}
	until := l.now().Add(d)
	l.mu.Lock()
	if until.After(l.holdUntil) {
		l.holdUntil = until
	}
	l.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
