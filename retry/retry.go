// Package retry wraps single request attempts with error classification,
// exponential backoff, and a bounded retry budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"time"
)

// Class is the retry classification of a failure.
type Class int

const (
	// ClassTemporary failures (timeouts, 5xx, 429, connection resets) are
	// eligible for another attempt.
	ClassTemporary Class = iota
	// ClassPermanent failures (404, 403, malformed request) fail immediately.
	ClassPermanent
	// ClassCritical failures exhausted the retry budget.
	ClassCritical
)

func (c Class) String() string {
	switch c {
	case ClassTemporary:
		return "temporary"
	case ClassPermanent:
		return "permanent"
	case ClassCritical:
		return "critical"
	}
	return "unknown"
}

// Config holds retry behavior parameters. It is a value object: supply it
// at construction time, never mutate it afterwards.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
}

// DefaultConfig returns the retry parameters used against the Federal
// Register API unless configuration says otherwise.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Validate checks the Config invariants: at least one attempt, max delay
// not below base delay, multiplier at least 1.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("retry: max attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("retry: base delay must be positive, got %s", c.BaseDelay)
	}
	if c.MaxDelay < c.BaseDelay {
		return fmt.Errorf("retry: max delay %s is below base delay %s", c.MaxDelay, c.BaseDelay)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("retry: backoff multiplier must be at least 1, got %g", c.Multiplier)
	}
	return nil
}

// StatusError reports a non-success HTTP response from the upstream.
// RetryAfter carries the server-supplied wait hint, when present.
type StatusError struct {
	URL        string
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
}

// ExhaustedError marks a temporary failure that ran out of attempts.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsExhausted reports whether err is (or wraps) an ExhaustedError.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

// Classify maps an error to its retry class. Unknown errors are treated
// as temporary: the upstream is flaky enough that guessing "retry" is the
// safer default.
func Classify(err error) Class {
	if errors.Is(err, context.Canceled) {
		return ClassPermanent
	}
	var ee *ExhaustedError
	if errors.As(err, &ee) {
		return ClassCritical
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == 429 || se.StatusCode >= 500:
			return ClassTemporary
		case se.StatusCode == 400, se.StatusCode == 401, se.StatusCode == 403,
			se.StatusCode == 404, se.StatusCode == 405, se.StatusCode == 410:
			return ClassPermanent
		default:
			return ClassTemporary
		}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ClassTemporary
	}
	return ClassTemporary
}

// Hinter receives observed upstream wait hints so request pacing can adapt.
type Hinter interface {
	Hold(d time.Duration)
}

// Handler executes operations with retries. Safe for concurrent use; one
// handler serves both page fetches and content fetches.
type Handler struct {
	cfg    Config
	hinter Hinter
	sleep  func(ctx context.Context, d time.Duration) error
	rand   func() float64
}

// New creates a Handler. hinter may be nil when no rate limiter feedback
// is wanted.
func New(cfg Config, hinter Hinter) *Handler {
	return &Handler{
		cfg:    cfg,
		hinter: hinter,
		sleep:  sleepContext,
		rand:   rand.Float64,
	}
}

// Do runs op, retrying temporary failures with exponential backoff until
// it succeeds, fails permanently, or the attempt budget is spent. The
// backoff delay is a suspension point: it observes ctx and returns early
// on cancellation.
func (h *Handler) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= h.cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		lastErr = err

		// Pass the wait hint along even when this flow is done retrying:
		// other flows sharing the limiter must still honor it.
		if h.hinter != nil {
			if hint := retryAfterHint(err); hint > 0 {
				h.hinter.Hold(hint)
			}
		}

		if Classify(err) == ClassPermanent {
			return err
		}
		if attempt == h.cfg.MaxAttempts {
			break
		}

		delay := h.Delay(attempt, err)
		slog.Debug("retrying after temporary failure",
			"attempt", attempt, "delay", delay, "error", err)
		if serr := h.sleep(ctx, delay); serr != nil {
			return serr
		}
	}
	return &ExhaustedError{Attempts: h.cfg.MaxAttempts, Err: lastErr}
}

// Delay computes the backoff before the attempt following the given one.
// A server-supplied Retry-After hint replaces the computed delay when it
// is larger.
func (h *Handler) Delay(attempt int, err error) time.Duration {
	d := float64(h.cfg.BaseDelay) * math.Pow(h.cfg.Multiplier, float64(attempt-1))
	if d > float64(h.cfg.MaxDelay) {
		d = float64(h.cfg.MaxDelay)
	}
	if h.cfg.Jitter {
		d += h.rand() * d
		if d > float64(h.cfg.MaxDelay) {
			d = float64(h.cfg.MaxDelay)
		}
	}
	delay := time.Duration(d)
	if hint := retryAfterHint(err); hint > delay {
		delay = hint
	}
	return delay
}

func retryAfterHint(err error) time.Duration {
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == 429 {
		return se.RetryAfter
	}
	return 0
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
