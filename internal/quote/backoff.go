package quote

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jpillora/backoff"
)

const maxBackoff = 5 * time.Minute

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// BackoffDelay is the exponential delay before retry number attempt
// (0-based): base, 2*base, 4*base, ...
func BackoffDelay(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	b := &backoff.Backoff{Min: base, Max: maxBackoff, Factor: 2}
	return b.ForAttempt(float64(attempt))
}

// RetryAfter interprets a Retry-After header: either delta seconds or an
// HTTP date, converted to a delay relative to now. Past dates and negative
// values mean no wait.
func RetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if math.IsNaN(secs) || math.IsInf(secs, 0) {
			return 0, false
		}
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// RetryPolicy governs how rate-limited requests are repeated.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	Sleep     SleepFunc
	Now       func() time.Time
}

// DefaultRetryPolicy: three attempts, 2s doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  3,
		BaseDelay: 2 * time.Second,
		Sleep:     sleepContext,
		Now:       time.Now,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.Attempts <= 0 {
		p.Attempts = def.Attempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.Sleep == nil {
		p.Sleep = def.Sleep
	}
	if p.Now == nil {
		p.Now = def.Now
	}
	return p
}

// Delay picks the wait before the next attempt, preferring the server's
// Retry-After hint. Hints are capped at maxBackoff.
func (p RetryPolicy) Delay(attempt int, retryAfter string) time.Duration {
	if d, ok := RetryAfter(retryAfter, p.Now()); ok {
		return min(d, maxBackoff)
	}
	return BackoffDelay(attempt, p.BaseDelay)
}
