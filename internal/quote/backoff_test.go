package quote

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleep stands in for real waits and remembers what was asked.
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) Sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func (r *recordingSleep) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func testPolicy(s *recordingSleep) RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 2 * time.Second, Sleep: s.Sleep}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{-1, 2 * time.Second},
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{20, maxBackoff},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BackoffDelay(tt.attempt, 2*time.Second), "attempt %d", tt.attempt)
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{"empty", "", 0, false},
		{"seconds", "3", 3 * time.Second, true},
		{"fractional", "1.5", 1500 * time.Millisecond, true},
		{"negative clamps", "-4", 0, true},
		{"garbage", "soon", 0, false},
		{"http date", now.Add(10 * time.Second).Format(http.TimeFormat), 10 * time.Second, true},
		{"past date", now.Add(-time.Hour).Format(http.TimeFormat), 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := RetryAfter(tt.value, now)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRetryPolicyDelayPrefersHeader(t *testing.T) {
	p := RetryPolicy{BaseDelay: 2 * time.Second}.withDefaults()
	assert.Equal(t, 7*time.Second, p.Delay(0, "7"))
	assert.Equal(t, 4*time.Second, p.Delay(1, ""))
}

func TestRetryPolicyDelayCapsHeader(t *testing.T) {
	p := RetryPolicy{BaseDelay: 2 * time.Second}.withDefaults()
	assert.Equal(t, maxBackoff, p.Delay(0, "3600"))
	assert.Equal(t, maxBackoff, p.Delay(0, time.Now().Add(2*time.Hour).UTC().Format(http.TimeFormat)))
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
