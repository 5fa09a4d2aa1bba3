package quote

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quotePayload(prices map[string]any) string {
	var items []string
	for symbol, price := range prices {
		items = append(items, fmt.Sprintf(`{"symbol":%q,"regularMarketPrice":%v}`, symbol, price))
	}
	return `{"quoteResponse":{"result":[` + strings.Join(items, ",") + `],"error":null}}`
}

func TestParseQuoteResponse(t *testing.T) {
	body := `{"quoteResponse":{"result":[
		{"symbol":"vwce.de","regularMarketPrice":101.25},
		{"symbol":"NOPRICE"},
		{"symbol":"NULLPRICE","regularMarketPrice":null},
		{"symbol":"STR","regularMarketPrice":"12.5"},
		{"regularMarketPrice":3}
	]}}`
	got, err := parseQuoteResponse(strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"VWCE.DE": 101.25, "STR": 12.5}, got)

	got, err = parseQuoteResponse(strings.NewReader(`{"unexpected":true}`))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = parseQuoteResponse(strings.NewReader(`not json`))
	require.Error(t, err)
}

func TestYahooBatchesWithPause(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbols := r.URL.Query().Get("symbols")
		mu.Lock()
		seen = append(seen, symbols)
		mu.Unlock()
		prices := map[string]any{}
		for _, s := range strings.Split(symbols, ",") {
			prices[s] = 10
		}
		fmt.Fprint(w, quotePayload(prices))
	}))
	defer srv.Close()

	sleeper := &recordingSleep{}
	p := NewYahooProvider(YahooConfig{
		URLs:       []string{srv.URL},
		BatchSize:  5,
		BatchPause: 500 * time.Millisecond,
		Retry:      testPolicy(sleeper),
	})

	symbols := []string{"A1", "A2", "A3", "A4", "A5", "A6"}
	got, err := p.Fetch(context.Background(), symbols)
	require.NoError(t, err)
	assert.Len(t, got, 6)
	assert.Equal(t, []string{"A1,A2,A3,A4,A5", "A6"}, seen)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, sleeper.Delays())
}

func TestYahooRetriesRateLimit(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if calls == 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, quotePayload(map[string]any{"AAA": 42.5}))
	}))
	defer srv.Close()

	sleeper := &recordingSleep{}
	p := NewYahooProvider(YahooConfig{URLs: []string{srv.URL}, Retry: testPolicy(sleeper)})

	got, err := p.Fetch(context.Background(), []string{"AAA"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"AAA": 42.5}, got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 4 * time.Second}, sleeper.Delays())
}

func TestYahooRateLimitExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sleeper := &recordingSleep{}
	p := NewYahooProvider(YahooConfig{URLs: []string{srv.URL}, Retry: testPolicy(sleeper)})

	_, err := p.Fetch(context.Background(), []string{"AAA"})
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sleeper.Delays())
}

func TestYahooUnauthorizedMovesToNextURL(t *testing.T) {
	denied := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer denied.Close()
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, quotePayload(map[string]any{"AAA": 7}))
	}))
	defer ok.Close()

	p := NewYahooProvider(YahooConfig{
		URLs:  []string{denied.URL, ok.URL},
		Retry: testPolicy(&recordingSleep{}),
	})
	got, err := p.Fetch(context.Background(), []string{"AAA"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"AAA": 7}, got)

	p = NewYahooProvider(YahooConfig{URLs: []string{denied.URL}, Retry: testPolicy(&recordingSleep{})})
	_, err = p.Fetch(context.Background(), []string{"AAA"})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestYahooPartialBatchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("symbols"), "BAD") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, quotePayload(map[string]any{"GOOD": 1}))
	}))
	defer srv.Close()

	p := NewYahooProvider(YahooConfig{URLs: []string{srv.URL}, BatchSize: 1, Retry: testPolicy(&recordingSleep{})})
	got, err := p.Fetch(context.Background(), []string{"GOOD", "BAD"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"GOOD": 1}, got)
}
