package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Alessandro1981/etf-checker/internal/config"
	"github.com/Alessandro1981/etf-checker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMonitor struct {
	mu      sync.Mutex
	cfg     config.Config
	state   models.State
	runs    int
	updates []config.Config
}

func (f *fakeMonitor) RunOnce(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return nil
}

func (f *fakeMonitor) UpdateConfig(cfg config.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	f.updates = append(f.updates, cfg)
}

func (f *fakeMonitor) Config() config.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *fakeMonitor) Snapshot() models.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Clone()
}

func newFixture(t *testing.T) (*fakeMonitor, *Server, string) {
	t.Helper()
	mon := &fakeMonitor{
		cfg: config.Config{
			Options: config.Options{
				PollIntervalSeconds:     900,
				DefaultThresholdPercent: 2.0,
				NotifyService:           "notify/mobile_app_phone",
			},
			UI: config.UIConfig{
				Symbols:                []string{"VWCE.DE", "SWDA.MI"},
				ThresholdPercent:       3,
				MarketOpenRetrySeconds: 60,
				FinnhubAPIKey:          "keep-me",
			},
		},
		state: models.State{
			Baselines:          map[string]float64{"VWCE.DE": 110.5, "OLD": 1},
			LastBaselineUpdate: time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC),
		},
	}
	uiPath := filepath.Join(t.TempDir(), "ui_config.json")
	return mon, NewServer(mon, uiPath, "/api/hassio_ingress/abc/"), uiPath
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	_, s, _ := newFixture(t)
	rec := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGetConfig(t *testing.T) {
	_, s, _ := newFixture(t)
	rec := do(t, s, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"etf_symbols": ["VWCE.DE", "SWDA.MI"],
		"threshold_percent": 3,
		"market_open_retry_seconds": 60,
		"poll_interval_seconds": 900,
		"notify_service": "notify/mobile_app_phone",
		"baselines": {"VWCE.DE": 110.5, "OLD": 1},
		"last_baseline_update": "2024-05-06T08:00:00Z"
	}`, rec.Body.String())
}

func TestUpdateConfig(t *testing.T) {
	mon, s, uiPath := newFixture(t)
	rec := do(t, s, http.MethodPost, "/api/config",
		`{"etf_symbols":" vwce.de, ,iwda.as ","threshold_percent":"0.05","market_open_retry_seconds":-5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, []any{"VWCE.DE", "IWDA.AS"}, resp["etf_symbols"])
	assert.Equal(t, 0.1, resp["threshold_percent"])
	assert.Equal(t, float64(0), resp["market_open_retry_seconds"])

	require.Len(t, mon.updates, 1)
	assert.Equal(t, "keep-me", mon.updates[0].UI.FinnhubAPIKey)
	assert.Equal(t, 900, mon.updates[0].Options.PollIntervalSeconds)
	assert.Equal(t, 1, mon.runs)

	saved := config.LoadUI(uiPath, 2.0)
	assert.Equal(t, []string{"VWCE.DE", "IWDA.AS"}, saved.Symbols)
	assert.Equal(t, 0.1, saved.ThresholdPercent)
}

func TestParseUIUpdateFallbacks(t *testing.T) {
	current := config.Config{
		Options: config.Options{DefaultThresholdPercent: 2.5},
		UI:      config.UIConfig{MarketOpenRetrySeconds: 30, FinnhubAPIKey: "abc"},
	}
	tests := []struct {
		name string
		data map[string]any
		want config.UIConfig
	}{
		{
			name: "empty body",
			data: map[string]any{},
			want: config.UIConfig{Symbols: []string{}, ThresholdPercent: 2.5, MarketOpenRetrySeconds: 30, FinnhubAPIKey: "abc"},
		},
		{
			name: "bad numbers",
			data: map[string]any{"threshold_percent": "lots", "market_open_retry_seconds": "soon", "finnhub_api_key": nil},
			want: config.UIConfig{Symbols: []string{}, ThresholdPercent: 2.5, MarketOpenRetrySeconds: 30, FinnhubAPIKey: ""},
		},
		{
			name: "list of symbols",
			data: map[string]any{"etf_symbols": []any{"a", "b", "a"}, "threshold_percent": 4.0, "market_open_retry_seconds": 12.0},
			want: config.UIConfig{Symbols: []string{"A", "B"}, ThresholdPercent: 4, MarketOpenRetrySeconds: 12, FinnhubAPIKey: "abc"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseUIUpdate(tt.data, current))
		})
	}
}

func TestUpdateConfigBadJSON(t *testing.T) {
	mon, s, _ := newFixture(t)
	rec := do(t, s, http.MethodPost, "/api/config", `not json`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, mon.updates, 1)
	assert.Empty(t, mon.updates[0].UI.Symbols)
	assert.Equal(t, 2.0, mon.updates[0].UI.ThresholdPercent)
}

func TestPoll(t *testing.T) {
	mon, s, _ := newFixture(t)
	rec := do(t, s, http.MethodPost, "/api/poll", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, mon.runs)

	rec = do(t, s, http.MethodGet, "/api/poll", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestIngressRedirect(t *testing.T) {
	_, s, _ := newFixture(t)
	rec := do(t, s, http.MethodGet, "/ingress", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/hassio_ingress/abc/", rec.Header().Get("Location"))

	plain := NewServer(&fakeMonitor{}, filepath.Join(t.TempDir(), "ui.json"), "")
	rec = do(t, plain, http.MethodGet, "/ingress", "")
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestIndex(t *testing.T) {
	_, s, _ := newFixture(t)
	rec := do(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "VWCE.DE, SWDA.MI")
	assert.Contains(t, body, "<td>VWCE.DE</td><td>110.50</td>")
	assert.NotContains(t, body, "<td>OLD</td>", "baselines of unconfigured symbols are hidden")
	assert.Contains(t, body, "2024-05-06 10:00:00 CEST")
	assert.Contains(t, body, "notify/mobile_app_phone")

	rec = do(t, s, http.MethodGet, "/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
