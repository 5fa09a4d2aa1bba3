// Package web serves the settings page and the small JSON API in front of
// the monitor.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/Alessandro1981/etf-checker/internal/config"
	"github.com/Alessandro1981/etf-checker/internal/logger"
	"github.com/Alessandro1981/etf-checker/internal/models"
	"github.com/spf13/cast"
)

const displayZone = "Europe/Rome"

// Monitor is the control surface the handlers drive.
type Monitor interface {
	RunOnce(ctx context.Context) error
	UpdateConfig(cfg config.Config)
	Config() config.Config
	Snapshot() models.State
}

// Server wires the handlers to a monitor.
type Server struct {
	mon         Monitor
	uiPath      string
	ingressRoot string
	loc         *time.Location
	mux         *http.ServeMux
}

// NewServer builds the routes. ingressRoot is the Home Assistant ingress
// prefix, empty when not running behind ingress.
func NewServer(mon Monitor, uiPath, ingressRoot string) *Server {
	loc, err := time.LoadLocation(displayZone)
	if err != nil {
		loc = time.UTC
	}
	s := &Server{
		mon:         mon,
		uiPath:      uiPath,
		ingressRoot: strings.TrimRight(ingressRoot, "/"),
		loc:         loc,
		mux:         http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /api/config", s.handleGetConfig)
	s.mux.HandleFunc("POST /api/config", s.handleUpdateConfig)
	s.mux.HandleFunc("POST /api/poll", s.handlePoll)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ingress", s.handleIngress)
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ETF Checker on %s (ingress root: %s)", addr, orDash(s.ingressRoot))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type configResponse struct {
	Symbols                []string           `json:"etf_symbols"`
	ThresholdPercent       float64            `json:"threshold_percent"`
	MarketOpenRetrySeconds int                `json:"market_open_retry_seconds"`
	PollIntervalSeconds    int                `json:"poll_interval_seconds"`
	NotifyService          string             `json:"notify_service"`
	Baselines              map[string]float64 `json:"baselines"`
	LastBaselineUpdate     *time.Time         `json:"last_baseline_update"`
}

type updateResponse struct {
	Status                 string   `json:"status"`
	Symbols                []string `json:"etf_symbols"`
	ThresholdPercent       float64  `json:"threshold_percent"`
	MarketOpenRetrySeconds int      `json:"market_open_retry_seconds"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.mon.Config()
	state := s.mon.Snapshot()
	resp := configResponse{
		Symbols:                nonNil(cfg.UI.Symbols),
		ThresholdPercent:       cfg.UI.ThresholdPercent,
		MarketOpenRetrySeconds: cfg.UI.MarketOpenRetrySeconds,
		PollIntervalSeconds:    cfg.Options.PollIntervalSeconds,
		NotifyService:          cfg.Options.NotifyService,
		Baselines:              state.Baselines,
	}
	if !state.LastBaselineUpdate.IsZero() {
		t := state.LastBaselineUpdate.UTC()
		resp.LastBaselineUpdate = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUpdateConfig accepts lenient input: bad numbers fall back to the
// defaults or to the current values.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
		data = map[string]any{}
	}
	current := s.mon.Config()
	ui := parseUIUpdate(data, current)

	if err := config.SaveUI(s.uiPath, ui); err != nil {
		logger.Error("PERSISTENCE: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	s.mon.UpdateConfig(current.WithUI(ui))
	if err := s.mon.RunOnce(context.WithoutCancel(r.Context())); err != nil {
		logger.Warn("Poll after config update failed: %v", err)
	}

	writeJSON(w, http.StatusOK, updateResponse{
		Status:                 "ok",
		Symbols:                nonNil(ui.Symbols),
		ThresholdPercent:       ui.ThresholdPercent,
		MarketOpenRetrySeconds: ui.MarketOpenRetrySeconds,
	})
}

func parseUIUpdate(data map[string]any, current config.Config) config.UIConfig {
	ui := config.UIConfig{
		ThresholdPercent:       current.Options.DefaultThresholdPercent,
		MarketOpenRetrySeconds: current.UI.MarketOpenRetrySeconds,
		FinnhubAPIKey:          current.UI.FinnhubAPIKey,
	}

	switch raw := data["etf_symbols"].(type) {
	case nil:
	case []any:
		ui.Symbols = cast.ToStringSlice(raw)
	default:
		ui.Symbols = models.ParseSymbolList(cast.ToString(raw))
	}
	if raw, ok := data["threshold_percent"]; ok && raw != nil {
		if f, err := cast.ToFloat64E(raw); err == nil {
			ui.ThresholdPercent = f
		}
	}
	if raw, ok := data["market_open_retry_seconds"]; ok && raw != nil {
		if n, err := cast.ToIntE(raw); err == nil {
			ui.MarketOpenRetrySeconds = n
		}
	}
	if raw, ok := data["finnhub_api_key"]; ok {
		ui.FinnhubAPIKey = cast.ToString(raw)
	}
	return ui.Normalize(current.Options.DefaultThresholdPercent)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if err := s.mon.RunOnce(context.WithoutCancel(r.Context())); err != nil {
		logger.Warn("Manual poll failed: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIngress(w http.ResponseWriter, r *http.Request) {
	target := "/"
	if s.ingressRoot != "" {
		target = s.ingressRoot + "/"
	}
	http.Redirect(w, r, target, http.StatusFound)
}

type baselineRow struct {
	Symbol string
	Price  float64
}

type indexData struct {
	IngressRoot            string
	Symbols                string
	Threshold              float64
	MarketOpenRetrySeconds int
	FinnhubAPIKey          string
	PollInterval           int
	NotifyService          string
	Baselines              []baselineRow
	LastBaselineUpdate     string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	cfg := s.mon.Config()
	state := s.mon.Snapshot()

	data := indexData{
		IngressRoot:            s.ingressRoot,
		Symbols:                strings.Join(cfg.UI.Symbols, ", "),
		Threshold:              cfg.UI.ThresholdPercent,
		MarketOpenRetrySeconds: cfg.UI.MarketOpenRetrySeconds,
		FinnhubAPIKey:          cfg.UI.FinnhubAPIKey,
		PollInterval:           cfg.Options.PollIntervalSeconds,
		NotifyService:          cfg.Options.NotifyService,
	}
	for _, symbol := range cfg.UI.Symbols {
		if price, ok := state.Baselines[symbol]; ok {
			data.Baselines = append(data.Baselines, baselineRow{Symbol: symbol, Price: price})
		}
	}
	if !state.LastBaselineUpdate.IsZero() {
		data.LastBaselineUpdate = state.LastBaselineUpdate.In(s.loc).Format("2006-01-02 15:04:05 MST")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if err := indexTemplate.Execute(w, data); err != nil {
		logger.Error("Failed to render index: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write response: %v", err)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
