package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Alessandro1981/etf-checker/internal/logger"
	"github.com/PaesslerAG/jsonpath"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

const quoteResultPath = "$.quoteResponse.result[*]"

// YahooProvider is the primary provider: the public v7 quote endpoint,
// queried in small batches.
type YahooProvider struct {
	client     *http.Client
	urls       []string
	batchSize  int
	batchPause time.Duration
	policy     RetryPolicy
	userAgent  string
}

// YahooConfig configures YahooProvider.
type YahooConfig struct {
	URLs       []string // tried in order; 401 moves on to the next
	BatchSize  int
	BatchPause time.Duration
	Timeout    time.Duration
	Retry      RetryPolicy
	UserAgent  string
}

func NewYahooProvider(cfg YahooConfig) *YahooProvider {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &YahooProvider{
		client:     &http.Client{Timeout: cfg.Timeout},
		urls:       cfg.URLs,
		batchSize:  cfg.BatchSize,
		batchPause: cfg.BatchPause,
		policy:     cfg.Retry.withDefaults(),
		userAgent:  cfg.UserAgent,
	}
}

func (p *YahooProvider) Name() string { return "Yahoo Finance" }

// Fetch queries the symbols in batches, pausing between batches. A failed
// batch leaves its symbols unpriced; only a failure of every batch is an
// error.
func (p *YahooProvider) Fetch(ctx context.Context, symbols []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(symbols))
	batches := lo.Chunk(symbols, p.batchSize)

	var errs []error
	for i, batch := range batches {
		got, err := p.fetchBatch(ctx, batch)
		if err != nil {
			logger.Warn("Yahoo Finance request failed for %s: %v", strings.Join(batch, ","), err)
			errs = append(errs, err)
		}
		for symbol, price := range got {
			prices[symbol] = price
		}
		if i < len(batches)-1 {
			if err := p.policy.Sleep(ctx, p.batchPause); err != nil {
				return prices, err
			}
		}
	}

	if len(batches) > 0 && len(errs) == len(batches) {
		return prices, errors.Join(errs...)
	}
	return prices, nil
}

func (p *YahooProvider) fetchBatch(ctx context.Context, batch []string) (map[string]float64, error) {
	params := url.Values{}
	params.Set("symbols", strings.Join(batch, ","))

	var lastErr error
	for _, base := range p.urls {
		target := base + "?" + params.Encode()
		resp, err := doWithRetry(ctx, p.client, p.policy, "quote", func(ctx context.Context) (*http.Request, error) {
			return newGet(ctx, target, "application/json", p.userAgent)
		})
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp)
			lastErr = &StatusError{Provider: p.Name(), StatusCode: resp.StatusCode}
			continue
		}
		if !isSuccess(resp.StatusCode) {
			drain(resp)
			return nil, &StatusError{Provider: p.Name(), StatusCode: resp.StatusCode}
		}
		defer resp.Body.Close()
		return parseQuoteResponse(resp.Body)
	}
	if lastErr == nil {
		lastErr = errors.New("no quote endpoint configured")
	}
	return nil, lastErr
}

// parseQuoteResponse extracts symbol -> regularMarketPrice from a v7 quote
// payload. Entries without a usable price are skipped.
func parseQuoteResponse(r io.Reader) (map[string]float64, error) {
	var payload any
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode quote response: %w", err)
	}

	prices := make(map[string]float64)
	results, err := jsonpath.Get(quoteResultPath, payload)
	if err != nil {
		// no quoteResponse.result at all: nothing priced
		return prices, nil
	}
	items, ok := results.([]any)
	if !ok {
		return prices, nil
	}

	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		symbol := strings.ToUpper(cast.ToString(entry["symbol"]))
		raw, present := entry["regularMarketPrice"]
		if symbol == "" || !present || raw == nil {
			continue
		}
		price, err := cast.ToFloat64E(raw)
		if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
			continue
		}
		prices[symbol] = price
	}
	return prices, nil
}
