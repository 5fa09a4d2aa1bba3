package quote

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Alessandro1981/etf-checker/internal/logger"
	"github.com/gocarina/gocsv"
)

// stooqRow is one line of the Stooq light quote CSV. Only the columns we
// read are mapped.
type stooqRow struct {
	Symbol string `csv:"Symbol"`
	Close  string `csv:"Close"`
}

// StooqConfig configures StooqProvider.
type StooqConfig struct {
	URL       string
	Timeout   time.Duration
	Retry     RetryPolicy
	UserAgent string
}

// StooqProvider quotes one symbol per request from the Stooq CSV endpoint.
type StooqProvider struct {
	client    *http.Client
	url       string
	policy    RetryPolicy
	userAgent string
}

func NewStooqProvider(cfg StooqConfig) *StooqProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &StooqProvider{
		client:    &http.Client{Timeout: cfg.Timeout},
		url:       cfg.URL,
		policy:    cfg.Retry.withDefaults(),
		userAgent: cfg.UserAgent,
	}
}

func (p *StooqProvider) Name() string { return "Stooq" }

// Fetch keys results by the requested symbol, upper-cased. It fails only
// when every request failed.
func (p *StooqProvider) Fetch(ctx context.Context, symbols []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(symbols))
	var errs []error
	for _, symbol := range symbols {
		price, ok, err := p.fetchOne(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return prices, ctx.Err()
			}
			logger.Debug("Stooq request for %s failed: %v", symbol, err)
			errs = append(errs, err)
			continue
		}
		if ok {
			prices[strings.ToUpper(symbol)] = price
		}
	}
	if len(symbols) > 0 && len(errs) == len(symbols) {
		return prices, errors.Join(errs...)
	}
	return prices, nil
}

func (p *StooqProvider) fetchOne(ctx context.Context, symbol string) (float64, bool, error) {
	params := url.Values{}
	params.Set("s", strings.ToLower(symbol))
	params.Set("f", "sd2t2ohlcv")
	params.Set("h", "")
	params.Set("e", "csv")
	target := p.url + "?" + params.Encode()

	resp, err := doWithRetry(ctx, p.client, p.policy, "stooq", func(ctx context.Context) (*http.Request, error) {
		return newGet(ctx, target, "text/csv", p.userAgent)
	})
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return 0, false, &StatusError{Provider: p.Name(), StatusCode: resp.StatusCode}
	}

	var rows []*stooqRow
	if err := gocsv.Unmarshal(resp.Body, &rows); err != nil {
		// an empty body or a header-only answer carries no price
		logger.Debug("Stooq returned no usable CSV for %s: %v", symbol, err)
		return 0, false, nil
	}
	if len(rows) == 0 {
		return 0, false, nil
	}
	price, ok := parseClose(rows[0].Close)
	return price, ok, nil
}

// parseClose reads a Close cell; blanks and the N/A, N/D markers mean no
// price.
func parseClose(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	switch strings.ToUpper(value) {
	case "", "N/A", "N/D":
		return 0, false
	}
	price, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, false
	}
	return price, true
}

