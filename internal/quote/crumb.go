package quote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Alessandro1981/etf-checker/internal/logger"
)

// CrumbConfig configures CrumbProvider.
type CrumbConfig struct {
	CookieURL       string // visited once to obtain session cookies
	CrumbURL        string // returns the crumb as plain text
	SessionQuoteURL string // quote endpoint tried without a crumb
	CrumbQuoteURL   string // quote endpoint used with a crumb
	TTL             time.Duration
	Timeout         time.Duration
	Retry           RetryPolicy
	UserAgent       string
}

// CrumbProvider is the secondary provider. It keeps a cookie session and a
// short-lived crumb token, both shared across calls and guarded by mu.
type CrumbProvider struct {
	cfg    CrumbConfig
	client *http.Client
	policy RetryPolicy

	mu      sync.Mutex
	primed  bool
	crumb   string
	crumbAt time.Time
}

var errNoCrumb = errors.New("crumb unavailable")

func NewCrumbProvider(cfg CrumbConfig) *CrumbProvider {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	jar, _ := cookiejar.New(nil)
	return &CrumbProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout, Jar: jar},
		policy: cfg.Retry.withDefaults(),
	}
}

func (p *CrumbProvider) Name() string { return "Yahoo Finance crumb" }

func (p *CrumbProvider) Fetch(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}
	if err := p.prime(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbols", strings.Join(symbols, ","))

	resp, err := p.get(ctx, p.cfg.SessionQuoteURL+"?"+params.Encode(), "application/json", "quote")
	if err != nil {
		return nil, err
	}
	if isSuccess(resp.StatusCode) {
		defer resp.Body.Close()
		return parseQuoteResponse(resp.Body)
	}
	status := resp.StatusCode
	drain(resp)
	if status != http.StatusUnauthorized && status != http.StatusTooManyRequests {
		return nil, &StatusError{Provider: p.Name(), StatusCode: status}
	}

	for refresh := 0; refresh < 2; refresh++ {
		crumb, err := p.token(ctx, refresh > 0)
		if err != nil {
			return nil, err
		}
		params.Set("crumb", crumb)
		resp, err := p.get(ctx, p.cfg.CrumbQuoteURL+"?"+params.Encode(), "application/json", "quote")
		if err != nil {
			return nil, err
		}
		if isSuccess(resp.StatusCode) {
			defer resp.Body.Close()
			return parseQuoteResponse(resp.Body)
		}
		status = resp.StatusCode
		drain(resp)
		if status != http.StatusUnauthorized {
			break
		}
		logger.Debug("Crumb rejected, refreshing")
	}
	return nil, &StatusError{Provider: p.Name(), StatusCode: status}
}

func (p *CrumbProvider) get(ctx context.Context, target, accept, label string) (*http.Response, error) {
	return doWithRetry(ctx, p.client, p.policy, label, func(ctx context.Context) (*http.Request, error) {
		return newGet(ctx, target, accept, p.cfg.UserAgent)
	})
}

// prime visits the cookie URL once per provider lifetime. Its status is
// irrelevant; only the cookies matter.
func (p *CrumbProvider) prime(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.primed || p.cfg.CookieURL == "" {
		return nil
	}
	req, err := newGet(ctx, p.cfg.CookieURL, "text/html", p.cfg.UserAgent)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	drain(resp)
	p.primed = true
	return nil
}

// token returns the cached crumb while it is fresh, otherwise fetches a new
// one. force discards the cached value.
func (p *CrumbProvider) token(ctx context.Context, force bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.policy.Now()
	if !force && p.crumb != "" && now.Sub(p.crumbAt) < p.cfg.TTL {
		return p.crumb, nil
	}
	p.crumb = ""

	resp, err := p.get(ctx, p.cfg.CrumbURL, "text/plain", "crumb")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return "", &StatusError{Provider: p.Name(), StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if err != nil {
		return "", err
	}
	crumb := strings.TrimSpace(string(body))
	if crumb == "" {
		return "", errNoCrumb
	}
	p.crumb = crumb
	p.crumbAt = now
	return crumb, nil
}
