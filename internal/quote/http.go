package quote

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/Alessandro1981/etf-checker/internal/logger"
)

const defaultUserAgent = "ETF-Checker/1.0"

// newGet builds a GET request with the headers every provider sends.
func newGet(ctx context.Context, rawURL, accept, userAgent string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", accept)
	return req, nil
}

// doWithRetry performs the request, repeating it while the upstream answers
// 429 and attempts remain. The final response is returned whatever its
// status; transport errors are returned immediately.
func doWithRetry(ctx context.Context, client *http.Client, policy RetryPolicy, label string,
	build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	policy = policy.withDefaults()

	for attempt := 0; ; attempt++ {
		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || attempt >= policy.Attempts-1 {
			return resp, nil
		}

		delay := policy.Delay(attempt, resp.Header.Get("Retry-After"))
		drain(resp)
		logger.Warn("Upstream rate limited (%s). Retrying in %.1fs.", label, delay.Seconds())
		if err := policy.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
