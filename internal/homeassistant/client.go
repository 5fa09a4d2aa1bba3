// Package homeassistant delivers notifications through the Home Assistant
// REST API by calling a notify service.
package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrNotConfigured  = errors.New("home assistant client is not fully configured")
	ErrInvalidService = errors.New("notify service must look like 'notify/mobile_app_phone' or 'notify.mobile_app_phone'")
)

// DeliveryError is a non-success answer from Home Assistant.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("home assistant returned %d", e.StatusCode)
	}
	return fmt.Sprintf("home assistant returned %d: %s", e.StatusCode, e.Body)
}

// Client calls one notify service with a long-lived access token.
type Client struct {
	baseURL    string
	token      string
	service    string
	httpClient *http.Client
}

// NewClient creates a client. The base URL's trailing slash is dropped.
func NewClient(baseURL, token, service string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
		service:    strings.TrimSpace(service),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether URL, token and service are all set.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.token != "" && c.service != ""
}

func (c *Client) Name() string { return "home assistant" }

// Service returns the configured notify service id.
func (c *Client) Service() string { return c.service }

// Send posts a title and message to the notify service.
func (c *Client) Send(ctx context.Context, title, message string) error {
	return c.SendWithData(ctx, title, message, nil)
}

// SendWithData is Send with an optional data map passed through to the
// notify service.
func (c *Client) SendWithData(ctx context.Context, title, message string, data map[string]any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	domain, service, err := SplitService(c.service)
	if err != nil {
		return err
	}

	payload := map[string]any{"title": title, "message": message}
	if len(data) > 0 {
		payload["data"] = data
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	url := fmt.Sprintf("%s/api/services/%s/%s", c.baseURL, domain, service)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s.%s: %w", domain, service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &DeliveryError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// SplitService splits "domain/service" or "domain.service". The slash form
// wins when both separators are present.
func SplitService(id string) (domain, service string, err error) {
	for _, sep := range []string{"/", "."} {
		if d, s, ok := strings.Cut(id, sep); ok {
			return d, s, nil
		}
	}
	return "", "", fmt.Errorf("%w: %q", ErrInvalidService, id)
}
