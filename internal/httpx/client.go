// Package httpx provides a JSON HTTP client with bounded retry and backoff
// for transient upstream failures. It performs no caching and no rate
// limiting; those layers are composed around it.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/rewired-gh/marketmood/internal/models"
)

// UpstreamError is the terminal failure of a call: the last HTTP status seen
// and a truncated response body.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.Status, e.Body)
}

// Unwrap maps the status onto the shared failure taxonomy so callers can use
// errors.Is without inspecting status codes themselves.
func (e *UpstreamError) Unwrap() error {
	switch {
	case e.Status == http.StatusTooManyRequests:
		return models.ErrRateLimited
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return models.ErrUpstreamAuth
	case e.Status >= 500:
		return models.ErrUpstreamUnavailable
	default:
		return nil
	}
}

const maxErrBodyLen = 512

// Client performs JSON requests with retry on 429 and 5xx responses.
type Client struct {
	hc             *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a retrying client. timeout bounds each individual
// attempt; maxRetries is the number of extra attempts after the first.
func NewClient(timeout time.Duration, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if retryDelayBase <= 0 {
		retryDelayBase = 250 * time.Millisecond
	}
	return &Client{
		hc:             &http.Client{Timeout: timeout},
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}
}

// GetJSON fetches url and decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	return c.do(ctx, http.MethodGet, url, header, nil, out)
}

// PostJSON marshals body, posts it to url, and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, url, header, payload, out)
}

func (c *Client) do(ctx context.Context, method, url string, header http.Header, payload []byte, out any) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Transport failure or per-attempt timeout: retryable.
			lastErr = fmt.Errorf("request failed: %w: %w", models.ErrUpstreamUnavailable, err)
			if attempt < c.maxRetries {
				if err := c.sleep(ctx, c.backoff(attempt, nil)); err != nil {
					return err
				}
				continue
			}
			return lastErr
		}

		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if readErr != nil {
				return fmt.Errorf("failed to read response: %w", readErr)
			}
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			return nil
		}

		upErr := &UpstreamError{Status: resp.StatusCode, Body: truncate(string(raw))}

		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if !retryable {
			// 4xx other than 429: retrying cannot help.
			return upErr
		}

		lastErr = upErr
		if attempt < c.maxRetries {
			if err := c.sleep(ctx, c.backoff(attempt, resp.Header)); err != nil {
				return err
			}
			continue
		}
	}

	return lastErr
}

// backoff honors an explicit Retry-After seconds hint when present, otherwise
// base * 2^attempt plus a little jitter against thundering herds.
func (c *Client) backoff(attempt int, header http.Header) time.Duration {
	if header != nil {
		if ra := header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	delay := c.retryDelayBase * time.Duration(1<<attempt)
	return delay + time.Duration(rand.Intn(100))*time.Millisecond
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(s string) string {
	if len(s) > maxErrBodyLen {
		return s[:maxErrBodyLen]
	}
	return s
}
