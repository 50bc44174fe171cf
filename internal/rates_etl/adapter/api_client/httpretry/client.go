// Package httpretry is a JSON-over-HTTP GET client that retries transient
// upstream failures with exponential backoff.
package httpretry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// ErrBadStatus is returned for a non-retryable response status, e.g. 400.
var ErrBadStatus = errors.New("bad response status code")

const (
	DefaultMaxTries = 5
	DefaultBackoff  = time.Second
	DefaultTimeout  = 60 * time.Second
)

type Client struct {
	client   *http.Client
	maxTries int
	backoff  time.Duration
}

type Option func(c *Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

func WithMaxTries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTries = n
		}
	}
}

// WithBackoff sets the delay before the second attempt; it doubles afterwards.
func WithBackoff(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.backoff = d
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.client.Timeout = d
		}
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		client:   &http.Client{Timeout: DefaultTimeout},
		maxTries: DefaultMaxTries,
		backoff:  DefaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError carries the status of a failed response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad response status code - %d", e.Code)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= http.StatusInternalServerError
}

// GetJSON requests rawURL with query and decodes the JSON body into out.
// Transport errors, 429 and 5xx are retried; other statuses fail at once
// with an error matching ErrBadStatus.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	const op = "httpretry.GetJSON"

	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap(err, op)
	}
	if len(query) > 0 {
		q := u.Query()
		for key, values := range query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	endpoint := u.String()

	delay := c.backoff
	var lastErr error

	for attempt := 1; attempt <= c.maxTries; attempt++ {
		slog.Debug("requesting", "op", op, "url", redact(u), "attempt", attempt)

		body, err := c.get(ctx, endpoint)
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return errors.Wrap(err, op+": decode response")
			}
			return nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retryable() {
			return fmt.Errorf("%s: %w: %w", op, ErrBadStatus, statusErr)
		}
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), op)
		}

		lastErr = err
		if attempt == c.maxTries {
			break
		}

		slog.Warn("request failed, retrying", "op", op, "url", redact(u), "attempt", attempt, "delay", delay, "error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrap(ctx.Err(), op)
		case <-timer.C:
		}
		delay *= 2
	}

	return errors.Wrapf(lastErr, "%s: giving up after %d attempts", op, c.maxTries)
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request error: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api_client get error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body error: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// redact hides credentials passed as query parameters.
func redact(u *url.URL) string {
	q := u.Query()
	if q.Has("access_key") {
		q.Set("access_key", "xxx")
	}
	c := *u
	c.RawQuery = q.Encode()
	return c.String()
}
