// Package httpclient wraps net/http with the conveniences the OAuth
// endpoints need: bounded timeouts, retry on transient failure, body
// buffering, and JSON decoding helpers.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config holds HTTP client configuration
type Config struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns a default HTTP client configuration
func DefaultConfig() *Config {
	return &Config{
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		RetryDelay: time.Second,
	}
}

// Client wraps http.Client with retry and decoding helpers
type Client struct {
	httpClient *http.Client
	config     *Config
}

// New creates a new HTTP client with the given configuration
func New(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}
}

// Response holds a fully buffered HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status code is 2xx
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON unmarshals the buffered body into the provided interface
func (r *Response) JSON(v interface{}) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(r.Body, v)
}

// String returns the response body as a string
func (r *Response) String() string {
	return string(r.Body)
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, nil, headers)
}

// PostJSON performs a POST request with a JSON-encoded body
func (c *Client) PostJSON(ctx context.Context, rawURL string, body interface{}, headers map[string]string) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	if headers == nil {
		headers = make(map[string]string)
	}
	headers["Content-Type"] = "application/json"

	return c.do(ctx, http.MethodPost, rawURL, data, headers)
}

// PostForm performs a POST request with a URL-encoded form body, the
// shape token and registration endpoints expect
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values) (*Response, error) {
	headers := map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
		"Accept":       "application/json",
	}
	return c.do(ctx, http.MethodPost, rawURL, []byte(form.Encode()), headers)
}

// do performs the request with retries. The body is held as bytes so
// each attempt gets a fresh reader. 4xx responses are returned without
// retrying; 5xx and transport errors retry up to MaxRetries times.
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, headers map[string]string) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		resp, err := c.doSingle(ctx, method, rawURL, body, headers)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("HTTP %d - %s", resp.StatusCode, truncate(resp.String()))
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) doSingle(ctx context.Context, method, rawURL string, body []byte, headers map[string]string) (*Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func truncate(s string) string {
	const max = 200
	s = strings.TrimSpace(s)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
