// Package httpds is a read-only datasource over HTTP. Requests are rate
// limited, and transient failures (transport errors, 429, 5xx) are retried
// with exponential backoff.
package httpds

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ingest/internal/datasource"
)

// Config configures a Client. Zero values take the defaults noted per field.
type Config struct {
	// BaseURL resolves relative keys passed to Open.
	BaseURL string
	// Timeout bounds each attempt. Default 30s.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialBackoff doubles per retry up to MaxBackoff. Defaults 200ms, 5s.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RPS caps request starts per second; zero means unlimited.
	RPS   float64
	Burst int

	InsecureSkipVerify bool
	Headers            http.Header
	// Transport replaces the default transport, TLS setting included.
	Transport http.RoundTripper
}

// Client fetches objects over HTTP.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	maxRetries int
	initial    time.Duration
	maxBackoff time.Duration
	limiter    *rate.Limiter
	headers    http.Header

	// wait is replaced in tests to skip real backoff.
	wait func(ctx context.Context, d time.Duration) error
}

// NewClient applies defaults and builds a Client. It fails only on an
// unparseable BaseURL.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	tr := cfg.Transport
	if tr == nil {
		tr = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec // opt-in
		}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: tr},
		maxRetries: cfg.MaxRetries,
		initial:    cfg.InitialBackoff,
		maxBackoff: cfg.MaxBackoff,
		limiter:    limiter,
		headers:    cfg.Headers.Clone(),
		wait:       sleepCtx,
	}
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("httpds: base URL: %w", err)
		}
		c.base = u
	}
	return c, nil
}

// Get issues a GET with retries. The caller closes the body of a non-nil
// response. Non-retryable statuses are returned as responses, not errors.
func (c *Client) Get(ctx context.Context, rawURL string, headers http.Header) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("httpds: build request: %w", err)
		}
		for k, vs := range c.headers {
			req.Header[k] = append([]string(nil), vs...)
		}
		for k, vs := range headers {
			req.Header[k] = append([]string(nil), vs...)
		}

		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case retryable(resp.StatusCode):
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("httpds: GET %s: status %d", rawURL, resp.StatusCode)
		default:
			return resp, nil
		}
		if attempt == c.maxRetries {
			break
		}
		if err := c.wait(ctx, backoff(c.initial, attempt, c.maxBackoff)); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("httpds: giving up after %d attempts: %w", c.maxRetries+1, lastErr)
}

// Open implements datasource.Reader. key is an absolute URL or a path
// relative to BaseURL. 404 and 410 map to datasource.ErrNotFound.
func (c *Client) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	u, err := c.resolve(key)
	if err != nil {
		return nil, err
	}
	resp, err := c.Get(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 == 2 {
		return resp.Body, nil
	}
	_ = resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, fmt.Errorf("GET %s: %w", u, datasource.ErrNotFound)
	}
	return nil, fmt.Errorf("httpds: GET %s: status %d", u, resp.StatusCode)
}

// Fetch downloads key and returns its body together with the file name the
// server reports, falling back to the last URL path segment.
func (c *Client) Fetch(ctx context.Context, key string, limit int64) ([]byte, string, error) {
	u, err := c.resolve(key)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.Get(ctx, u, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, "", fmt.Errorf("GET %s: %w", u, datasource.ErrNotFound)
	}
	if resp.StatusCode/100 != 2 {
		return nil, "", fmt.Errorf("httpds: GET %s: status %d", u, resp.StatusCode)
	}
	var src io.Reader = resp.Body
	if limit > 0 {
		src = io.LimitReader(resp.Body, limit+1)
	}
	b, err := io.ReadAll(src)
	if err != nil {
		return nil, "", fmt.Errorf("httpds: read %s: %w", u, err)
	}
	if limit > 0 && int64(len(b)) > limit {
		return nil, "", fmt.Errorf("httpds: %s exceeds %d bytes", u, limit)
	}
	return b, FileName(resp), nil
}

func (c *Client) resolve(key string) (string, error) {
	ref, err := url.Parse(key)
	if err != nil {
		return "", fmt.Errorf("httpds: key %q: %w", key, err)
	}
	if ref.IsAbs() || c.base == nil {
		return ref.String(), nil
	}
	return c.base.ResolveReference(ref).String(), nil
}

// FileName returns the Content-Disposition filename of resp, or the base of
// the request path.
func FileName(resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			return path.Base(strings.ReplaceAll(params["filename"], `\`, "/"))
		}
	}
	if resp.Request != nil && resp.Request.URL != nil {
		if b := path.Base(resp.Request.URL.Path); b != "/" && b != "." {
			return b
		}
	}
	return ""
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// backoff returns initial*2^attempt clamped to max.
func backoff(initial time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt > 30 {
		return max
	}
	if d := initial << attempt; d > 0 && d < max {
		return d
	}
	return max
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
