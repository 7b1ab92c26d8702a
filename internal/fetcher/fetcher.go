// Package fetcher performs outbound HTTP calls with bounded retries and
// exponential backoff, and memoizes responses for the duration of a run.
package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// Request describes one outbound HTTP call. Query parameters are
// order-insensitive; Key sorts them so equivalent requests collide.
type Request struct {
	Method  string
	URL     string
	Params  map[string]string
	Headers map[string]string
	Body    string
}

// Key returns the deterministic cache signature for the request: method,
// absolute URL, and query parameters sorted by key in ascending lexical
// order. Headers and body never participate.
func (r Request) Key() string {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var sb strings.Builder
	sb.WriteString(method)
	sb.WriteByte(' ')
	sb.WriteString(r.URL)

	if len(r.Params) > 0 {
		keys := make([]string, 0, len(r.Params))
		for k := range r.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i == 0 {
				sb.WriteByte('?')
			} else {
				sb.WriteByte('&')
			}
			sb.WriteString(k)
			sb.WriteByte('=')
			sb.WriteString(r.Params[k])
		}
	}
	return sb.String()
}

// Doer is the minimal fetch surface shared by the retrying client and the
// request cache, so callers need not know whether they sit behind a cache.
type Doer interface {
	Do(ctx context.Context, req Request) ([]byte, error)
}

// JSON fetches the request through d and decodes the body into v. A body
// that is not valid JSON is a terminal error and is never retried.
func JSON(ctx context.Context, d Doer, req Request, v any) error {
	body, err := d.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode json from %s: %w", req.URL, err)
	}
	return nil
}

// Text fetches the request through d and returns the raw decoded body.
func Text(ctx context.Context, d Doer, req Request) (string, error) {
	body, err := d.Do(ctx, req)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Error is the terminal fetch failure handed to callers once the retry
// budget is spent or a non-retryable response arrives. It wraps the last
// underlying cause.
type Error struct {
	Method   string
	URL      string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s %s failed after %d attempt(s): %v", e.Method, e.URL, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options controls HTTP fetching behaviour.
type Options struct {
	UserAgent    string
	Headers      map[string]string
	Timeout      time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	MaxBodyBytes int64
	ProxyURL     string
	Logger       *slog.Logger
}

// Client implements Doer via the Go http.Client, retrying transient
// failures with exponential backoff between attempts.
type Client struct {
	client       *http.Client
	userAgent    string
	extraHeaders map[string]string
	maxAttempts  int
	backoffBase  time.Duration
	backoffCap   time.Duration
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewClient constructs a retrying HTTP client from the provided options.
func NewClient(opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 2 * time.Second
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 10 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 * 1024 * 1024 // 5MB cap
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if strings.TrimSpace(opts.ProxyURL) != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &Client{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		userAgent:    opts.UserAgent,
		extraHeaders: headers,
		maxAttempts:  opts.MaxAttempts,
		backoffBase:  opts.BackoffBase,
		backoffCap:   opts.BackoffCap,
		maxBodyBytes: opts.MaxBodyBytes,
		logger:       opts.Logger,
	}, nil
}

// Do performs the request and returns the fully-read body of a 2xx
// response. Connection errors, timeouts, 5xx, and 429 are retried up to
// the attempt budget with backoff between attempts; other failures stop
// immediately. The returned terminal error wraps the last cause.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target, err := buildURL(req)
	if err != nil {
		return nil, &Error{Method: method, URL: req.URL, Err: err}
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, c.backoff(attempt-1)); err != nil {
				return nil, &Error{Method: method, URL: req.URL, Attempts: attempts, Err: err}
			}
		}

		attempts = attempt
		body, err := c.once(ctx, method, target, req)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) {
			break
		}
		c.logger.Warn("fetch attempt failed",
			"method", method,
			"url", req.URL,
			"attempt", attempt,
			"error", err,
		)
	}
	return nil, &Error{Method: method, URL: req.URL, Attempts: attempts, Err: lastErr}
}

func (c *Client) once(ctx context.Context, method, target string, req Request) ([]byte, error) {
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")

	for k, v := range c.extraHeaders {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http fetch failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode}
	}

	return c.readBody(resp)
}

func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	limited := io.LimitReader(reader, c.maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", c.maxBodyBytes)
	}
	return body, nil
}

// backoff returns the wait before retry n+1: the base delay doubled per
// retry, capped per wait.
func (c *Client) backoff(n int) time.Duration {
	d := c.backoffBase << (n - 1)
	if d > c.backoffCap || d <= 0 {
		d = c.backoffCap
	}
	return d
}

// HTTPClient exposes the underlying client for reuse (eg. robots.txt fetches).
func (c *Client) HTTPClient() *http.Client {
	if c == nil {
		return nil
	}
	return c.client
}

func buildURL(req Request) (string, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if len(req.Params) > 0 {
		q := u.Query()
		for k, v := range req.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func retryable(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == http.StatusTooManyRequests || status.Code >= 500
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Connection errors and per-attempt timeouts are worth another try.
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
