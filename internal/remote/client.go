// ABOUTME: Retry/circuit-breaker pipeline for all outbound platform HTTP calls.
// ABOUTME: JSON calls and multipart uploads share one classified-error path.

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Policy bounds the retry behavior of a Client.
type Policy struct {
	MaxRetries          int           // attempts for 5xx / transport errors
	MaxRateLimitRetries int           // attempts for 429
	BackoffBase         time.Duration // first retry delay before jitter
	BackoffCap          time.Duration // ceiling on any single delay
	BreakerThreshold    int           // consecutive failures before a scope opens
	BreakerCooldown     time.Duration // open duration before a trial call
}

// DefaultPolicy is tuned for chat platform APIs: a few quick retries, then
// let the outbox take over scheduling.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:          3,
		MaxRateLimitRetries: 2,
		BackoffBase:         500 * time.Millisecond,
		BackoffCap:          10 * time.Second,
		BreakerThreshold:    5,
		BreakerCooldown:     30 * time.Second,
	}
}

// Client issues outbound calls against one API base URL. Safe for concurrent
// use.
type Client struct {
	base     string
	http     *http.Client
	policy   Policy
	logger   *slog.Logger
	headers  map[string]string
	mu       sync.Mutex
	breakers map[string]*breaker

	// Injection points for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (timeouts live there).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithPolicy overrides the retry policy.
func WithPolicy(p Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithHeader adds a header to every request (e.g. Authorization).
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:     strings.TrimSuffix(baseURL, "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
		policy:   DefaultPolicy(),
		logger:   slog.Default().With("component", "remote"),
		headers:  make(map[string]string),
		breakers: make(map[string]*breaker),
		now:      time.Now,
		rand:     rand.Float64,
	}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON issues a GET and decodes the 2xx body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.call(ctx, http.MethodGet, path, "", nil, out)
}

// PostJSON issues a POST with a JSON body and decodes the 2xx body into out.
// out may be nil when the response body is irrelevant.
func (c *Client) PostJSON(ctx context.Context, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &Error{Class: ClassRequest, Scope: scopeOf(path), err: fmt.Errorf("marshaling body: %w", err)}
		}
	}
	return c.call(ctx, http.MethodPost, path, "application/json", payload, out)
}

// PatchJSON issues a PATCH with a JSON body and decodes the 2xx body into out.
func (c *Client) PatchJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &Error{Class: ClassRequest, Scope: scopeOf(path), err: fmt.Errorf("marshaling body: %w", err)}
	}
	return c.call(ctx, http.MethodPatch, path, "application/json", payload, out)
}

// FilePart names one file in a multipart upload.
type FilePart struct {
	Field    string
	Name     string
	Content  []byte
	MIMEType string
}

// Upload issues a multipart POST with form fields plus one file part.
func (c *Client) Upload(ctx context.Context, path string, fields map[string]string, file FilePart, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return &Error{Class: ClassRequest, Scope: scopeOf(path), err: err}
		}
	}
	part, err := w.CreateFormFile(file.Field, file.Name)
	if err != nil {
		return &Error{Class: ClassRequest, Scope: scopeOf(path), err: err}
	}
	if _, err := part.Write(file.Content); err != nil {
		return &Error{Class: ClassRequest, Scope: scopeOf(path), err: err}
	}
	if err := w.Close(); err != nil {
		return &Error{Class: ClassRequest, Scope: scopeOf(path), err: err}
	}
	return c.call(ctx, http.MethodPost, path, w.FormDataContentType(), buf.Bytes(), out)
}

// call runs the full pipeline: breaker gate, bounded retries, classification.
// The body is a byte slice so it can be replayed across attempts.
func (c *Client) call(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	scope := scopeOf(path)
	br := c.breakerFor(scope)
	if !br.allow() {
		return &Error{Class: ClassBreakerOpen, Scope: scope}
	}

	var (
		serverAttempts    int
		rateLimitAttempts int
	)
	for {
		status, respBody, retryHeader, err := c.once(ctx, method, path, contentType, body)
		if err != nil {
			if ctx.Err() != nil {
				br.failure()
				return &Error{Class: ClassNetwork, Scope: scope, err: ctx.Err()}
			}
			serverAttempts++
			if serverAttempts >= c.policy.MaxRetries {
				br.failure()
				return &Error{Class: ClassNetwork, Scope: scope, err: err}
			}
			if serr := c.sleep(ctx, c.backoff(serverAttempts-1)); serr != nil {
				br.failure()
				return &Error{Class: ClassNetwork, Scope: scope, err: serr}
			}
			continue
		}

		// Any definitive response settles the breaker, including rejections:
		// the scope answered, so a half-open trial must not stay pending.
		// Only transport failures and 5xx count against it.
		if status < 500 {
			br.success()
		}

		switch {
		case status >= 200 && status < 300:
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				// A success response we cannot parse is a broken contract,
				// not something a retry will fix.
				return &Error{Class: ClassContract, Status: status, Scope: scope, Body: clip(respBody), err: err}
			}
			return nil

		case status == http.StatusTooManyRequests:
			hint := retryAfterFrom(respBody, retryHeader)
			rateLimitAttempts++
			if rateLimitAttempts > c.policy.MaxRateLimitRetries {
				return &Error{Class: ClassRateLimited, Status: status, Scope: scope, RetryAfter: hint, Body: clip(respBody)}
			}
			c.logger.Warn("rate limited, waiting", "scope", scope, "retry_after", hint)
			if serr := c.sleep(ctx, hint); serr != nil {
				return &Error{Class: ClassRateLimited, Status: status, Scope: scope, RetryAfter: hint}
			}
			continue

		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return &Error{Class: ClassAuth, Status: status, Scope: scope, Body: clip(respBody)}

		case status >= 400 && status < 500:
			return &Error{Class: ClassRequest, Status: status, Scope: scope, Body: clip(respBody)}

		default: // 5xx
			serverAttempts++
			if serverAttempts >= c.policy.MaxRetries {
				br.failure()
				return &Error{Class: ClassServer, Status: status, Scope: scope, Body: clip(respBody)}
			}
			if serr := c.sleep(ctx, c.backoff(serverAttempts-1)); serr != nil {
				br.failure()
				return &Error{Class: ClassServer, Status: status, Scope: scope}
			}
		}
	}
}

// once performs a single HTTP exchange and returns the status, body, and any
// Retry-After header value.
func (c *Client) once(ctx context.Context, method, path, contentType string, body []byte) (int, []byte, string, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, nil, "", err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, "", err
	}
	return resp.StatusCode, respBody, resp.Header.Get("Retry-After"), nil
}

// backoff computes the delay for retry n (0-based): base * 2^n with jitter in
// [0.8, 1.2], capped.
func (c *Client) backoff(n int) time.Duration {
	d := time.Duration(float64(c.policy.BackoffBase) * math.Pow(2, float64(n)))
	if d > c.policy.BackoffCap {
		d = c.policy.BackoffCap
	}
	jitter := 0.8 + 0.4*c.rand()
	return time.Duration(float64(d) * jitter)
}

func (c *Client) breakerFor(scope string) *breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[scope]
	if !ok {
		b = newBreaker(c.policy.BreakerThreshold, c.policy.BreakerCooldown, c.now)
		c.breakers[scope] = b
	}
	return b
}

// scopeOf resolves the breaker scope from the first path segment, so one
// failing endpoint family does not gate the rest of the API.
func scopeOf(path string) string {
	p := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "root"
	}
	return p
}

func clip(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

// retryAfterFrom extracts a wait hint from a 429 body or Retry-After header
// value, falling back to one second when neither parses.
func retryAfterFrom(body []byte, header string) time.Duration {
	if header != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	var hint struct {
		RetryAfter float64 `json:"retry_after"`
		Parameters struct {
			RetryAfter float64 `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(body, &hint); err == nil {
		secs := hint.RetryAfter
		if secs == 0 {
			secs = hint.Parameters.RetryAfter
		}
		if secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return time.Second
}
