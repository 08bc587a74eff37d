// Package channel provides the retryable REST client used for every external sales
// channel, and the storefront gateway built on top of it.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout applies to plain JSON calls
	DefaultTimeout = 15 * time.Second
	// maxResponseSize limits response body reads to 10MB
	maxResponseSize = 10 * 1024 * 1024
	userAgent       = "catalogsync/1.0"
	tracerName      = "github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/channel"
)

// Config holds connection settings for one channel
type Config struct {
	Key         integration.ChannelKey
	BaseURL     string
	Credentials integration.Credentials
	// Timeout bounds each HTTP attempt
	Timeout     time.Duration
	// RateLimit is the sustained requests per second; 0 disables limiting
	RateLimit   float64
	Burst       int
}

// Validate checks the configuration and sets defaults
func (c *Config) Validate() error {
	if !c.Key.IsValid() {
		return integration.NewConfigurationError(c.Key, "key", "must be lower-case alphanumeric")
	}
	if c.BaseURL == "" {
		return integration.NewConfigurationError(c.Key, "base_url", "is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return integration.NewConfigurationError(c.Key, "base_url", "must be an absolute URL")
	}
	switch c.Credentials.Scheme {
	case integration.AuthSchemeBasic:
		if c.Credentials.Key == "" || c.Credentials.Secret == "" {
			return integration.NewConfigurationError(c.Key, "credentials", "basic auth needs key and secret")
		}
	case integration.AuthSchemeBearer:
		if c.Credentials.Token == "" {
			return integration.NewConfigurationError(c.Key, "credentials", "bearer auth needs a token")
		}
	default:
		return integration.NewConfigurationError(c.Key, "auth", fmt.Sprintf("unsupported scheme %q", c.Credentials.Scheme))
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit > 0 && c.Burst <= 0 {
		c.Burst = 1
	}
	return nil
}

// Observer receives per-attempt measurements
type Observer interface {
	ObserveAttempt(ctx context.Context, channel integration.ChannelKey, method string, status int, elapsed time.Duration, err error)
	ObserveRetry(ctx context.Context, channel integration.ChannelKey, method string)
}

// Client performs authenticated calls against one channel with bounded retry.
// It is safe for concurrent use.
type Client struct {
	config     Config
	baseURL    *url.URL
	httpClient *http.Client
	policy     RetryPolicy
	limiter    *rate.Limiter
	logger     *zap.Logger
	tracer     trace.Tracer
	observer   Observer
}

// Option configures a Client
type Option func(*Client)

// WithRetryPolicy overrides the retry policy
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.policy = p.withDefaults()
	}
}

// WithHTTPClient overrides the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver sets the metrics observer
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithTracer overrides the tracer
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// NewClient creates a new channel client
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, integration.NewConfigurationError(cfg.Key, "base_url", err.Error())
	}

	c := &Client{
		config:     cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		policy:     DefaultRetryPolicy(),
		logger:     zap.NewNop(),
		tracer:     otel.Tracer(tracerName),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("channel", string(cfg.Key)))
	return c, nil
}

// Key returns the channel key
func (c *Client) Key() integration.ChannelKey {
	return c.config.Key
}

// Request is one logical call; it may be attempted several times
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response is the final response of a call
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// Decode unmarshals the body into v
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("%w: %v", integration.ErrInvalidResponseBody, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Verbs
// ---------------------------------------------------------------------------

// Get performs a GET on path
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}

// Create POSTs body to collection
func (c *Client) Create(ctx context.Context, collection string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: collection, Body: body})
}

// Update PUTs body to collection/id
func (c *Client) Update(ctx context.Context, collection, id string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: joinPath(collection, id), Body: body})
}

// Delete DELETEs collection/id
func (c *Client) Delete(ctx context.Context, collection, id string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: joinPath(collection, id), Query: query})
}

// ---------------------------------------------------------------------------
// Retry loop
// ---------------------------------------------------------------------------

// Do executes req with retries. Non-transient 4xx responses fail immediately with an
// error wrapping ErrValidation. Transient failures are retried with backoff until
// MaxAttempts, then fail with an error wrapping ErrChannelUnavailable that carries the
// last response.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "channel "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("channel.key", string(c.config.Key)),
			attribute.String("channel.path", req.Path),
		),
	)
	defer span.End()

	resp, err := c.do(ctx, req)
	if resp != nil {
		span.SetAttributes(
			attribute.Int("http.response.status_code", resp.StatusCode),
			attribute.Int("channel.attempts", resp.Attempts),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	target := c.buildURL(req.Path, req.Query)

	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
	}

	var (
		last    *Response
		lastErr error
	)
	for attempt := 1; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return last, fmt.Errorf("channel %s: rate limiter: %w", c.config.Key, err)
			}
		}

		start := time.Now()
		resp, httpResp, err := c.attempt(ctx, req.Method, target, payload)
		elapsed := time.Since(start)
		status := 0
		if resp != nil {
			resp.Attempts = attempt
			status = resp.StatusCode
			last = resp
		}
		lastErr = err
		if c.observer != nil {
			c.observer.ObserveAttempt(ctx, c.config.Key, req.Method, status, elapsed, err)
		}

		if err == nil && status >= 200 && status < 300 {
			return resp, nil
		}

		if !c.policy.ShouldRetry(httpResp, err) {
			if err != nil {
				// Cancellation and non-transient transport errors are returned as is
				return last, fmt.Errorf("channel %s: %s %s: %w", c.config.Key, req.Method, req.Path, err)
			}
			return last, c.channelError(integration.ErrorKindValidation, req, last, attempt, nil)
		}

		if attempt >= c.policy.MaxAttempts {
			c.logger.Warn("channel call exhausted retries",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Int("status", status),
				zap.Int("attempts", attempt),
				zap.Error(lastErr),
			)
			return last, c.channelError(integration.ErrorKindChannelUnavailable, req, last, attempt, lastErr)
		}

		delay := c.policy.Backoff(attempt)
		c.logger.Debug("retrying channel call",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Int("status", status),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if c.observer != nil {
			c.observer.ObserveRetry(ctx, c.config.Key, req.Method)
		}
		if err := c.policy.Sleep(ctx, delay); err != nil {
			return last, fmt.Errorf("channel %s: %s %s: %w", c.config.Key, req.Method, req.Path, err)
		}
	}
}

// attempt performs a single HTTP round trip. The returned *http.Response has its body
// already drained and is only used for the retry decision.
func (c *Client) attempt(ctx context.Context, method, target string, payload []byte) (*Response, *http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	c.authenticate(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}
	if err != nil {
		return resp, httpResp, fmt.Errorf("reading response body: %w", err)
	}
	return resp, httpResp, nil
}

func (c *Client) authenticate(req *http.Request) {
	creds := c.config.Credentials
	switch creds.Scheme {
	case integration.AuthSchemeBasic:
		req.SetBasicAuth(creds.Key, creds.Secret)
	case integration.AuthSchemeBearer:
		req.Header.Set("Authorization", "Bearer "+creds.Token)
	}
}

func (c *Client) channelError(kind integration.ErrorKind, req Request, last *Response, attempts int, cause error) error {
	ce := &integration.ChannelError{
		Kind:     kind,
		Channel:  c.config.Key,
		Method:   req.Method,
		Path:     req.Path,
		Attempts: attempts,
		Err:      cause,
	}
	if last != nil {
		ce.StatusCode = last.StatusCode
		ce.Body = last.Body
	}
	return ce
}

func (c *Client) buildURL(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func joinPath(collection, id string) string {
	return strings.TrimRight(collection, "/") + "/" + url.PathEscape(id)
}

// AsChannelError returns the ChannelError in err's chain, if any
func AsChannelError(err error) (*integration.ChannelError, bool) {
	var ce *integration.ChannelError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
