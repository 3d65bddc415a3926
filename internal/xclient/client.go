// Package xclient is the X API v2 access layer: credential selection,
// local admission control, retried dispatch, rate-limit telemetry and
// translation of upstream failures into apperr kinds.
package xclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"agentx/internal/apperr"
	"agentx/internal/metrics"
	"agentx/internal/ratelimit"
	"agentx/internal/retry"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.x.com/2"

// API is the request surface the collection and publish operations use.
type API interface {
	Get(ctx context.Context, path string, params url.Values, opts ...CallOption) (*Response, error)
	Post(ctx context.Context, path string, body any, opts ...CallOption) (*Response, error)
	Delete(ctx context.Context, path string, opts ...CallOption) (*Response, error)
}

// Response is a successful reply.
type Response struct {
	Status int
	// Data is the raw JSON body: data, includes, meta and friends.
	Data      json.RawMessage
	RateLimit *RateLimitInfo
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "decode X API response")
	}
	return nil
}

// CallOption adjusts a single call.
type CallOption func(*callOptions)

type callOptions struct {
	skipRateLimit bool
}

// SkipRateLimit bypasses local admission control for one call.
func SkipRateLimit() CallOption { return func(o *callOptions) { o.skipRateLimit = true } }

// Client talks to the X API v2. It is safe for concurrent use; credential
// setters take effect for subsequent calls.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Manager
	retry      *retry.Handler
	pacer      *rate.Limiter
	logger     *slog.Logger
	now        func() time.Time

	mu          sync.RWMutex
	bearerToken string
	creds       *Credentials
}

var _ API = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithBearerToken(token string) Option { return func(c *Client) { c.bearerToken = token } }

// WithUserCredentials selects user-context auth; it wins over a bearer token.
func WithUserCredentials(creds Credentials) Option {
	return func(c *Client) {
		if creds.AccessToken != "" {
			cp := creds
			c.creds = &cp
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimiter shares a manager between clients. Clients built without
// one get a private manager over DefaultPolicies.
func WithRateLimiter(m *ratelimit.Manager) Option {
	return func(c *Client) {
		if m != nil {
			c.limiter = m
		}
	}
}

func WithRetry(h *retry.Handler) Option {
	return func(c *Client) {
		if h != nil {
			c.retry = h
		}
	}
}

// WithPacer smooths dispatch to at most rps requests per second with the
// given burst. Zero rps disables pacing.
func WithPacer(rps float64, burst int) Option {
	return func(c *Client) { c.pacer = newPacer(rps, burst) }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New builds a client. Missing credentials are not an error here; calls
// fail with Unauthorized until some are set.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.limiter == nil {
		c.limiter = ratelimit.NewDefaultManager(ratelimit.WithClock(c.now), ratelimit.WithLogger(c.logger))
	}
	if c.retry == nil {
		c.retry = retry.New(retry.DefaultPolicy(), retry.WithLogger(c.logger), retry.WithOnRetry(onRetry))
	}
	return c
}

func onRetry(a retry.Attempt) { metrics.IncAPIRetry(a.Target.Endpoint) }

// SetCredentials replaces the user-context credentials. An empty access
// token clears them.
func (c *Client) SetCredentials(creds Credentials) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if creds.AccessToken == "" {
		c.creds = nil
		return
	}
	cp := creds
	c.creds = &cp
}

// Credentials returns a copy of the user-context credentials, if any.
func (c *Client) Credentials() (Credentials, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.creds == nil {
		return Credentials{}, false
	}
	return *c.creds, true
}

func (c *Client) RateLimiter() *ratelimit.Manager { return c.limiter }

// Identifier is the rate-limit identity of the current auth mode.
func (c *Client) Identifier() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.creds != nil {
		return ratelimit.IdentifierUser
	}
	return ratelimit.IdentifierApp
}

// authToken selects the token to send and the matching identifier.
func (c *Client) authToken() (string, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.creds != nil {
		if c.creds.Expired(c.now()) {
			return "", "", apperr.New(apperr.KindUnauthorized, "Access token expired. Please refresh the token.")
		}
		return c.creds.AccessToken, ratelimit.IdentifierUser, nil
	}
	if c.bearerToken != "" {
		return c.bearerToken, ratelimit.IdentifierApp, nil
	}
	return "", "", apperr.New(apperr.KindUnauthorized, "No authentication credentials provided")
}

func (c *Client) Get(ctx context.Context, path string, params url.Values, opts ...CallOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, params, nil, opts)
}

func (c *Client) Post(ctx context.Context, path string, body any, opts ...CallOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, nil, body, opts)
}

func (c *Client) Delete(ctx context.Context, path string, opts ...CallOption) (*Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil, nil, opts)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body any, opts []CallOption) (*Response, error) {
	var co callOptions
	for _, o := range opts {
		o(&co)
	}
	token, id, err := c.authToken()
	if err != nil {
		return nil, err
	}
	path = strings.TrimLeft(path, "/")
	endpoint := Categorize(method, path)

	if !co.skipRateLimit {
		if err := c.admit(ctx, endpoint, id); err != nil {
			return nil, err
		}
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, err, "encode request body")
		}
	}
	u := c.baseURL + "/" + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := retry.Do(ctx, c.retry, retry.Target{Endpoint: endpoint, Identifier: id}, func(ctx context.Context) (*Response, error) {
		return c.roundTrip(ctx, method, u, endpoint, payload, token)
	})
	status := 0
	if resp != nil {
		status = resp.Status
	} else if e, ok := apperr.As(err); ok {
		status = e.HTTPStatus()
	}
	metrics.ObserveAPIRequest(endpoint, status, start)
	if err != nil {
		c.logger.Debug("x api request failed", "method", method, "endpoint", endpoint, "status", status, "error", err.Error())
		return nil, err
	}
	return resp, nil
}

func (c *Client) admit(ctx context.Context, endpoint, id string) error {
	res, err := c.limiter.CheckLimit(ctx, endpoint, id)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "rate limit check")
	}
	if res.Allowed {
		return nil
	}
	metrics.IncRateLimitDenied(endpoint, id)
	resetAt := c.now().Add(res.ResetIn)
	e := apperr.RateLimited(resetAt, "Rate limit exceeded. Resets at %s", resetAt.UTC().Format(time.RFC3339))
	e.Details = map[string]any{"resetIn": res.ResetIn.Milliseconds(), "remaining": res.Remaining, "endpoint": endpoint}
	return e
}

// roundTrip performs one attempt and translates its outcome.
func (c *Client) roundTrip(ctx context.Context, method, u, endpoint string, payload []byte, token string) (*Response, error) {
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, err, "Network request failed")
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, err, "Network request failed")
	}
	info := parseRateLimitHeaders(resp.Header)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.translateStatus(resp.StatusCode, raw, info, endpoint)
	}
	if err := checkBodyErrors(resp.StatusCode, raw); err != nil {
		return nil, err
	}
	return &Response{Status: resp.StatusCode, Data: raw, RateLimit: info}, nil
}
