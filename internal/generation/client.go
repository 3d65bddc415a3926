// Package generation talks to a text-generation model: every call is paced
// through one limiter, retried with exponential backoff on transient
// failures, and translated into apperr kinds when it finally fails.
package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"agentx/internal/apperr"
	"agentx/internal/metrics"
	"agentx/internal/retry"

	"golang.org/x/time/rate"
)

const (
	DefaultMaxTokens   = 300
	DefaultTemperature = 0.7
	DefaultMinInterval = time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 2 * time.Second
)

// ErrEmptyResponse is returned by senders when the model answered with no text.
var ErrEmptyResponse = errors.New("unexpected response format: no text content")

// SendOptions tune one request. Zero values take the client defaults.
type SendOptions struct {
	Temperature float64
	MaxTokens   int
}

// Sender sends one prompt to a model and returns its text.
type Sender interface {
	Send(ctx context.Context, system, user string, opts SendOptions) (string, error)
}

// StatusError carries the HTTP status of a failed provider call.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("status %d: %v", e.Status, e.Err)
}

func (e *StatusError) Unwrap() error   { return e.Err }
func (e *StatusError) HTTPStatus() int { return e.Status }

// Config holds pacing, retry and default request settings.
type Config struct {
	MinInterval time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	Temperature float64
	MaxTokens   int
}

func DefaultConfig() Config {
	return Config{
		MinInterval: DefaultMinInterval,
		MaxRetries:  DefaultMaxRetries,
		RetryDelay:  DefaultRetryDelay,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// Client wraps a Sender with pacing and retry.
type Client struct {
	sender   Sender
	cfg      Config
	provider string
	pacer    *rate.Limiter
	logger   *slog.Logger
	sleep    retry.SleepFunc
	now      func() time.Time
}

type Option func(*Client)

// WithProvider names the provider in errors, logs and metrics.
func WithProvider(name string) Option { return func(c *Client) { c.provider = name } }

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithSleep(fn retry.SleepFunc) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
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

type named interface{ Name() string }

// New builds a client around sender. A zero MinInterval disables pacing.
func New(sender Sender, cfg Config, opts ...Option) *Client {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	c := &Client{
		sender:   sender,
		cfg:      cfg,
		provider: "generation",
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		sleep:    retry.Sleep,
		now:      time.Now,
	}
	if n, ok := sender.(named); ok {
		c.provider = n.Name()
	}
	for _, o := range opts {
		o(c)
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	c.pacer = rate.NewLimiter(limit, 1)
	return c
}

func (c *Client) Provider() string { return c.provider }

// Temperature is the configured default sampling temperature.
func (c *Client) Temperature() float64 { return c.cfg.Temperature }

// Send paces, sends and retries one prompt. The returned error is an
// *apperr.Error unless ctx ended first, in which case it is ctx.Err().
func (c *Client) Send(ctx context.Context, system, user string, opts SendOptions) (string, error) {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = c.cfg.MaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = c.cfg.Temperature
	}
	for attempt := 0; ; attempt++ {
		if err := c.pacer.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", apperr.Wrap(apperr.KindInternal, err, "generation pacing failed")
		}
		text, err := c.sender.Send(ctx, system, user, opts)
		if err == nil {
			metrics.IncGeneration(c.provider, "ok")
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) || attempt >= c.cfg.MaxRetries {
			metrics.IncGeneration(c.provider, "error")
			return "", c.translate(err)
		}
		delay := c.cfg.RetryDelay * time.Duration(1<<attempt)
		metrics.IncGeneration(c.provider, "retry")
		c.logger.Warn("generation request failed, retrying",
			"provider", c.provider,
			"attempt", attempt+1,
			"max_attempts", c.cfg.MaxRetries+1,
			"delay", delay.String(),
			"error", err.Error())
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
}

// Ping sends a tiny prompt to check connectivity and credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Send(ctx, "You are a helpful assistant.", `Say "Hello" in one word.`, SendOptions{MaxTokens: 10})
	return err
}

// isRetryable is called only while the caller's ctx is live, so a
// deadline here is a per-request timeout of the transport.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == 429 || (se.Status >= 500 && se.Status < 600)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return retry.IsNetworkError(err)
}

func (c *Client) translate(err error) error {
	var se *StatusError
	status := 0
	if errors.As(err, &se) {
		status = se.Status
	}
	switch {
	case status == 401:
		return &apperr.Error{Kind: apperr.KindUnauthorized, Status: status, Message: fmt.Sprintf("Invalid %s API key", c.provider), Err: err}
	case status == 429:
		e := apperr.RateLimited(c.now().Add(c.cfg.RetryDelay), "%s API rate limit exceeded. Please try again later.", c.provider)
		e.Status = status
		e.Err = err
		return e
	case status == 400:
		return &apperr.Error{Kind: apperr.KindValidation, Status: status, Message: fmt.Sprintf("Invalid request to %s API: %v", c.provider, se.Err), Err: err}
	case status >= 500:
		return &apperr.Error{Kind: apperr.KindUpstream, Status: status, Message: fmt.Sprintf("%s API is currently unavailable. Please try again later.", c.provider), Err: err}
	case status == 0 && (retry.IsNetworkError(err) || errors.Is(err, context.DeadlineExceeded)):
		return &apperr.Error{Kind: apperr.KindUpstream, Message: fmt.Sprintf("%s API is currently unavailable. Please try again later.", c.provider), Err: err}
	}
	return &apperr.Error{Kind: apperr.KindInternal, Status: status, Message: fmt.Sprintf("%s API error: %v", c.provider, err), Err: err}
}
