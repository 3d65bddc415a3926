// Package retry runs operations with exponential backoff, retrying only
// errors classified as transient.
package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"syscall"
	"time"
)

// Policy is the backoff configuration.
type Policy struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	Multiplier      float64
	RetryableStatus []int
}

// DefaultPolicy retries 429 and 5xx three times starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:      3,
		InitialDelay:    time.Second,
		MaxDelay:        time.Minute,
		Multiplier:      2,
		RetryableStatus: []int{429, 500, 502, 503, 504},
	}
}

// Target labels an execution for hooks and logs.
type Target struct {
	Endpoint   string
	Identifier string
}

// Attempt describes one failed attempt about to be retried.
type Attempt struct {
	Target Target
	Number int // 1-based number of the attempt that failed
	Delay  time.Duration
	Err    error
}

// StatusError is implemented by errors that carry an HTTP status.
type StatusError interface {
	error
	HTTPStatus() int
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Handler executes operations under a Policy.
type Handler struct {
	policy    Policy
	retryable map[int]struct{}
	sleep     SleepFunc
	onRetry   func(Attempt)
	classify  func(error) bool
	logger    *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithOnRetry registers a hook called before each backoff sleep.
func WithOnRetry(fn func(Attempt)) Option { return func(h *Handler) { h.onRetry = fn } }

// WithSleep replaces the backoff sleep.
func WithSleep(fn SleepFunc) Option {
	return func(h *Handler) {
		if fn != nil {
			h.sleep = fn
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithClassifier replaces IsRetryable's built-in classification.
func WithClassifier(fn func(error) bool) Option { return func(h *Handler) { h.classify = fn } }

// New builds a Handler. Zero fields of p fall back to DefaultPolicy.
func New(p Policy, opts ...Option) *Handler {
	d := DefaultPolicy()
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = d.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if len(p.RetryableStatus) == 0 {
		p.RetryableStatus = d.RetryableStatus
	}
	h := &Handler{
		policy:    p,
		retryable: make(map[int]struct{}, len(p.RetryableStatus)),
		sleep:     Sleep,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, s := range p.RetryableStatus {
		h.retryable[s] = struct{}{}
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) Policy() Policy { return h.policy }

// Execute runs op until it succeeds, fails with a non-retryable error, or
// MaxRetries retries are spent. The last error is returned as is. A context
// cancelled during backoff returns ctx.Err().
func (h *Handler) Execute(ctx context.Context, target Target, op func(ctx context.Context) error) error {
	delay := h.policy.InitialDelay
	var err error
	for attempt := 0; ; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt >= h.policy.MaxRetries || !h.IsRetryable(err) {
			return err
		}
		wait := min(delay, h.policy.MaxDelay)
		h.logger.Warn("retrying request",
			"endpoint", target.Endpoint,
			"identifier", target.Identifier,
			"attempt", attempt+1,
			"delay", wait.String(),
			"error", err.Error(),
		)
		if h.onRetry != nil {
			h.onRetry(Attempt{Target: target, Number: attempt + 1, Delay: wait, Err: err})
		}
		if serr := h.sleep(ctx, wait); serr != nil {
			return serr
		}
		delay = time.Duration(float64(delay) * h.policy.Multiplier)
	}
}

// Do is Execute for operations returning a value.
func Do[T any](ctx context.Context, h *Handler, target Target, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := h.Execute(ctx, target, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// IsRetryable classifies err. Errors carrying an HTTP status are retryable
// when the status is in the policy; network failures and per-attempt
// timeouts are retryable; cancellation and everything else is fatal.
func (h *Handler) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if h.classify != nil {
		return h.classify(err)
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se StatusError
	if errors.As(err, &se) && se.HTTPStatus() != 0 {
		_, ok := h.retryable[se.HTTPStatus()]
		return ok
	}
	if isTimeout(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return IsNetworkError(err)
}

// IsNetworkError reports transport-level failures: resets, refusals,
// timeouts and truncated responses.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return true
	}
	var de *net.DNSError
	if errors.As(err, &de) {
		return de.IsTemporary || de.IsTimeout
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection reset", "connection refused", "timeout", "network"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// isTimeout matches transport timeouts such as http.Client.Timeout, which
// also satisfy errors.Is(err, context.DeadlineExceeded).
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Sleep waits for d on a timer, returning ctx.Err() if ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
