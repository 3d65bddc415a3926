package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sort"
	"time"
)

type policyKey struct {
	endpoint, identifier string
}

// Manager routes (endpoint, identifier) pairs to their Limiter.
// Endpoints without a policy are admitted unless the manager fails closed.
type Manager struct {
	limiters map[policyKey]*Limiter
	store    Store
	failOpen bool
	now      func() time.Time
	logger   *slog.Logger
	onDeny   func(endpoint, identifier string)
}

// Option configures a Manager.
type Option func(*Manager)

// WithFailClosed denies endpoints no policy covers.
func WithFailClosed() Option { return func(m *Manager) { m.failOpen = false } }

// WithFailOpen sets the policy for endpoints no policy covers.
func WithFailOpen(open bool) Option { return func(m *Manager) { m.failOpen = open } }

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithDenyHook is called for every denied admission.
func WithDenyHook(fn func(endpoint, identifier string)) Option {
	return func(m *Manager) { m.onDeny = fn }
}

// NewManager builds one Limiter per policy. A nil store selects a MemoryStore.
// Later policies with the same (endpoint, identifier) replace earlier ones.
func NewManager(policies []Policy, store Store, opts ...Option) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	m := &Manager{
		limiters: make(map[policyKey]*Limiter, len(policies)),
		store:    store,
		failOpen: true,
		now:      time.Now,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(m)
	}
	for _, p := range policies {
		if p.Window <= 0 {
			p.Window = Window
		}
		m.limiters[policyKey{p.Endpoint, p.Identifier}] = NewLimiter(p, store, m.now)
	}
	return m
}

// NewDefaultManager uses DefaultPolicies over an in-memory store.
func NewDefaultManager(opts ...Option) *Manager {
	return NewManager(DefaultPolicies(), nil, opts...)
}

// Limiter returns the limiter for (endpoint, identifier), preferring an
// identifier-specific policy over the endpoint-wide one.
func (m *Manager) Limiter(endpoint, identifier string) (*Limiter, bool) {
	if l, ok := m.limiters[policyKey{endpoint, identifier}]; ok {
		return l, true
	}
	l, ok := m.limiters[policyKey{endpoint, ""}]
	return l, ok
}

func (m *Manager) unconfigured() Result {
	if m.failOpen {
		return Result{Allowed: true, Remaining: math.MaxInt, Unlimited: true}
	}
	return Result{Allowed: false, Remaining: 0, Unlimited: false}
}

// CheckLimit consumes one token for identifier on endpoint.
func (m *Manager) CheckLimit(ctx context.Context, endpoint, identifier string) (Result, error) {
	l, ok := m.Limiter(endpoint, identifier)
	if !ok {
		res := m.unconfigured()
		if !res.Allowed {
			m.logger.Warn("rate limit denied unconfigured endpoint", "endpoint", endpoint, "identifier", identifier)
			m.denied(endpoint, identifier)
		}
		return res, nil
	}
	res, err := l.Check(ctx, identifier)
	if err != nil {
		return Result{}, err
	}
	if !res.Allowed {
		m.logger.Warn("rate limit exceeded",
			"endpoint", endpoint,
			"identifier", identifier,
			"reset_in", res.ResetIn.String(),
		)
		m.denied(endpoint, identifier)
	}
	return res, nil
}

func (m *Manager) denied(endpoint, identifier string) {
	if m.onDeny != nil {
		m.onDeny(endpoint, identifier)
	}
}

// Status reports the bucket without consuming.
func (m *Manager) Status(ctx context.Context, endpoint, identifier string) (Result, error) {
	l, ok := m.Limiter(endpoint, identifier)
	if !ok {
		return m.unconfigured(), nil
	}
	return l.Peek(ctx, identifier)
}

// Reset discards the bucket of identifier on endpoint.
func (m *Manager) Reset(ctx context.Context, endpoint, identifier string) error {
	l, ok := m.Limiter(endpoint, identifier)
	if !ok {
		return nil
	}
	return l.Reset(ctx, identifier)
}

// ClearAll discards every bucket.
func (m *Manager) ClearAll(ctx context.Context) error {
	return m.store.Clear(ctx)
}

// Endpoints lists the configured endpoint categories in sorted order.
func (m *Manager) Endpoints() []string {
	seen := make(map[string]struct{}, len(m.limiters))
	out := make([]string, 0, len(m.limiters))
	for k := range m.limiters {
		if _, ok := seen[k.endpoint]; ok {
			continue
		}
		seen[k.endpoint] = struct{}{}
		out = append(out, k.endpoint)
	}
	sort.Strings(out)
	return out
}

// Policies returns the configured policies sorted by endpoint then identifier.
func (m *Manager) Policies() []Policy {
	out := make([]Policy, 0, len(m.limiters))
	for _, l := range m.limiters {
		out = append(out, l.Policy())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Endpoint != out[j].Endpoint {
			return out[i].Endpoint < out[j].Endpoint
		}
		return out[i].Identifier < out[j].Identifier
	})
	return out
}

// FailOpen reports the policy for unconfigured endpoints.
func (m *Manager) FailOpen() bool { return m.failOpen }
