package ratelimit

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestRefillCapsAtCapacity(t *testing.T) {
	p := Policy{Endpoint: "x", MaxRequests: 10, Window: 10 * time.Second}
	now := time.Now()
	b := Bucket{Tokens: 3, LastRefillAt: now}

	b = p.Refill(b, now.Add(2*time.Second))
	assert.InDelta(t, 5.0, b.Tokens, 1e-9)

	b = p.Refill(b, now.Add(time.Hour))
	assert.Equal(t, 10.0, b.Tokens)
}

func TestRefillIgnoresClockSkew(t *testing.T) {
	p := Policy{Endpoint: "x", MaxRequests: 10, Window: 10 * time.Second}
	now := time.Now()
	b := Bucket{Tokens: 3, LastRefillAt: now}

	got := p.Refill(b, now.Add(-5*time.Second))
	assert.Equal(t, b, got)
}

func TestRemainingMonotonicRefill(t *testing.T) {
	clk := newFakeClock()
	p := Policy{Endpoint: "tweets", MaxRequests: 300, Window: Window}
	l := NewLimiter(p, NewMemoryStore(), clk.Now)
	ctx := context.Background()

	before, err := l.Remaining(ctx, "app")
	require.NoError(t, err)
	require.Equal(t, 300, before)

	for i := 0; i < 5; i++ {
		ok, err := l.CheckLimit(ctx, "app")
		require.NoError(t, err)
		require.True(t, ok)
	}
	after, err := l.Remaining(ctx, "app")
	require.NoError(t, err)
	assert.Equal(t, before-5, after)

	prev := after
	for i := 0; i < 10; i++ {
		clk.Advance(3 * time.Second) // one token per 3s
		cur, err := l.Remaining(ctx, "app")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, cur, prev)
		assert.LessOrEqual(t, cur, 300)
		prev = cur
	}
	assert.Equal(t, 300, prev)
}

func TestAdmissionDenialIsExact(t *testing.T) {
	clk := newFakeClock()
	p := Policy{Endpoint: "tweets/delete", MaxRequests: 50, Window: Window}
	l := NewLimiter(p, NewMemoryStore(), clk.Now)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		ok, err := l.CheckLimit(ctx, "user")
		require.NoError(t, err)
		require.True(t, ok, "request %d", i+1)
	}
	res, err := l.Check(ctx, "user")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	// 50 per 900s refills one token every 18s
	assert.Equal(t, 18*time.Second, res.ResetIn)

	wait, err := l.TimeUntilReset(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, 18*time.Second, wait)

	clk.Advance(18 * time.Second)
	ok, err := l.CheckLimit(ctx, "user")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIdentifiersAreIsolated(t *testing.T) {
	clk := newFakeClock()
	l := NewLimiter(Policy{Endpoint: "e", MaxRequests: 1, Window: time.Minute}, nil, clk.Now)
	ctx := context.Background()

	ok, _ := l.CheckLimit(ctx, "a")
	require.True(t, ok)
	ok, _ = l.CheckLimit(ctx, "a")
	require.False(t, ok)
	ok, _ = l.CheckLimit(ctx, "b")
	assert.True(t, ok)
}

func TestResetRestoresCapacity(t *testing.T) {
	clk := newFakeClock()
	l := NewLimiter(Policy{Endpoint: "e", MaxRequests: 2, Window: time.Minute}, nil, clk.Now)
	ctx := context.Background()

	_, _ = l.CheckLimit(ctx, "a")
	_, _ = l.CheckLimit(ctx, "a")
	n, _ := l.Remaining(ctx, "a")
	require.Equal(t, 0, n)

	require.NoError(t, l.Reset(ctx, "a"))
	n, _ = l.Remaining(ctx, "a")
	assert.Equal(t, 2, n)
}

func TestConcurrentConsumptionNeverOverdraws(t *testing.T) {
	clk := newFakeClock()
	l := NewLimiter(Policy{Endpoint: "e", MaxRequests: 100, Window: time.Hour}, NewMemoryStore(), clk.Now)
	ctx := context.Background()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if ok, _ := l.CheckLimit(ctx, "shared"); ok {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), allowed.Load())
}

func TestManagerRoutesIdentifierSpecificPolicies(t *testing.T) {
	clk := newFakeClock()
	m := NewDefaultManager(WithClock(clk.Now))
	ctx := context.Background()

	app, err := m.Status(ctx, EndpointSearchRecent, IdentifierApp)
	require.NoError(t, err)
	assert.Equal(t, 450, app.Limit)

	user, err := m.Status(ctx, EndpointSearchRecent, IdentifierUser)
	require.NoError(t, err)
	assert.Equal(t, 180, user.Limit)

	res, err := m.CheckLimit(ctx, EndpointTweetsCreate, IdentifierUser)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 199, res.Remaining)
	assert.Equal(t, time.Duration(0), res.ResetIn)
}

func TestManagerFailOpenForUnknownEndpoint(t *testing.T) {
	m := NewDefaultManager()
	res, err := m.CheckLimit(context.Background(), "spaces/search", IdentifierApp)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.True(t, res.Unlimited)
	assert.Equal(t, math.MaxInt, res.Remaining)
}

func TestManagerFailClosed(t *testing.T) {
	var denied []string
	m := NewDefaultManager(WithFailClosed(), WithDenyHook(func(e, _ string) { denied = append(denied, e) }))
	res, err := m.CheckLimit(context.Background(), "spaces/search", IdentifierApp)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, []string{"spaces/search"}, denied)
}

func TestManagerStatusDoesNotConsume(t *testing.T) {
	clk := newFakeClock()
	m := NewDefaultManager(WithClock(clk.Now))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := m.Status(ctx, EndpointUsers, IdentifierApp)
		require.NoError(t, err)
		assert.Equal(t, 300, res.Remaining)
	}
}

func TestManagerClearAll(t *testing.T) {
	clk := newFakeClock()
	store := NewMemoryStore()
	m := NewManager(DefaultPolicies(), store, WithClock(clk.Now))
	ctx := context.Background()

	_, _ = m.CheckLimit(ctx, EndpointTweets, IdentifierApp)
	_, _ = m.CheckLimit(ctx, EndpointUsers, IdentifierApp)
	require.Equal(t, 2, store.Len())

	require.NoError(t, m.ClearAll(ctx))
	assert.Equal(t, 0, store.Len())
}

func TestManagerEndpoints(t *testing.T) {
	m := NewDefaultManager()
	assert.Equal(t, []string{"search/recent", "tweets", "tweets/create", "tweets/delete", "users"}, m.Endpoints())
	assert.Len(t, m.Policies(), 6)
}

func TestPeekAgreesWithCheckNearWholeToken(t *testing.T) {
	clk := newFakeClock()
	l := NewLimiter(Policy{Endpoint: "e", MaxRequests: 2, Window: time.Minute}, NewMemoryStore(), clk.Now)
	ctx := context.Background()
	_, err := l.store.Update(ctx, l.key("u"), func(Bucket, bool) Bucket {
		return Bucket{Tokens: 1 - 1e-12, LastRefillAt: clk.Now()}
	})
	require.NoError(t, err)

	peek, err := l.Peek(ctx, "u")
	require.NoError(t, err)
	assert.True(t, peek.Allowed)
	assert.Equal(t, 1, peek.Remaining)
	assert.Zero(t, peek.ResetIn)

	res, err := l.Check(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, peek.Allowed, res.Allowed)
}
