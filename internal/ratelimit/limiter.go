package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of an admission check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
	// Unlimited is set when no policy covers the endpoint.
	Unlimited bool
}

// Limiter applies one Policy to any number of identifiers.
type Limiter struct {
	policy Policy
	store  Store
	now    func() time.Time
}

// NewLimiter builds a limiter over store. now defaults to time.Now.
func NewLimiter(p Policy, store Store, now func() time.Time) *Limiter {
	if store == nil {
		store = NewMemoryStore()
	}
	if now == nil {
		now = time.Now
	}
	return &Limiter{policy: p, store: store, now: now}
}

func (l *Limiter) Policy() Policy { return l.policy }

func (l *Limiter) key(id string) string {
	return l.policy.Endpoint + "|" + id
}

// CheckLimit consumes one token for id if available.
func (l *Limiter) CheckLimit(ctx context.Context, id string) (bool, error) {
	res, err := l.Check(ctx, id)
	return res.Allowed, err
}

// Check is CheckLimit reporting the bucket state left by the same atomic step.
func (l *Limiter) Check(ctx context.Context, id string) (Result, error) {
	now := l.now()
	var allowed bool
	b, err := l.store.Update(ctx, l.key(id), func(cur Bucket, found bool) Bucket {
		if !found {
			cur = l.policy.Full(now)
		}
		var next Bucket
		next, allowed = l.policy.Take(cur, now)
		return next
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Allowed:   allowed,
		Remaining: Remaining(b),
		ResetIn:   l.policy.WaitFor(b),
		Limit:     l.policy.MaxRequests,
	}, nil
}

// Peek refills and reports the bucket without consuming.
func (l *Limiter) Peek(ctx context.Context, id string) (Result, error) {
	now := l.now()
	b, err := l.store.Update(ctx, l.key(id), func(cur Bucket, found bool) Bucket {
		if !found {
			return l.policy.Full(now)
		}
		return l.policy.Refill(cur, now)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Allowed:   hasToken(b),
		Remaining: Remaining(b),
		ResetIn:   l.policy.WaitFor(b),
		Limit:     l.policy.MaxRequests,
	}, nil
}

// Remaining returns the whole tokens available to id.
func (l *Limiter) Remaining(ctx context.Context, id string) (int, error) {
	res, err := l.Peek(ctx, id)
	return res.Remaining, err
}

// TimeUntilReset returns how long id must wait for one token; 0 when a
// token is available now.
func (l *Limiter) TimeUntilReset(ctx context.Context, id string) (time.Duration, error) {
	res, err := l.Peek(ctx, id)
	return res.ResetIn, err
}

// Reset discards id's bucket; the next access starts at full capacity.
func (l *Limiter) Reset(ctx context.Context, id string) error {
	return l.store.Delete(ctx, l.key(id))
}
