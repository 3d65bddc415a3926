// Package ratelimit implements continuous-refill token buckets keyed by
// endpoint category and caller identifier.
package ratelimit

import (
	"math"
	"time"
)

// Window is the quota window the upstream API publishes its limits for.
const Window = 15 * time.Minute

// Policy is the static quota of one endpoint category. An empty Identifier
// makes the policy apply to every identifier of the endpoint.
type Policy struct {
	Endpoint    string        `yaml:"endpoint" json:"endpoint"`
	Identifier  string        `yaml:"identifier,omitempty" json:"identifier,omitempty"`
	MaxRequests int           `yaml:"maxRequests" json:"maxRequests"`
	Window      time.Duration `yaml:"window" json:"window"`
}

// Capacity is the bucket ceiling.
func (p Policy) Capacity() float64 { return float64(p.MaxRequests) }

// RefillRate returns tokens restored per second.
func (p Policy) RefillRate() float64 {
	if p.Window <= 0 {
		return 0
	}
	return float64(p.MaxRequests) / p.Window.Seconds()
}

// Bucket is the mutable state stored per (endpoint, identifier).
type Bucket struct {
	Tokens       float64   `json:"tokens"`
	LastRefillAt time.Time `json:"lastRefillAt"`
}

// Full returns a bucket at capacity.
func (p Policy) Full(now time.Time) Bucket {
	return Bucket{Tokens: p.Capacity(), LastRefillAt: now}
}

// Refill adds tokens proportional to the time elapsed since b.LastRefillAt,
// capped at capacity. A clock that moved backwards adds nothing.
func (p Policy) Refill(b Bucket, now time.Time) Bucket {
	elapsed := now.Sub(b.LastRefillAt)
	if elapsed <= 0 || p.Window <= 0 {
		if b.Tokens > p.Capacity() {
			b.Tokens = p.Capacity()
		}
		return b
	}
	added := elapsed.Seconds() * p.Capacity() / p.Window.Seconds()
	b.Tokens = math.Min(p.Capacity(), b.Tokens+added)
	if b.Tokens < 0 {
		b.Tokens = 0
	}
	b.LastRefillAt = now
	return b
}

// Take refills b and consumes one token if a whole token is available.
func (p Policy) Take(b Bucket, now time.Time) (Bucket, bool) {
	b = p.Refill(b, now)
	if !hasToken(b) {
		return b, false
	}
	b.Tokens = math.Max(0, b.Tokens-1)
	return b, true
}

// WaitFor is the time until b holds one whole token. b must already be refilled.
func (p Policy) WaitFor(b Bucket) time.Duration {
	if hasToken(b) {
		return 0
	}
	if p.MaxRequests <= 0 || p.Window <= 0 {
		return p.Window
	}
	secs := (1 - b.Tokens) * p.Window.Seconds() / p.Capacity()
	return time.Duration(math.Ceil(secs*1000-epsilon)) * time.Millisecond
}

// Remaining is the whole number of tokens in b.
func Remaining(b Bucket) int {
	return int(math.Floor(b.Tokens + epsilon))
}

// hasToken reports whether b holds one whole token.
func hasToken(b Bucket) bool { return b.Tokens+epsilon >= 1 }

// epsilon absorbs float error accumulated across refills.
const epsilon = 1e-9

// DefaultPolicies is the quota table of the X API v2 endpoints the client
// calls. Recent search has different app and user quotas.
func DefaultPolicies() []Policy {
	return []Policy{
		{Endpoint: EndpointSearchRecent, Identifier: IdentifierApp, MaxRequests: 450, Window: Window},
		{Endpoint: EndpointSearchRecent, Identifier: IdentifierUser, MaxRequests: 180, Window: Window},
		{Endpoint: EndpointTweets, MaxRequests: 300, Window: Window},
		{Endpoint: EndpointTweetsCreate, MaxRequests: 200, Window: Window},
		{Endpoint: EndpointTweetsDelete, MaxRequests: 50, Window: Window},
		{Endpoint: EndpointUsers, MaxRequests: 300, Window: Window},
	}
}

// Endpoint categories and identifiers used by the X client.
const (
	EndpointSearchRecent = "search/recent"
	EndpointTweets       = "tweets"
	EndpointTweetsCreate = "tweets/create"
	EndpointTweetsDelete = "tweets/delete"
	EndpointUsers        = "users"

	IdentifierApp  = "app"
	IdentifierUser = "user"
)
