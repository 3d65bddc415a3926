package xclient

import (
	"net/http"
	"strconv"
	"strings"

	"agentx/internal/ratelimit"

	"golang.org/x/time/rate"
)

// RateLimitInfo is the upstream quota telemetry of one response.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	Reset     int64 // unix seconds
}

// parseRateLimitHeaders returns nil unless all three headers are present
// and numeric.
func parseRateLimitHeaders(h http.Header) *RateLimitInfo {
	limit := h.Get("x-rate-limit-limit")
	remaining := h.Get("x-rate-limit-remaining")
	reset := h.Get("x-rate-limit-reset")
	if limit == "" || remaining == "" || reset == "" {
		return nil
	}
	l, err1 := strconv.Atoi(limit)
	r, err2 := strconv.Atoi(remaining)
	rs, err3 := strconv.ParseInt(reset, 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil
	}
	return &RateLimitInfo{Limit: l, Remaining: r, Reset: rs}
}

// Categorize maps a request onto the rate-limit category that governs it.
// Unknown paths map to themselves, which no policy covers.
func Categorize(method, path string) string {
	path = strings.Trim(path, "/")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segs := strings.Split(path, "/")
	switch segs[0] {
	case "tweets":
		switch {
		case len(segs) >= 3 && segs[1] == "search" && segs[2] == "recent" && method == http.MethodGet:
			return ratelimit.EndpointSearchRecent
		case method == http.MethodPost && len(segs) == 1:
			return ratelimit.EndpointTweetsCreate
		case method == http.MethodDelete && len(segs) == 2:
			return ratelimit.EndpointTweetsDelete
		case method == http.MethodGet && len(segs) <= 2:
			return ratelimit.EndpointTweets
		}
	case "users":
		if method == http.MethodGet {
			return ratelimit.EndpointUsers
		}
	}
	return path
}

// newPacer builds the optional dispatch smoother; nil when disabled.
func newPacer(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
