package xclient

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"agentx/internal/apperr"
)

// defaultRateLimitReset applies when a 429 carries no reset header.
const defaultRateLimitReset = 900 * time.Second

const problemResourceNotFound = "https://api.twitter.com/2/problems/resource-not-found"

// APIError is one entry of an X API error list or problem body.
type APIError struct {
	Title      string `json:"title,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Type       string `json:"type,omitempty"`
	Message    string `json:"message,omitempty"`
	Value      string `json:"value,omitempty"`
	Parameter  string `json:"parameter,omitempty"`
	ResourceID string `json:"resource_id,omitempty"`
}

type errorBody struct {
	Title   string     `json:"title"`
	Detail  string     `json:"detail"`
	Type    string     `json:"type"`
	Message string     `json:"message"`
	Errors  []APIError `json:"errors"`
}

func (c *Client) translateStatus(status int, raw []byte, info *RateLimitInfo, endpoint string) error {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		body.Message = http.StatusText(status)
	}
	detail := func(fallback string) string {
		if body.Detail != "" {
			return body.Detail
		}
		return fallback
	}

	e := &apperr.Error{Status: status, Details: body}
	switch {
	case status == http.StatusBadRequest:
		e.Kind = apperr.KindValidation
		e.Message = detail(body.Message)
		if e.Message == "" {
			e.Message = "Invalid request"
		}
		if len(body.Errors) > 0 {
			e.Field = body.Errors[0].Parameter
		}
	case status == http.StatusUnauthorized:
		e.Kind = apperr.KindUnauthorized
		e.Message = detail("Authentication failed")
	case status == http.StatusForbidden:
		e.Kind = apperr.KindForbidden
		e.Message = detail("Access forbidden")
	case status == http.StatusNotFound:
		e.Kind = apperr.KindNotFound
		e.Message = detail("Resource not found")
	case status == http.StatusTooManyRequests:
		e.Kind = apperr.KindRateLimited
		now := c.now()
		e.ResetAt = now.Add(defaultRateLimitReset)
		if info != nil && info.Reset > 0 {
			e.ResetAt = time.Unix(info.Reset, 0)
		}
		wait := e.ResetAt.Sub(now)
		if wait < 0 {
			wait = 0
		}
		e.Message = fmt.Sprintf("Rate limit exceeded for %s. Resets at %s (in %ds)",
			endpoint, e.ResetAt.UTC().Format(time.RFC3339), int(math.Ceil(wait.Seconds())))
	case status >= 500:
		e.Kind = apperr.KindUpstream
		e.Message = detail("X API service error")
	default:
		e.Kind = apperr.KindUpstream
		e.Message = detail("Unknown X API error")
	}
	return e
}

// checkBodyErrors turns an error list inside a successful reply into an
// upstream error built from its first entry.
func checkBodyErrors(status int, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	var body struct {
		Errors []APIError `json:"errors"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return &apperr.Error{Kind: apperr.KindUpstream, Status: status, Message: "Malformed X API response", Err: err}
	}
	if len(body.Errors) == 0 {
		return nil
	}
	first := body.Errors[0]
	msg := first.Detail
	if msg == "" {
		msg = first.Message
	}
	if msg == "" {
		msg = "X API error"
	}
	return &apperr.Error{Kind: apperr.KindUpstream, Status: status, Message: msg, Details: body.Errors}
}

// APIErrors returns the upstream error list carried by err, if any.
func APIErrors(err error) []APIError {
	e, ok := apperr.As(err)
	if !ok {
		return nil
	}
	switch d := e.Details.(type) {
	case []APIError:
		return d
	case errorBody:
		return d.Errors
	}
	return nil
}

// IsResourceNotFound reports whether err is a 404 or an error list whose
// entries all describe missing resources.
func IsResourceNotFound(err error) bool {
	if apperr.Is(err, apperr.KindNotFound) {
		return true
	}
	list := APIErrors(err)
	if len(list) == 0 {
		return false
	}
	for _, e := range list {
		if e.Type != problemResourceNotFound && e.Title != "Not Found Error" {
			return false
		}
	}
	return true
}
