package generation

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"agentx/internal/apperr"
)

var fencePattern = regexp.MustCompile("(?s)```[a-zA-Z]*[ \t]*\r?\n(.*?)\r?\n?```")

// StripCodeFence returns the body of the first markdown code fence in s,
// or s trimmed when there is none.
func StripCodeFence(s string) string {
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// ParseJSON decodes a model reply into T. When the reply is not valid JSON
// as a whole, the outermost object or array in it is tried before giving up.
func ParseJSON[T any](reply string) (T, error) {
	var out T
	body := StripCodeFence(reply)
	err := json.Unmarshal([]byte(body), &out)
	if err == nil {
		return out, nil
	}
	if span := outerJSON(body); span != "" && span != body {
		var retryOut T
		if json.Unmarshal([]byte(span), &retryOut) == nil {
			return retryOut, nil
		}
	}
	return out, &apperr.Error{
		Kind:    apperr.KindInternal,
		Message: "Failed to parse JSON response from model",
		Details: reply,
		Err:     err,
	}
}

func outerJSON(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}

// SendJSON sends a prompt and decodes the reply into T. A reply that cannot
// be parsed is a fatal Internal error; it is not retried.
func SendJSON[T any](ctx context.Context, c *Client, system, user string, opts SendOptions) (T, error) {
	reply, err := c.Send(ctx, system, user, opts)
	if err != nil {
		var zero T
		return zero, err
	}
	return ParseJSON[T](reply)
}
