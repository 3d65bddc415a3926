package apperr

import (
	"fmt"
	"math"
	"time"
)

// GenericMessage is shown for every failure that has no caller-facing detail.
const GenericMessage = "Something went wrong. Please try again later."

// UserMessage renders err for an end user. Rate-limit errors expose the
// reset time, validation errors their field and reason; everything else
// collapses to GenericMessage.
func UserMessage(err error, now time.Time) string {
	e, ok := As(err)
	if !ok {
		return GenericMessage
	}
	switch e.Kind {
	case KindRateLimited:
		if e.ResetAt.IsZero() {
			return "Rate limit exceeded. Please try again later."
		}
		secs := int(math.Ceil(e.RetryAfter(now).Seconds()))
		return fmt.Sprintf("Rate limit exceeded. Try again in %ds (at %s).", secs, e.ResetAt.UTC().Format(time.RFC3339))
	case KindValidation:
		if e.Field != "" {
			return e.Field + ": " + e.Message
		}
		return e.Message
	default:
		return GenericMessage
	}
}
