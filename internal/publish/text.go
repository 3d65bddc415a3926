package publish

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxTextLength is the hard cap on post text, in code points.
const MaxTextLength = 280

// TextLength counts code points of text after NFC normalisation, so a
// precomposed and a decomposed accent count the same.
func TextLength(text string) int {
	return utf8.RuneCountInString(norm.NFC.String(text))
}

// Validation is the outcome of ValidateText.
type Validation struct {
	Valid  bool
	Length int
	Errors []string
}

// ValidateText checks that text is non-blank and within MaxTextLength.
func ValidateText(text string) Validation {
	v := Validation{Length: TextLength(text)}
	if strings.TrimSpace(text) == "" {
		v.Errors = append(v.Errors, "Tweet text cannot be empty")
	}
	if v.Length > MaxTextLength {
		v.Errors = append(v.Errors, fmt.Sprintf("Tweet text exceeds %d characters (%d characters)", MaxTextLength, v.Length))
	}
	v.Valid = len(v.Errors) == 0
	return v
}

// IsValidText reports whether text can be posted.
func IsValidText(text string) bool { return ValidateText(text).Valid }

// Truncate shortens text to MaxTextLength code points, ending in suffix.
// Text already within the limit is returned unchanged.
func Truncate(text, suffix string) string {
	n := norm.NFC.String(text)
	runes := []rune(n)
	if len(runes) <= MaxTextLength {
		return text
	}
	keep := MaxTextLength - utf8.RuneCountInString(suffix)
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + suffix
}

// FormatURL builds the public URL of a post.
func FormatURL(username, id string) string {
	if username == "" {
		username = "i"
	}
	return "https://x.com/" + username + "/status/" + id
}

var statusIDPattern = regexp.MustCompile(`status/(\d+)`)

// ExtractTweetID pulls the post id out of a status URL; "" when absent.
func ExtractTweetID(u string) string {
	m := statusIDPattern.FindStringSubmatch(u)
	if m == nil {
		return ""
	}
	return m[1]
}
