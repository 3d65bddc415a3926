// Package contentfilter screens generated post text before it is saved or
// published. It is a heuristic classifier: word lists, spam patterns and
// shape checks, each raising the severity of the verdict.
package contentfilter

import (
	"fmt"
	"regexp"
	"strings"

	"agentx/internal/publish"
)

type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "none"
	}
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Recommendation string

const (
	Approve Recommendation = "approve"
	Revise  Recommendation = "revise"
	Reject  Recommendation = "reject"
)

// Result is the verdict for one text.
type Result struct {
	Passed         bool           `json:"passed"`
	Issues         []string       `json:"issues"`
	Severity       Severity       `json:"severity"`
	Recommendation Recommendation `json:"recommendation"`
}

var (
	ProhibitedWords = []string{
		"kill", "murder", "bomb", "terrorist", "weapon",
		"hate", "racist", "sexist",
		"explicit", "nsfw", "porn",
		"click here", "buy now", "limited time",
	}
	SensitiveTopics = []string{
		"politics", "religion", "cryptocurrency", "medical advice",
		"legal advice", "financial advice", "weight loss", "gambling",
	}
)

var (
	spamPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(buy|get|click|download)\s+(now|here|today)\b`),
		regexp.MustCompile(`(?i)(\b100%|\b(guaranteed|free|limited time)\b)`),
		regexp.MustCompile(`(?i)https?://bit\.ly|tinyurl`),
		regexp.MustCompile(`(!!!+|FREE|BUY NOW)`),
		regexp.MustCompile(`(\$\$+|\d+\$)`),
	}
	hashtagPattern = regexp.MustCompile(`#\w+`)
	mentionPattern = regexp.MustCompile(`@\w+`)
	urlPattern     = regexp.MustCompile(`https?://\S+`)

	suspiciousShorteners = []string{"bit.ly", "tinyurl.com", "goo.gl"}
)

// Filter holds compiled word lists. The zero value is not usable; use New.
type Filter struct {
	prohibited []*regexp.Regexp
	words      []string
	sensitive  []string
	maxTags    int
	maxMention int
}

type Option func(*Filter)

// WithProhibitedWords replaces the prohibited word list.
func WithProhibitedWords(words ...string) Option {
	return func(f *Filter) { f.words = words }
}

// WithSensitiveTopics replaces the sensitive topic list.
func WithSensitiveTopics(topics ...string) Option {
	return func(f *Filter) { f.sensitive = topics }
}

func New(opts ...Option) *Filter {
	f := &Filter{words: ProhibitedWords, sensitive: SensitiveTopics, maxTags: 5, maxMention: 5}
	for _, o := range opts {
		o(f)
	}
	f.prohibited = make([]*regexp.Regexp, 0, len(f.words))
	for _, w := range f.words {
		f.prohibited = append(f.prohibited, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return f
}

// Check classifies text. High severity rejects, medium or low asks for a
// revision, none approves.
func (f *Filter) Check(text string) Result {
	var r Result
	raise := func(s Severity) {
		if s > r.Severity {
			r.Severity = s
		}
	}

	n := publish.TextLength(text)
	if n > publish.MaxTextLength {
		r.Issues = append(r.Issues, fmt.Sprintf("Post exceeds %d character limit (%d characters)", publish.MaxTextLength, n))
		raise(SeverityHigh)
	}
	if strings.TrimSpace(text) == "" {
		r.Issues = append(r.Issues, "Post is empty")
		r.Severity = SeverityHigh
		r.Recommendation = Reject
		return r
	}

	if found := f.prohibitedIn(text); len(found) > 0 {
		r.Issues = append(r.Issues, "Contains prohibited words: "+strings.Join(found, ", "))
		raise(SeverityHigh)
	}
	if reasons := f.spamReasons(text); len(reasons) > 0 {
		r.Issues = append(r.Issues, "Potential spam detected: "+strings.Join(reasons, ", "))
		raise(SeverityMedium)
	}
	if found := containsAll(text, f.sensitive); len(found) > 0 {
		r.Issues = append(r.Issues, "Contains sensitive topics: "+strings.Join(found, ", "))
		raise(SeverityLow)
	}
	if hasSuspiciousURL(text) {
		r.Issues = append(r.Issues, "Contains potentially unsafe URLs")
		raise(SeverityMedium)
	}
	if excessiveCaps(text) {
		r.Issues = append(r.Issues, "Excessive capitalization detected (may appear as shouting)")
		raise(SeverityLow)
	}
	if repetitive(text) {
		r.Issues = append(r.Issues, "Contains repetitive patterns")
		raise(SeverityLow)
	}

	switch r.Severity {
	case SeverityNone:
		r.Recommendation = Approve
		r.Passed = true
	case SeverityHigh:
		r.Recommendation = Reject
	default:
		r.Recommendation = Revise
	}
	return r
}

// Passes reports whether text is clean.
func (f *Filter) Passes(text string) bool { return f.Check(text).Passed }

func (f *Filter) prohibitedIn(text string) []string {
	var found []string
	for i, re := range f.prohibited {
		if re.MatchString(text) {
			found = append(found, f.words[i])
		}
	}
	return found
}

func (f *Filter) spamReasons(text string) []string {
	var reasons []string
	for _, re := range spamPatterns {
		if re.MatchString(text) {
			reasons = append(reasons, "matches spam pattern "+re.String())
		}
	}
	if n := len(hashtagPattern.FindAllString(text, -1)); n > f.maxTags {
		reasons = append(reasons, fmt.Sprintf("too many hashtags (%d)", n))
	}
	if n := len(mentionPattern.FindAllString(text, -1)); n > f.maxMention {
		reasons = append(reasons, fmt.Sprintf("too many mentions (%d)", n))
	}
	return reasons
}

func hasSuspiciousURL(text string) bool {
	for _, u := range urlPattern.FindAllString(text, -1) {
		for _, s := range suspiciousShorteners {
			if strings.Contains(u, s) {
				return true
			}
		}
	}
	return false
}
