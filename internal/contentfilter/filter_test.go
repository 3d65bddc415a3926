package contentfilter

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckClean(t *testing.T) {
	r := New().Check("Shipped a small Go refactor today, tests are green. #golang")
	assert.True(t, r.Passed)
	assert.Equal(t, SeverityNone, r.Severity)
	assert.Equal(t, Approve, r.Recommendation)
	assert.Empty(t, r.Issues)
}

func TestCheckEmptyRejects(t *testing.T) {
	r := New().Check("   ")
	assert.False(t, r.Passed)
	assert.Equal(t, SeverityHigh, r.Severity)
	assert.Equal(t, Reject, r.Recommendation)
	assert.Equal(t, []string{"Post is empty"}, r.Issues)
}

func TestCheckSeverities(t *testing.T) {
	f := New()
	cases := []struct {
		name string
		text string
		sev  Severity
		rec  Recommendation
	}{
		{"prohibited", "This bug will kill my weekend", SeverityHigh, Reject},
		{"word boundary", "Skills matter more than tools", SeverityNone, Approve},
		{"too long", strings.Repeat("a ", 141), SeverityHigh, Reject},
		{"spam", "Download today and save", SeverityMedium, Revise},
		{"shortener", "Read more at https://goo.gl/abc", SeverityMedium, Revise},
		{"sensitive", "My thoughts on gambling odds", SeverityLow, Revise},
		{"caps", "THIS IS SO GOOD ok", SeverityLow, Revise},
		{"repeated chars", "wow?????", SeverityLow, Revise},
		{"repeated words", "build build build build things", SeverityLow, Revise},
		{"hashtags", "#a #b #c #d #e #f", SeverityMedium, Revise},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := f.Check(tc.text)
			assert.Equal(t, tc.sev, r.Severity, r.Issues)
			assert.Equal(t, tc.rec, r.Recommendation)
			assert.Equal(t, tc.sev == SeverityNone, r.Passed)
		})
	}
}

func TestCustomWordLists(t *testing.T) {
	f := New(WithProhibitedWords("deploy on friday"), WithSensitiveTopics())
	assert.Equal(t, Reject, f.Check("Let's Deploy on Friday").Recommendation)
	assert.True(t, f.Passes("Talking about politics again"))
}

func TestSeverityJSON(t *testing.T) {
	raw, err := json.Marshal(New().Check("gambling is fun"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"severity":"low"`)
	assert.Contains(t, string(raw), `"recommendation":"revise"`)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "hello world", Sanitize(" hello\x00\n\t  world\x7f "))
}
