package contentfilter

import (
	"regexp"
	"strings"
	"unicode"
)

var whitespace = regexp.MustCompile(`\s+`)

// Sanitize drops control characters and collapses whitespace.
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// containsAll returns the needles found in text, case-insensitively.
func containsAll(text string, needles []string) []string {
	lt := strings.ToLower(text)
	var found []string
	for _, n := range needles {
		if strings.Contains(lt, strings.ToLower(n)) {
			found = append(found, n)
		}
	}
	return found
}

// excessiveCaps reports more than half of the ASCII letters being upper case.
func excessiveCaps(text string) bool {
	letters, upper := 0, 0
	for _, r := range text {
		switch {
		case r >= 'A' && r <= 'Z':
			letters++
			upper++
		case r >= 'a' && r <= 'z':
			letters++
		}
	}
	return letters > 0 && upper*2 > letters
}

// repetitive reports a word longer than three letters used more than three
// times, or any character repeated five times in a row.
func repetitive(text string) bool {
	counts := make(map[string]int)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if len([]rune(w)) > 3 {
			counts[w]++
			if counts[w] > 3 {
				return true
			}
		}
	}
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev {
			run++
			if run >= 5 {
				return true
			}
			continue
		}
		prev, run = r, 1
	}
	return false
}
