// Package sanitize cleans client-supplied strings before they are logged
// or echoed: scenario labels, feature names in audit entries and error
// messages returned over MCP.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxTextLength is the maximum length of free text such as labels and
// error messages.
const MaxTextLength = 500

// MaxNameLength is the maximum length of a feature or scenario name.
const MaxNameLength = 120

var (
	reExcessiveNewlines = regexp.MustCompile(`\n{3,}`)
	reRepeatedDots      = regexp.MustCompile(`\.{2,}`)
	reRepeatedHyphens   = regexp.MustCompile(`-{2,}`)
)

// Text strips control characters other than newline and tab, collapses
// runs of blank lines, trims whitespace and truncates to MaxTextLength.
func Text(input string) string {
	if input == "" {
		return ""
	}
	s := stripControlChars(input)
	s = reExcessiveNewlines.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	if len(s) > MaxTextLength {
		s = s[:MaxTextLength] + "..."
	}
	return s
}

// Name keeps only [a-zA-Z0-9._*-], collapses repeated dots and hyphens
// and truncates to MaxNameLength. The result is safe to use as a log
// field or a key path.
func Name(input string) string {
	if input == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' || r == '*' {
			b.WriteRune(r)
		}
	}
	s := reRepeatedDots.ReplaceAllString(b.String(), ".")
	s = reRepeatedHyphens.ReplaceAllString(s, "-")
	if len(s) > MaxNameLength {
		s = s[:MaxNameLength]
	}
	return s
}

func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r < 0x20 && r != '\n' && r != '\t') || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
