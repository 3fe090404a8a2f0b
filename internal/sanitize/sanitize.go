// Package sanitize cleans text read from program files before it reaches
// rendered output, trace rows and file names. Names keep a safe character
// set, descriptions lose control characters and markup, and boundary styles
// are reduced to tokens Graphviz and SVG accept unquoted.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxDescriptionLength is the maximum allowed length for a program description.
const MaxDescriptionLength = 500

// MaxNameLength is the maximum allowed length for a program name.
const MaxNameLength = 80

// MaxStyleLength bounds color and shape tokens.
const MaxStyleLength = 32

var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	// It also matches XML processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	reWhitespace = regexp.MustCompile(`\s+`)

	reRepeatedHyphens     = regexp.MustCompile(`-{2,}`)
	reRepeatedUnderscores = regexp.MustCompile(`_{2,}`)
	reRepeatedDots        = regexp.MustCompile(`\.{2,}`)
)

// Description flattens a program description to one line: control
// characters and tags are dropped, whitespace runs become one space, and the
// result is truncated to MaxDescriptionLength.
func Description(input string) string {
	if input == "" {
		return ""
	}
	s := stripControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reWhitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if len(s) > MaxDescriptionLength {
		s = s[:MaxDescriptionLength] + "..."
	}
	return s
}

// Name keeps only [a-zA-Z0-9-_.] and enforces MaxNameLength. Repeated
// hyphens, underscores and dots are collapsed, and leading dots are dropped,
// so a name can never climb out of a directory.
func Name(input string) string {
	if input == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	s = reRepeatedHyphens.ReplaceAllString(s, "-")
	s = reRepeatedUnderscores.ReplaceAllString(s, "_")
	s = reRepeatedDots.ReplaceAllString(s, ".")
	s = strings.TrimLeft(s, ".")

	if len(s) > MaxNameLength {
		s = s[:MaxNameLength]
	}
	return s
}

// Style returns input when it is a plain color or shape token (letters,
// digits and a leading '#'), and "" otherwise.
func Style(input string) string {
	if input == "" || len(input) > MaxStyleLength {
		return ""
	}
	for i, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '#' && i == 0:
		default:
			return ""
		}
	}
	return input
}

// stripControlChars removes ASCII control characters (0x00-0x1F) from the string,
// except for newline (0x0A) and tab (0x09) which are preserved.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
