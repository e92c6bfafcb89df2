// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package strategy

import (
	"strings"
)

// directivePrefixes are the accepted line-leading tokens, matched
// case-insensitively. One directive per line.
var directivePrefixes = []string{"q:", "question:", "query:"}

// ParseDirectives extracts directives from model output using a small
// line-oriented grammar:
//
//	directive := prefix text | number "." text | number ")" text | "-" text | "*" text
//	prefix    := "Q:" | "QUESTION:" | "QUERY:"   (case-insensitive)
//
// Blank lines and lines matching no rule are ignored. Surrounding quotes
// are stripped. Duplicate directives are dropped, first occurrence wins.
func ParseDirectives(text string) []string {
	var out []string
	seen := make(map[string]bool)

	for _, line := range strings.Split(text, "\n") {
		d, ok := parseLine(line)
		if !ok {
			continue
		}
		key := strings.ToLower(d)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}

// parseLine applies the grammar to one line.
func parseLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}

	lower := strings.ToLower(line)
	for _, p := range directivePrefixes {
		if strings.HasPrefix(lower, p) {
			return cleanDirective(line[len(p):]), cleanDirective(line[len(p):]) != ""
		}
	}

	// Numbered list items: "1. text" or "1) text".
	if i := numberedPrefixLen(line); i > 0 {
		d := cleanDirective(line[i:])
		return d, d != ""
	}

	// Dashed or starred list items.
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
		d := cleanDirective(line[2:])
		return d, d != ""
	}

	return "", false
}

// numberedPrefixLen returns the length of a "N." or "N)" prefix, or 0.
func numberedPrefixLen(line string) int {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) {
		return 0
	}
	if line[i] == '.' || line[i] == ')' {
		return i + 1
	}
	return 0
}

// cleanDirective trims whitespace and surrounding quotes.
func cleanDirective(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}
