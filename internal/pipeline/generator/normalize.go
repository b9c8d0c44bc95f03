package generator

import (
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}\-]+`)

// NormalizeText lowercases and collapses text to space-joined word tokens.
// No lemmatization is applied; aliases and news text go through the same
// normalization so containment checks compare like with like.
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}
	tokens := wordPattern.FindAllString(strings.ToLower(text), -1)
	return strings.Join(tokens, " ")
}

// Tokens returns the normalized word tokens of the text
func Tokens(text string) []string {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil
	}
	return strings.Split(normalized, " ")
}

// wordBoundary compiles a case-insensitive pattern that matches the literal
// phrase only at word boundaries. RE2's \b is ASCII-only, so boundaries are
// expressed as non-letter/non-digit context to keep Cyrillic names matchable.
// The phrase itself is submatch 1.
func wordBoundary(phrase string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(` + regexp.QuoteMeta(phrase) + `)(?:$|[^\p{L}\p{N}])`)
}

// wordBoundaryWithSuffix is wordBoundary with an optional legal-entity suffix
// allowed after the phrase.
func wordBoundaryWithSuffix(phrase, suffixAlternatives string) *regexp.Regexp {
	return regexp.MustCompile(
		`(?i)(?:^|[^\p{L}\p{N}])(` + regexp.QuoteMeta(phrase) +
			`(?:\s+(?:` + suffixAlternatives + `))?)(?:$|[^\p{L}\p{N}])`,
	)
}
