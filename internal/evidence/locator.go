// Package evidence locates the text region a mapping evidence phrase refers
// to inside a legacy document body.
//
// Evidence phrases are produced by the mapper agent against one rendering of
// a document (typically a table-style schema dump) but must be highlighted
// inside another (rendered prose or markdown), so the characters between
// words cannot be assumed identical. Location therefore falls through three
// strategies of increasing permissiveness, stopping at the first that yields
// at least one span.
package evidence

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Strategy names, exposed on spans for diagnostics.
const (
	StrategyExact = "exact"
	StrategyWords = "word-sequence"
	StrategyLoose = "loose"
)

// Span is a located text region: byte offsets into the document body plus
// the strategy that produced it.
type Span struct {
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Strategy string `json:"strategy"`
}

// minPhraseLen is the shortest phrase worth searching for. Anything below
// is too ambiguous to highlight.
const minPhraseLen = 2

var tokenSplitRe = regexp.MustCompile(`[^0-9A-Za-z_]+`)

// Locate finds every non-overlapping occurrence of phrase inside body.
//
//  1. exact: case-insensitive verbatim substring.
//  2. word-sequence: phrase tokens in order, separated by one-or-more
//     non-word characters, so punctuation and markup differences between
//     renderings (a pipe, a colon, a line break) do not matter.
//  3. loose: tokens in order separated by arbitrary, possibly empty, lazily
//     matched gaps. Strictly more permissive than word-sequence and only
//     consulted when it fails.
func Locate(phrase, body string) []Span {
	trimmed := strings.TrimSpace(phrase)
	if utf8.RuneCountInString(trimmed) < minPhraseLen || body == "" {
		return nil
	}

	if spans := matchPattern(regexp.QuoteMeta(trimmed), body, StrategyExact); len(spans) > 0 {
		return spans
	}

	tokens := splitTokens(trimmed)
	if len(tokens) == 0 {
		return nil
	}
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = regexp.QuoteMeta(tok)
	}

	if spans := matchPattern(strings.Join(quoted, `\W+`), body, StrategyWords); len(spans) > 0 {
		return spans
	}
	return matchPattern(strings.Join(quoted, `[\s\S]*?`), body, StrategyLoose)
}

// splitTokens breaks a phrase into word tokens, discarding empties.
func splitTokens(phrase string) []string {
	var tokens []string
	for _, tok := range tokenSplitRe.Split(phrase, -1) {
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// matchPattern compiles the pattern case-insensitively with . crossing line
// boundaries and returns all non-overlapping matches as spans.
func matchPattern(pattern, body, strategy string) []Span {
	re, err := regexp.Compile(`(?is)` + pattern)
	if err != nil {
		return nil
	}
	var spans []Span
	for _, loc := range re.FindAllStringIndex(body, -1) {
		spans = append(spans, Span{Start: loc[0], End: loc[1], Strategy: strategy})
	}
	return spans
}
