// Package docref parses compound document references of the form
// "identifier[:context]" as reported by the mapper agent.
package docref

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jonivernergaard/Oracle-MCP/internal/domain"
)

// extensionRe matches a short alphanumeric extension token at the end of an
// identifier, e.g. ".md", ".csv", ".xlsx".
var extensionRe = regexp.MustCompile(`\.[0-9A-Za-z]{2,4}$`)

// maxBareIdentifierLen is the longest an extension-less identifier may be
// before the split is assumed to have failed.
const maxBareIdentifierLen = 20

// Resolve splits a raw reference on the first colon: text before is the
// document identifier, text after is the evidentiary context phrase. With no
// colon the whole string is the identifier. Resolve never fails; validity is
// a separate classification (see Valid).
func Resolve(raw string) domain.DocumentReference {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, ":"); i >= 0 {
		return domain.DocumentReference{
			Identifier: strings.TrimSpace(raw[:i]),
			Context:    strings.TrimSpace(raw[i+1:]),
		}
	}
	return domain.DocumentReference{Identifier: raw}
}

// Valid reports whether the identifier passes the shape check: it must end
// in a short alphanumeric extension or be at most 20 characters long. A
// failing shape signals that the identifier/context extraction went wrong
// upstream, so callers surface it as a recoverable warning instead of
// attempting a fetch.
func Valid(ref domain.DocumentReference) bool {
	id := ref.Identifier
	if id == "" {
		return false
	}
	if extensionRe.MatchString(id) {
		return true
	}
	return utf8.RuneCountInString(id) <= maxBareIdentifierLen
}
