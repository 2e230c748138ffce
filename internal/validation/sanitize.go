// Package validation cleans user-supplied free text before it reaches the
// store or a prompt.
package validation

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"

	"github.com/boddenberg/finanzen-bfa-go/internal/domain"
)

// MaxTextLength bounds descriptions, names and extractor input (in runes).
const MaxTextLength = 500

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeText strips markup and control characters, collapses whitespace and
// truncates to MaxTextLength. Entities escaped by the policy are restored, so
// "Café & Pão" survives unchanged.
func SanitizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s)
	s = html.UnescapeString(strictPolicy.Sanitize(s))
	s = strings.Join(strings.Fields(s), " ")

	if r := []rune(s); len(r) > MaxTextLength {
		s = string(r[:MaxTextLength])
	}
	return s
}

// RequiredText sanitises value and fails with a user-facing message when
// nothing is left.
func RequiredText(field, value, message string) (string, error) {
	clean := SanitizeText(value)
	if clean == "" {
		return "", &domain.ErrValidation{Field: field, Message: message}
	}
	return clean, nil
}
