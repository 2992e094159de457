// Package names canonicalises the user-visible identifiers the hub keys on:
// usernames and room names.
package names

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	apperrors "github.com/Tyrowin/hangout/internal/platform/errors"
)

// MaxRunes bounds usernames and room names.
const MaxRunes = 64

// Normalize returns the NFC form of name so that visually identical names
// typed on different platforms compare equal. Case is preserved.
func Normalize(name string) string {
	return norm.NFC.String(name)
}

// Validate rejects empty, padded, oversized or control-character names.
// field names the offending input in the returned error.
func Validate(field, name string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.Invalid(field, field+" is required")
	}
	if strings.TrimSpace(name) != name {
		return apperrors.Invalid(field, field+" must not start or end with whitespace")
	}
	if utf8.RuneCountInString(name) > MaxRunes {
		return apperrors.Invalid(field, fmt.Sprintf("%s must be at most %d characters", field, MaxRunes))
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return apperrors.Invalid(field, field+" must not contain control characters")
	}
	return nil
}
