// Package phone normalizes raw text fragments into canonical E.164 phone
// numbers. Malformed fragments are expected and common, so normalization
// rejects rather than errors.
package phone

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// CanonicalNumber is a phone number in E.164 form with a leading "+"
// (e.g. "+5511912345678"). Values are only ever produced by a Normalizer,
// or by FromDigits when reconciling an echoed digits-only value.
type CanonicalNumber string

// String returns the prefixed E.164 representation.
func (n CanonicalNumber) String() string { return string(n) }

// Digits returns the digits-only representation (no leading "+").
func (n CanonicalNumber) Digits() string {
	return strings.TrimPrefix(string(n), "+")
}

// FromDigits converts a digits-only representation back to the prefixed
// form. The two representations are interconvertible without loss.
func FromDigits(digits string) CanonicalNumber {
	return CanonicalNumber("+" + strings.TrimPrefix(digits, "+"))
}

// pattern matches phone-shaped fragments in visible page text: optional
// two-digit area code in parentheses, 4-5 digit prefix, 4 digit line.
var pattern = regexp.MustCompile(`\(?\d{2}\)?\s?\d{4,5}[-.\s]?\d{4}`)

var nonDigit = regexp.MustCompile(`\D`)

// Normalizer parses raw fragments against a default country's numbering plan.
type Normalizer struct {
	countryCode string
}

// NewNormalizer creates a Normalizer for the given country calling code
// (digits only, e.g. "55"). An empty code defaults to "55".
func NewNormalizer(countryCode string) *Normalizer {
	countryCode = strings.TrimPrefix(strings.TrimSpace(countryCode), "+")
	if countryCode == "" {
		countryCode = "55"
	}
	return &Normalizer{countryCode: countryCode}
}

// Pattern returns the matcher used to scan visible text for phone-shaped
// fragments. Matches still go through Normalize before being accepted.
func (nm *Normalizer) Pattern() *regexp.Regexp {
	return pattern
}

// Normalize parses a raw text fragment into a CanonicalNumber. It strips all
// non-digit characters, prepends the country code when missing (dropping any
// leading trunk zeros first), and validates the result against the numbering
// plan. Returns ok=false on rejection. Idempotent for canonical input.
func (nm *Normalizer) Normalize(raw string) (CanonicalNumber, bool) {
	digits := nonDigit.ReplaceAllString(raw, "")
	if len(digits) < 8 {
		return "", false
	}

	if !strings.HasPrefix(digits, nm.countryCode) {
		digits = nm.countryCode + strings.TrimLeft(digits, "0")
	}

	parsed, err := phonenumbers.Parse("+"+digits, "")
	if err != nil {
		return "", false
	}
	if !phonenumbers.IsPossibleNumber(parsed) || !phonenumbers.IsValidNumber(parsed) {
		return "", false
	}

	return CanonicalNumber(phonenumbers.Format(parsed, phonenumbers.E164)), true
}
