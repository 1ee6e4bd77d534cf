package fortress

import (
	"regexp"
	"strings"
)

// Simplified RFC 5322 shape, applied after trimming and lowercasing.
var emailPattern = regexp.MustCompile(
	`^[a-z0-9!#$%&'*+/=?^_` + "`" + `{|}~.-]+@[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)+$`,
)

const maxEmailLength = 254

// NormalizeEmail trims, lowercases and validates raw email input, rejecting
// control characters before any other processing. The returned value is the
// canonical stored form.
func NormalizeEmail(raw string) (string, error) {
	if hasControlChars(raw) {
		return "", ErrInvalidEmail
	}

	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" || len(email) > maxEmailLength {
		return "", ErrInvalidEmail
	}
	if !emailPattern.MatchString(email) {
		return "", ErrInvalidEmail
	}

	return email, nil
}

// ValidatePasswordInput is the cheap structural gate applied before the
// strength policy: no control characters, no oversized input. It never
// trims or otherwise rewrites the password.
func ValidatePasswordInput(raw string, maxLength int) error {
	if hasControlChars(raw) {
		return ErrInvalidPassword
	}
	if maxLength > 0 && len(raw) > maxLength {
		return ErrInvalidPassword
	}
	return nil
}

// SanitizeInput trims and strips control characters for display purposes.
// It is a convenience for hosts rendering user input and is never part of
// the engine's own validation.
func SanitizeInput(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	for _, r := range raw {
		if isControlRune(r) {
			continue
		}
		b.WriteRune(r)
	}

	return strings.TrimSpace(b.String())
}

func hasControlChars(s string) bool {
	for _, r := range s {
		if isControlRune(r) {
			return true
		}
	}
	return false
}

func isControlRune(r rune) bool {
	return r < 0x20 || (r >= 0x7F && r <= 0x9F)
}
