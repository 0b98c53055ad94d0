package utils

import (
	"regexp"
	"strings"
)

const MaxEmailLength = 254

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateEmail checks the rough shape of an email used as a username.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &ValidationError{Field: "email", Message: "Email is required"}
	}
	if len(email) > MaxEmailLength {
		return &ValidationError{Field: "email", Message: "Email must be at most 254 characters"}
	}
	if !emailRegex.MatchString(email) {
		return &ValidationError{Field: "email", Message: "Please enter a valid email address"}
	}
	return nil
}

// DisplayNameFromEmail returns the local part of email, or email itself when
// it has no "@".
func DisplayNameFromEmail(email string) string {
	email = strings.TrimSpace(email)
	if idx := strings.Index(email, "@"); idx >= 0 {
		return email[:idx]
	}
	return email
}

// NormalizeEmail lowercases and trims an email for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
