package utils

import (
	"strings"
	"unicode/utf8"
)

const (
	MaxUsernameLength = 20
	MinPasswordLength = 4
	MaxBioLength      = 50
)

// ValidateUsername checks the username exactly as given. Usernames are
// case-sensitive and never rewritten, so surrounding spaces are an error
// rather than something to trim.
func ValidateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return &ValidationError{Field: "username", Message: "Username is required"}
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return &ValidationError{Field: "username", Message: "Username must be at most 20 characters"}
	}
	if strings.TrimSpace(username) != username {
		return &ValidationError{Field: "username", Message: "Username cannot start or end with spaces"}
	}
	return nil
}

func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return &ValidationError{Field: "password", Message: "Password must be at least 4 characters"}
	}
	return nil
}

func ValidateBio(bio string) error {
	if utf8.RuneCountInString(bio) > MaxBioLength {
		return &ValidationError{Field: "bio", Message: "Bio must be at most 50 characters"}
	}
	return nil
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
