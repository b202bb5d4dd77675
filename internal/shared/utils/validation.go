package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// String length limits
const (
	MaxUsernameLength    = 64
	MinUsernameLength    = 3
	MaxPasswordLength    = 128
	MinPasswordLength    = 8
	MaxKeyLength         = 128
	MaxTokenLength       = 128
	MaxURILength         = 2048
	MaxURISetSize        = 256
	MaxNameLength        = 256
	MaxDescriptionLength = 2048
	MaxKeywordLength     = 256
)

// Regular expressions for validation
var (
	// SafeKeyPattern allows alphanumeric, hyphens, underscores and dots
	SafeKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	// UsernamePattern allows alphanumeric and underscores
	UsernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	// TokenPattern matches the URL-safe base64 alphabet
	TokenPattern = regexp.MustCompile(`^[a-zA-Z0-9_=-]+$`)
)

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", fieldName)
	}

	if value == "" && !required {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%s must not exceed %d characters", fieldName, maxLen)
	}

	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%s contains invalid characters", fieldName)
	}

	return nil
}

// ValidateKey validates a provider or service key
func ValidateKey(key, fieldName string, required bool) error {
	if err := ValidateString(key, fieldName, 1, MaxKeyLength, required); err != nil {
		return err
	}

	if key != "" && !SafeKeyPattern.MatchString(key) {
		return fmt.Errorf("%s contains invalid characters (only alphanumeric, dots, hyphens, and underscores allowed)", fieldName)
	}

	return nil
}

// ValidateURI validates a semantic annotation URI. URIs are compared by
// string identity, so only emptiness, length and whitespace are checked.
func ValidateURI(uri, fieldName string, required bool) error {
	if err := ValidateString(uri, fieldName, 1, MaxURILength, required); err != nil {
		return err
	}

	for _, r := range uri {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%s must not contain whitespace or control characters", fieldName)
		}
	}

	return nil
}

// ValidateURISet validates every member of a URI set
func ValidateURISet(uris []string, fieldName string) error {
	if len(uris) > MaxURISetSize {
		return fmt.Errorf("%s has too many entries (maximum %d)", fieldName, MaxURISetSize)
	}

	for i, uri := range uris {
		if err := ValidateURI(uri, fmt.Sprintf("%s[%d]", fieldName, i), true); err != nil {
			return err
		}
	}

	return nil
}

// ValidateUsername validates a username
func ValidateUsername(username string) error {
	if err := ValidateString(username, "username", MinUsernameLength, MaxUsernameLength, true); err != nil {
		return err
	}

	if !UsernamePattern.MatchString(username) {
		return fmt.Errorf("username contains invalid characters (only alphanumeric and underscores allowed)")
	}

	return nil
}

// ValidatePassword validates a password
func ValidatePassword(password string) error {
	return ValidateString(password, "password", MinPasswordLength, MaxPasswordLength, true)
}

// ValidateToken validates the shape of a session token
func ValidateToken(token string) error {
	if err := ValidateString(token, "token", 1, MaxTokenLength, true); err != nil {
		return err
	}

	if !TokenPattern.MatchString(token) {
		return fmt.Errorf("token contains invalid characters")
	}

	return nil
}

// ValidateName validates a name field
func ValidateName(name, fieldName string) error {
	return ValidateString(strings.TrimSpace(name), fieldName, 1, MaxNameLength, true)
}

// ValidateDescription validates a description field
func ValidateDescription(description, fieldName string, required bool) error {
	return ValidateString(description, fieldName, 0, MaxDescriptionLength, required)
}
