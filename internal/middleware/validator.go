package middleware

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Input validation and sanitization utilities

var userIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_.@-]{1,128}$`)

// MaxProjectNameRunes bounds project names.
const MaxProjectNameRunes = 255

// ErrProjectNameTooLong is returned by ValidateProjectName for names over the limit.
var ErrProjectNameTooLong = eris.New("project name longer than 255 characters")

// ValidateUserID validates user ID format
func ValidateUserID(user string) error {
	if user == "" {
		return eris.New("user ID cannot be empty")
	}
	if !userIDPattern.MatchString(user) {
		return eris.New("invalid user ID format (alphanumeric, dot, at, dash, underscore only, max 128 chars)")
	}
	return nil
}

// ValidateAnalysisID validates analysis ID format
func ValidateAnalysisID(id string) error {
	if id == "" {
		return eris.New("analysis ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return eris.New("invalid analysis ID format")
	}
	return nil
}

// ValidateScreenshotURL accepts http(s) locators and bare storage keys.
func ValidateScreenshotURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return eris.New("URL cannot be empty")
	}
	if strings.ContainsAny(raw, "\r\n\x00") {
		return eris.New("invalid characters in URL")
	}
	if !strings.Contains(raw, "://") {
		if strings.Contains(raw, "..") {
			return eris.New("path traversal detected")
		}
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return eris.Wrap(err, "invalid URL format")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return eris.Errorf("invalid URL scheme: %s (allowed: http, https)", u.Scheme)
	}
	if u.Host == "" {
		return eris.New("URL has no host")
	}
	return nil
}

// ValidateProjectName sanitizes and bounds a project name.
func ValidateProjectName(name string) (string, error) {
	clean := SanitizeString(name)
	if clean == "" {
		return "", eris.New("project name cannot be empty")
	}
	if utf8.RuneCountInString(clean) > MaxProjectNameRunes {
		return "", ErrProjectNameTooLong
	}
	return clean, nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidatePage parses a 1-based page number
func ValidatePage(raw string) int {
	p, err := strconv.Atoi(raw)
	if err != nil || p < 1 {
		return 1
	}
	return p
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ValidateDays validates days parameter
func ValidateDays(days int) int {
	if days <= 0 {
		return 7 // default
	}
	if days > 365 {
		return 365 // max 1 year
	}
	return days
}
