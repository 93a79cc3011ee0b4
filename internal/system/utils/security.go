package utils

import (
	"net/url"
	"strings"
	"unicode"
)

// NormalizeIdentifier lowercases and trims an identifying string before
// hashing so that all hash implementations see identical input.
func NormalizeIdentifier(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// SanitizeMetadataValue trims whitespace and strips control characters.
// An empty result means the field should be omitted entirely.
func SanitizeMetadataValue(input string) string {
	trimmed := strings.TrimSpace(input)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, trimmed)
}

// IsValidURL reports whether the string parses as an absolute URL.
func IsValidURL(raw string) bool {
	parsed, err := url.Parse(raw)
	return err == nil && parsed.Scheme != "" && parsed.Host != ""
}
