// Package normalizers canonicalizes identifier values before they are matched or stored.
package normalizers

import (
	"fmt"
	"strings"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

var registry = map[string]Normalizer{
	"none":              Identity,
	"trim":              Trim,
	"lowercase":         Lowercase,
	"nemail":            NormalizeEmail,
	"nphone":            NormalizePhone,
	"digits_only":       DigitsOnly,
	"remove_whitespace": RemoveWhitespace,
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Chain composes the named normalizers, applied left to right.
// An empty list yields Trim.
func Chain(names ...string) (Normalizer, error) {
	if len(names) == 0 {
		return Trim, nil
	}

	fns := make([]Normalizer, 0, len(names))
	for _, name := range names {
		fn, ok := registry[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("unknown normalizer %q", name)
		}
		fns = append(fns, fn)
	}

	return func(s string) string {
		for _, fn := range fns {
			s = fn(s)
		}
		return s
	}, nil
}

// Optional applies fn to *s and returns nil when s is nil or normalizes to "".
func Optional(s *string, fn Normalizer) *string {
	if s == nil {
		return nil
	}
	if fn == nil {
		fn = Trim
	}
	value := fn(*s)
	if value == "" {
		return nil
	}
	return &value
}

// Identity returns s unchanged
func Identity(s string) string {
	return s
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone keeps the digits of a phone number and a leading '+'
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	digits := DigitsOnly(s)
	if strings.HasPrefix(s, "+") && digits != "" {
		return "+" + digits
	}
	return digits
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// RemoveWhitespace removes all whitespace characters
func RemoveWhitespace(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
