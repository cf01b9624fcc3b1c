package identity

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeKey returns the form stored in normalized columns. Lookups on
// names and emails compare normalized values, which makes them
// case-insensitive.
func NormalizeKey(s string) string {
	return cases.Upper(language.Und).String(s)
}

// EqualFold reports whether two names are equal after normalization.
func EqualFold(a, b string) bool {
	return NormalizeKey(a) == NormalizeKey(b)
}

func normalizePtr(s *string) *string {
	if s == nil {
		return nil
	}
	n := NormalizeKey(*s)
	return &n
}
