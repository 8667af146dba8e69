package engine

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SanitizeName trims surrounding whitespace from a self-reported voter name.
func SanitizeName(raw string) string {
	return strings.TrimSpace(raw)
}

// IdentityKey maps a raw voter name to its ledger key: trimmed and lowercased,
// so "Anna", " anna " and "ANNA" are one voter. Lowercasing keeps "Weiß" and
// "Weiss" apart, which full case folding would merge.
func IdentityKey(raw string) string {
	return cases.Lower(language.Und).String(SanitizeName(raw))
}
