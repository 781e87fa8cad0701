package similarity

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold returns a case- and accent-insensitive form of s with punctuation
// replaced by spaces and whitespace collapsed. "Banco Central  de España"
// and "banco central de espana" fold to the same key.
func Fold(s string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped)
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}

// Key builds the normalized name+type lookup key used by the entity cache.
func Key(name, entityType string) string {
	return Fold(entityType) + "|" + Fold(name)
}
