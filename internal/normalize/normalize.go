// Package normalize reduces titles and language tags to comparable forms.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Title lower-cases s, strips diacritics and punctuation, and collapses
// whitespace. Letters outside the Latin script are kept.
//
// "Amélie: Le Fabuleux Destin!" -> "amelie le fabuleux destin"
func Title(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	space := true
	for _, r := range strings.ToLower(folded) {
		switch {
		case r == '&':
			if !space {
				b.WriteByte(' ')
			}
			b.WriteString("and ")
			space = true
		case r == '\'' || r == '’':
			// "Schindler's" and "Schindlers" compare equal
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens splits a normalized title into words.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

// HasWordPrefix reports whether every word of short starts long, e.g.
// "gamma" is a word prefix of "gamma extended" but not of "gammas".
func HasWordPrefix(long, short string) bool {
	if short == "" || long == short {
		return false
	}
	if !strings.HasPrefix(long, short) {
		return false
	}
	return long[len(short)] == ' '
}

// LanguageTag canonicalizes a BCP 47 tag ("de_de" -> "de-DE").
// Returns "" for tags that cannot be parsed.
func LanguageTag(raw string) string {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), "_", "-")
	if raw == "" {
		return ""
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return ""
	}
	return tag.String()
}

// LanguageCode returns the base ISO 639-1 code of a tag ("de-DE" -> "de").
func LanguageCode(raw string) string {
	tag := LanguageTag(raw)
	if tag == "" {
		return ""
	}
	base, conf := language.MustParse(tag).Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}
