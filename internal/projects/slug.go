package projects

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify turns a display name into a URL-safe slug: accents stripped,
// lowercased, runs of non-alphanumerics collapsed to single hyphens.
// Slugify(Slugify(x)) == Slugify(x).
func Slugify(name string) string {
	plain, _, err := transform.String(deaccent, name)
	if err != nil {
		plain = name
	}
	var b strings.Builder
	b.Grow(len(plain))
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(plain) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
