package crm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, trims and strips diacritics so "Negociação" matches
// "negociacao".
func Normalize(s string) string {
	out, _, err := transform.String(stripAccents, strings.TrimSpace(s))
	if err != nil {
		out = strings.TrimSpace(s)
	}
	return strings.ToLower(out)
}

// MatchName finds the index of the candidate whose name matches want,
// trying exact, then case-insensitive, then substring, then normalized
// (accent-stripped, space-to-hyphen) comparison. Returns -1 when nothing
// matches.
func MatchName(names []string, want string) int {
	want = strings.TrimSpace(want)
	if want == "" {
		return -1
	}
	for i, n := range names {
		if strings.TrimSpace(n) == want {
			return i
		}
	}
	for i, n := range names {
		if strings.EqualFold(strings.TrimSpace(n), want) {
			return i
		}
	}
	lower := strings.ToLower(want)
	for i, n := range names {
		if strings.Contains(strings.ToLower(n), lower) {
			return i
		}
	}
	slug := strings.ReplaceAll(Normalize(want), " ", "-")
	for i, n := range names {
		cand := strings.ReplaceAll(Normalize(n), " ", "-")
		if cand == slug || strings.Contains(cand, slug) {
			return i
		}
	}
	return -1
}
