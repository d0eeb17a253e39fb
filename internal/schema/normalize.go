package schema

import "strings"

var umlauts = strings.NewReplacer(
	"ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss",
	"Ä", "ae", "Ö", "oe", "Ü", "ue",
)

// normalize lowercases, transliterates German umlauts and trims the input.
// Canonical values are ASCII so they survive any client encoding.
func normalize(s string) string {
	return strings.TrimSpace(strings.ToLower(umlauts.Replace(s)))
}

// compact additionally removes separators so spelling variants collapse onto
// one token ("TVöD-P" -> "tvoedp", "TV L" -> "tvl").
func compact(s string) string {
	s = normalize(s)
	for _, sep := range []string{" ", "-", ".", "_", "/"} {
		s = strings.ReplaceAll(s, sep, "")
	}
	return s
}
