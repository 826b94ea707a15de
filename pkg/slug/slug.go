package slug

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

var transliterate = strings.NewReplacer(
	"ç", "c", "ğ", "g", "ı", "i", "ö", "o", "ş", "s", "ü", "u",
	"ä", "a", "ß", "ss", "é", "e", "è", "e", "ê", "e", "á", "a",
	"à", "a", "â", "a", "í", "i", "î", "i", "ó", "o", "ô", "o",
	"ú", "u", "û", "u", "ñ", "n",
)

// Generate lowercases name, transliterates common accented letters and joins
// the remaining alphanumeric runs with single hyphens.
//
//	"Yaz Kampanyası 2026!" -> "yaz-kampanyasi-2026"
func Generate(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = transliterate.Replace(s)
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Code builds an upper-case campaign code from name and a disambiguating
// suffix, truncating the name part to maxLen characters (0 = no limit).
//
//	Code("Weekend Deals", "3f9a", 0) -> "WEEKEND-DEALS-3F9A"
func Code(name, suffix string, maxLen int) string {
	base := Generate(name)
	if maxLen > 0 && len(base) > maxLen {
		base = strings.TrimRight(base[:maxLen], "-")
	}
	suffix = Generate(suffix)

	switch {
	case base == "":
		return strings.ToUpper(suffix)
	case suffix == "":
		return strings.ToUpper(base)
	default:
		return strings.ToUpper(base + "-" + suffix)
	}
}
