package descriptions

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

var acronyms = map[string]bool{
	"abs": true, "ac": true, "hvac": true, "cv": true, "ecm": true, "ecu": true, "pcm": true,
	"tpms": true, "dpf": true, "egr": true, "maf": true, "tps": true, "vvt": true,
}

// Slug lowercases s and collapses every run of non-alphanumerics into a single dash.
func Slug(s string) string {
	s = strings.ReplaceAll(strings.ToLower(s), "@", " at ")
	return strings.Trim(nonSlugChars.ReplaceAllString(s, "-"), "-")
}

// Deslugify turns a slug back into a title, upper-casing known automotive acronyms.
func Deslugify(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	for i, w := range words {
		lower := strings.ToLower(w)
		if acronyms[lower] {
			words[i] = strings.ToUpper(lower)
			continue
		}
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
