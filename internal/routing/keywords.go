package routing

import (
	"strings"
	"unicode"

	"voice-banking/internal/flows"
)

// matchKeywords returns the first flow, in catalog order, with a keyword
// present in text as whole words.
func matchKeywords(cat *flows.Catalog, text string) (string, string, bool) {
	padded := " " + normalizeText(text) + " "
	for _, d := range cat.Ordered() {
		if d.Key == flows.GeneralFlow {
			continue
		}
		for _, kw := range d.StrictKeywords {
			n := normalizeText(kw)
			if n == "" {
				continue
			}
			if strings.Contains(padded, " "+n+" ") {
				return d.Key, kw, true
			}
		}
	}
	return "", "", false
}

// normalizeText lowercases and turns every run of non-alphanumerics into a
// single space, so "ATM," matches "atm" and "apple" does not match "app".
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\'':
			// "don't" stays one word
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case !space:
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}
