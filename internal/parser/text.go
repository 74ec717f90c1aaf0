package parser

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeSpace collapses whitespace runs to single spaces and trims.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CleanText normalizes whitespace and composes Hangul to NFC so that text
// read from differently encoded pages compares equal.
func CleanText(s string) string {
	return norm.NFC.String(NormalizeSpace(s))
}

// StripPrefixes removes the first matching label prefix, e.g. "상품명 :".
func StripPrefixes(s string, prefixes []string) string {
	for _, p := range prefixes {
		if p == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(s, p); ok {
			return strings.TrimSpace(rest)
		}
	}
	return s
}

// ParsePrice keeps only the digits of s. "12,000원" is 12000; text with no
// digits is 0.
func ParsePrice(s string) int {
	v, _ := ParsePriceOK(s)
	return v
}

// ParsePriceOK is ParsePrice that also reports whether any digit was found.
func ParsePriceOK(s string) (int, bool) {
	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(b.String())
	if err != nil {
		return 0, false
	}
	return v, true
}
