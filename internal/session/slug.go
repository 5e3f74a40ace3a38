package session

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes characters and drops the combining marks, so
// "Clínica São" becomes "Clinica Sao".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify lowercases the name, strips diacritics, and collapses runs of
// spaces, hyphens, and anything non-alphanumeric into single hyphens.
func Slugify(name string) string {
	stripped, _, err := transform.String(stripMarks, name)
	if err != nil {
		stripped = name
	}
	stripped = strings.ToLower(stripped)

	var b strings.Builder
	hyphen := false
	for _, r := range stripped {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			hyphen = false
		case r == ' ' || r == '-' || r == '_':
			if !hyphen && b.Len() > 0 {
				b.WriteByte('-')
				hyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// UniqueSlug appends a unix-millis suffix so concurrent registrations of
// the same clinic name cannot collide.
func UniqueSlug(name string) string {
	return Slugify(name) + "-" + strconv.FormatInt(time.Now().UnixMilli(), 10)
}
