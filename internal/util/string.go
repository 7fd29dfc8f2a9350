package util

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize performs basic string normalization (lowercase + trim)
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CanonicalID returns the canonical decimal form of a positive integer id
// ("025" -> "25"). ok is false when s is not a positive integer.
func CanonicalID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return "", false
	}
	return strconv.Itoa(n), true
}

// IDFromURL extracts the trailing numeric segment of a catalog resource URL,
// e.g. ".../pokemon-species/25/" -> 25. Returns 0 when there is none.
func IDFromURL(rawURL string) int {
	parts := strings.FieldsFunc(rawURL, func(r rune) bool { return r == '/' })
	if len(parts) == 0 {
		return 0
	}
	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// DisplayName converts a catalog slug into a title-cased label ("mr-mime" -> "Mr Mime").
func DisplayName(slug string) string {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(slug, "-", " "))
}

// CleanFlavorText collapses the form feeds and hard line breaks the catalog
// embeds in flavor text into single spaces.
func CleanFlavorText(s string) string {
	replacer := strings.NewReplacer("\f", " ", "\n", " ", "\r", " ", "\u00ad", "")
	return strings.Join(strings.Fields(replacer.Replace(s)), " ")
}

// LanguageKey normalizes a catalog language name ("EN", "ja-Hrkt") to a BCP 47
// tag string so lookups do not depend on the catalog's casing.
func LanguageKey(name string) string {
	tag, err := language.Parse(strings.TrimSpace(name))
	if err != nil {
		return Normalize(name)
	}
	return strings.ToLower(tag.String())
}
