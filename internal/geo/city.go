// Package geo provides city name canonicalization and great-circle distance
// for donor matching. City strings are free text from user profiles and
// request forms; matching works on canonical keys resolved through a static
// alias table.
package geo

import (
	"sort"
	"strings"
)

// cityCanon maps normalized synonyms to one canonical city key.
var cityCanon = map[string]string{
	"ktm":              "kathmandu",
	"kathmandu":        "kathmandu",
	"kathmandu city":   "kathmandu",
	"kathmandu valley": "kathmandu",

	"lalitpur":      "lalitpur",
	"patan":         "lalitpur",
	"lalitpur city": "lalitpur",

	"bhaktapur": "bhaktapur",
	"bkt":       "bhaktapur",

	"pokhara":      "pokhara",
	"pkr":          "pokhara",
	"pokhara city": "pokhara",

	"biratnagar": "biratnagar",
	"brt":        "biratnagar",
}

// canonAliases maps each canonical key to every known spelling, canonical
// form included. Used to build tolerant storage prefilters.
var canonAliases = map[string][]string{
	"kathmandu":  {"kathmandu", "ktm", "kathmandu city", "kathmandu valley"},
	"lalitpur":   {"lalitpur", "patan", "lalitpur city"},
	"bhaktapur":  {"bhaktapur", "bkt"},
	"pokhara":    {"pokhara", "pkr", "pokhara city"},
	"biratnagar": {"biratnagar", "brt"},
}

var separators = []string{",", "/", ";", "|"}

// normalize lowercases and collapses whitespace.
func normalize(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

// Canonicalize resolves a free-text city/area string to its canonical key.
// Inputs mixing area and city ("Asan, Kathmandu") are split on separators;
// the last segment is favored, then its final word. Falls back to the
// normalized raw string when no alias matches. Idempotent.
func Canonicalize(raw string) string {
	v := normalize(raw)
	if v == "" {
		return ""
	}
	if c, ok := cityCanon[v]; ok {
		return c
	}

	segs := splitSeparators(v)
	last := strings.TrimSpace(segs[len(segs)-1])
	if c, ok := cityCanon[last]; ok {
		return c
	}
	if words := strings.Fields(last); len(words) > 0 {
		if c, ok := cityCanon[words[len(words)-1]]; ok {
			return c
		}
	}
	return v
}

// Aliases returns the canonical key plus all known synonym spellings for a
// city string. For unknown cities the result is just the canonical form.
func Aliases(raw string) []string {
	canon := Canonicalize(raw)
	if canon == "" {
		return nil
	}
	aliases, ok := canonAliases[canon]
	if !ok {
		return []string{canon}
	}
	out := make([]string, len(aliases))
	copy(out, aliases)
	sort.Strings(out)
	return out
}

func splitSeparators(v string) []string {
	segs := []string{v}
	for _, sep := range separators {
		var next []string
		for _, s := range segs {
			next = append(next, strings.Split(s, sep)...)
		}
		segs = next
	}
	// drop empty segments but keep at least the input
	out := segs[:0]
	for _, s := range segs {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return []string{v}
	}
	return out
}
