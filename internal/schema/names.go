package schema

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var lower = cases.Lower(language.Und)

// NormalizeColumnName lower-cases a header, strips surrounding whitespace and
// replaces each internal whitespace run with a single underscore. Input is
// NFC-composed first so that visually identical headers compare equal.
func NormalizeColumnName(s string) string {
	s = norm.NFC.String(s)
	s = lower.String(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('_')
				inSpace = true
			}
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// CollisionError reports headers that normalize to the same column name.
type CollisionError struct {
	// Collisions maps a normalized name to the original headers producing it.
	Collisions map[string][]string
}

func (e *CollisionError) Error() string {
	names := sortedKeys(e.Collisions)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%q <- %q", n, e.Collisions[n]))
	}
	return "schema: column names collide after normalization: " + strings.Join(parts, "; ")
}

// NormalizeNames normalizes every header. Collisions are returned as a
// *CollisionError alongside the (still positional) normalized names.
func NormalizeNames(headers []string) ([]string, error) {
	out := make([]string, len(headers))
	seen := make(map[string][]string, len(headers))
	for i, h := range headers {
		n := NormalizeColumnName(h)
		out[i] = n
		seen[n] = append(seen[n], h)
	}
	var coll map[string][]string
	for n, origins := range seen {
		if len(origins) > 1 {
			if coll == nil {
				coll = make(map[string][]string)
			}
			coll[n] = origins
		}
	}
	if coll != nil {
		return out, &CollisionError{Collisions: coll}
	}
	return out, nil
}

// Identifier converts arbitrary text into a lowercase ASCII identifier safe
// for table and file names:
//  1. lowercase
//  2. strip accents (NFD → remove Mn → NFC)
//  3. keep [a-z0-9_]; convert space/dash/dot to underscore; drop others
//  4. fallback to "col" if empty
//  5. truncate to 63 characters (first 10 + last 53)
func Identifier(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "col"
	}
	if len(name) > 63 {
		name = name[:10] + name[len(name)-53:]
	}
	return name
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
