package probe

import (
	"path"
	"strings"
)

// compressionSuffixes are stripped before extension dispatch.
var compressionSuffixes = []string{".gz", ".bz2", ".zst", ".xz"}

// SplitName strips directories and returns the lower-cased extension (with
// its dot), the compression suffix if any, and the bare stem.
//
//	"in/Sales_Orders_2024.csv.gz" -> ("Sales_Orders_2024", ".csv", ".gz")
func SplitName(filename string) (stem, ext, compression string) {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	lower := strings.ToLower(base)
	for _, c := range compressionSuffixes {
		if strings.HasSuffix(lower, c) {
			compression = c
			base = base[:len(base)-len(c)]
			lower = lower[:len(lower)-len(c)]
			break
		}
	}
	ext = path.Ext(lower)
	stem = base[:len(base)-len(ext)]
	return stem, ext, compression
}

// NameParts splits the stem on underscores: the first segment is the
// domain, the second the dataset, and the remainder (joined back with
// underscores) an optional qualifier. With fewer than two non-empty
// segments every part is nil; the caller must supply them.
func NameParts(filename string) (domain, dataset, qualifier *string) {
	stem, _, _ := SplitName(filename)
	raw := strings.Split(stem, "_")
	parts := raw[:0]
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return nil, nil, nil
	}
	d, s := parts[0], parts[1]
	domain, dataset = &d, &s
	if len(parts) > 2 {
		q := strings.Join(parts[2:], "_")
		qualifier = &q
	}
	return domain, dataset, qualifier
}
