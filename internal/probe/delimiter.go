package probe

import (
	"bytes"
	"unicode/utf8"
)

// SniffBytes bounds how much of a payload the delimiter sniffer reads.
const SniffBytes = 5000

// candidates are counted in this order; on equal counts the earlier wins.
var candidates = []rune{',', ';', '\t', '|'}

// SniffDelimiter returns the most frequent candidate delimiter in the first
// SniffBytes of sample, and whether any candidate occurred at all. With no
// occurrences it returns ',' and false.
func SniffDelimiter(sample []byte) (rune, bool) {
	if len(sample) > SniffBytes {
		sample = sample[:SniffBytes]
	}
	best, bestN := ',', 0
	for _, c := range candidates {
		n := bytes.Count(sample, []byte(string(c)))
		if n > bestN {
			best, bestN = c, n
		}
	}
	return best, bestN > 0
}

// DecodeDelimiter converts a user-supplied string into a single rune
// delimiter. "\t" and "tab" are accepted for tab.
func DecodeDelimiter(s string) rune {
	switch s {
	case "":
		return ','
	case `\t`, "tab", "TAB":
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return ','
	}
	return r
}
