package lattice

import (
	"strings"
	"time"
)

// dateLayouts are the calendar formats accepted without a time component.
// Day-first wins over month-first for ambiguous slashes; month-first layouts
// are deliberately absent.
var dateLayouts = []string{
	"2006-01-02",  // ISO
	"2/1/2006",    // DMY slash, padded or not
	"2006/01/02",  // ISO slashy
	"2/1/06",      // DMY slash, two-digit year
	"02.01.2006",  // DMY dot
	"02-01-2006",  // DMY dash
	"2 Jan 2006",  // DMY textual day
	"02-Jan-2006", // DMY dash textual month
	"Jan 2, 2006",
}

// timestampLayouts carry a time component.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"02.01.2006 15:04:05",
}

// ParseDatetime parses s under the accepted layouts. Timestamps are tried
// before dates; the first layout that matches wins.
func ParseDatetime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	// The shortest layout renders to six characters.
	if len(s) < 6 || len(s) > 40 {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatDatetime renders ts as an ISO date when it has no clock component
// and as RFC3339 otherwise. Both forms parse back through ParseDatetime.
func FormatDatetime(ts time.Time) string {
	ts = ts.UTC()
	if ts.Hour() == 0 && ts.Minute() == 0 && ts.Second() == 0 && ts.Nanosecond() == 0 {
		return ts.Format("2006-01-02")
	}
	return ts.Format(time.RFC3339Nano)
}
