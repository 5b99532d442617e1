// Package parser dispatches a text payload to the delimited or
// line-delimited JSON reader by format tag.
package parser

import (
	"fmt"
	"io"
	"strings"

	"ingest/internal/dataset"
	csvparser "ingest/internal/parser/csv"
	jsonparser "ingest/internal/parser/json"
)

// Format is the input tag the engine accepts once conversion is done.
type Format string

const (
	CSV    Format = "csv"
	TSV    Format = "tsv"
	TXT    Format = "txt"
	NDJSON Format = "ndjson"
)

// ParseFormat normalizes a tag. "jsonl" is accepted as NDJSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, TSV, TXT, NDJSON:
		return f, nil
	case "jsonl":
		return NDJSON, nil
	default:
		return "", fmt.Errorf("parser: unsupported format %q", s)
	}
}

// Options carries the knobs shared by both readers.
type Options struct {
	Delimiter rune // delimited formats; TSV always uses tab
	MaxRows   int
	TrimSpace bool
}

// Stats summarizes a parse.
type Stats struct {
	Rows    int `json:"rows"`
	Skipped int `json:"skipped"`
}

// Parse reads r as format f.
func Parse(f Format, r io.Reader, opt Options) (*dataset.Dataset, Stats, error) {
	switch f {
	case CSV, TSV, TXT:
		comma := opt.Delimiter
		if f == TSV {
			comma = '\t'
		}
		ds, st, err := csvparser.NewParser(csvparser.Options{
			Comma:     comma,
			TrimSpace: opt.TrimSpace,
			MaxRows:   opt.MaxRows,
		}).Parse(r)
		if err != nil {
			return nil, Stats{}, err
		}
		return ds, Stats{Rows: st.Rows, Skipped: st.Skipped()}, nil
	case NDJSON:
		ds, st, err := jsonparser.DecodeAll(r, jsonparser.Options{MaxRows: opt.MaxRows})
		if err != nil {
			return nil, Stats{}, err
		}
		return ds, Stats{Rows: st.Rows, Skipped: st.Skipped}, nil
	default:
		return nil, Stats{}, fmt.Errorf("parser: unsupported format %q", f)
	}
}
