// Package csv reads delimited text into a dataset.Dataset. The reader is
// lenient: lazy quotes, variable field counts, and a UTF-8 BOM on the first
// header cell are all tolerated. Rows whose width differs from the header
// are skipped and counted rather than failing the file.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"ingest/internal/dataset"
)

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// Options configures the parser. The zero value reads comma-separated text
// with a header row.
type Options struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune

	// NoHeader treats the first record as data and names columns col_1..N.
	NoHeader bool

	// TrimSpace trims surrounding whitespace from every cell.
	TrimSpace bool

	// MaxRows stops reading after this many data rows. Zero means no limit.
	MaxRows int

	// PadShort pads short rows with empty cells and truncates long ones
	// instead of skipping them.
	PadShort bool
}

// Stats counts what the parser had to leave out.
type Stats struct {
	Rows       int `json:"rows"`
	Malformed  int `json:"malformed"`
	Misaligned int `json:"misaligned"`
}

// Skipped is the total number of records that did not become rows.
func (s Stats) Skipped() int { return s.Malformed + s.Misaligned }

// ErrNoHeader is returned when the input holds no usable header record.
var ErrNoHeader = errors.New("csv: no header row")

// Parser parses delimited input according to Options. It is safe to reuse
// across inputs but not concurrently.
type Parser struct{ opt Options }

// NewParser constructs a Parser with the provided Options.
func NewParser(opt Options) *Parser { return &Parser{opt: opt} }

// Parse reads all of r.
func (p *Parser) Parse(r io.Reader) (*dataset.Dataset, Stats, error) {
	cr := csv.NewReader(r)
	cr.Comma = p.comma()
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	var st Stats

	// Header: skip malformed or empty lines until a usable one or EOF.
	var header []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil, st, ErrNoHeader
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				st.Malformed++
				continue
			}
			return nil, st, fmt.Errorf("csv: read header: %w", err)
		}
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		header = StripHeaderBOM(rec)
		break
	}

	var records [][]string
	if p.opt.NoHeader {
		records = append(records, p.clean(header))
		header = positionalNames(len(header))
	} else {
		for i := range header {
			header[i] = strings.TrimSpace(header[i])
		}
	}

	want := len(header)
	for p.opt.MaxRows <= 0 || len(records) < p.opt.MaxRows {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				st.Malformed++
				continue
			}
			return nil, st, fmt.Errorf("csv: read: %w", err)
		}
		if len(rec) == 1 && rec[0] == "" && want > 1 {
			continue // blank line
		}
		if len(rec) != want && !p.opt.PadShort {
			st.Misaligned++
			continue
		}
		records = append(records, p.clean(rec))
	}

	st.Rows = len(records)
	return dataset.FromStrings(header, records), st, nil
}

func (p *Parser) comma() rune {
	if p.opt.Comma == 0 {
		return ','
	}
	return p.opt.Comma
}

func (p *Parser) clean(rec []string) []string {
	if !p.opt.TrimSpace {
		return rec
	}
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	return rec
}

// StripHeaderBOM removes a UTF-8 BOM from the first header cell if present.
func StripHeaderBOM(headers []string) []string {
	if len(headers) == 0 {
		return headers
	}
	headers[0] = strings.TrimPrefix(headers[0], utf8BOM)
	return headers
}

func positionalNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("col_%d", i+1)
	}
	return out
}
