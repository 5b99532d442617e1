// Package convert turns semi-tabular payloads (JSON documents, workbooks,
// non-comma delimited text) into the two text formats the parsers read:
// comma-separated values and line-delimited JSON.
package convert

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"ingest/internal/parser"
	"ingest/internal/probe"
)

// ErrNotConvertible is returned for classifications that have no tabular
// rendering.
var ErrNotConvertible = errors.New("convert: input is not convertible")

// Output is a payload ready for parser.Parse.
type Output struct {
	Body   []byte
	Format parser.Format
}

// Converter picks a conversion from a classification.
type Converter struct {
	// Sheet selects a workbook sheet; empty means the first.
	Sheet string
}

// Convert renders content, classified as res, in a parseable format.
// Comma-separated and line-delimited input is passed through.
func (c Converter) Convert(res probe.Result, content []byte) (Output, error) {
	switch res.FileType {
	case probe.FileCSV:
		return Output{Body: content, Format: parser.CSV}, nil
	case probe.FileDelimitedText:
		var buf bytes.Buffer
		if err := DelimitedToCSV(&buf, bytes.NewReader(content), probe.DecodeDelimiter(res.Delimiter)); err != nil {
			return Output{}, err
		}
		return Output{Body: buf.Bytes(), Format: parser.CSV}, nil
	case probe.FileJSONL:
		return Output{Body: content, Format: parser.NDJSON}, nil
	case probe.FileJSONObject, probe.FileJSONArray:
		var buf bytes.Buffer
		if err := JSONToNDJSON(&buf, content); err != nil {
			return Output{}, err
		}
		return Output{Body: buf.Bytes(), Format: parser.NDJSON}, nil
	case probe.FileExcel:
		var buf bytes.Buffer
		if err := XLSXToCSV(&buf, content, c.Sheet); err != nil {
			return Output{}, err
		}
		return Output{Body: buf.Bytes(), Format: parser.CSV}, nil
	default:
		return Output{}, fmt.Errorf("%w: %s", ErrNotConvertible, res.FileType)
	}
}

// JSONToNDJSON writes one compact object per line: the object itself, or
// each element of an array of objects.
func JSONToNDJSON(w io.Writer, content []byte) error {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 {
		return fmt.Errorf("convert: empty JSON document")
	}
	switch trimmed[0] {
	case '{':
		return writeCompact(w, trimmed)
	case '[':
	default:
		return fmt.Errorf("%w: top-level JSON is not an object or array", ErrNotConvertible)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	for i := 0; dec.More(); i++ {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("convert: element %d: %w", i, err)
		}
		if len(raw) == 0 || raw[0] != '{' {
			return fmt.Errorf("%w: element %d is not an object", ErrNotConvertible, i)
		}
		if err := writeCompact(w, raw); err != nil {
			return err
		}
	}
	return nil
}

func writeCompact(w io.Writer, obj []byte) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, obj); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

// XLSXToCSV writes one sheet as CSV. Leading empty rows are skipped and
// every row is padded to the header width, since the workbook omits
// trailing empty cells.
func XLSXToCSV(w io.Writer, content []byte, sheet string) error {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("convert: open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return fmt.Errorf("convert: workbook has no sheets")
		}
		sheet = list[0]
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		return fmt.Errorf("convert: sheet %q: %w", sheet, err)
	}
	defer func() { _ = rows.Close() }()

	cw := csv.NewWriter(w)
	width := -1
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("convert: sheet %q: %w", sheet, err)
		}
		if width < 0 {
			if len(cols) == 0 {
				continue
			}
			width = len(cols)
		}
		for len(cols) < width {
			cols = append(cols, "")
		}
		if err := cw.Write(cols); err != nil {
			return err
		}
	}
	if err := rows.Error(); err != nil {
		return fmt.Errorf("convert: sheet %q: %w", sheet, err)
	}
	cw.Flush()
	return cw.Error()
}

// DelimitedToCSV rewrites text separated by comma as comma-separated
// values. Records are copied as read; quoting is redone by the writer.
func DelimitedToCSV(w io.Writer, r io.Reader, comma rune) error {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cw := csv.NewWriter(w)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("convert: %w", err)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
