// Package dataset defines the rectangular, positional table every stage
// consumes and produces. Stages never mutate a Dataset they were handed;
// they build a new one.
package dataset

import (
	"fmt"
)

// Row is a positional tuple aligned with Dataset.Columns.
type Row []any

// Dataset is a header plus rectangular rows.
type Dataset struct {
	Columns []string
	Rows    []Row
}

// New validates that every row has exactly len(columns) cells.
func New(columns []string, rows []Row) (*Dataset, error) {
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, fmt.Errorf("dataset: row %d has %d cells; want %d", i, len(r), len(columns))
		}
	}
	return &Dataset{Columns: columns, Rows: rows}, nil
}

// FromStrings builds a Dataset from string records, padding short rows with
// empty cells and truncating long ones to the header width.
func FromStrings(header []string, records [][]string) *Dataset {
	rows := make([]Row, len(records))
	for i, rec := range records {
		row := make(Row, len(header))
		for j := range header {
			if j < len(rec) {
				row[j] = rec[j]
			} else {
				row[j] = ""
			}
		}
		rows[i] = row
	}
	cols := make([]string, len(header))
	copy(cols, header)
	return &Dataset{Columns: cols, Rows: rows}
}

// Len returns the row count.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Index returns the position of the named column or -1.
func (d *Dataset) Index(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of column i's values.
func (d *Dataset) Column(i int) []any {
	out := make([]any, len(d.Rows))
	for r, row := range d.Rows {
		out[r] = row[i]
	}
	return out
}

// Clone deep-copies the header and row slices. Cell values are shared.
func (d *Dataset) Clone() *Dataset {
	cols := make([]string, len(d.Columns))
	copy(cols, d.Columns)
	rows := make([]Row, len(d.Rows))
	for i, r := range d.Rows {
		cp := make(Row, len(r))
		copy(cp, r)
		rows[i] = cp
	}
	return &Dataset{Columns: cols, Rows: rows}
}

// WithColumns returns a shallow copy of d that uses cols as its header.
func (d *Dataset) WithColumns(cols []string) *Dataset {
	return &Dataset{Columns: cols, Rows: d.Rows}
}

// Head returns up to n leading rows as plain slices.
func (d *Dataset) Head(n int) [][]any {
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	out := make([][]any, n)
	for i := 0; i < n; i++ {
		out[i] = append([]any(nil), d.Rows[i]...)
	}
	return out
}
