package dataset

import (
	"bufio"
	"encoding/csv"
	"io"

	"ingest/internal/lattice"
)

// WriteCSV renders d as delimited text: the header, then one record per row
// with every cell in canonical text form. Nil cells are written empty.
func (d *Dataset) WriteCSV(w io.Writer, comma rune) error {
	bw := bufio.NewWriterSize(w, 1<<16)
	cw := csv.NewWriter(bw)
	if comma != 0 {
		cw.Comma = comma
	}
	if err := cw.Write(d.Columns); err != nil {
		return err
	}
	rec := make([]string, len(d.Columns))
	for _, r := range d.Rows {
		for i, v := range r {
			rec[i] = lattice.Text(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}
