package json

import (
	"encoding/json"
	"errors"
	"io"

	"ingest/internal/dataset"
)

// DecodeAll reads every line of r into a Dataset. Lines that are not JSON
// objects are skipped and counted. A read error from r aborts the decode.
func DecodeAll(r io.Reader, opt Options) (*dataset.Dataset, Stats, error) {
	d := NewDecoder(r, opt)
	var (
		st      Stats
		columns []string
		index   = map[string]int{}
		objs    []Record
	)
	for opt.MaxRows <= 0 || len(objs) < opt.MaxRows {
		rec, err := d.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var le *LineError
			if !errors.As(err, &le) {
				return nil, st, err
			}
			st.Skipped++
			if st.FirstBad == 0 {
				st.FirstBad = rec.Line
			}
			continue
		}
		for _, k := range rec.Keys {
			if _, ok := index[k]; !ok {
				index[k] = len(columns)
				columns = append(columns, k)
			}
		}
		objs = append(objs, rec)
	}

	rows := make([]dataset.Row, len(objs))
	for i, rec := range objs {
		row := make(dataset.Row, len(columns))
		for k, v := range rec.Values {
			row[index[k]] = flatten(v)
		}
		rows[i] = row
	}
	st.Rows = len(rows)
	return &dataset.Dataset{Columns: columns, Rows: rows}, st, nil
}

// flatten keeps scalars and renders nested values as compact JSON text.
func flatten(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return v
	}
}
