// Package parquet writes canonical datasets as parquet parts and reads part
// footers back as storage schemas for the reconciler.
package parquet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	parquetgo "github.com/parquet-go/parquet-go"

	"ingest/internal/dataset"
	"ingest/internal/datasource"
	"ingest/internal/lattice"
	"ingest/internal/schema"
)

// columnsKey holds the dataset's column order in file metadata. Parquet
// groups sort their fields by name, so the order is otherwise lost.
const columnsKey = "ingest.columns"

// DefaultRowsPerFile caps one part when Writer.RowsPerFile is zero.
const DefaultRowsPerFile = 250_000

// NodeFor returns the optional parquet node storing semantic type t.
// Datetimes are UTC milliseconds.
func NodeFor(t schema.Type) parquetgo.Node {
	switch t {
	case schema.Int:
		return parquetgo.Optional(parquetgo.Int(64))
	case schema.Float:
		return parquetgo.Optional(parquetgo.Leaf(parquetgo.DoubleType))
	case schema.Datetime:
		return parquetgo.Optional(parquetgo.Timestamp(parquetgo.Millisecond))
	default:
		return parquetgo.Optional(parquetgo.String())
	}
}

// SchemaFor builds the parquet schema of sch.
func SchemaFor(sch schema.Schema) *parquetgo.Schema {
	group := make(parquetgo.Group, sch.Len())
	for _, c := range sch.Columns() {
		group[c.Name] = NodeFor(c.Type)
	}
	return parquetgo.NewSchema("ingest", group)
}

// Encode writes rows of ds as one parquet file typed by sch. Cells that do
// not fit their column type are written as null.
func Encode(w io.Writer, ds *dataset.Dataset, rows []dataset.Row, sch schema.Schema) error {
	ps := SchemaFor(sch)
	order, err := json.Marshal(sch.Names())
	if err != nil {
		return err
	}

	type slot struct {
		src int
		dst int
		typ schema.Type
	}
	cols := sch.Columns()
	slots := make([]slot, 0, len(cols))
	for _, c := range cols {
		leaf, ok := ps.Lookup(c.Name)
		if !ok {
			return fmt.Errorf("parquet: column %q missing from schema", c.Name)
		}
		src := ds.Index(c.Name)
		if src < 0 {
			return fmt.Errorf("parquet: dataset has no column %q", c.Name)
		}
		slots = append(slots, slot{src: src, dst: leaf.ColumnIndex, typ: c.Type})
	}

	pw := parquetgo.NewWriter(w, ps, parquetgo.KeyValueMetadata(columnsKey, string(order)))
	buf := make([]parquetgo.Row, 0, len(rows))
	for _, r := range rows {
		row := make(parquetgo.Row, len(slots))
		for _, s := range slots {
			row[s.dst] = value(r[s.src], s.typ).Level(0, defLevel(r[s.src], s.typ), s.dst)
		}
		buf = append(buf, row)
	}
	if len(buf) > 0 {
		if _, err := pw.WriteRows(buf); err != nil {
			_ = pw.Close()
			return fmt.Errorf("parquet: write rows: %w", err)
		}
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("parquet: close writer: %w", err)
	}
	return nil
}

func coerce(v any, t schema.Type) (any, bool) {
	if lattice.IsMissing(v) {
		return nil, false
	}
	c, err := lattice.Coerce(v, t)
	if err != nil {
		return nil, false
	}
	return c, true
}

func defLevel(v any, t schema.Type) int {
	if _, ok := coerce(v, t); ok {
		return 1
	}
	return 0
}

func value(v any, t schema.Type) parquetgo.Value {
	c, ok := coerce(v, t)
	if !ok {
		return parquetgo.NullValue()
	}
	switch x := c.(type) {
	case int64:
		return parquetgo.Int64Value(x)
	case float64:
		return parquetgo.DoubleValue(x)
	case time.Time:
		return parquetgo.Int64Value(x.UTC().UnixMilli())
	default:
		return parquetgo.ByteArrayValue([]byte(lattice.Text(c)))
	}
}

// Writer splits a dataset into parts under a key prefix.
type Writer struct {
	Store datasource.ObjectStore
	// RowsPerFile caps each part; zero means DefaultRowsPerFile.
	RowsPerFile int
	// NewName names a part; nil means "part-<uuid>.parquet".
	NewName func() string
}

// Write stores ds typed by sch and returns the part keys in write order. An
// empty dataset still produces one part so its schema can be read back.
func (w Writer) Write(ctx context.Context, prefix string, ds *dataset.Dataset, sch schema.Schema) ([]string, error) {
	per := w.RowsPerFile
	if per <= 0 {
		per = DefaultRowsPerFile
	}
	name := w.NewName
	if name == nil {
		name = func() string { return "part-" + uuid.NewString() + ".parquet" }
	}

	rows := ds.Rows
	var keys []string
	for first := true; first || len(rows) > 0; first = false {
		if err := ctx.Err(); err != nil {
			return keys, err
		}
		n := min(per, len(rows))
		key := path.Join(prefix, name())
		if err := w.writePart(ctx, key, ds, rows[:n], sch); err != nil {
			return keys, err
		}
		keys = append(keys, key)
		rows = rows[n:]
	}
	return keys, nil
}

func (w Writer) writePart(ctx context.Context, key string, ds *dataset.Dataset, rows []dataset.Row, sch schema.Schema) error {
	out, err := w.Store.Create(ctx, key)
	if err != nil {
		return fmt.Errorf("parquet: create %s: %w", key, err)
	}
	if err := Encode(out, ds, rows, sch); err != nil {
		datasource.Abandon(out)
		return fmt.Errorf("parquet: %s: %w", key, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("parquet: commit %s: %w", key, err)
	}
	return nil
}
