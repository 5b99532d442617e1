package parquet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	parquetgo "github.com/parquet-go/parquet-go"

	"ingest/internal/datasource"
	"ingest/internal/reconcile"
)

// DefaultMaxSchemaFiles bounds how many parts ReadSchemas opens per table.
const DefaultMaxSchemaFiles = 10

// maxFooterFile bounds the bytes read for one part.
const maxFooterFile = 1 << 30

// ReadSchema reads the footer of one parquet file. Failures are recorded on
// the returned schema.
func ReadSchema(source string, r io.ReaderAt, size int64) reconcile.Schema {
	out := reconcile.Schema{Source: source}
	f, err := parquetgo.OpenFile(r, size)
	if err != nil {
		out.Err = fmt.Errorf("parquet: open %s: %w", source, err)
		return out
	}
	fields := f.Schema().Fields()
	byName := make(map[string]parquetgo.Field, len(fields))
	for _, fld := range fields {
		byName[fld.Name()] = fld
	}

	var order []string
	if raw, ok := f.Lookup(columnsKey); ok {
		_ = json.Unmarshal([]byte(raw), &order)
	}
	seen := make(map[string]bool, len(fields))
	for _, name := range order {
		if fld, ok := byName[name]; ok && !seen[name] {
			seen[name] = true
			out.Columns = append(out.Columns, reconcile.Column{Name: name, Type: nodeType(fld)})
		}
	}
	for _, fld := range fields {
		if !seen[fld.Name()] {
			out.Columns = append(out.Columns, reconcile.Column{Name: fld.Name(), Type: nodeType(fld)})
		}
	}
	return out
}

// ReadSchemas lists the parts under prefix and reads up to limit footers
// (DefaultMaxSchemaFiles when limit <= 0). Only a failed listing is returned
// as an error.
func ReadSchemas(ctx context.Context, store datasource.ObjectStore, prefix string, limit int) ([]reconcile.Schema, error) {
	if limit <= 0 {
		limit = DefaultMaxSchemaFiles
	}
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("parquet: list %s: %w", prefix, err)
	}
	var out []reconcile.Schema
	for _, k := range keys {
		if !strings.HasSuffix(k, ".parquet") {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, ReadKeySchema(ctx, store, k))
	}
	return out, nil
}

// ReadKeySchema reads the footer of the part stored under key.
func ReadKeySchema(ctx context.Context, store datasource.Reader, key string) reconcile.Schema {
	b, err := datasource.ReadAll(ctx, store, key, maxFooterFile)
	if err != nil {
		return reconcile.Schema{Source: key, Err: err}
	}
	return ReadSchema(key, bytes.NewReader(b), int64(len(b)))
}

func nodeType(n parquetgo.Node) reconcile.Type {
	if n.Repeated() {
		return reconcile.ArrayOf(baseType(n))
	}
	return baseType(n)
}

func baseType(n parquetgo.Node) reconcile.Type {
	if n.Leaf() {
		return leafType(n.Type())
	}
	fields := n.Fields()
	if lt := n.Type().LogicalType(); lt != nil && len(fields) == 1 {
		inner := fields[0]
		switch {
		case lt.List != nil:
			if !inner.Leaf() && len(inner.Fields()) == 1 {
				return reconcile.ArrayOf(nodeType(inner.Fields()[0]))
			}
			return reconcile.ArrayOf(baseType(inner))
		case lt.Map != nil && !inner.Leaf() && len(inner.Fields()) == 2:
			kv := inner.Fields()
			return reconcile.MapOf(nodeType(kv[0]), nodeType(kv[1]))
		}
	}
	out := make([]reconcile.Field, len(fields))
	for i, f := range fields {
		out[i] = reconcile.Field{Name: f.Name(), Type: nodeType(f)}
	}
	return reconcile.StructOf(out...)
}

func leafType(t parquetgo.Type) reconcile.Type {
	if lt := t.LogicalType(); lt != nil {
		switch {
		case lt.UTF8 != nil, lt.Enum != nil, lt.Json != nil, lt.UUID != nil, lt.Time != nil:
			return reconcile.Leaf(reconcile.String)
		case lt.Decimal != nil:
			return reconcile.DecimalOf(int(lt.Decimal.Precision), int(lt.Decimal.Scale))
		case lt.Date != nil:
			return reconcile.Leaf(reconcile.Date)
		case lt.Timestamp != nil:
			return reconcile.Leaf(reconcile.Timestamp)
		case lt.Integer != nil:
			switch lt.Integer.BitWidth {
			case 8:
				return reconcile.Leaf(reconcile.TinyInt)
			case 16:
				return reconcile.Leaf(reconcile.SmallInt)
			case 32:
				return reconcile.Leaf(reconcile.Int)
			default:
				return reconcile.Leaf(reconcile.BigInt)
			}
		}
	}
	switch t.Kind() {
	case parquetgo.Boolean:
		return reconcile.Leaf(reconcile.Boolean)
	case parquetgo.Int32:
		return reconcile.Leaf(reconcile.Int)
	case parquetgo.Int64:
		return reconcile.Leaf(reconcile.BigInt)
	case parquetgo.Int96:
		return reconcile.Leaf(reconcile.Timestamp)
	case parquetgo.Float:
		return reconcile.Leaf(reconcile.Float)
	case parquetgo.Double:
		return reconcile.Leaf(reconcile.Double)
	default:
		return reconcile.Leaf(reconcile.Binary)
	}
}
