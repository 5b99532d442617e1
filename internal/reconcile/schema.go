package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonparser "ingest/internal/parser/json"
	"ingest/internal/report"
	"ingest/internal/schema"
)

// ErrNoReadableSchema is returned when every input schema failed to load.
var ErrNoReadableSchema = errors.New("reconcile: no readable schema")

// Column is one named storage column.
type Column struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Schema is one physical file's columns, or the error that kept them from
// being read.
type Schema struct {
	Source  string
	Columns []Column
	Err     error
}

// FromInferred converts an inferred schema to storage columns.
func FromInferred(source string, s schema.Schema) Schema {
	out := Schema{Source: source, Columns: make([]Column, 0, s.Len())}
	for _, c := range s.Columns() {
		out.Columns = append(out.Columns, Column{Name: c.Name, Type: FromSemantic(c.Type)})
	}
	return out
}

// ParseSchemaJSON reads a {"col":"type",...} object, keeping key order, or
// a [{"name":..,"type":..}] list. Failures are recorded on the returned
// Schema rather than returned, so the caller can count them.
func ParseSchemaJSON(source string, b []byte) Schema {
	out := Schema{Source: source}
	trimmed := strings.TrimSpace(string(b))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &out.Columns); err != nil {
			out.Err = fmt.Errorf("reconcile: %s: %w", source, err)
		}
		return out
	}
	keys, err := jsonparser.KeysInOrder([]byte(trimmed))
	if err != nil {
		out.Err = fmt.Errorf("reconcile: %s: %w", source, err)
		return out
	}
	var raw map[string]string
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		out.Err = fmt.Errorf("reconcile: %s: %w", source, err)
		return out
	}
	for _, k := range keys {
		t, err := ParseType(raw[k])
		if err != nil {
			out.Err = fmt.Errorf("reconcile: %s: column %q: %w", source, k, err)
			out.Columns = nil
			return out
		}
		out.Columns = append(out.Columns, Column{Name: k, Type: t})
	}
	return out
}

// ReconciledSchema is the merged schema of one logical table.
type ReconciledSchema struct {
	Columns []Column      `json:"columns"`
	Files   int           `json:"files"`
	Skipped []string      `json:"skipped,omitempty"`
	Status  report.Status `json:"status"`
	Reason  string        `json:"reason"`
}

// Lookup returns the merged type of a column.
func (r ReconciledSchema) Lookup(name string) (Type, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c.Type, true
		}
	}
	return Type{}, false
}

// Map renders the columns as name to catalog type.
func (r ReconciledSchema) Map() map[string]string {
	m := make(map[string]string, len(r.Columns))
	for _, c := range r.Columns {
		m[c.Name] = c.Type.String()
	}
	return m
}

// MergeColumns folds b into a. Columns keep first-seen order; a column that
// only one side has keeps its type.
func MergeColumns(a, b []Column) []Column {
	out := make([]Column, len(a), len(a)+len(b))
	copy(out, a)
	pos := make(map[string]int, len(a))
	for i, c := range out {
		pos[c.Name] = i
	}
	for _, c := range b {
		if i, ok := pos[c.Name]; ok {
			out[i].Type = Merge(out[i].Type, c.Type)
			continue
		}
		pos[c.Name] = len(out)
		out = append(out, c)
	}
	return out
}

// EqualColumns compares column sets by name, ignoring order.
func EqualColumns(a, b []Column) bool {
	if len(a) != len(b) {
		return false
	}
	idx := make(map[string]Type, len(a))
	for _, c := range a {
		idx[c.Name] = c.Type
	}
	for _, c := range b {
		t, ok := idx[c.Name]
		if !ok || !Equal(t, c.Type) {
			return false
		}
	}
	return true
}

// MergeSchemas reconciles every readable input. Unreadable inputs are
// skipped and listed; if none is readable the result is failed and
// ErrNoReadableSchema is returned.
func MergeSchemas(inputs []Schema) (ReconciledSchema, error) {
	var out ReconciledSchema
	for _, in := range inputs {
		if in.Err != nil {
			out.Skipped = append(out.Skipped, in.Source)
			continue
		}
		out.Columns = MergeColumns(out.Columns, in.Columns)
		out.Files++
	}
	switch {
	case out.Files == 0:
		out.Status = report.Failed
		out.Reason = fmt.Sprintf("none of %d schemas could be read", len(inputs))
		return out, ErrNoReadableSchema
	case len(out.Skipped) > 0:
		out.Status = report.Warning
		out.Reason = fmt.Sprintf("merged %d schemas; skipped %d unreadable", out.Files, len(out.Skipped))
	default:
		out.Status = report.Success
		out.Reason = fmt.Sprintf("merged %d schemas", out.Files)
	}
	return out, nil
}
