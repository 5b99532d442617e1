// Package schema holds the semantic column model shared by the inferrer,
// validator, normalizer and reconciler.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Type is a semantic column type. The set is closed; anything the engine
// cannot place degrades to String.
type Type string

const (
	Int      Type = "int"
	Float    Type = "float"
	Datetime Type = "datetime"
	String   Type = "string"
)

// Types lists the semantic types in inference priority order.
var Types = []Type{Datetime, Int, Float, String}

// ParseType maps a caller-declared type name, including common storage
// synonyms, onto the canonical vocabulary. Unknown names become String.
func ParseType(decl string) Type {
	switch strings.ToLower(strings.TrimSpace(decl)) {
	case "int", "integer", "bigint", "smallint", "tinyint", "long", "int64", "int32":
		return Int
	case "float", "double", "decimal", "numeric", "real", "number", "float64":
		return Float
	case "datetime", "timestamp", "timestamptz", "date", "time":
		return Datetime
	default:
		return String
	}
}

// Numeric reports whether t is int or float.
func (t Type) Numeric() bool { return t == Int || t == Float }

// Column pairs a normalized column name with its semantic type.
type Column struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Schema is an ordered name→type mapping. Order is first-seen column order.
type Schema struct {
	cols  []Column
	index map[string]int
}

// New builds a Schema from cols, rejecting duplicate names.
func New(cols ...Column) (Schema, error) {
	var s Schema
	for _, c := range cols {
		if err := s.Add(c.Name, c.Type); err != nil {
			return Schema{}, err
		}
	}
	return s, nil
}

// MustNew is New for literals in tests and tables.
func MustNew(cols ...Column) Schema {
	s, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return s
}

// Add appends a column. A name already present is an error.
func (s *Schema) Add(name string, t Type) error {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, dup := s.index[name]; dup {
		return fmt.Errorf("schema: duplicate column %q", name)
	}
	s.index[name] = len(s.cols)
	s.cols = append(s.cols, Column{Name: name, Type: t})
	return nil
}

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.cols) }

// Columns returns a copy of the ordered columns.
func (s Schema) Columns() []Column {
	out := make([]Column, len(s.cols))
	copy(out, s.cols)
	return out
}

// Names returns column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s.cols))
	for i, c := range s.cols {
		out[i] = c.Name
	}
	return out
}

// Lookup returns the type of name.
func (s Schema) Lookup(name string) (Type, bool) {
	i, ok := s.index[name]
	if !ok {
		return "", false
	}
	return s.cols[i].Type, true
}

// Equal reports whether both schemas have the same columns in the same order.
func (s Schema) Equal(o Schema) bool {
	if len(s.cols) != len(o.cols) {
		return false
	}
	for i := range s.cols {
		if s.cols[i] != o.cols[i] {
			return false
		}
	}
	return true
}

// Map returns the schema as a plain map, dropping order.
func (s Schema) Map() map[string]Type {
	out := make(map[string]Type, len(s.cols))
	for _, c := range s.cols {
		out[c.Name] = c.Type
	}
	return out
}

// MarshalJSON renders the schema as an ordered list of {name,type} pairs.
func (s Schema) MarshalJSON() ([]byte, error) {
	if s.cols == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.cols)
}

// UnmarshalJSON accepts either the ordered list form or a plain object of
// name→declared type. Object keys keep their document order.
func (s *Schema) UnmarshalJSON(b []byte) error {
	var list []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	*s = Schema{}
	if err := json.Unmarshal(b, &list); err == nil {
		for _, c := range list {
			if err := s.Add(c.Name, ParseType(c.Type)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := s.addObject(b); err != nil {
		*s = Schema{}
		return fmt.Errorf("schema: expected list of {name,type} or object: %w", err)
	}
	return nil
}

// addObject walks a {"name":"type",...} object token by token so columns
// are added in document order.
func (s *Schema) addObject(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("not a JSON object")
	}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		var decl string
		if err := dec.Decode(&decl); err != nil {
			return err
		}
		if err := s.Add(kt.(string), ParseType(decl)); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data after object")
	}
	return nil
}

func (s Schema) String() string {
	parts := make([]string, len(s.cols))
	for i, c := range s.cols {
		parts[i] = c.Name + ":" + string(c.Type)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
