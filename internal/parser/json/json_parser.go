// Package json turns newline-delimited JSON objects into a dataset.Dataset.
//
//	{"id":1,"name":"a"}
//	{"id":2,"name":"b","extra":true}
//
// Columns are the union of object keys in first-seen order. Keys absent
// from an object become nil cells. Nested arrays and objects are kept as
// their compact JSON text; numbers stay json.Number so no precision is lost
// before inference.
package json

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Options configures the decoder.
type Options struct {
	// MaxRows stops after this many objects. Zero means no limit.
	MaxRows int

	// MaxLineBytes bounds a single line. Zero means 16 MiB.
	MaxLineBytes int
}

// Stats reports decoded and skipped lines.
type Stats struct {
	Rows    int `json:"rows"`
	Skipped int `json:"skipped"`
	// FirstBad is the 1-based line number of the first skipped line.
	FirstBad int `json:"first_bad,omitempty"`
}

// Decoder reads one JSON object per physical line.
type Decoder struct {
	sc   *bufio.Scanner
	line int
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader, opt Options) *Decoder {
	max := opt.MaxLineBytes
	if max <= 0 {
		max = 16 << 20
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), max)
	return &Decoder{sc: sc}
}

// LineError reports a line that is not a JSON object. Decoding can continue
// past it.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("json parser: line %d: %v", e.Line, e.Err) }

func (e *LineError) Unwrap() error { return e.Err }

// Record is one decoded line.
type Record struct {
	Line   int
	Keys   []string // document order
	Values map[string]any
}

// Next returns the next object. Blank lines are skipped silently; a line
// that is not a JSON object returns an error naming the line, and decoding
// may continue with the next call.
func (d *Decoder) Next() (Record, error) {
	for d.sc.Scan() {
		d.line++
		b := bytes.TrimSpace(d.sc.Bytes())
		if len(b) == 0 {
			continue
		}
		obj, err := DecodeObject(b)
		if err != nil {
			return Record{Line: d.line}, &LineError{Line: d.line, Err: err}
		}
		keys, err := KeysInOrder(b)
		if err != nil {
			keys = sortedKeys(obj)
		}
		return Record{Line: d.line, Keys: keys, Values: obj}, nil
	}
	if err := d.sc.Err(); err != nil {
		return Record{Line: d.line}, fmt.Errorf("json parser: scan: %w", err)
	}
	return Record{Line: d.line}, io.EOF
}

// DecodeObject decodes b as exactly one JSON object.
func DecodeObject(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("not a JSON object")
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after object")
	}
	return obj, nil
}

// KeysInOrder returns the object keys of a single JSON object in document
// order. encoding/json maps drop order, so this walks tokens.
func KeysInOrder(b []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("not a JSON object")
	}
	var keys []string
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return nil, err
		}
		k, _ := kt.(string)
		keys = append(keys, k)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// sortedKeys is the fallback ordering when token order is unavailable.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
