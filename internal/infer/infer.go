// Package infer picks a semantic type for a column by majority vote over
// the type lattice.
//
// Types are tested in a fixed priority order (datetime, then numeric, then
// string) and the first whose vote ratio reaches the threshold wins. Vote
// counts are never compared against each other.
package infer

import (
	"fmt"

	"ingest/internal/dataset"
	"ingest/internal/lattice"
	"ingest/internal/schema"
)

const (
	// DefaultThreshold is the plain-majority ratio.
	DefaultThreshold = 0.5
	// StrictThreshold requires every non-missing value to agree.
	StrictThreshold = 1.0
)

// Votes records how many non-missing values could represent each type.
type Votes struct {
	Total    int `json:"total"`
	Missing  int `json:"missing"`
	Datetime int `json:"datetime"`
	Int      int `json:"int"`
	Float    int `json:"float"`
}

// Result is the inferred type plus the votes that produced it.
type Result struct {
	Type  schema.Type `json:"type"`
	Votes Votes       `json:"votes"`
}

// Inferrer is a pure function of its threshold. The zero value uses
// DefaultThreshold.
type Inferrer struct {
	Threshold float64
}

// New returns an Inferrer with the given threshold, which must lie in (0,1].
func New(threshold float64) (Inferrer, error) {
	if !(threshold > 0 && threshold <= 1) {
		return Inferrer{}, fmt.Errorf("infer: threshold %v outside (0,1]", threshold)
	}
	return Inferrer{Threshold: threshold}, nil
}

// Strict returns the all-values-agree variant.
func Strict() Inferrer { return Inferrer{Threshold: StrictThreshold} }

func (in Inferrer) threshold() float64 {
	if in.Threshold <= 0 || in.Threshold > 1 {
		return DefaultThreshold
	}
	return in.Threshold
}

// Infer returns the best-fit type for one column's raw values.
func (in Inferrer) Infer(values []any) Result {
	var v Votes
	allFloatsAreInts := true
	for _, raw := range values {
		if lattice.IsMissing(raw) {
			v.Missing++
			continue
		}
		v.Total++
		if !lattice.TypedNumber(raw) && lattice.CanRepresent(raw, schema.Datetime) {
			v.Datetime++
		}
		isFloat := lattice.CanRepresent(raw, schema.Float)
		isInt := !typedFloat(raw) && lattice.CanRepresent(raw, schema.Int)
		if isFloat {
			v.Float++
			if !isInt {
				allFloatsAreInts = false
			}
		}
		if isInt {
			v.Int++
		}
	}
	if v.Total == 0 {
		return Result{Type: schema.String, Votes: v}
	}

	th := in.threshold()
	total := float64(v.Total)
	switch {
	case float64(v.Datetime)/total >= th:
		return Result{Type: schema.Datetime, Votes: v}
	case float64(v.Float)/total >= th:
		if allFloatsAreInts {
			return Result{Type: schema.Int, Votes: v}
		}
		return Result{Type: schema.Float, Votes: v}
	default:
		return Result{Type: schema.String, Votes: v}
	}
}

// typedFloat reports values that already carry a float type. They vote
// float even when integral, so a canonical float column keeps its type.
func typedFloat(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return false
}

// InferColumns runs Infer per column of ds and returns the working schema in
// column order alongside each column's result.
func (in Inferrer) InferColumns(ds *dataset.Dataset) (schema.Schema, map[string]Result, error) {
	var s schema.Schema
	results := make(map[string]Result, len(ds.Columns))
	for i, name := range ds.Columns {
		r := in.Infer(ds.Column(i))
		if err := s.Add(name, r.Type); err != nil {
			return schema.Schema{}, nil, err
		}
		results[name] = r
	}
	return s, results, nil
}
