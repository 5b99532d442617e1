// Package transformer defines the dataset-to-dataset step interface and an
// ordered Chain of steps. Steps must not mutate their input; each returns a
// new Dataset.
package transformer

import (
	"fmt"

	"ingest/internal/dataset"
)

// Transformer is one stage over a materialized dataset.
type Transformer interface {
	Apply(ds *dataset.Dataset) (*dataset.Dataset, error)
}

// Func adapts a plain function to Transformer.
type Func func(ds *dataset.Dataset) (*dataset.Dataset, error)

// Apply calls f.
func (f Func) Apply(ds *dataset.Dataset) (*dataset.Dataset, error) { return f(ds) }

// Chain is an ordered list of transformers.
type Chain []Transformer

// Apply runs each step in order and stops at the first error.
func (c Chain) Apply(in *dataset.Dataset) (*dataset.Dataset, error) {
	out := in
	for i, t := range c {
		next, err := t.Apply(out)
		if err != nil {
			return nil, fmt.Errorf("transformer: step %d (%T): %w", i, t, err)
		}
		out = next
	}
	return out, nil
}
