package builtin

import (
	"strings"

	"ingest/internal/dataset"
	"ingest/internal/schema"
)

// mojibakeNBSP is a UTF-8 no-break space decoded as Latin-1 and re-encoded.
const mojibakeNBSP = "Â "

// Clean trims string cells and repairs the mis-decoded no-break space.
// Non-string cells pass through untouched.
type Clean struct{}

// Apply implements transformer.Transformer.
func (Clean) Apply(in *dataset.Dataset) (*dataset.Dataset, error) {
	out := in.Clone()
	for _, r := range out.Rows {
		for i, v := range r {
			if s, ok := v.(string); ok {
				r[i] = strings.TrimSpace(strings.ReplaceAll(s, mojibakeNBSP, " "))
			}
		}
	}
	return out, nil
}

// RenameColumns normalizes every header. Headers that collide after
// normalization fail the step with a *schema.CollisionError.
type RenameColumns struct{}

// Apply implements transformer.Transformer.
func (RenameColumns) Apply(in *dataset.Dataset) (*dataset.Dataset, error) {
	names, err := schema.NormalizeNames(in.Columns)
	if err != nil {
		return nil, err
	}
	return in.WithColumns(names), nil
}
