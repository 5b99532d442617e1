package builtin

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"ingest/internal/dataset"
	"ingest/internal/infer"
	"ingest/internal/lattice"
	"ingest/internal/logging"
	"ingest/internal/report"
	"ingest/internal/schema"
	"ingest/internal/transformer"
)

// Mode decides what happens to a row with an unrepresentable cell.
type Mode string

const (
	// DropInvalid removes any row with a missing or invalid cell.
	DropInvalid Mode = "drop_invalid"
	// KeepNulls nulls invalid cells and keeps the row.
	KeepNulls Mode = "keep_nulls"
)

// ParseMode accepts the mode tag; empty means KeepNulls.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return KeepNulls, nil
	case DropInvalid, KeepNulls:
		return m, nil
	default:
		return "", fmt.Errorf("normalize: unknown mode %q", s)
	}
}

// MissingPolicy decides what KeepNulls does with an already-missing cell.
type MissingPolicy string

const (
	// NullCell keeps the row with the cell null.
	NullCell MissingPolicy = "null_cell"
	// DropRow treats a missing cell as grounds for removing the row.
	DropRow MissingPolicy = "drop_row"
)

// ParseMissingPolicy accepts the policy tag; empty means NullCell.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch p := MissingPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return NullCell, nil
	case NullCell, DropRow:
		return p, nil
	default:
		return "", fmt.Errorf("normalize: unknown missing-value policy %q", s)
	}
}

// DefaultPreviewRows is the size of the preview attached to a result.
const DefaultPreviewRows = 5

// NormalizationResult is the canonical dataset plus the bookkeeping a caller
// needs to judge it.
type NormalizationResult struct {
	Dataset      *dataset.Dataset       `json:"-"`
	Schema       schema.Schema          `json:"schema"`
	OriginalRows int                    `json:"original_rows"`
	ResultRows   int                    `json:"result_rows"`
	RemovedRows  int                    `json:"removed_rows"`
	NulledCells  int                    `json:"nulled_cells"`
	Preview      [][]any                `json:"preview"`
	Votes        map[string]infer.Votes `json:"votes"`
	Status       report.Status          `json:"status"`
	Reason       string                 `json:"reason"`
	Warnings     []string               `json:"warnings,omitempty"`
}

// Normalizer turns an arbitrary dataset into the canonical typed form. The
// zero value is KeepNulls, NullCell, majority inference, a five-row preview.
type Normalizer struct {
	Mode        Mode
	Missing     MissingPolicy
	Inferrer    infer.Inferrer
	PreviewRows int
	Logger      *slog.Logger
}

// Normalize cleans cells, normalizes headers, infers a schema from the data
// and admits each row under it. The input is not modified.
func (n Normalizer) Normalize(ds *dataset.Dataset) (NormalizationResult, error) {
	mode := n.Mode
	if mode == "" {
		mode = KeepNulls
	}
	missing := n.Missing
	if missing == "" {
		missing = NullCell
	}
	preview := n.PreviewRows
	if preview <= 0 {
		preview = DefaultPreviewRows
	}
	log := n.Logger
	if log == nil {
		log = logging.Discard()
	}

	res := NormalizationResult{OriginalRows: ds.Len(), Votes: map[string]infer.Votes{}}

	work, err := transformer.Chain{Clean{}, RenameColumns{}}.Apply(ds)
	if err != nil {
		return res, err
	}
	sch, inferred, err := n.Inferrer.InferColumns(work)
	if err != nil {
		return res, err
	}
	res.Schema = sch
	for name, r := range inferred {
		res.Votes[name] = r.Votes
	}
	types := make([]schema.Type, len(work.Columns))
	for i, c := range sch.Columns() {
		types[i] = c.Type
	}

	out := &dataset.Dataset{Columns: work.Columns, Rows: make([]dataset.Row, 0, work.Len())}
	for _, row := range work.Rows {
		cells := make(dataset.Row, len(row))
		nulled := 0
		admit := true
		for ci, raw := range row {
			if lattice.IsMissing(raw) {
				if mode == DropInvalid || missing == DropRow {
					admit = false
					break
				}
				continue
			}
			v, cerr := lattice.Coerce(raw, types[ci])
			if cerr != nil {
				if mode == DropInvalid {
					admit = false
					break
				}
				nulled++
				continue
			}
			cells[ci] = v
		}
		if !admit {
			res.RemovedRows++
			continue
		}
		res.NulledCells += nulled
		out.Rows = append(out.Rows, cells)
	}

	res.Dataset = out
	res.ResultRows = out.Len()
	res.Preview = out.Head(preview)

	switch {
	case res.OriginalRows == 0:
		res.Status = report.Failed
		res.Reason = "no rows"
	case res.ResultRows == 0:
		res.Status = report.Warning
		res.Reason = fmt.Sprintf("all %d rows removed in %s mode", res.OriginalRows, mode)
	default:
		res.Status = report.Success
		res.Reason = fmt.Sprintf("%d of %d rows kept", res.ResultRows, res.OriginalRows)
		if res.RemovedRows > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%d rows removed", res.RemovedRows))
		}
		if res.NulledCells > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%d invalid cells set to null", res.NulledCells))
		}
	}

	log.Debug("normalized dataset",
		"mode", string(mode),
		"missing", string(missing),
		"rows_in", res.OriginalRows,
		"rows_out", res.ResultRows,
		"nulled", res.NulledCells,
		"schema", sch.String(),
	)
	return res, nil
}

// WriteCSV renders the canonical delimited artifact of res.
func WriteCSV(w io.Writer, res NormalizationResult) error {
	if res.Dataset == nil {
		return fmt.Errorf("normalize: result has no dataset")
	}
	return res.Dataset.WriteCSV(w, ',')
}
