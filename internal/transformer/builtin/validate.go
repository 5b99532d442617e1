package builtin

import (
	"fmt"
	"strings"

	"ingest/internal/dataset"
	"ingest/internal/lattice"
	"ingest/internal/report"
	"ingest/internal/schema"
)

// Severity is the dataset-level verdict of a validation pass.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

const (
	// DefaultMaxSamples caps recorded invalid values per column.
	DefaultMaxSamples = 3
	// DefaultMaxIssueRows caps the diagnostic row sample.
	DefaultMaxIssueRows = 5
	// warningRatio is the upper bound of the warning band.
	warningRatio = 0.30
)

// SeverityFor maps an issue ratio onto a verdict. The 10% and 30% bands of
// the classic scale share one label.
func SeverityFor(rows, rowsWithIssues int) Severity {
	if rows <= 0 || rowsWithIssues == 0 {
		return SeverityInfo
	}
	if float64(rowsWithIssues)/float64(rows) <= warningRatio {
		return SeverityWarning
	}
	return SeverityError
}

// ColumnReport describes one declared column.
type ColumnReport struct {
	Name          string      `json:"name"`
	Expected      schema.Type `json:"expected_type"`
	Present       bool        `json:"present"`
	NullCount     int         `json:"null_count"`
	InvalidCount  int         `json:"invalid_count"`
	SampleInvalid []string    `json:"sample_invalid"`
}

// IssueRow is a diagnostic copy of a row with at least one issue. Missing
// cells are nil, everything else is rendered as text.
type IssueRow struct {
	Index  int                `json:"index"`
	Values map[string]*string `json:"values"`
}

// ValidationReport is the non-mutating diagnosis of a dataset against a
// declared schema.
type ValidationReport struct {
	Status          report.Status  `json:"status"`
	Reason          string         `json:"reason"`
	RowCount        int            `json:"rows_total"`
	RowsWithIssues  int            `json:"rows_with_issues"`
	IssuesRatio     float64        `json:"issues_ratio"`
	Severity        Severity       `json:"severity"`
	Columns         []ColumnReport `json:"columns"`
	ExtraColumns    []string       `json:"extra_columns,omitempty"`
	MissingColumns  []string       `json:"missing_columns,omitempty"`
	Warnings        []string       `json:"warnings,omitempty"`
	SampleIssueRows []IssueRow     `json:"sample_issue_rows,omitempty"`
}

// Column returns the report for name, if declared.
func (r ValidationReport) Column(name string) (ColumnReport, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnReport{}, false
}

// Validator checks a dataset against a caller-declared schema. It never
// blocks and never mutates: the verdict is for the caller to act on.
type Validator struct {
	Declared     schema.Schema
	MaxSamples   int
	MaxIssueRows int
}

// Validate builds the report. Declared and dataset column names are compared
// after normalization.
func (v Validator) Validate(ds *dataset.Dataset) ValidationReport {
	maxSamples := v.MaxSamples
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	maxIssueRows := v.MaxIssueRows
	if maxIssueRows <= 0 {
		maxIssueRows = DefaultMaxIssueRows
	}

	rows := ds.Len()
	rep := ValidationReport{RowCount: rows}

	// First occurrence wins when dataset or declared names collide.
	index := make(map[string]int, len(ds.Columns))
	for i, c := range ds.Columns {
		n := schema.NormalizeColumnName(c)
		if _, dup := index[n]; dup {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("input column %q collides with an earlier column after normalization", c))
			continue
		}
		index[n] = i
	}

	declared := make(map[string]bool, v.Declared.Len())
	issue := make([]bool, rows)
	for _, col := range v.Declared.Columns() {
		name := schema.NormalizeColumnName(col.Name)
		if declared[name] {
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("declared column %q collides with an earlier declared column after normalization", col.Name))
			continue
		}
		declared[name] = true
		cr := ColumnReport{Name: name, Expected: col.Type, SampleInvalid: []string{}}

		ci, ok := index[name]
		if !ok {
			cr.NullCount = rows
			rep.MissingColumns = append(rep.MissingColumns, name)
			for i := range issue {
				issue[i] = true
			}
			rep.Columns = append(rep.Columns, cr)
			continue
		}
		cr.Present = true
		for ri, row := range ds.Rows {
			val := row[ci]
			if lattice.IsMissing(val) {
				cr.NullCount++
				issue[ri] = true
				continue
			}
			if col.Type == schema.String || lattice.CanRepresent(val, col.Type) {
				continue
			}
			cr.InvalidCount++
			issue[ri] = true
			if len(cr.SampleInvalid) < maxSamples {
				cr.SampleInvalid = append(cr.SampleInvalid, lattice.Text(val))
			}
		}
		rep.Columns = append(rep.Columns, cr)
	}

	for _, c := range ds.Columns {
		if n := schema.NormalizeColumnName(c); !declared[n] {
			rep.ExtraColumns = append(rep.ExtraColumns, n)
		}
	}
	if len(rep.ExtraColumns) > 0 {
		rep.Warnings = append(rep.Warnings, "input has columns not in the declared schema: "+strings.Join(rep.ExtraColumns, ", "))
	}
	if len(rep.MissingColumns) > 0 {
		rep.Warnings = append(rep.Warnings, "input is missing declared columns: "+strings.Join(rep.MissingColumns, ", "))
	}

	for ri, bad := range issue {
		if !bad {
			continue
		}
		rep.RowsWithIssues++
		if len(rep.SampleIssueRows) < maxIssueRows {
			rep.SampleIssueRows = append(rep.SampleIssueRows, issueRow(ds, ri))
		}
	}
	if rows > 0 {
		rep.IssuesRatio = float64(rep.RowsWithIssues) / float64(rows)
	}
	rep.Severity = SeverityFor(rows, rep.RowsWithIssues)

	switch {
	case rows == 0:
		rep.Status = report.Failed
		rep.Reason = "no rows"
	case rep.Severity != SeverityInfo || len(rep.Warnings) > 0:
		rep.Status = report.Warning
		rep.Reason = fmt.Sprintf("%d of %d rows have issues", rep.RowsWithIssues, rows)
	default:
		rep.Status = report.Success
		rep.Reason = "all rows conform to the declared schema"
	}
	return rep
}

func issueRow(ds *dataset.Dataset, ri int) IssueRow {
	vals := make(map[string]*string, len(ds.Columns))
	for ci, c := range ds.Columns {
		cell := ds.Rows[ri][ci]
		if lattice.IsMissing(cell) {
			vals[c] = nil
			continue
		}
		s := lattice.Text(cell)
		vals[c] = &s
	}
	return IssueRow{Index: ri, Values: vals}
}
