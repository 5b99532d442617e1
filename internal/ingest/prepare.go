package ingest

import (
	"bytes"
	"fmt"

	"ingest/internal/convert"
	"ingest/internal/dataset"
	"ingest/internal/parser"
	"ingest/internal/probe"
	"ingest/internal/report"
)

// StepError names the step a file stopped at.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return e.Step + ": " + e.Err.Error() }

func (e *StepError) Unwrap() error { return e.Err }

// Prepared is a file read up to a dataset.
type Prepared struct {
	Classification probe.Result     `json:"classification"`
	Parse          parser.Stats     `json:"parse"`
	Dataset        *dataset.Dataset `json:"-"`
}

// Prepare decompresses, classifies, converts and parses raw outside a
// pipeline run: nothing is archived or recorded. Errors are *StepError; the
// classification is filled in whenever that step ran.
func Prepare(name string, raw []byte, conv convert.Converter, limit int64) (Prepared, error) {
	var p Prepared
	content, err := convert.ReadAll(name, bytes.NewReader(raw), limit)
	if err != nil {
		return p, &StepError{Step: StepClassify, Err: err}
	}
	p.Classification = probe.Classify(content, name)
	if p.Classification.Status == report.Failed {
		return p, &StepError{Step: StepClassify, Err: fmt.Errorf("%s", p.Classification.Reason)}
	}
	out, err := conv.Convert(p.Classification, content)
	if err != nil {
		return p, &StepError{Step: StepConvert, Err: err}
	}
	p.Dataset, p.Parse, err = parser.Parse(out.Format, bytes.NewReader(out.Body), parser.Options{Delimiter: ','})
	if err != nil {
		return p, &StepError{Step: StepParse, Err: err}
	}
	return p, nil
}
