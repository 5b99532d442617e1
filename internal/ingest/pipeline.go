// Package ingest runs files through the engine and lands the results in the
// object store.
//
// One file goes through these steps, each recorded as a metric:
//
//	archive    raw bytes to raw/<ext>/<date>/<name>
//	classify   probe.Classify on the decompressed content
//	convert    semi-tabular input to CSV or NDJSON
//	parse      parser.Parse into a dataset
//	validate   only when a declared schema is supplied
//	normalize  clean, infer, admit rows
//	write      canonical CSV plus parquet parts under the table prefix
//
// A failing step stops that file only; the report says which step and why.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"ingest/internal/config"
	"ingest/internal/convert"
	"ingest/internal/dataset"
	"ingest/internal/datasource"
	"ingest/internal/infer"
	"ingest/internal/logging"
	"ingest/internal/metrics"
	"ingest/internal/parser"
	"ingest/internal/probe"
	"ingest/internal/report"
	"ingest/internal/schema"
	"ingest/internal/storage/parquet"
	"ingest/internal/transformer/builtin"
)

// Step names used in metrics and reports.
const (
	StepArchive   = "archive"
	StepClassify  = "classify"
	StepConvert   = "convert"
	StepParse     = "parse"
	StepValidate  = "validate"
	StepNormalize = "normalize"
	StepWrite     = "write"
	StepReconcile = "reconcile"
	StepLoad      = "load"
)

// Input is one file handed to the pipeline.
type Input struct {
	Name    string
	Content []byte

	// Domain and Dataset override the parts parsed from Name.
	Domain  string
	Dataset string
	// Declared, when set, turns on validation against it.
	Declared *schema.Schema
}

// FileReport is the outcome of one file.
type FileReport struct {
	Name        string `json:"name"`
	Fingerprint string `json:"fingerprint"`
	// DuplicateOf names an earlier file of the batch with identical bytes.
	DuplicateOf string `json:"duplicate_of,omitempty"`
	Table       string `json:"table,omitempty"`

	Classification probe.Result                 `json:"classification"`
	Parse          parser.Stats                 `json:"parse"`
	Validation     *builtin.ValidationReport    `json:"validation,omitempty"`
	Normalization  *builtin.NormalizationResult `json:"normalization,omitempty"`
	Schema         schema.Schema                `json:"schema"`

	RawKey   string   `json:"raw_key,omitempty"`
	CSVKey   string   `json:"csv_key,omitempty"`
	Parts    []string `json:"parts,omitempty"`
	FailedAt string   `json:"failed_at,omitempty"`

	Status report.Status `json:"status"`
	Reason string        `json:"reason"`
}

func (r *FileReport) fail(step string, err error) {
	r.FailedAt = step
	r.Status = report.Failed
	r.Reason = fmt.Sprintf("%s: %v", step, err)
}

// Pipeline holds the collaborators shared by every file of a run.
type Pipeline struct {
	cfg        *config.Config
	store      datasource.ObjectStore
	logger     *slog.Logger
	converter  convert.Converter
	normalizer builtin.Normalizer

	// now and newID are replaced in tests.
	now   func() time.Time
	newID func() string
}

// New builds a pipeline from cfg writing into store. A nil logger uses the
// process default.
func New(cfg *config.Config, store datasource.ObjectStore, logger *slog.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ingest: nil config")
	}
	if store == nil {
		return nil, fmt.Errorf("ingest: nil object store")
	}
	n, err := NormalizerFor(cfg)
	if err != nil {
		return nil, err
	}
	logger = logging.OrDefault(logger)
	n.Logger = logger
	return &Pipeline{
		cfg:        cfg,
		store:      store,
		logger:     logger,
		converter:  convert.Converter{Sheet: cfg.Convert.Sheet},
		normalizer: n,
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}, nil
}

// NormalizerFor resolves the normalizer settings of cfg.
func NormalizerFor(cfg *config.Config) (builtin.Normalizer, error) {
	mode, err := builtin.ParseMode(cfg.Normalize.Mode)
	if err != nil {
		return builtin.Normalizer{}, err
	}
	missing, err := builtin.ParseMissingPolicy(cfg.Normalize.Missing)
	if err != nil {
		return builtin.Normalizer{}, err
	}
	in, err := infer.New(cfg.Inference.Threshold)
	if err != nil {
		return builtin.Normalizer{}, err
	}
	return builtin.Normalizer{
		Mode:        mode,
		Missing:     missing,
		Inferrer:    in,
		PreviewRows: cfg.Normalize.PreviewRows,
	}, nil
}

// ValidatorFor returns a validator for declared with cfg's report limits.
func ValidatorFor(cfg *config.Config, declared schema.Schema) builtin.Validator {
	return builtin.Validator{
		Declared:     declared,
		MaxSamples:   cfg.Validation.MaxSamples,
		MaxIssueRows: cfg.Validation.MaxIssueRows,
	}
}

// ProcessFile runs one file under a fresh run id.
func (p *Pipeline) ProcessFile(ctx context.Context, in Input) FileReport {
	return p.processFile(ctx, p.newID(), in)
}

func (p *Pipeline) processFile(ctx context.Context, runID string, in Input) FileReport {
	job := p.cfg.Runtime.Job
	log := logging.OrDefault(p.logger).With("run_id", runID, "file", in.Name)
	rep := FileReport{
		Name:        in.Name,
		Fingerprint: fmt.Sprintf("%016x", dataset.HashBytes(in.Content)),
		Status:      report.Success,
	}
	defer func() {
		metrics.RecordFile(job, string(rep.Status))
		log.Info("file processed", "status", rep.Status, "table", rep.Table, "reason", rep.Reason)
	}()

	// step runs fn as a timed metric step; a failure ends the file.
	step := func(name string, fn func() error) bool {
		if err := ctx.Err(); err != nil {
			rep.fail(name, err)
			return false
		}
		done := metrics.Timer(job, name)
		err := fn()
		done(err)
		if err != nil {
			log.Debug("step failed", "step", name, "err", err)
			rep.fail(name, err)
			return false
		}
		return true
	}

	if !step(StepArchive, func() error {
		rep.RawKey = RawKey(in.Name, p.now())
		return datasource.WriteAll(ctx, p.store, rep.RawKey, in.Content)
	}) {
		return rep
	}

	var content []byte
	if !step(StepClassify, func() error {
		b, err := convert.ReadAll(in.Name, bytes.NewReader(in.Content), p.cfg.Convert.MaxInputBytes)
		if err != nil {
			return err
		}
		content = b
		rep.Classification = probe.Classify(content, in.Name)
		if rep.Classification.Status == report.Failed {
			return fmt.Errorf("%s", rep.Classification.Reason)
		}
		return nil
	}) {
		return rep
	}

	cls := rep.Classification
	rep.Table = p.tableFor(in, cls)
	if rep.Table == "" {
		rep.fail(StepClassify, fmt.Errorf("cannot name table for %q: domain and dataset are required", in.Name))
		return rep
	}
	for _, w := range cls.Warnings {
		log.Warn("classification warning", "warning", w)
	}

	var out convert.Output
	if !step(StepConvert, func() (err error) {
		out, err = p.converter.Convert(cls, content)
		return err
	}) {
		return rep
	}

	var ds *dataset.Dataset
	if !step(StepParse, func() (err error) {
		ds, rep.Parse, err = parser.Parse(out.Format, bytes.NewReader(out.Body), parser.Options{Delimiter: ','})
		return err
	}) {
		return rep
	}
	metrics.RecordRows(job, "parsed", int64(rep.Parse.Rows))
	metrics.RecordRows(job, "parse_skipped", int64(rep.Parse.Skipped))

	if in.Declared != nil {
		if !step(StepValidate, func() error {
			vr := ValidatorFor(p.cfg, *in.Declared).Validate(ds)
			rep.Validation = &vr
			return nil
		}) {
			return rep
		}
	}

	var norm builtin.NormalizationResult
	if !step(StepNormalize, func() (err error) {
		norm, err = p.normalizer.Normalize(ds)
		if err != nil {
			return err
		}
		if norm.Status == report.Failed {
			return fmt.Errorf("%s", norm.Reason)
		}
		return nil
	}) {
		if norm.Status != "" {
			rep.Normalization = &norm
		}
		return rep
	}
	rep.Normalization = &norm
	rep.Schema = norm.Schema
	metrics.RecordRows(job, "normalized", int64(norm.ResultRows))
	metrics.RecordRows(job, "removed", int64(norm.RemovedRows))

	prefix := RunPrefix(rep.Table, runID, in.Name)
	if !step(StepWrite, func() error {
		var buf bytes.Buffer
		if err := builtin.WriteCSV(&buf, norm); err != nil {
			return err
		}
		rep.CSVKey = path.Join("canonical", prefix+".csv")
		if err := datasource.WriteAll(ctx, p.store, rep.CSVKey, buf.Bytes()); err != nil {
			return err
		}
		w := parquet.Writer{Store: p.store, RowsPerFile: p.cfg.Output.RowsPerFile}
		keys, err := w.Write(ctx, prefix, norm.Dataset, norm.Schema)
		rep.Parts = keys
		return err
	}) {
		return rep
	}

	rep.Status = report.Worst(cls.Status, norm.Status)
	if rep.Validation != nil {
		rep.Status = report.Worst(rep.Status, rep.Validation.Status)
	}
	rep.Reason = norm.Reason
	if rep.Status != report.Success && rep.Validation != nil && rep.Validation.Status != report.Success {
		rep.Reason = rep.Validation.Reason
	}
	return rep
}

// tableFor prefers explicit overrides and falls back to the file name.
func (p *Pipeline) tableFor(in Input, cls probe.Result) string {
	domain, ds := in.Domain, in.Dataset
	if domain == "" && cls.Domain != nil {
		domain = *cls.Domain
	}
	if ds == "" && cls.Dataset != nil {
		ds = *cls.Dataset
	}
	return TableName(domain, ds, p.cfg.Runtime.Env)
}
