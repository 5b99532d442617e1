package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"ingest/internal/dataset"
	"ingest/internal/lattice"
	"ingest/internal/logging"
	"ingest/internal/metrics"
	"ingest/internal/reconcile"
	"ingest/internal/report"
	"ingest/internal/schema"
	"ingest/internal/storage"
	"ingest/internal/storage/parquet"
)

// TableReport is the reconciled outcome of one logical table in a batch.
type TableReport struct {
	Table  string                     `json:"table"`
	Files  []string                   `json:"files"`
	Schema reconcile.ReconciledSchema `json:"schema"`
	DDL    string                     `json:"ddl,omitempty"`
	Loaded int64                      `json:"loaded_rows"`
	Status report.Status              `json:"status"`
	Reason string                     `json:"reason"`
}

// BatchReport is the outcome of a run.
type BatchReport struct {
	RunID    string        `json:"run_id"`
	Files    []FileReport  `json:"files"`
	Tables   []TableReport `json:"tables"`
	Duration time.Duration `json:"duration_ns"`
	Status   report.Status `json:"status"`
}

// Repository seam for tests.
var openRepositoryFn = storage.Open

// Batch processes inputs concurrently, then reconciles and optionally loads
// every table the batch touched. Files with the same bytes as an earlier
// input are reported as duplicates and skipped. Per-file failures are in the
// report; the error is only for a cancelled context.
func (p *Pipeline) Batch(ctx context.Context, inputs []Input) (BatchReport, error) {
	start := p.now()
	runID := p.newID()
	log := logging.OrDefault(p.logger).With("run_id", runID)
	log.Info("batch started", "files", len(inputs), "workers", p.cfg.Runtime.Workers)

	br := BatchReport{RunID: runID, Files: make([]FileReport, len(inputs)), Status: report.Success}

	seen := make(map[uint64]string, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.cfg.Runtime.Workers))
	for i, in := range inputs {
		fp := dataset.HashBytes(in.Content)
		if first, dup := seen[fp]; dup {
			br.Files[i] = FileReport{
				Name:        in.Name,
				Fingerprint: fmt.Sprintf("%016x", fp),
				DuplicateOf: first,
				Status:      report.Warning,
				Reason:      fmt.Sprintf("identical content to %s; skipped", first),
			}
			metrics.RecordFile(p.cfg.Runtime.Job, "duplicate")
			continue
		}
		seen[fp] = in.Name
		g.Go(func() error {
			br.Files[i] = p.processFile(gctx, runID, in)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return br, err
	}

	for _, t := range groupByTable(br.Files) {
		tr := p.reconcileTable(ctx, runID, t.name, t.files)
		br.Tables = append(br.Tables, tr)
	}

	for _, f := range br.Files {
		br.Status = report.Worst(br.Status, f.Status)
	}
	for _, t := range br.Tables {
		br.Status = report.Worst(br.Status, t.Status)
	}
	br.Duration = p.now().Sub(start)
	log.Info("batch finished", "status", br.Status, "tables", len(br.Tables), "duration", br.Duration)
	return br, nil
}

type tableFiles struct {
	name  string
	files []*FileReport
}

// groupByTable collects the files that produced parquet parts, by table name.
func groupByTable(files []FileReport) []tableFiles {
	idx := map[string]int{}
	var out []tableFiles
	for i := range files {
		f := &files[i]
		if f.Table == "" || len(f.Parts) == 0 {
			continue
		}
		j, ok := idx[f.Table]
		if !ok {
			j = len(out)
			idx[f.Table] = j
			out = append(out, tableFiles{name: f.Table})
		}
		out[j].files = append(out[j].files, f)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].name < out[b].name })
	return out
}

// reconcileTable merges the schemas of every file written for table in this
// run and, when a backend is configured, creates and loads the table.
func (p *Pipeline) reconcileTable(ctx context.Context, runID, table string, files []*FileReport) TableReport {
	job := p.cfg.Runtime.Job
	log := logging.OrDefault(p.logger).With("run_id", runID, "table", table)
	tr := TableReport{Table: table, Status: report.Success}
	for _, f := range files {
		tr.Files = append(tr.Files, f.Name)
	}

	done := metrics.Timer(job, StepReconcile)
	var err error
	tr.Schema, err = reconcile.MergeSchemas(p.fileSchemas(ctx, log, files))
	done(err)
	if err != nil {
		tr.Status, tr.Reason = report.Failed, fmt.Sprintf("%s: %v", StepReconcile, err)
		log.Error("reconcile failed", "err", err)
		return tr
	}
	tr.Status, tr.Reason = tr.Schema.Status, tr.Schema.Reason

	if p.cfg.Storage.Backend == "" {
		return tr
	}
	done = metrics.Timer(job, StepLoad)
	n, err := p.materialize(ctx, &tr, files)
	done(err)
	tr.Loaded = n
	metrics.RecordRows(job, "loaded", n)
	if err != nil {
		tr.Status = report.Failed
		tr.Reason = fmt.Sprintf("%s: %v", StepLoad, err)
		log.Error("load failed", "err", err, "loaded", n)
	}
	return tr
}

// fileSchemas returns one schema per file: the footer of its first parquet
// part, which every part of the file shares. A file whose footer cannot be
// read contributes its inferred schema instead.
func (p *Pipeline) fileSchemas(ctx context.Context, log *slog.Logger, files []*FileReport) []reconcile.Schema {
	out := make([]reconcile.Schema, 0, len(files))
	for _, f := range files {
		s := parquet.ReadKeySchema(ctx, p.store, f.Parts[0])
		if s.Err != nil && f.Normalization != nil {
			log.Warn("using inferred schema", "file", f.Name, "err", s.Err)
			s = reconcile.FromInferred(f.Name, f.Normalization.Schema)
		}
		out = append(out, s)
	}
	return out
}

// materialize creates the table for the reconciled schema and loads every
// file's canonical rows, cast to the reconciled column types.
func (p *Pipeline) materialize(ctx context.Context, tr *TableReport, files []*FileReport) (int64, error) {
	sc := p.cfg.Storage
	fqn := tr.Table
	if sc.Schema != "" {
		fqn = sc.Schema + "." + tr.Table
	}
	d := storage.Dialect(sc.Backend)
	ddl, err := storage.CreateTableSQL(d, fqn, tr.Schema.Columns)
	if err != nil {
		return 0, err
	}
	tr.DDL = ddl

	names := make([]string, len(tr.Schema.Columns))
	for i, c := range tr.Schema.Columns {
		names[i] = c.Name
	}
	repo, err := openRepositoryFn(ctx, storage.Config{Kind: sc.Backend, DSN: sc.DSN, Table: fqn, Columns: names})
	if err != nil {
		return 0, err
	}
	defer repo.Close()

	if err := repo.Exec(ctx, ddl); err != nil {
		return 0, fmt.Errorf("create %s: %w", fqn, err)
	}
	var total int64
	nulled := 0
	for _, f := range files {
		if f.Normalization == nil || f.Normalization.Dataset == nil {
			continue
		}
		ds, lost := castTo(f.Normalization.Dataset, tr.Schema)
		nulled += lost
		n, err := storage.Load(ctx, repo, ds, sc.BatchSize)
		total += n
		if err != nil {
			return total, fmt.Errorf("%s: %w", f.Name, err)
		}
	}
	if nulled > 0 {
		tr.Status = report.Worst(tr.Status, report.Warning)
		tr.Reason = fmt.Sprintf("%s; %d cells did not fit the merged column types and were loaded as null", tr.Reason, nulled)
	}
	return total, nil
}

// castTo projects ds onto the reconciled columns and converts each cell to
// what its column stores. Columns ds lacks are null. Cells that cannot be
// converted, such as text merged into a timestamp column, become null and
// are counted.
func castTo(ds *dataset.Dataset, rs reconcile.ReconciledSchema) (*dataset.Dataset, int) {
	idx := make(map[string]int, len(ds.Columns))
	for i, name := range ds.Columns {
		idx[name] = i
	}
	cols := make([]string, len(rs.Columns))
	src := make([]int, len(rs.Columns))
	for i, c := range rs.Columns {
		cols[i] = c.Name
		src[i] = -1
		if j, ok := idx[c.Name]; ok {
			src[i] = j
		}
	}

	nulled := 0
	out := &dataset.Dataset{Columns: cols, Rows: make([]dataset.Row, len(ds.Rows))}
	for r, row := range ds.Rows {
		cast := make(dataset.Row, len(cols))
		for c, j := range src {
			if j < 0 || j >= len(row) {
				continue
			}
			v, ok := castCell(row[j], rs.Columns[c].Type)
			if !ok {
				nulled++
			}
			cast[c] = v
		}
		out.Rows[r] = cast
	}
	return out, nulled
}

// castCell converts v for a column of type t. It reports false, with a nil
// value, when v has no representation in t.
func castCell(v any, t reconcile.Type) (any, bool) {
	if v == nil {
		return nil, true
	}
	switch t.Kind {
	case reconcile.TinyInt, reconcile.SmallInt, reconcile.Int, reconcile.BigInt:
		n, err := lattice.Coerce(v, schema.Int)
		if err != nil {
			return nil, false
		}
		return n, true
	case reconcile.Float, reconcile.Double, reconcile.Decimal:
		f, err := lattice.Coerce(v, schema.Float)
		if err != nil {
			return nil, false
		}
		return f, true
	case reconcile.Timestamp, reconcile.Date:
		switch x := v.(type) {
		case time.Time:
			return x, true
		case string:
			if ts, ok := lattice.ParseDatetime(x); ok {
				return ts, true
			}
		}
		return nil, false
	case reconcile.Boolean:
		return v, true
	}
	return lattice.Text(v), true
}
