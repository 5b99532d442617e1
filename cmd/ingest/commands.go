package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ingest/internal/convert"
	"ingest/internal/datasource"
	"ingest/internal/datasource/file"
	"ingest/internal/ingest"
	"ingest/internal/probe"
	"ingest/internal/reconcile"
	"ingest/internal/report"
	"ingest/internal/schema"
	"ingest/internal/storage"
	"ingest/internal/storage/parquet"
	"ingest/internal/transformer/builtin"
	"ingest/internal/webui"
)

func newClassifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <file|url>...",
		Short: "Report what each input is and whether it can be ingested",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := &reader{a: a}
			var out []probe.Result
			for _, src := range args {
				name, raw, err := r.read(cmd.Context(), src)
				if err != nil {
					return err
				}
				content, err := convert.ReadAll(name, bytes.NewReader(raw), a.cfg.Convert.MaxInputBytes)
				if err != nil {
					return err
				}
				out = append(out, probe.Classify(content, name))
			}
			if len(out) == 1 {
				return a.printJSON(out[0])
			}
			return a.printJSON(out)
		},
	}
}

func newValidateCmd(a *app) *cobra.Command {
	var schemaPath string
	cmd := &cobra.Command{
		Use:   "validate --schema <file> <file|url>",
		Short: "Check a file against a declared schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			declared, err := readDeclared(schemaPath)
			if err != nil {
				return err
			}
			p, err := a.prepare(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJSON(struct {
				ingest.Prepared
				Report builtin.ValidationReport `json:"report"`
			}{p, ingest.ValidatorFor(a.cfg, declared).Validate(p.Dataset)})
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "declared schema: JSON object name→type or list of {name,type}")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

func newNormalizeCmd(a *app) *cobra.Command {
	var (
		mode, missing, outPath string
		threshold              float64
		preview                int
	)
	cmd := &cobra.Command{
		Use:   "normalize <file|url>",
		Short: "Infer a schema and produce the canonical dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			if f.Changed("mode") {
				a.cfg.Normalize.Mode = mode
			}
			if f.Changed("missing") {
				a.cfg.Normalize.Missing = missing
			}
			if f.Changed("threshold") {
				a.cfg.Inference.Threshold = threshold
			}
			if f.Changed("preview") {
				a.cfg.Normalize.PreviewRows = preview
			}
			n, err := ingest.NormalizerFor(a.cfg)
			if err != nil {
				return err
			}
			n.Logger = a.logger

			p, err := a.prepare(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			res, err := n.Normalize(p.Dataset)
			if err != nil {
				return err
			}
			if outPath != "" && res.Status != report.Failed {
				var buf bytes.Buffer
				if err := builtin.WriteCSV(&buf, res); err != nil {
					return err
				}
				abs, err := filepath.Abs(outPath)
				if err != nil {
					return err
				}
				if err := datasource.WriteAll(cmd.Context(), file.NewLocal(filepath.Dir(abs)), filepath.Base(abs), buf.Bytes()); err != nil {
					return err
				}
				a.logger.Info("canonical csv written", "path", abs, "rows", res.ResultRows)
			}
			return a.printJSON(struct {
				ingest.Prepared
				Normalization builtin.NormalizationResult `json:"normalization"`
			}{p, res})
		},
	}
	f := cmd.Flags()
	f.StringVar(&mode, "mode", "", "drop_invalid or keep_nulls")
	f.StringVar(&missing, "missing", "", "null_cell or drop_row")
	f.Float64Var(&threshold, "threshold", 0, "inference threshold in (0,1]")
	f.IntVar(&preview, "preview", 0, "preview rows in the result")
	f.StringVarP(&outPath, "out", "o", "", "write the canonical CSV here")
	return cmd
}

func newReconcileCmd(a *app) *cobra.Command {
	var dialect, table string
	cmd := &cobra.Command{
		Use:   "reconcile <schema.json|file.parquet|dir>...",
		Short: "Merge per-file schemas of one table",
		Long: `Merge per-file schemas of one table.

JSON files hold {"column":"type"} objects or [{"name":..,"type":..}] lists.
Parquet files contribute their footer schema; a directory contributes up to
output.max_schema_files parquet footers found below it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var inputs []reconcile.Schema
			for _, src := range args {
				got, err := readSchemas(cmd.Context(), src, a.cfg.Output.MaxSchemaFiles)
				if err != nil {
					return err
				}
				inputs = append(inputs, got...)
			}
			merged, mergeErr := reconcile.MergeSchemas(inputs)
			out := struct {
				Schema reconcile.ReconciledSchema `json:"schema"`
				DDL    string                     `json:"ddl,omitempty"`
			}{Schema: merged}
			if mergeErr == nil && dialect != "" {
				if table == "" {
					return errors.New("--table is required with --dialect")
				}
				ddl, err := storage.CreateTableSQL(storage.Dialect(dialect), table, merged.Columns)
				if err != nil {
					return err
				}
				out.DDL = ddl
			}
			if err := a.printJSON(out); err != nil {
				return err
			}
			return mergeErr
		},
	}
	cmd.Flags().StringVar(&dialect, "dialect", "", "also render CREATE TABLE for postgres, sqlite, mssql or mysql")
	cmd.Flags().StringVar(&table, "table", "", "table name for --dialect")
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var listPath, domain, dataset, schemaPath string
	cmd := &cobra.Command{
		Use:   "run <file|url>...",
		Short: "Process a batch end to end into output.dir and the configured backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			srcs, err := expandList(args, listPath)
			if err != nil {
				return err
			}
			if len(srcs) == 0 {
				return errors.New("no inputs")
			}
			var declared *schema.Schema
			if schemaPath != "" {
				d, err := readDeclared(schemaPath)
				if err != nil {
					return err
				}
				declared = &d
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			type readFailure struct {
				Source string `json:"source"`
				Error  string `json:"error"`
			}
			var (
				inputs []ingest.Input
				unread []readFailure
			)
			r := &reader{a: a}
			for _, src := range srcs {
				name, raw, err := r.read(ctx, src)
				if err != nil {
					a.logger.Error("read input", "source", src, "err", err)
					unread = append(unread, readFailure{Source: src, Error: err.Error()})
					continue
				}
				inputs = append(inputs, ingest.Input{Name: name, Content: raw, Domain: domain, Dataset: dataset, Declared: declared})
			}

			p, err := ingest.New(a.cfg, file.NewLocal(a.cfg.Output.Dir), a.logger)
			if err != nil {
				return err
			}
			br, err := p.Batch(ctx, inputs)
			if err != nil {
				return err
			}
			if err := a.printJSON(struct {
				ingest.BatchReport
				Unread []readFailure `json:"unread,omitempty"`
			}{br, unread}); err != nil {
				return err
			}
			if br.Status == report.Failed || len(unread) > 0 {
				return fmt.Errorf("batch %s finished with status %s (%d unreadable inputs)", br.RunID, br.Status, len(unread))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&listPath, "list", "", "manifest with one input per line ('#' comments)")
	f.StringVar(&domain, "domain", "", "domain for every input, instead of the file name")
	f.StringVar(&dataset, "dataset", "", "dataset for every input, instead of the file name")
	f.StringVar(&schemaPath, "schema", "", "declared schema to validate every input against")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.HTTP.Addr = addr
			}
			p, err := ingest.New(a.cfg, file.NewLocal(a.cfg.Output.Dir), a.logger)
			if err != nil {
				return err
			}
			srv := webui.NewServer(a.cfg, p, a.logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "overrides http.addr")
	return cmd
}

// prepare reads src up to a dataset, printing the classification when the
// file stops early.
func (a *app) prepare(ctx context.Context, src string) (ingest.Prepared, error) {
	name, raw, err := (&reader{a: a}).read(ctx, src)
	if err != nil {
		return ingest.Prepared{}, err
	}
	p, err := ingest.Prepare(name, raw, convert.Converter{Sheet: a.cfg.Convert.Sheet}, a.cfg.Convert.MaxInputBytes)
	if err != nil && p.Classification.Status != "" {
		_ = a.printJSON(p)
	}
	return p, err
}

func readDeclared(p string) (schema.Schema, error) {
	var s schema.Schema
	b, err := os.ReadFile(p)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("schema %s: %w", p, err)
	}
	if s.Len() == 0 {
		return s, fmt.Errorf("schema %s declares no columns", p)
	}
	return s, nil
}

// readSchemas loads one reconcile input. Unreadable files become schemas
// with Err set so the merge can skip and report them.
func readSchemas(ctx context.Context, src string, limit int) ([]reconcile.Schema, error) {
	st, err := os.Stat(src)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return parquet.ReadSchemas(ctx, file.NewLocal(src), "", limit)
	}
	if strings.EqualFold(filepath.Ext(src), ".parquet") {
		f, err := os.Open(src)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return []reconcile.Schema{parquet.ReadSchema(src, f, st.Size())}, nil
	}
	b, err := os.ReadFile(src)
	if err != nil {
		return []reconcile.Schema{{Source: src, Err: err}}, nil
	}
	return []reconcile.Schema{reconcile.ParseSchemaJSON(src, b)}, nil
}
