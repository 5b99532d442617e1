package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ingest/internal/config"
	"ingest/internal/logging"
)

// app is the state shared by every subcommand once the root has run its
// pre-run hook.
type app struct {
	cfgPath  string
	envFile  string
	logLevel string

	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
	flush  func()
}

func newRootCmd() *cobra.Command {
	a := &app{flush: func() {}}
	root := &cobra.Command{
		Use:          "ingest",
		Short:        "Classify, validate, normalize and land tabular files",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.flush()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgPath, "config", "c", "", "config file (.json, .yaml or .yml)")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the config; missing is fine")
	pf.StringVar(&a.logLevel, "log-level", "", "overrides log.level (debug, info, warn, error)")

	root.AddCommand(
		newClassifyCmd(a),
		newValidateCmd(a),
		newNormalizeCmd(a),
		newReconcileCmd(a),
		newRunCmd(a),
		newServeCmd(a),
	)
	return root
}

// setup loads .env and the config, then builds the logger and the metrics
// backend.
func (a *app) setup(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}

	cfg, issues, err := config.Load(a.cfgPath)
	for _, iss := range issues {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	a.logger = logging.SetupWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(a.logger)
	a.flush = setupMetrics(cfg, a.logger)
	return nil
}

// printJSON writes v indented to the command output.
func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
