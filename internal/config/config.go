// Package config is the runtime configuration of the ingestion engine.
//
// Values are layered with koanf: built-in defaults, then an optional JSON or
// YAML file, then INGEST_* environment variables. Nested keys use a double
// underscore in the environment, e.g. INGEST_STORAGE__DSN sets storage.dsn.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks the environment variables Load reads.
const EnvPrefix = "INGEST_"

// Config is the full engine configuration.
type Config struct {
	Inference  Inference  `koanf:"inference" json:"inference"`
	Normalize  Normalize  `koanf:"normalize" json:"normalize"`
	Validation Validation `koanf:"validation" json:"validation"`
	Convert    Convert    `koanf:"convert" json:"convert"`
	Storage    Storage    `koanf:"storage" json:"storage"`
	Output     Output     `koanf:"output" json:"output"`
	Runtime    Runtime    `koanf:"runtime" json:"runtime"`
	Metrics    Metrics    `koanf:"metrics" json:"metrics"`
	Log        Log        `koanf:"log" json:"log"`
	HTTP       HTTP       `koanf:"http" json:"http"`
	Source     Source     `koanf:"source" json:"source"`
}

// Inference tunes the column type inferrer.
type Inference struct {
	// Threshold is the fraction of non-missing values that must support a
	// type for the column to take it.
	Threshold float64 `koanf:"threshold" json:"threshold" validate:"gt=0,lte=1"`
}

// Normalize tunes the row normalizer.
type Normalize struct {
	Mode        string `koanf:"mode" json:"mode" validate:"omitempty,oneof=drop_invalid keep_nulls"`
	Missing     string `koanf:"missing" json:"missing" validate:"omitempty,oneof=null_cell drop_row"`
	PreviewRows int    `koanf:"preview_rows" json:"preview_rows" validate:"min=0,max=1000"`
}

// Validation tunes the row validator's report.
type Validation struct {
	MaxSamples   int `koanf:"max_samples" json:"max_samples" validate:"min=0,max=100"`
	MaxIssueRows int `koanf:"max_issue_rows" json:"max_issue_rows" validate:"min=0,max=100"`
}

// Convert tunes conversion of semi-tabular inputs.
type Convert struct {
	// Sheet selects the workbook sheet; empty means the first.
	Sheet string `koanf:"sheet" json:"sheet"`
	// MaxInputBytes caps one decompressed input.
	MaxInputBytes int64 `koanf:"max_input_bytes" json:"max_input_bytes" validate:"min=0"`
}

// Storage selects the optional table backend.
type Storage struct {
	// Backend is empty when tables are not materialized.
	Backend string `koanf:"backend" json:"backend" validate:"omitempty,oneof=postgres sqlite mssql mysql"`
	DSN     string `koanf:"dsn" json:"dsn"`
	// Schema qualifies table names, e.g. "public" or "dbo".
	Schema    string `koanf:"schema" json:"schema"`
	BatchSize int    `koanf:"batch_size" json:"batch_size" validate:"min=0"`
}

// Output places artifacts.
type Output struct {
	Dir            string `koanf:"dir" json:"dir" validate:"required"`
	RowsPerFile    int    `koanf:"rows_per_file" json:"rows_per_file" validate:"min=0"`
	MaxSchemaFiles int    `koanf:"max_schema_files" json:"max_schema_files" validate:"min=0"`
}

// Runtime controls the batch orchestrator.
type Runtime struct {
	Workers int `koanf:"workers" json:"workers" validate:"min=1,max=256"`
	// Env is the deployment suffix of table names, e.g. "dev" or "prod".
	Env string `koanf:"env" json:"env" validate:"required,alphanum"`
	Job string `koanf:"job" json:"job"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	Backend    string `koanf:"backend" json:"backend" validate:"omitempty,oneof=none prometheus datadog"`
	PushURL    string `koanf:"push_url" json:"push_url" validate:"omitempty,url"`
	StatsdAddr string `koanf:"statsd_addr" json:"statsd_addr"`
}

// Log configures the process logger.
type Log struct {
	Level  string `koanf:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `koanf:"format" json:"format" validate:"omitempty,oneof=text json"`
}

// HTTP configures the API server.
type HTTP struct {
	Addr string `koanf:"addr" json:"addr" validate:"required"`
	// MaxBodyBytes caps one request body.
	MaxBodyBytes int64 `koanf:"max_body_bytes" json:"max_body_bytes" validate:"min=0"`
}

// Source configures the optional remote input source.
type Source struct {
	BaseURL    string  `koanf:"base_url" json:"base_url" validate:"omitempty,url"`
	RPS        float64 `koanf:"rps" json:"rps" validate:"min=0"`
	Burst      int     `koanf:"burst" json:"burst" validate:"min=0"`
	MaxRetries int     `koanf:"max_retries" json:"max_retries" validate:"min=0,max=10"`
	TimeoutSec int     `koanf:"timeout_sec" json:"timeout_sec" validate:"min=0"`
}

// Defaults returns the flattened default values.
func Defaults() map[string]any {
	return map[string]any{
		"inference.threshold":       0.5,
		"normalize.mode":            "keep_nulls",
		"normalize.missing":         "null_cell",
		"normalize.preview_rows":    5,
		"validation.max_samples":    3,
		"validation.max_issue_rows": 5,
		"convert.max_input_bytes":   int64(512 << 20),
		"storage.batch_size":        5000,
		"output.dir":                "./out",
		"output.rows_per_file":      250000,
		"output.max_schema_files":   10,
		"runtime.workers":           4,
		"runtime.env":               "dev",
		"runtime.job":               "ingest",
		"metrics.backend":           "none",
		"log.level":                 "info",
		"log.format":                "text",
		"http.addr":                 ":8080",
		"http.max_body_bytes":       int64(64 << 20),
		"source.rps":                5.0,
		"source.burst":              5,
		"source.max_retries":        3,
		"source.timeout_sec":        30,
	}
}

// Load layers defaults, the file at path (optional; .json, .yaml or .yml)
// and the environment, then validates. Warnings do not fail the load; they
// are returned alongside the config.
func Load(path string) (*Config, []Issue, error) {
	k := koanf.New(".")
	for key, v := range Defaults() {
		if err := k.Set(key, v); err != nil {
			return nil, nil, fmt.Errorf("config: default %s: %w", key, err)
		}
	}

	if path != "" {
		var p koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			p = json.Parser()
		case ".yaml", ".yml":
			p = yamlParser{}
		default:
			return nil, nil, fmt.Errorf("config: unsupported file type %q", filepath.Ext(path))
		}
		if err := k.Load(file.Provider(path), p); err != nil {
			return nil, nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, nil, fmt.Errorf("config: load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	issues := Validate(cfg)
	var errs []error
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			errs = append(errs, iss)
		}
	}
	if len(errs) > 0 {
		return nil, issues, fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return &cfg, issues, nil
}

// envKey maps INGEST_STORAGE__DSN to storage.dsn.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}
