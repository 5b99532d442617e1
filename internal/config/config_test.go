package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, issues, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, 0.5, cfg.Inference.Threshold)
	assert.Equal(t, "keep_nulls", cfg.Normalize.Mode)
	assert.Equal(t, "null_cell", cfg.Normalize.Missing)
	assert.Equal(t, 4, cfg.Runtime.Workers)
	assert.Equal(t, "dev", cfg.Runtime.Env)
	assert.Equal(t, 3, cfg.Validation.MaxSamples)
	assert.Empty(t, cfg.Storage.Backend)
}

func TestLoad_JSONFile(t *testing.T) {
	p := writeFile(t, "ingest.json", `{
		"inference": {"threshold": 0.8},
		"normalize": {"mode": "drop_invalid"},
		"storage": {"backend": "sqlite", "dsn": "file::memory:"},
		"runtime": {"env": "prod", "workers": 2}
	}`)
	cfg, _, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.Inference.Threshold)
	assert.Equal(t, "drop_invalid", cfg.Normalize.Mode)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "prod", cfg.Runtime.Env)
	assert.Equal(t, 2, cfg.Runtime.Workers)
	// Untouched keys keep their defaults.
	assert.Equal(t, "null_cell", cfg.Normalize.Missing)
}

func TestLoad_YAMLFile(t *testing.T) {
	p := writeFile(t, "ingest.yaml", "output:\n  dir: /data/out\n  rows_per_file: 1000\nlog:\n  format: json\n")
	cfg, _, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "/data/out", cfg.Output.Dir)
	assert.Equal(t, 1000, cfg.Output.RowsPerFile)
	assert.Equal(t, "json", cfg.Log.Format)
}

// TestLoad_EnvOverridesFile is not parallel: it sets process environment.
func TestLoad_EnvOverridesFile(t *testing.T) {
	p := writeFile(t, "ingest.json", `{"runtime": {"env": "staging"}}`)
	t.Setenv("INGEST_RUNTIME__ENV", "prod")
	t.Setenv("INGEST_INFERENCE__THRESHOLD", "0.75")

	cfg, _, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Runtime.Env)
	assert.Equal(t, 0.75, cfg.Inference.Threshold)
}

func TestLoad_Invalid(t *testing.T) {
	p := writeFile(t, "bad.json", `{"normalize": {"mode": "sometimes"}, "inference": {"threshold": 1.5}}`)
	_, issues, err := Load(p)
	require.Error(t, err)

	paths := map[string]bool{}
	for _, iss := range issues {
		paths[iss.Path] = true
	}
	assert.True(t, paths["normalize.mode"], "issues: %v", issues)
	assert.True(t, paths["inference.threshold"], "issues: %v", issues)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	p := writeFile(t, "ingest.toml", "x = 1")
	_, _, err := Load(p)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg, _, err := Load("")
	require.NoError(t, err)
	return *cfg
}

func TestValidate_CrossSection(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		path     string
		severity IssueSeverity
	}{
		{"backend without dsn", func(c *Config) { c.Storage.Backend = "postgres" }, "storage.dsn", SeverityError},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "oracle"; c.Storage.DSN = "x" }, "storage.backend", SeverityError},
		{"dsn without backend", func(c *Config) { c.Storage.DSN = "x" }, "storage.backend", SeverityWarning},
		{"prometheus without url", func(c *Config) { c.Metrics.Backend = "prometheus" }, "metrics.push_url", SeverityError},
		{"datadog without addr", func(c *Config) { c.Metrics.Backend = "datadog" }, "metrics.statsd_addr", SeverityError},
		{"minority threshold", func(c *Config) { c.Inference.Threshold = 0.3 }, "inference.threshold", SeverityWarning},
		{"zero workers", func(c *Config) { c.Runtime.Workers = 0 }, "runtime.workers", SeverityError},
		{"env with dash", func(c *Config) { c.Runtime.Env = "pre-prod" }, "runtime.env", SeverityError},
		{"bad push url", func(c *Config) { c.Metrics.PushURL = "not a url" }, "metrics.push_url", SeverityError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(&cfg)
			issues := Validate(cfg)
			for _, iss := range issues {
				if iss.Path == tc.path && iss.Severity == tc.severity {
					return
				}
			}
			t.Fatalf("no %s at %s in %v", tc.severity, tc.path, issues)
		})
	}
}

func TestIssue_Error(t *testing.T) {
	t.Parallel()

	iss := Issue{Severity: SeverityError, Path: "storage.dsn", Message: "must not be empty"}
	assert.Equal(t, "error at storage.dsn: must not be empty", iss.Error())
}

func TestOptions(t *testing.T) {
	t.Parallel()

	var o Options
	require.NoError(t, json.Unmarshal([]byte(`{
		"mode": "drop_invalid", "threshold": 0.6, "preview": 3, "strict": true,
		"delimiter": ";", "declared": {"id": "int", "bad": 1}
	}`), &o))

	assert.Equal(t, "drop_invalid", o.String("mode", "keep_nulls"))
	assert.Equal(t, "x", o.String("missing", "x"))
	assert.Equal(t, 0.6, o.Float("threshold", 0.5))
	assert.Equal(t, 3, o.Int("preview", 5))
	assert.Equal(t, 5, o.Int("mode", 5))
	assert.True(t, o.Bool("strict", false))
	assert.Equal(t, ';', o.Rune("delimiter", ','))
	assert.Equal(t, map[string]string{"id": "int"}, o.StringMap("declared"))
	assert.Empty(t, o.StringMap("nope"))

	var empty Options
	require.NoError(t, json.Unmarshal([]byte(`null`), &empty))
	assert.NotNil(t, empty)
}
