package ingest

import (
	"path"
	"strings"
	"time"

	"ingest/internal/probe"
	"ingest/internal/schema"
)

// tablePrefix starts every logical table name.
const tablePrefix = "icg"

// TableName builds icg_<domain>_<dataset>_<env>. Each part is folded to an
// identifier; an empty part yields an empty name.
func TableName(domain, dataset, env string) string {
	parts := []string{tablePrefix, domain, dataset, env}
	for i := 1; i < len(parts); i++ {
		parts[i] = schema.NormalizeColumnName(parts[i])
		if parts[i] == "" {
			return ""
		}
	}
	return strings.Join(parts, "_")
}

// RawKey is where the untouched input is archived:
// raw/<extension>/<YYYY-MM-DD>/<filename>. Names without an extension go
// under "unknown".
func RawKey(filename string, at time.Time) string {
	_, ext, _ := probe.SplitName(filename)
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		ext = "unknown"
	}
	return path.Join("raw", ext, at.UTC().Format(time.DateOnly), path.Base(filename))
}

// RunPrefix is the artifact directory of one file in one run.
func RunPrefix(table, runID, filename string) string {
	stem, _, _ := probe.SplitName(path.Base(filename))
	return path.Join(table, "run="+runID, schema.NormalizeColumnName(stem))
}
