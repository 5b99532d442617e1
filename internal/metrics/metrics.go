// Package metrics records ingestion counters and step timings through a
// pluggable Backend. The default backend discards everything, so callers
// never need to check whether metrics are configured.
//
// Concrete systems live in subpackages (prompush, datadog) and are installed
// once at startup with SetBackend.
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by every backend.
const (
	StepTotal    = "ingest_step_total"
	StepDuration = "ingest_step_duration_seconds"
	RowsTotal    = "ingest_rows_total"
	FilesTotal   = "ingest_files_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal surface a metrics system must provide.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered data, for backends that push rather than serve.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b. A nil b keeps the current backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the installed backend.
func Flush() error { return current().Flush() }

// RecordStep counts one execution of a pipeline step and its duration.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows adds n to a row counter. Kinds in use: parsed, skipped,
// removed, nulled, written, loaded.
func RecordRows(job, kind string, n int64) {
	if n <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(n), Labels{"job": job, "kind": kind})
}

// RecordFile counts one processed file by its final status.
func RecordFile(job, status string) {
	current().IncCounter(FilesTotal, 1, Labels{"job": job, "status": status})
}

// Timer returns a function that records the step when called with the
// step's error.
//
//	done := metrics.Timer(job, "normalize")
//	res, err := n.Normalize(ds)
//	done(err)
func Timer(job, step string) func(error) {
	start := time.Now()
	return func(err error) { RecordStep(job, step, err, time.Since(start)) }
}
