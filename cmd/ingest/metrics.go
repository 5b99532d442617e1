package main

import (
	"log/slog"

	"ingest/internal/config"
	"ingest/internal/metrics"
	"ingest/internal/metrics/datadog"
	"ingest/internal/metrics/prompush"
)

// setupMetrics installs the configured backend and returns its flush. A
// backend that fails to start leaves the no-op backend in place.
func setupMetrics(cfg *config.Config, log *slog.Logger) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch cfg.Metrics.Backend {
	case "prometheus":
		b, err = prompush.NewBackend(cfg.Runtime.Job, cfg.Metrics.PushURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:      cfg.Metrics.StatsdAddr,
			Namespace: "ingest.",
			Tags:      []string{"env:" + cfg.Runtime.Env, "job:" + cfg.Runtime.Job},
		})
	case "", "none":
		log.Debug("metrics disabled")
		return func() {}
	default:
		log.Warn("unknown metrics backend; metrics disabled", "backend", cfg.Metrics.Backend)
		return func() {}
	}
	if err != nil {
		log.Warn("metrics backend failed to start; using nop", "backend", cfg.Metrics.Backend, "err", err)
		return func() {}
	}
	metrics.SetBackend(b)
	log.Info("metrics enabled", "backend", cfg.Metrics.Backend, "job", cfg.Runtime.Job)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics flush", "err", err)
		}
	}
}
