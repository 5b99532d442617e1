// Package storage holds the backend-agnostic contracts for materializing a
// reconciled table: a Repository interface, a registry of backend factories,
// dialect-aware DDL and a batched loader.
//
// Backends register themselves in init; import internal/storage/all to link
// every backend into a binary.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownBackend is returned by Open for a kind nobody registered.
var ErrUnknownBackend = errors.New("storage: unknown backend")

// Repository is the minimal surface the pipeline needs from a database.
type Repository interface {
	// CopyFrom bulk-inserts rows aligned to columns into the configured table.
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	// Exec runs a single statement, typically DDL.
	Exec(ctx context.Context, sql string) error
	Close()
}

// Config selects and configures a backend.
type Config struct {
	// Kind is the registered backend name: postgres, sqlite, mssql, mysql.
	Kind    string
	DSN     string
	Table   string
	Columns []string
}

// Factory constructs a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register binds kind to f. A later registration for the same kind replaces
// the earlier one.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[strings.ToLower(kind)] = f
}

// Open constructs the repository registered for cfg.Kind.
func Open(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[strings.ToLower(cfg.Kind)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered kinds, sorted. The slice is a copy.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
