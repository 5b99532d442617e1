// Package datasource defines the storage capabilities the pipeline is
// handed: a keyed object store for inputs and artifacts. Implementations
// live in subpackages.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrNotFound is returned (possibly wrapped) when a key does not exist.
var ErrNotFound = errors.New("datasource: not found")

// Reader opens objects by key.
type Reader interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// ObjectStore reads, writes and lists objects under slash-separated keys.
type ObjectStore interface {
	Reader
	// Create returns a writer whose Close publishes the object.
	Create(ctx context.Context, key string) (io.WriteCloser, error)
	// List returns the keys starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ReadAll opens key and reads it fully, failing above limit bytes when limit
// is positive.
func ReadAll(ctx context.Context, r Reader, key string, limit int64) ([]byte, error) {
	rc, err := r.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	var src io.Reader = rc
	if limit > 0 {
		src = io.LimitReader(rc, limit+1)
	}
	b, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("datasource: read %s: %w", key, err)
	}
	if limit > 0 && int64(len(b)) > limit {
		return nil, fmt.Errorf("datasource: %s exceeds %d bytes", key, limit)
	}
	return b, nil
}

// WriteAll stores b under key.
func WriteAll(ctx context.Context, s ObjectStore, key string, b []byte) error {
	w, err := s.Create(ctx, key)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		Abandon(w)
		return fmt.Errorf("datasource: write %s: %w", key, err)
	}
	return w.Close()
}

// Aborter is implemented by writers that can drop an unpublished object.
type Aborter interface {
	Abort() error
}

// Abandon discards a half-written object: it aborts w when supported and
// closes it otherwise.
func Abandon(w io.WriteCloser) {
	if a, ok := w.(Aborter); ok {
		_ = a.Abort()
		return
	}
	_ = w.Close()
}
