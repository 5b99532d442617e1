// Package file is a datasource.ObjectStore over a local directory.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"ingest/internal/datasource"
)

// Local stores objects as files below Root. Keys use forward slashes and
// may not escape Root.
type Local struct {
	Root string
}

// NewLocal returns a store rooted at dir.
func NewLocal(dir string) *Local { return &Local{Root: dir} }

func (l *Local) resolve(key string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(key, `\`, "/"))
	if clean == "/" {
		return "", fmt.Errorf("file: empty key %q", key)
	}
	return filepath.Join(l.Root, filepath.FromSlash(clean[1:])), nil
}

// Open opens key for reading with a sequential read-ahead hint.
func (l *Local) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("open %s: %w", key, datasource.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	adviseSequential(f)
	return f, nil
}

// Create writes to a temporary sibling that is renamed over key on Close, so
// readers never observe a partial object.
func (l *Local) Create(ctx context.Context, key string) (io.WriteCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-"+filepath.Base(p)+"-*")
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", key, err)
	}
	return &atomicFile{File: tmp, final: p}, nil
}

type atomicFile struct {
	*os.File
	final string
}

func (a *atomicFile) Close() error {
	if err := a.File.Close(); err != nil {
		_ = os.Remove(a.Name())
		return err
	}
	if err := os.Rename(a.Name(), a.final); err != nil {
		_ = os.Remove(a.Name())
		return err
	}
	return nil
}

// Abort drops the temporary file without publishing it.
func (a *atomicFile) Abort() error {
	_ = a.File.Close()
	return os.Remove(a.Name())
}

// List walks Root and returns matching keys in lexical order. Temporary
// files from unfinished writes are skipped.
func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(l.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == l.Root {
				return fs.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(l.Root, p)
		if err != nil {
			return err
		}
		if key := filepath.ToSlash(rel); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}
