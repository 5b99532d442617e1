package main

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"ingest/internal/datasource"
	"ingest/internal/datasource/file"
	"ingest/internal/datasource/httpds"
)

// reader fetches inputs named on the command line: local paths, or http(s)
// URLs through a rate-limited, retrying client built on first use.
type reader struct {
	a      *app
	client *httpds.Client
}

func isURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// read returns the file name and bytes of src, capped at
// convert.max_input_bytes.
func (r *reader) read(ctx context.Context, src string) (string, []byte, error) {
	limit := r.a.cfg.Convert.MaxInputBytes
	if isURL(src) || r.a.cfg.Source.BaseURL != "" && !fileExists(src) {
		c, err := r.httpClient()
		if err != nil {
			return "", nil, err
		}
		b, name, err := c.Fetch(ctx, src, limit)
		if err != nil {
			return "", nil, err
		}
		if name == "" {
			name = path.Base(src)
		}
		return name, b, nil
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		return "", nil, err
	}
	b, err := datasource.ReadAll(ctx, file.NewLocal(filepath.Dir(abs)), filepath.Base(abs), limit)
	return filepath.Base(abs), b, err
}

func (r *reader) httpClient() (*httpds.Client, error) {
	if r.client != nil {
		return r.client, nil
	}
	sc := r.a.cfg.Source
	c, err := httpds.NewClient(httpds.Config{
		BaseURL:    sc.BaseURL,
		Timeout:    time.Duration(sc.TimeoutSec) * time.Second,
		MaxRetries: sc.MaxRetries,
		RPS:        sc.RPS,
		Burst:      sc.Burst,
	})
	if err != nil {
		return nil, err
	}
	r.client = c
	return c, nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// expandList appends the entries of the manifest at listPath to args.
func expandList(args []string, listPath string) ([]string, error) {
	if listPath == "" {
		return args, nil
	}
	f, err := os.Open(listPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	entries, err := file.ReadList(f)
	if err != nil {
		return nil, err
	}
	return append(args, entries...), nil
}
