package convert

import (
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"ingest/internal/probe"
)

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

// Decompress wraps r according to the compression suffix of name (.gz,
// .bz2, .zst, .xz). Names without one get r back unchanged. The caller
// closes the result; that does not close r.
func Decompress(name string, r io.Reader) (io.ReadCloser, error) {
	_, _, comp := probe.SplitName(name)
	switch comp {
	case ".gz":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("convert: gzip %s: %w", name, err)
		}
		return gz, nil
	case ".bz2":
		return readCloser{Reader: bzip2.NewReader(r)}, nil
	case ".xz":
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("convert: xz %s: %w", name, err)
		}
		return readCloser{Reader: xr}, nil
	case ".zst":
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("convert: zstd %s: %w", name, err)
		}
		return readCloser{Reader: dec, close: func() error { dec.Close(); return nil }}, nil
	default:
		return readCloser{Reader: r}, nil
	}
}

// ReadAll decompresses r under name and reads at most limit bytes. A
// non-positive limit means no cap.
func ReadAll(name string, r io.Reader, limit int64) ([]byte, error) {
	rc, err := Decompress(name, r)
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
		return nil, fmt.Errorf("convert: read %s: %w", name, err)
	}
	if limit > 0 && int64(len(b)) > limit {
		return nil, fmt.Errorf("convert: %s exceeds %d bytes", name, limit)
	}
	return b, nil
}
