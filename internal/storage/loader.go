package storage

import (
	"context"
	"fmt"
	"time"

	"ingest/internal/dataset"
	"ingest/internal/logging"
)

// DefaultBatchSize is used by Load when the caller passes a non-positive size.
const DefaultBatchSize = 5000

// CopyFn is a backend's bulk insert. It must cancel promptly when ctx is done.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches drains rows from in, groups them into batches of batchSize and
// calls copyFn for each non-empty batch. It returns the rows reported by
// copyFn and the first error. Progress goes to the context logger.
func LoadBatches(
	ctx context.Context,
	columns []string,
	in <-chan []any,
	batchSize int,
	copyFn CopyFn,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("storage: batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("storage: copyFn must not be nil")
	}
	log := logging.FromContext(ctx)

	var (
		total   int64
		batches int
		batch   = make([][]any, 0, batchSize)
		start   = time.Now()
		last    = start
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		total += n
		batch = batch[:0]
		if err != nil {
			log.Error("copy failed", "batch", batches+1, "inserted", n, "total", total, "err", err)
			return err
		}
		batches++
		now := time.Now()
		var rps float64
		if d := now.Sub(last); d > 0 {
			rps = float64(n) / d.Seconds()
		}
		log.Debug("batch loaded",
			"batch", batches,
			"inserted", n,
			"total", total,
			"rps", int64(rps),
			"elapsed", now.Sub(start).Truncate(time.Millisecond),
		)
		last = now
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case row, ok := <-in:
			if !ok {
				if err := flush(); err != nil {
					return total, err
				}
				return total, nil
			}
			batch = append(batch, row)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}

// Load streams every row of ds into repo in batches.
func Load(ctx context.Context, repo Repository, ds *dataset.Dataset, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan []any, batchSize)
	go func() {
		defer close(in)
		for _, r := range ds.Rows {
			select {
			case in <- []any(r):
			case <-ctx.Done():
				return
			}
		}
	}()
	return LoadBatches(ctx, ds.Columns, in, batchSize, repo.CopyFrom)
}
