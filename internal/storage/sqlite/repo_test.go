package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"ingest/internal/dataset"
	"ingest/internal/reconcile"
	"ingest/internal/storage"
)

func openMem(t *testing.T, table string) *wrappedRepo {
	t.Helper()
	repo, err := storage.Open(context.Background(), storage.Config{
		Kind:  "sqlite",
		DSN:   "file::memory:",
		Table: table,
	})
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(repo.Close)
	w, ok := repo.(*wrappedRepo)
	if !ok {
		t.Fatalf("repo is %T", repo)
	}
	return w
}

// TestMaterialize creates a table from a reconciled schema, loads a canonical
// dataset into it and reads it back.
func TestMaterialize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openMem(t, "icg_sales_orders_dev")

	cols := []reconcile.Column{
		{Name: "id", Type: reconcile.Leaf(reconcile.BigInt)},
		{Name: "amount", Type: reconcile.Leaf(reconcile.Double)},
		{Name: "placed_at", Type: reconcile.Leaf(reconcile.Timestamp)},
		{Name: "note", Type: reconcile.Leaf(reconcile.String)},
	}
	if err := storage.EnsureTable(ctx, repo, storage.SQLite, "icg_sales_orders_dev", cols); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	// A second call is a no-op.
	if err := storage.EnsureTable(ctx, repo, storage.SQLite, "icg_sales_orders_dev", cols); err != nil {
		t.Fatalf("EnsureTable again: %v", err)
	}

	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ds, err := dataset.New([]string{"id", "amount", "placed_at", "note"}, []dataset.Row{
		{int64(1), 9.5, ts, "first"},
		{int64(2), nil, nil, nil},
		{int64(3), 1.25, ts, "third"},
	})
	if err != nil {
		t.Fatalf("dataset.New: %v", err)
	}
	n, err := storage.Load(ctx, repo, ds, 2)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 3 {
		t.Fatalf("loaded %d, want 3", n)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Fatalf("count=%d, want 3", count)
	}

	var sum float64
	var nulls int64
	row := repo.db.QueryRowContext(ctx,
		`SELECT SUM("amount"), SUM(CASE WHEN "note" IS NULL THEN 1 ELSE 0 END) FROM "icg_sales_orders_dev"`)
	if err := row.Scan(&sum, &nulls); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if sum != 10.75 || nulls != 1 {
		t.Fatalf("sum=%v nulls=%d", sum, nulls)
	}
}

func TestCopyFrom_RowWidthMismatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openMem(t, "t")
	if err := repo.Exec(ctx, `CREATE TABLE "t" ("a" INTEGER, "b" TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.CopyFrom(ctx, []string{"a", "b"}, [][]any{{1, "x"}, {2}}); err == nil {
		t.Fatal("expected error")
	}
	// The failed batch was rolled back.
	if n, err := repo.Count(ctx); err != nil || n != 0 {
		t.Fatalf("count=%d err=%v", n, err)
	}
}

func TestCopyFrom_EmptyAndBlank(t *testing.T) {
	t.Parallel()

	repo := openMem(t, "t")
	if n, err := repo.CopyFrom(context.Background(), []string{"a"}, nil); err != nil || n != 0 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if _, err := repo.CopyFrom(context.Background(), nil, [][]any{{1}}); err == nil {
		t.Fatal("no columns: expected error")
	}
	if err := repo.Exec(context.Background(), "   "); err != nil {
		t.Fatalf("blank Exec: %v", err)
	}
}

// TestAdapter_UsesHook is not parallel: it swaps the package-level hook.
func TestAdapter_UsesHook(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var got Config
	closed := false
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		got = cfg
		return &Repository{}, func() { closed = true }, nil
	}

	repo, err := storage.Open(context.Background(), storage.Config{Kind: "sqlite", DSN: "x.db", Table: "t"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got.DSN != "x.db" || got.Table != "t" {
		t.Fatalf("cfg=%+v", got)
	}
	repo.Close()
	if !closed {
		t.Fatal("Close did not call closeFn")
	}

	boom := errors.New("boom")
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) { return nil, nil, boom }
	if _, err := storage.Open(context.Background(), storage.Config{Kind: "sqlite", DSN: "x"}); !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
}
