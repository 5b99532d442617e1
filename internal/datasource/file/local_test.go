package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"ingest/internal/datasource"
)

func TestLocal_CreateOpenList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewLocal(t.TempDir())

	for _, k := range []string{"in/sales_orders.csv", "in/crm_accounts.json", "out/icg_sales_orders_dev/part-0.parquet"} {
		if err := datasource.WriteAll(ctx, s, k, []byte("body:"+k)); err != nil {
			t.Fatalf("WriteAll(%s): %v", k, err)
		}
	}
	got, err := datasource.ReadAll(ctx, s, "in/sales_orders.csv", 0)
	if err != nil || string(got) != "body:in/sales_orders.csv" {
		t.Fatalf("ReadAll=%q err=%v", got, err)
	}

	keys, err := s.List(ctx, "in/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{"in/crm_accounts.json", "in/sales_orders.csv"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("keys=%v; want %v", keys, want)
	}
}

func TestLocal_NotFoundAndEscape(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	s := NewLocal(filepath.Join(root, "store"))

	if _, err := s.Open(ctx, "missing.csv"); !errors.Is(err, datasource.ErrNotFound) {
		t.Fatalf("err=%v; want ErrNotFound", err)
	}
	if err := datasource.WriteAll(ctx, s, "../../escape.txt", []byte("x")); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.txt")); err == nil {
		t.Fatalf("key escaped the store root")
	}
	if keys, err := NewLocal(filepath.Join(root, "nope")).List(ctx, ""); err != nil || len(keys) != 0 {
		t.Fatalf("missing root: keys=%v err=%v", keys, err)
	}
}

// TestLocal_CreateIsAtomic checks nothing is visible under the key until
// Close.
func TestLocal_CreateIsAtomic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewLocal(t.TempDir())
	w, err := s.Create(ctx, "a/b.csv")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write([]byte("x,y\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := s.Open(ctx, "a/b.csv"); !errors.Is(err, datasource.ErrNotFound) {
		t.Fatalf("visible before Close: %v", err)
	}
	if keys, _ := s.List(ctx, ""); len(keys) != 0 {
		t.Fatalf("temp file listed: %v", keys)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.Open(ctx, "a/b.csv"); err != nil {
		t.Fatalf("Open after Close: %v", err)
	}
}

func TestLocal_AbandonDropsObject(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewLocal(t.TempDir())
	w, err := s.Create(ctx, "part.parquet")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, _ = w.Write([]byte("half"))
	datasource.Abandon(w)

	if _, err := s.Open(ctx, "part.parquet"); !errors.Is(err, datasource.ErrNotFound) {
		t.Fatalf("abandoned object visible: %v", err)
	}
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("leftover files: %v", entries)
	}
}

func TestLocal_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLocal(t.TempDir()).Open(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

func TestReadList(t *testing.T) {
	t.Parallel()

	got, err := ReadList(strings.NewReader("# inputs\nin/a_b.csv\n\n  in/c_d.json  \n"))
	if err != nil {
		t.Fatalf("ReadList: %v", err)
	}
	if want := []string{"in/a_b.csv", "in/c_d.json"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v; want %v", got, want)
	}
}
