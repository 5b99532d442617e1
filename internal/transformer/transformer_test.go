package transformer

import (
	"errors"
	"testing"

	"ingest/internal/dataset"
)

/*
appendColumn returns a copy of the dataset with one extra constant column.
Used to verify ordering and non-mutation through Chain.
*/
func appendColumn(name string, v any) Transformer {
	return Func(func(ds *dataset.Dataset) (*dataset.Dataset, error) {
		out := ds.Clone()
		out.Columns = append(out.Columns, name)
		for i := range out.Rows {
			out.Rows[i] = append(out.Rows[i], v)
		}
		return out, nil
	})
}

// TestChain_OrderAndIsolation runs two steps and checks both their order and
// that the input dataset is untouched.
func TestChain_OrderAndIsolation(t *testing.T) {
	t.Parallel()

	in := dataset.FromStrings([]string{"a"}, [][]string{{"1"}, {"2"}})
	out, err := Chain{appendColumn("b", 1), appendColumn("c", 2)}.Apply(in)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(out.Columns) != 3 || out.Columns[1] != "b" || out.Columns[2] != "c" {
		t.Fatalf("columns=%v", out.Columns)
	}
	if len(in.Columns) != 1 || len(in.Rows[0]) != 1 {
		t.Fatalf("input mutated: %+v", in)
	}
}

func TestChain_StopsOnError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	calls := 0
	count := Func(func(ds *dataset.Dataset) (*dataset.Dataset, error) { calls++; return ds, nil })
	fail := Func(func(*dataset.Dataset) (*dataset.Dataset, error) { return nil, boom })

	_, err := Chain{count, fail, count}.Apply(dataset.FromStrings([]string{"a"}, nil))
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v; want wrapped boom", err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d; want 1", calls)
	}
}

func TestChain_Empty(t *testing.T) {
	t.Parallel()

	in := dataset.FromStrings([]string{"a"}, nil)
	out, err := Chain{}.Apply(in)
	if err != nil || out != in {
		t.Fatalf("empty chain should return input unchanged")
	}
}
