package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend records every call in memory.
type fakeBackend struct {
	mu       sync.Mutex
	counters []call
	hists    []call
	flushes  int
}

type call struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, call{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hists = append(f.hists, call{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

// install swaps in a fake for the duration of one test. Tests using it must
// not run in parallel.
func install(t *testing.T) *fakeBackend {
	t.Helper()
	orig := current()
	fb := &fakeBackend{}
	SetBackend(fb)
	t.Cleanup(func() { SetBackend(orig) })
	return fb
}

func TestRecordStep_SuccessAndFailure(t *testing.T) {
	fb := install(t)

	RecordStep("run1", "classify", nil, 2*time.Second)
	RecordStep("run1", "normalize", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.counters) != 2 || len(fb.hists) != 2 {
		t.Fatalf("counters=%d hists=%d; want 2,2", len(fb.counters), len(fb.hists))
	}
	if c := fb.counters[0]; c.name != StepTotal || c.labels["status"] != "success" || c.labels["step"] != "classify" {
		t.Fatalf("counter[0]=%+v", c)
	}
	if c := fb.counters[1]; c.labels["status"] != "failure" {
		t.Fatalf("counter[1]=%+v", c)
	}
	if h := fb.hists[1]; h.name != StepDuration || h.value != 1.5 {
		t.Fatalf("hist[1]=%+v", h)
	}
}

func TestRecordRows_IgnoresNonPositive(t *testing.T) {
	fb := install(t)

	RecordRows("run1", "removed", 0)
	RecordRows("run1", "removed", -3)
	RecordRows("run1", "written", 7)

	if len(fb.counters) != 1 {
		t.Fatalf("counters=%d; want 1", len(fb.counters))
	}
	if c := fb.counters[0]; c.name != RowsTotal || c.value != 7 || c.labels["kind"] != "written" {
		t.Fatalf("counter=%+v", c)
	}
}

func TestRecordFileTimerAndFlush(t *testing.T) {
	fb := install(t)

	RecordFile("run1", "warning")
	done := Timer("run1", "reconcile")
	done(nil)
	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if len(fb.counters) != 2 || fb.counters[0].name != FilesTotal || fb.counters[1].labels["step"] != "reconcile" {
		t.Fatalf("counters=%+v", fb.counters)
	}
	if fb.flushes != 1 {
		t.Fatalf("flushes=%d", fb.flushes)
	}
}

func TestSetBackend_NilKeepsCurrent(t *testing.T) {
	fb := install(t)
	SetBackend(nil)
	if current() != Backend(fb) {
		t.Fatalf("nil replaced the installed backend")
	}
}
