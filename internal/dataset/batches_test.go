package dataset

import (
	"sort"
	"strings"
	"testing"
)

const batchDoc = `chr1	0	4	+	0
chr1	2	6	+	1
chr1	4	8	+	2
chr1	6	10	+	3
`

func loadBatchSet(t *testing.T) *IntervalSet {
	t.Helper()
	set, err := ReadIntervals(strings.NewReader(batchDoc), testGenome(), Options{})
	if err != nil {
		t.Fatalf("ReadIntervals: %v", err)
	}
	return set
}

func servedOrder(t *testing.T, b *Batches) []float64 {
	t.Helper()
	var order []float64
	for i := 0; i < b.Len(); i++ {
		_, y, err := b.Batch(i)
		if err != nil {
			t.Fatalf("Batch(%d): %v", i, err)
		}
		for _, label := range y {
			order = append(order, label[0])
		}
	}
	return order
}

func TestBatchesStacking(t *testing.T) {
	b, err := NewBatches(loadBatchSet(t), 2, false, 1)
	if err != nil {
		t.Fatalf("NewBatches: %v", err)
	}
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}

	x, y, err := b.Batch(0)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(x) != 2 || len(y) != 2 {
		t.Fatalf("batch shape %dx%d, want 2x2", len(x), len(y))
	}
	if len(x[0]) != 4*alphabetSize {
		t.Fatalf("row width %d, want %d", len(x[0]), 4*alphabetSize)
	}
	if y[0][0] != 0 || y[1][0] != 1 {
		t.Fatalf("labels %v %v, want 0 and 1", y[0], y[1])
	}

	// Without shuffling the epoch hook keeps the serving order.
	b.OnEpochEnd()
	if got := servedOrder(t, b); got[0] != 0 || got[1] != 1 || got[2] != 2 || got[3] != 3 {
		t.Fatalf("order changed without shuffle: %v", got)
	}
}

func TestBatchesShuffle(t *testing.T) {
	b, err := NewBatches(loadBatchSet(t), 2, true, 3)
	if err != nil {
		t.Fatalf("NewBatches: %v", err)
	}

	baseline := servedOrder(t, b)
	changed := false
	for round := 0; round < 10 && !changed; round++ {
		b.OnEpochEnd()
		got := servedOrder(t, b)

		sorted := append([]float64(nil), got...)
		sort.Float64s(sorted)
		for i, v := range sorted {
			if v != float64(i) {
				t.Fatalf("reshuffle lost examples: %v", got)
			}
		}
		for i := range got {
			if got[i] != baseline[i] {
				changed = true
				break
			}
		}
	}
	if !changed {
		t.Fatal("ten reshuffles never changed the serving order")
	}
}

func TestBatchesValidation(t *testing.T) {
	if _, err := NewBatches(nil, 2, false, 1); err == nil {
		t.Error("nil set accepted")
	}
	if _, err := NewBatches(loadBatchSet(t), 0, false, 1); err == nil {
		t.Error("zero batch size accepted")
	}

	b, err := NewBatches(loadBatchSet(t), 3, false, 1)
	if err != nil {
		t.Fatalf("NewBatches: %v", err)
	}
	// Four examples in threes: one whole batch, the tail is not served.
	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}
	if _, _, err := b.Batch(1); err == nil {
		t.Error("out-of-range batch served")
	}
}

type closeSpy struct {
	*EncodedGenome
	closed bool
}

func (c *closeSpy) Close() error {
	c.closed = true
	return nil
}

func TestBatchesClose(t *testing.T) {
	spy := &closeSpy{EncodedGenome: testGenome()}
	set, err := ReadIntervals(strings.NewReader(batchDoc), spy, Options{})
	if err != nil {
		t.Fatalf("ReadIntervals: %v", err)
	}
	b, err := NewBatches(set, 2, false, 1)
	if err != nil {
		t.Fatalf("NewBatches: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !spy.closed {
		t.Fatal("Close did not reach the reference sequence")
	}
}
