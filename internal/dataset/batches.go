package dataset

import (
	"errors"
	"fmt"
	"math/rand"
)

// Batches serves an interval set in fixed-size mini-batches through an
// index indirection, so shuffling never reorders the set itself.
type Batches struct {
	set       *IntervalSet
	batchSize int
	shuffle   bool
	index     []int
	rng       *rand.Rand
}

func NewBatches(set *IntervalSet, batchSize int, shuffle bool, seed int64) (*Batches, error) {
	if set == nil {
		return nil, errors.New("interval set is required")
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	b := &Batches{
		set:       set,
		batchSize: batchSize,
		shuffle:   shuffle,
		index:     make([]int, set.Len()),
		rng:       rand.New(rand.NewSource(seedOrDefault(seed))),
	}
	for i := range b.index {
		b.index[i] = i
	}
	return b, nil
}

// Len is the number of whole batches; a trailing partial batch is not
// served.
func (b *Batches) Len() int { return b.set.Len() / b.batchSize }

// Batch stacks the examples of batch i in the current index order. Each
// x row is the example's encoded matrix flattened position-major.
func (b *Batches) Batch(i int) (x, y [][]float64, err error) {
	if i < 0 || i >= b.Len() {
		return nil, nil, fmt.Errorf("batch index %d out of range [0,%d)", i, b.Len())
	}
	x = make([][]float64, 0, b.batchSize)
	y = make([][]float64, 0, b.batchSize)
	for j := i * b.batchSize; j < (i+1)*b.batchSize; j++ {
		ex, label, err := b.set.Example(b.index[j])
		if err != nil {
			return nil, nil, err
		}
		x = append(x, flatten(ex))
		y = append(y, label)
	}
	return x, y, nil
}

// OnEpochEnd reshuffles the serving order when shuffling is enabled.
func (b *Batches) OnEpochEnd() {
	if b.shuffle {
		b.index = b.rng.Perm(b.set.Len())
	}
}

// Close releases the set and its reference sequence.
func (b *Batches) Close() error { return b.set.Close() }

func flatten(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	out := make([]float64, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		out = append(out, row...)
	}
	return out
}
