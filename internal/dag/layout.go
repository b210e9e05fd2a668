package dag

import (
	"errors"
	"fmt"
	"math/rand"

	"daedalus/internal/space"
)

var (
	ErrSequenceLength = errors.New("architecture sequence length mismatch")
	ErrOpIndex        = errors.New("operation index out of range")
	ErrBitValue       = errors.New("connectivity bit must be 0 or 1")
	ErrNoInput        = errors.New("layer received no inputs")
	ErrNameCollision  = errors.New("computation node name collision")
	ErrEmptySpace     = errors.New("model space has no usable layers")
)

// Sequence is one flat architecture encoding: per-layer segments of
// operation index plus connectivity bits, then output-block segments when
// enabled. The Layout owns its interpretation.
type Sequence []int

func (s Sequence) Clone() Sequence {
	return append(Sequence(nil), s...)
}

type LayoutConfig struct {
	// NumInputs is the number of declared input nodes; input-block bits
	// are emitted only when WithInputBlocks is set.
	NumInputs          int
	WithInputBlocks    bool
	WithSkipConnection bool
	// OutputBlocks is the number of output nodes with selectable feeders;
	// zero disables the closing segments.
	OutputBlocks int
}

// Layout precomputes the segmentation of architecture sequences over a
// model space: where each layer's fields live and how long a valid
// sequence is. Decoders, validators, and samplers all share it.
type Layout struct {
	cfg     LayoutConfig
	counts  []int
	offsets []int
	length  int
}

func NewLayout(s *space.ModelSpace, cfg LayoutConfig) (*Layout, error) {
	if s == nil || s.Len() == 0 {
		return nil, ErrEmptySpace
	}
	if cfg.WithInputBlocks && cfg.NumInputs < 1 {
		return nil, errors.New("input blocks require at least one declared input")
	}
	if cfg.NumInputs < 0 || cfg.OutputBlocks < 0 {
		return nil, errors.New("negative layout dimensions")
	}

	l := &Layout{cfg: cfg}
	pos := 0
	for i := 0; i < s.Len(); i++ {
		n, err := s.CandidateCount(i)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: layer %d has no candidates", ErrEmptySpace, i)
		}
		l.counts = append(l.counts, n)
		l.offsets = append(l.offsets, pos)
		pos += l.segmentLen(i)
	}
	l.length = pos + cfg.OutputBlocks*len(l.counts)
	return l, nil
}

func (l *Layout) segmentLen(layer int) int {
	n := 1
	if l.cfg.WithInputBlocks {
		n += l.cfg.NumInputs
	}
	if l.cfg.WithSkipConnection {
		n += layer
	}
	return n
}

func (l *Layout) Len() int       { return l.length }
func (l *Layout) NumLayers() int { return len(l.counts) }

// Validate fails fast on foreign sequences: wrong length, an operation
// index outside its layer's candidate range, or a non-bit where a
// connectivity bit belongs. It never clamps.
func (l *Layout) Validate(seq Sequence) error {
	if len(seq) != l.length {
		return fmt.Errorf("%w: got %d, want %d", ErrSequenceLength, len(seq), l.length)
	}
	for i := range l.counts {
		off := l.offsets[i]
		if op := seq[off]; op < 0 || op >= l.counts[i] {
			return fmt.Errorf("%w: layer %d index %d (have %d candidates)", ErrOpIndex, i, op, l.counts[i])
		}
		for _, b := range seq[off+1 : off+l.segmentLen(i)] {
			if b != 0 && b != 1 {
				return fmt.Errorf("%w: layer %d got %d", ErrBitValue, i, b)
			}
		}
	}
	for o := 0; o < l.cfg.OutputBlocks; o++ {
		for _, b := range l.outputSegment(seq, o) {
			if b != 0 && b != 1 {
				return fmt.Errorf("%w: output block %d got %d", ErrBitValue, o, b)
			}
		}
	}
	return nil
}

// OpIndex reads the chosen candidate index for a layer. The sequence must
// already be validated.
func (l *Layout) OpIndex(seq Sequence, layer int) int {
	return seq[l.offsets[layer]]
}

// InputBits reads the input-block selector bits for a layer, one per
// declared input. Nil when input blocks are disabled.
func (l *Layout) InputBits(seq Sequence, layer int) []int {
	if !l.cfg.WithInputBlocks {
		return nil
	}
	off := l.offsets[layer] + 1
	return seq[off : off+l.cfg.NumInputs]
}

// SkipBits reads the skip-connection bits for a layer, one per prior
// layer. Nil when skip connections are disabled; empty for layer zero.
func (l *Layout) SkipBits(seq Sequence, layer int) []int {
	if !l.cfg.WithSkipConnection {
		return nil
	}
	off := l.offsets[layer] + 1
	if l.cfg.WithInputBlocks {
		off += l.cfg.NumInputs
	}
	return seq[off : off+layer]
}

// OutputBits reads the feeder selector for one output block, one bit per
// layer. Output blocks are laid out outputs-major after all layer
// segments.
func (l *Layout) OutputBits(seq Sequence, output int) []int {
	return l.outputSegment(seq, output)
}

func (l *Layout) outputSegment(seq Sequence, output int) []int {
	base := l.length - l.cfg.OutputBlocks*len(l.counts)
	off := base + output*len(l.counts)
	return seq[off : off+len(l.counts)]
}

// Sample draws a uniformly random, layout-valid sequence. Validity here is
// structural; a strategy may still reject it (for example a layer with no
// selected inputs).
func (l *Layout) Sample(rng *rand.Rand) Sequence {
	seq := make(Sequence, 0, l.length)
	for i := range l.counts {
		seq = append(seq, rng.Intn(l.counts[i]))
		bits := l.segmentLen(i) - 1
		for b := 0; b < bits; b++ {
			seq = append(seq, rng.Intn(2))
		}
	}
	for o := 0; o < l.cfg.OutputBlocks*len(l.counts); o++ {
		seq = append(seq, rng.Intn(2))
	}
	return seq
}
