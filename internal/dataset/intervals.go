package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
)

const defaultSeed = 1337

// Interval is one example coordinate: a half-open [Start, End) range on a
// chromosome strand.
type Interval struct {
	Chrom  string
	Start  int
	End    int
	Strand string
}

// Options configures interval loading. A zero value keeps every example,
// applies no padding and seeds subsampling with the default seed.
type Options struct {
	// NExamples caps the set to an exact example count. Zero keeps all;
	// asking for more than the file holds is an error, never a silent
	// truncation.
	NExamples int
	Seed      int64
	Pad       int
}

// IntervalSet holds loaded examples and their labels. Padding is mutable
// at runtime so a controller can widen inputs between trainings.
type IntervalSet struct {
	ref      ReferenceSequence
	examples []Interval
	labels   [][]float64
	leftPad  int
	rightPad int
}

// LoadIntervals reads a BED-like TSV of chrom, start, end, strand and any
// number of numeric label columns.
func LoadIntervals(path string, ref ReferenceSequence, opts Options) (*IntervalSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open intervals: %w", err)
	}
	defer f.Close()
	return ReadIntervals(f, ref, opts)
}

// ReadIntervals parses interval examples from in. Lines starting with '#'
// and blank lines are skipped; anything else malformed fails with its row
// number.
func ReadIntervals(in io.Reader, ref ReferenceSequence, opts Options) (*IntervalSet, error) {
	if ref == nil {
		return nil, errors.New("reference sequence is required")
	}

	var examples []Interval
	var labels [][]float64
	scanner := bufio.NewScanner(in)
	row := 0
	for scanner.Scan() {
		row++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			return nil, fmt.Errorf("intervals row %d: have %d columns, want at least 4", row, len(fields))
		}
		start, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, fmt.Errorf("parse intervals start row %d: %w", row, err)
		}
		end, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			return nil, fmt.Errorf("parse intervals end row %d: %w", row, err)
		}
		label := make([]float64, 0, len(fields)-4)
		for _, field := range fields[4:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("parse intervals label row %d: %w", row, err)
			}
			label = append(label, v)
		}
		examples = append(examples, Interval{
			Chrom:  strings.TrimSpace(fields[0]),
			Start:  start,
			End:    end,
			Strand: strings.TrimSpace(fields[3]),
		})
		labels = append(labels, label)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read intervals: %w", err)
	}

	if opts.NExamples > 0 {
		if len(examples) < opts.NExamples {
			return nil, fmt.Errorf("%w: want %d, found %d", ErrInsufficientExamples, opts.NExamples, len(examples))
		}
		if len(examples) > opts.NExamples {
			examples, labels = subsample(examples, labels, opts.NExamples, seedOrDefault(opts.Seed))
		}
	}

	set := &IntervalSet{ref: ref, examples: examples, labels: labels}
	if err := set.SetPad(opts.Pad); err != nil {
		return nil, err
	}
	return set, nil
}

// subsample keeps n examples drawn without replacement, in their original
// file order.
func subsample(examples []Interval, labels [][]float64, n int, seed int64) ([]Interval, [][]float64) {
	rng := rand.New(rand.NewSource(seed))
	idx := rng.Perm(len(examples))[:n]
	sort.Ints(idx)

	keptExamples := make([]Interval, 0, n)
	keptLabels := make([][]float64, 0, n)
	for _, i := range idx {
		keptExamples = append(keptExamples, examples[i])
		keptLabels = append(keptLabels, labels[i])
	}
	return keptExamples, keptLabels
}

func seedOrDefault(seed int64) int64 {
	if seed == 0 {
		return defaultSeed
	}
	return seed
}

func (s *IntervalSet) Len() int { return len(s.examples) }

func (s *IntervalSet) LeftPad() int  { return s.leftPad }
func (s *IntervalSet) RightPad() int { return s.rightPad }

func checkPad(value int) error {
	if value < 0 {
		return fmt.Errorf("%w: %d", ErrBadPadding, value)
	}
	return nil
}

func (s *IntervalSet) SetLeftPad(value int) error {
	if err := checkPad(value); err != nil {
		return err
	}
	s.leftPad = value
	return nil
}

func (s *IntervalSet) SetRightPad(value int) error {
	if err := checkPad(value); err != nil {
		return err
	}
	s.rightPad = value
	return nil
}

// SetPad applies the same padding to both interval sides.
func (s *IntervalSet) SetPad(value int) error {
	if err := checkPad(value); err != nil {
		return err
	}
	s.leftPad = value
	s.rightPad = value
	return nil
}

// Interval returns the unpadded coordinates of example i.
func (s *IntervalSet) Interval(i int) (Interval, error) {
	if i < 0 || i >= len(s.examples) {
		return Interval{}, fmt.Errorf("example index %d out of range [0,%d)", i, len(s.examples))
	}
	return s.examples[i], nil
}

// Example resolves example i through the reference with the current pads
// applied: one encoded row per position, plus the label vector.
func (s *IntervalSet) Example(i int) ([][]float64, []float64, error) {
	if i < 0 || i >= len(s.examples) {
		return nil, nil, fmt.Errorf("example index %d out of range [0,%d)", i, len(s.examples))
	}
	ex := s.examples[i]
	x, err := s.ref.SequenceFromCoords(ex.Chrom, ex.Start-s.leftPad, ex.End+s.rightPad, ex.Strand)
	if err != nil {
		return nil, nil, err
	}
	y := append([]float64(nil), s.labels[i]...)
	return x, y, nil
}

// Close releases the underlying reference sequence.
func (s *IntervalSet) Close() error { return s.ref.Close() }
