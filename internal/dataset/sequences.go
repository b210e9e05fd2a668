// Package dataset loads labeled genomic interval examples and serves them
// as encoded model inputs, singly or in shuffled batches.
package dataset

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownChrom         = errors.New("unknown chromosome")
	ErrBadStrand            = errors.New("invalid strand")
	ErrBadPadding           = errors.New("invalid padding amount")
	ErrInsufficientExamples = errors.New("not enough examples")
)

// ReferenceSequence resolves genomic coordinates into encoded sequence
// matrices of one row per position.
type ReferenceSequence interface {
	SequenceFromCoords(chrom string, start, end int, strand string) ([][]float64, error)
	Close() error
}

const alphabetSize = 4

// Column order is A, C, G, T: complementing a base reverses its one-hot
// row, which keeps reverse complements a pure slice reversal.
var baseIndex = map[byte]int{
	'A': 0, 'a': 0,
	'C': 1, 'c': 1,
	'G': 2, 'g': 2,
	'T': 3, 't': 3,
}

// EncodedGenome is an in-memory reference: chromosome name to base string.
// Unknown bases encode as zero rows; coordinates outside the chromosome
// are zero-padded rather than rejected.
type EncodedGenome struct {
	chroms map[string]string
}

func NewEncodedGenome(chroms map[string]string) *EncodedGenome {
	cp := make(map[string]string, len(chroms))
	for name, seq := range chroms {
		cp[name] = seq
	}
	return &EncodedGenome{chroms: cp}
}

func (g *EncodedGenome) SequenceFromCoords(chrom string, start, end int, strand string) ([][]float64, error) {
	seq, ok := g.chroms[chrom]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChrom, chrom)
	}
	if end < start {
		return nil, fmt.Errorf("interval end %d before start %d", end, start)
	}
	if strand != "+" && strand != "-" {
		return nil, fmt.Errorf("%w: %q", ErrBadStrand, strand)
	}

	out := make([][]float64, end-start)
	for i := range out {
		row := make([]float64, alphabetSize)
		if p := start + i; p >= 0 && p < len(seq) {
			if idx, ok := baseIndex[seq[p]]; ok {
				row[idx] = 1
			}
		}
		out[i] = row
	}
	if strand == "-" {
		reverseComplement(out)
	}
	return out, nil
}

func (g *EncodedGenome) Close() error { return nil }

func reverseComplement(rows [][]float64) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	for _, row := range rows {
		for i, j := 0, len(row)-1; i < j; i, j = i+1, j-1 {
			row[i], row[j] = row[j], row[i]
		}
	}
}
