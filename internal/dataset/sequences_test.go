package dataset

import (
	"errors"
	"reflect"
	"testing"
)

var (
	rowA = []float64{1, 0, 0, 0}
	rowC = []float64{0, 1, 0, 0}
	rowG = []float64{0, 0, 1, 0}
	rowT = []float64{0, 0, 0, 1}
	rowN = []float64{0, 0, 0, 0}
)

func TestEncodedGenomeForwardStrand(t *testing.T) {
	g := NewEncodedGenome(map[string]string{"chr1": "acgt"})
	got, err := g.SequenceFromCoords("chr1", 0, 4, "+")
	if err != nil {
		t.Fatalf("SequenceFromCoords: %v", err)
	}
	want := [][]float64{rowA, rowC, rowG, rowT}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("encoded %v, want %v", got, want)
	}
}

func TestEncodedGenomeReverseComplement(t *testing.T) {
	g := NewEncodedGenome(map[string]string{"chr1": "AACG"})
	got, err := g.SequenceFromCoords("chr1", 0, 4, "-")
	if err != nil {
		t.Fatalf("SequenceFromCoords: %v", err)
	}
	// AACG reversed is GCAA, complemented CGTT.
	want := [][]float64{rowC, rowG, rowT, rowT}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("encoded %v, want %v", got, want)
	}
}

func TestEncodedGenomePadsOutOfRangeCoords(t *testing.T) {
	g := NewEncodedGenome(map[string]string{"chr1": "ACGT"})

	got, err := g.SequenceFromCoords("chr1", -2, 2, "+")
	if err != nil {
		t.Fatalf("left overhang: %v", err)
	}
	want := [][]float64{rowN, rowN, rowA, rowC}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("left overhang %v, want %v", got, want)
	}

	got, err = g.SequenceFromCoords("chr1", 2, 6, "+")
	if err != nil {
		t.Fatalf("right overhang: %v", err)
	}
	want = [][]float64{rowG, rowT, rowN, rowN}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("right overhang %v, want %v", got, want)
	}
}

func TestEncodedGenomeUnknownBase(t *testing.T) {
	g := NewEncodedGenome(map[string]string{"chr1": "ANGT"})
	got, err := g.SequenceFromCoords("chr1", 0, 2, "+")
	if err != nil {
		t.Fatalf("SequenceFromCoords: %v", err)
	}
	if !reflect.DeepEqual(got[1], rowN) {
		t.Fatalf("N encoded as %v, want zero row", got[1])
	}
}

func TestEncodedGenomeErrors(t *testing.T) {
	g := NewEncodedGenome(map[string]string{"chr1": "ACGT"})

	if _, err := g.SequenceFromCoords("chrX", 0, 4, "+"); !errors.Is(err, ErrUnknownChrom) {
		t.Errorf("unknown chrom: %v, want ErrUnknownChrom", err)
	}
	if _, err := g.SequenceFromCoords("chr1", 0, 4, "."); !errors.Is(err, ErrBadStrand) {
		t.Errorf("bad strand: %v, want ErrBadStrand", err)
	}
	if _, err := g.SequenceFromCoords("chr1", 3, 1, "+"); err == nil {
		t.Error("inverted interval succeeded")
	}
}
