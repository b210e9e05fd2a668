package dataset

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

const intervalDoc = `# toy intervals
chr1	0	4	+	1
chr1	2	6	-	0

chr2	1	5	+	1
`

func testGenome() *EncodedGenome {
	return NewEncodedGenome(map[string]string{
		"chr1": "ACGTACGTAC",
		"chr2": "TTGGCCAATT",
	})
}

func loadTestSet(t *testing.T, opts Options) *IntervalSet {
	t.Helper()
	set, err := ReadIntervals(strings.NewReader(intervalDoc), testGenome(), opts)
	if err != nil {
		t.Fatalf("ReadIntervals: %v", err)
	}
	return set
}

func TestReadIntervals(t *testing.T) {
	set := loadTestSet(t, Options{})
	if set.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", set.Len())
	}

	iv, err := set.Interval(2)
	if err != nil {
		t.Fatalf("Interval: %v", err)
	}
	want := Interval{Chrom: "chr2", Start: 1, End: 5, Strand: "+"}
	if iv != want {
		t.Fatalf("Interval(2) = %+v, want %+v", iv, want)
	}

	x, y, err := set.Example(0)
	if err != nil {
		t.Fatalf("Example: %v", err)
	}
	if len(x) != 4 {
		t.Fatalf("example rows %d, want 4", len(x))
	}
	if !reflect.DeepEqual(x[0], rowA) {
		t.Fatalf("first row %v, want %v", x[0], rowA)
	}
	if !reflect.DeepEqual(y, []float64{1}) {
		t.Fatalf("label %v, want [1]", y)
	}
}

func TestReadIntervalsParseErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"missing columns", "chr1\t0\t4\n", "row 1"},
		{"bad start", "# head\nchr1\tzero\t4\t+\n", "row 2"},
		{"bad end", "chr1\t0\tfour\t+\n", "row 1"},
		{"bad label", "chr1\t0\t4\t+\tmaybe\n", "row 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadIntervals(strings.NewReader(tc.doc), testGenome(), Options{})
			if err == nil {
				t.Fatal("malformed document parsed")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not name %q", err, tc.want)
			}
		})
	}

	if _, err := ReadIntervals(strings.NewReader(intervalDoc), nil, Options{}); err == nil {
		t.Fatal("nil reference accepted")
	}
}

func TestReadIntervalsNExamples(t *testing.T) {
	_, err := ReadIntervals(strings.NewReader(intervalDoc), testGenome(), Options{NExamples: 5})
	if !errors.Is(err, ErrInsufficientExamples) {
		t.Fatalf("NExamples over capacity: %v, want ErrInsufficientExamples", err)
	}

	full := loadTestSet(t, Options{})
	sub := loadTestSet(t, Options{NExamples: 2, Seed: 7})
	if sub.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", sub.Len())
	}

	// Every kept example exists in the full set and file order is
	// preserved.
	last := -1
	for i := 0; i < sub.Len(); i++ {
		iv, err := sub.Interval(i)
		if err != nil {
			t.Fatalf("Interval: %v", err)
		}
		pos := -1
		for j := 0; j < full.Len(); j++ {
			if orig, _ := full.Interval(j); orig == iv {
				pos = j
				break
			}
		}
		if pos < 0 {
			t.Fatalf("subsampled interval %+v not in source", iv)
		}
		if pos <= last {
			t.Fatalf("subsample out of file order: %d after %d", pos, last)
		}
		last = pos
	}

	same := loadTestSet(t, Options{NExamples: 3})
	if same.Len() != 3 {
		t.Fatalf("exact NExamples trimmed to %d", same.Len())
	}
}

func TestIntervalSetPads(t *testing.T) {
	set := loadTestSet(t, Options{})

	if err := set.SetPad(-1); !errors.Is(err, ErrBadPadding) {
		t.Fatalf("SetPad(-1): %v, want ErrBadPadding", err)
	}
	if err := set.SetLeftPad(-3); !errors.Is(err, ErrBadPadding) {
		t.Fatalf("SetLeftPad(-3): %v, want ErrBadPadding", err)
	}
	if _, err := ReadIntervals(strings.NewReader(intervalDoc), testGenome(), Options{Pad: -2}); !errors.Is(err, ErrBadPadding) {
		t.Fatalf("Options.Pad = -2: %v, want ErrBadPadding", err)
	}

	if err := set.SetLeftPad(2); err != nil {
		t.Fatalf("SetLeftPad: %v", err)
	}
	if err := set.SetRightPad(1); err != nil {
		t.Fatalf("SetRightPad: %v", err)
	}

	// chr1[0,4) padded to [-2,5): two zero rows then ACGTA.
	x, _, err := set.Example(0)
	if err != nil {
		t.Fatalf("Example: %v", err)
	}
	if len(x) != 7 {
		t.Fatalf("padded example rows %d, want 7", len(x))
	}
	if !reflect.DeepEqual(x[0], rowN) || !reflect.DeepEqual(x[1], rowN) {
		t.Fatalf("left padding rows %v %v, want zero rows", x[0], x[1])
	}
	if !reflect.DeepEqual(x[2], rowA) {
		t.Fatalf("first sequence row %v, want %v", x[2], rowA)
	}

	padded := loadTestSet(t, Options{Pad: 3})
	if padded.LeftPad() != 3 || padded.RightPad() != 3 {
		t.Fatalf("pads %d/%d, want 3/3", padded.LeftPad(), padded.RightPad())
	}
}

func TestExampleOutOfRange(t *testing.T) {
	set := loadTestSet(t, Options{})
	if _, _, err := set.Example(3); err == nil {
		t.Fatal("out-of-range example resolved")
	}
	if _, _, err := set.Example(-1); err == nil {
		t.Fatal("negative example resolved")
	}
}
