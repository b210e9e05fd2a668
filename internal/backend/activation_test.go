package backend

import (
	"errors"
	"math"
	"testing"
)

func TestRegisterActivationDuplicate(t *testing.T) {
	defer resetActivationRegistryForTests()
	if err := RegisterActivation("custom", func(x float64) float64 { return x * 2 }); err != nil {
		t.Fatalf("RegisterActivation: %v", err)
	}
	err := RegisterActivation("custom", func(x float64) float64 { return x })
	if !errors.Is(err, ErrActivationExists) {
		t.Fatalf("duplicate err = %v, want ErrActivationExists", err)
	}
}

func TestGetActivationNotFound(t *testing.T) {
	if _, err := GetActivation("nope"); !errors.Is(err, ErrActivationNotFound) {
		t.Fatalf("err = %v, want ErrActivationNotFound", err)
	}
}

func TestBuiltInActivations(t *testing.T) {
	relu, err := GetActivation("relu")
	if err != nil {
		t.Fatalf("GetActivation(relu): %v", err)
	}
	if relu(-1) != 0 || relu(2) != 2 {
		t.Fatalf("relu misbehaves: %v, %v", relu(-1), relu(2))
	}
	sigmoid, err := GetActivation("sigmoid")
	if err != nil {
		t.Fatalf("GetActivation(sigmoid): %v", err)
	}
	if got := sigmoid(0); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("sigmoid(0) = %v, want 0.5", got)
	}
}

func TestApplyActivationSoftmax(t *testing.T) {
	v := []float64{1, 2, 3}
	if err := ApplyActivation("softmax", v); err != nil {
		t.Fatalf("ApplyActivation(softmax): %v", err)
	}
	var sum float64
	for _, x := range v {
		if x <= 0 {
			t.Fatalf("softmax produced non-positive %v", v)
		}
		sum += x
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("softmax sums to %v, want 1", sum)
	}
	if !(v[2] > v[1] && v[1] > v[0]) {
		t.Fatalf("softmax broke ordering: %v", v)
	}
}

func TestApplyActivationDefaultsToLinear(t *testing.T) {
	v := []float64{-1.5, 2.5}
	if err := ApplyActivation("", v); err != nil {
		t.Fatalf("ApplyActivation(\"\"): %v", err)
	}
	if v[0] != -1.5 || v[1] != 2.5 {
		t.Fatalf("empty activation changed values: %v", v)
	}
}

func TestListActivationsSorted(t *testing.T) {
	names := ListActivations()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}
