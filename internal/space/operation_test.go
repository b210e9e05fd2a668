package space

import (
	"errors"
	"testing"
)

func TestNewOperationRequiresType(t *testing.T) {
	if _, err := NewOperation("", nil); !errors.Is(err, ErrEmptyOperationType) {
		t.Fatalf("expected ErrEmptyOperationType, got %v", err)
	}
	if _, err := NewOperation("   ", Attrs{"units": 4}); !errors.Is(err, ErrEmptyOperationType) {
		t.Fatalf("expected ErrEmptyOperationType for blank name, got %v", err)
	}
}

func TestOperationEqualIgnoresSourceNumericType(t *testing.T) {
	a := MustOperation("conv1d", Attrs{"filters": 64, "kernel_size": 8})
	b := MustOperation("conv1d", Attrs{"kernel_size": float64(8), "filters": int64(64)})
	if !a.Equal(b) {
		t.Fatalf("operations should be equal: %v vs %v", a, b)
	}
}

func TestOperationEqualDistinguishes(t *testing.T) {
	base := MustOperation("dense", Attrs{"units": 10, "activation": "relu"})
	cases := []struct {
		name  string
		other Operation
	}{
		{"type", MustOperation("conv1d", Attrs{"units": 10, "activation": "relu"})},
		{"value", MustOperation("dense", Attrs{"units": 20, "activation": "relu"})},
		{"key", MustOperation("dense", Attrs{"units": 10, "act": "relu"})},
		{"extra", MustOperation("dense", Attrs{"units": 10, "activation": "relu", "use_bias": true})},
	}
	for _, tc := range cases {
		if base.Equal(tc.other) {
			t.Fatalf("%s: %v should differ from %v", tc.name, base, tc.other)
		}
	}
}

func TestOperationString(t *testing.T) {
	op := MustOperation("conv1d", Attrs{"kernel_size": 8, "filters": 64})
	if got, want := op.String(), "conv1d(filters=64, kernel_size=8)"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	bare := MustOperation("flatten", nil)
	if got := bare.String(); got != "flatten" {
		t.Fatalf("String() = %q, want %q", got, "flatten")
	}
}

func TestOperationTypedGetters(t *testing.T) {
	op := MustOperation("conv1d", Attrs{
		"filters":    64,
		"rate":       0.25,
		"activation": "relu",
		"use_bias":   true,
	})
	if v, ok := op.IntAttr("filters"); !ok || v != 64 {
		t.Fatalf("IntAttr(filters) = %d, %v", v, ok)
	}
	if v, ok := op.FloatAttr("rate"); !ok || v != 0.25 {
		t.Fatalf("FloatAttr(rate) = %v, %v", v, ok)
	}
	if v, ok := op.StringAttr("activation"); !ok || v != "relu" {
		t.Fatalf("StringAttr(activation) = %q, %v", v, ok)
	}
	if v, ok := op.BoolAttr("use_bias"); !ok || !v {
		t.Fatalf("BoolAttr(use_bias) = %v, %v", v, ok)
	}
	if _, ok := op.Attr("missing"); ok {
		t.Fatal("Attr(missing) should report absence")
	}
}

func TestOperationSliceAttrIsCopied(t *testing.T) {
	op := MustOperation("dense", Attrs{"dims": []any{1, 2, 3}})
	v, ok := op.Attr("dims")
	if !ok {
		t.Fatal("Attr(dims) missing")
	}
	v.([]any)[0] = float64(99)
	w, _ := op.Attr("dims")
	if w.([]any)[0] != float64(1) {
		t.Fatalf("operation attribute mutated through accessor copy: %v", w)
	}
}
