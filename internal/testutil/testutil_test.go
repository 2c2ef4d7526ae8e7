package testutil

import (
	"errors"
	"math"
	"testing"
)

func TestAssertNoError_NoFailure(t *testing.T) {
	fakeT := &testing.T{}
	AssertNoError(fakeT, nil)
	if fakeT.Failed() {
		t.Error("expected no failure for nil error")
	}
}

func TestAssertError_NoFailure(t *testing.T) {
	fakeT := &testing.T{}
	AssertError(fakeT, errors.New("boom"))
	if fakeT.Failed() {
		t.Error("expected no failure for non-nil error")
	}
}

func TestAssertWithinRel_NoFailure(t *testing.T) {
	fakeT := &testing.T{}
	AssertWithinRel(fakeT, 1.0005, 1.0, 1e-3)
	AssertWithinRel(fakeT, 1e-26, 1e-26, 1e-12)
	AssertWithinRel(fakeT, 0, 0, 1e-12)
	if fakeT.Failed() {
		t.Error("expected no failure for values within tolerance")
	}
}

func TestAssertWithinAbs_NoFailure(t *testing.T) {
	fakeT := &testing.T{}
	AssertWithinAbs(fakeT, 0.999, 1.0, 0.01)
	if fakeT.Failed() {
		t.Error("expected no failure for values within tolerance")
	}
}

func TestLogSpacedValues(t *testing.T) {
	vals := LogSpacedValues(1, 100, 3)
	if len(vals) != 3 {
		t.Fatalf("expected 3 values, got %d", len(vals))
	}
	if vals[0] != 1 || vals[2] != 100 {
		t.Fatalf("endpoints not preserved: %v", vals)
	}
	if math.Abs(vals[1]-10) > 1e-9 {
		t.Fatalf("expected geometric midpoint 10, got %g", vals[1])
	}

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for invalid bounds")
		}
	}()
	LogSpacedValues(10, 1, 3)
}
