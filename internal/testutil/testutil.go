// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common numeric assertion helpers to reduce code
// duplication across test files and improve test maintainability.
package testutil

import (
	"math"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertWithinRel checks that got is within relative tolerance tol of want.
// A zero want falls back to an absolute comparison against tol.
func AssertWithinRel(t *testing.T, got, want, tol float64) {
	t.Helper()
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Fatalf("got non-finite value %g, want %g", got, want)
	}
	if want == 0 {
		if math.Abs(got) > tol {
			t.Fatalf("got %g, want 0 within %g", got, tol)
		}
		return
	}
	if rel := math.Abs(got-want) / math.Abs(want); rel > tol {
		t.Fatalf("got %g, want %g (relative error %.3g > %.3g)", got, want, rel, tol)
	}
}

// AssertWithinAbs checks that got is within absolute tolerance tol of want.
func AssertWithinAbs(t *testing.T, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Fatalf("got %g, want %g within %g", got, want, tol)
	}
}

// LogSpacedValues returns n values logarithmically spaced over [lo, hi] for
// use as test grids. Panics on invalid bounds; fixtures control their input.
func LogSpacedValues(lo, hi float64, n int) []float64 {
	if !(lo > 0) || !(hi > lo) || n < 2 {
		panic("testutil: invalid log grid")
	}
	vals := make([]float64, n)
	step := math.Pow(hi/lo, 1/float64(n-1))
	v := lo
	for i := range vals {
		vals[i] = v
		v *= step
	}
	vals[n-1] = hi
	return vals
}
