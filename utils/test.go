package utils

import (
	"gonum.org/v1/gonum/floats/scalar"
	"testing"
)

func AssertTrue(t *testing.T, a bool) {
	t.Helper()
	if !a {
		t.Fatalf("Expected true, got false")
	}
}

func AssertEqual(t *testing.T, a interface{}, b interface{}) {
	t.Helper()
	if a != b {
		t.Fatalf("Expected equal: %v != %v\n", a, b)
	}
}

func AssertClose(t *testing.T, a float64, b float64, tolerance float64) {
	t.Helper()
	if !scalar.EqualWithinAbs(a, b, tolerance) {
		t.Fatalf("Expected %v to be within %v of %v\n", a, tolerance, b)
	}
}

func AssertSliceClose(t *testing.T, a []float64, b []float64, tolerance float64) {
	t.Helper()
	if len(a) != len(b) {
		t.Fatalf("Expected equal lengths: %d != %d\n", len(a), len(b))
	}
	for i := range a {
		if !scalar.EqualWithinAbs(a[i], b[i], tolerance) {
			t.Fatalf("Expected equal at %d: %v != %v\n", i, a[i], b[i])
		}
	}
}

// AssertBinary fails unless every value is 0 or 1.
func AssertBinary(t *testing.T, values []float64) {
	t.Helper()
	for i, value := range values {
		if value != 0 && value != 1 {
			t.Fatalf("Expected 0 or 1 at %d, got %v\n", i, value)
		}
	}
}
