package testutil

import (
	"fmt"
	"math"
	"testing"
)

// RequireSliceNearlyEqual fails t if got and want differ in length or if
// any element pair exceeds eps (absolute tolerance).
func RequireSliceNearlyEqual(t *testing.T, got, want []float64, eps float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range got {
		diff := math.Abs(got[i] - want[i])
		if diff > eps {
			t.Fatalf("index %d: got %v, want %v (diff %v > eps %v)", i, got[i], want[i], diff, eps)
		}
	}
}

// RequireFinite fails t if any element is NaN or Inf.
func RequireFinite(t *testing.T, data []float64) {
	t.Helper()
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("index %d: non-finite value %v", i, v)
		}
	}
}

// RequireWithinRel fails t if got is not within rel (relative
// tolerance) of want. A zero want requires an exactly zero got.
func RequireWithinRel(t *testing.T, got, want, rel float64) {
	t.Helper()
	if want == 0 {
		if got != 0 {
			t.Fatalf("got %v, want exactly 0", got)
		}
		return
	}
	if d := math.Abs(got-want) / math.Abs(want); d > rel {
		t.Fatalf("got %v, want within %.3g of %v (off by %.3g)", got, rel, want, d)
	}
}

// PPMDiff returns the distance between two m/z values in parts per
// million, measured against ref.
func PPMDiff(mz, ref float64) float64 {
	return math.Abs(mz-ref) / ref * 1e6
}

// GaussArea returns the analytic area under a Gaussian elution profile
// with the given apex height and width, height*sigma*sqrt(2*pi).
func GaussArea(height, sigma float64) float64 {
	return height * sigma * math.Sqrt(2*math.Pi)
}

// MaxAbsDiff returns the maximum absolute difference between two slices.
// Returns an error if the slices differ in length.
func MaxAbsDiff(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("length mismatch: %d vs %d", len(a), len(b))
	}
	maxDiff := 0.0
	for i := range a {
		d := math.Abs(a[i] - b[i])
		if d > maxDiff {
			maxDiff = d
		}
	}
	return maxDiff, nil
}
