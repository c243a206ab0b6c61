package chromatogram

import (
	"errors"
	"testing"

	"github.com/cwbudde/algo-lcms/internal/testutil"
	"github.com/cwbudde/algo-lcms/lcms/scan"
)

func testMemory(t *testing.T) *scan.Memory {
	t.Helper()
	m := scan.NewMemory()
	scans := []scan.Scan{
		{SampleID: 1, RetentionTime: 10, Points: []scan.Point{{MZ: 100, Intensity: 500}, {MZ: 200, Intensity: 1000}}},
		{SampleID: 1, RetentionTime: 20, Points: []scan.Point{{MZ: 100, Intensity: 600}, {MZ: 200, Intensity: 400}}},
		{SampleID: 1, RetentionTime: 30, Points: []scan.Point{{MZ: 200, Intensity: 900}}},
	}
	for _, s := range scans {
		if err := m.AddScan(s); err != nil {
			t.Fatalf("AddScan: %v", err)
		}
	}
	return m
}

func TestExtract(t *testing.T) {
	e := NewExtractor(testMemory(t))

	tests := []struct {
		name string
		mz   scan.Range
		agg  Aggregation
		want []float64
	}{
		{"total ion", scan.Everything(), AggregationSum, []float64{1500, 1000, 900}},
		{"base peak", scan.Everything(), AggregationMax, []float64{1000, 600, 900}},
		{"narrow window sum", scan.Range{Min: 99, Max: 101}, AggregationSum, []float64{500, 600, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := e.Extract(1, tt.mz, scan.Everything(), tt.agg)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if c.Len() != 3 {
				t.Fatalf("got %d points, want 3 (rt axis must match the scan grid)", c.Len())
			}
			testutil.RequireSliceNearlyEqual(t, c.Intensity, tt.want, 1e-12)
			testutil.RequireSliceNearlyEqual(t, c.RT, []float64{10, 20, 30}, 0)
		})
	}
}

func TestExtractUnknownAggregation(t *testing.T) {
	e := NewExtractor(testMemory(t))
	_, err := e.Extract(1, scan.Everything(), scan.Everything(), Aggregation(42))
	if !errors.Is(err, ErrUnknownAggregation) {
		t.Fatalf("expected ErrUnknownAggregation, got %v", err)
	}
}

func TestExtractPropagatesReadError(t *testing.T) {
	e := NewExtractor(testMemory(t))
	_, err := e.TotalIon(99)
	if !errors.Is(err, scan.ErrUnknownSample) {
		t.Fatalf("expected ErrUnknownSample, got %v", err)
	}
}

func TestTotalIonBasePeakAgree(t *testing.T) {
	// With a single point per scan, sum and max coincide.
	m := scan.NewMemory()
	for i, v := range []float64{3, 7, 5} {
		err := m.AddScan(scan.Scan{
			SampleID:      4,
			RetentionTime: float64(i),
			Points:        []scan.Point{{MZ: 321, Intensity: v}},
		})
		if err != nil {
			t.Fatalf("AddScan: %v", err)
		}
	}

	e := NewExtractor(m)
	tic, err := e.TotalIon(4)
	if err != nil {
		t.Fatalf("TotalIon: %v", err)
	}
	bpc, err := e.BasePeak(4)
	if err != nil {
		t.Fatalf("BasePeak: %v", err)
	}
	diff, err := testutil.MaxAbsDiff(tic.Intensity, bpc.Intensity)
	if err != nil {
		t.Fatalf("MaxAbsDiff: %v", err)
	}
	if diff != 0 {
		t.Errorf("sum and max disagree on single-point scans: max diff %g", diff)
	}
}
