package centwave

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-lcms/internal/testutil"
	"github.com/cwbudde/algo-lcms/lcms/roi"
)

// gaussSpec is one synthetic Gaussian elution profile on an integer
// scan grid.
type gaussSpec struct {
	apex   float64 // apex position in scans
	sigma  float64
	height float64
}

// gaussROI lays the given profiles plus a constant baseline onto one
// ROI at a fixed m/z channel. Gaussian contributions below 0.5
// intensity are dropped, mimicking centroided data; rts is the full
// grid with 1 s spacing.
func gaussROI(mz float64, nScans int, baseline float64, specs []gaussSpec) (roi.ROI, []float64) {
	r := roi.ROI{SampleID: 1}
	rts := make([]float64, nScans)
	for i := 0; i < nScans; i++ {
		rts[i] = float64(i)
		v := baseline
		for _, g := range specs {
			d := float64(i) - g.apex
			y := g.height * math.Exp(-d*d/(2*g.sigma*g.sigma))
			if y >= 0.5 {
				v += y
			}
		}
		if v > 0 {
			r.Points = append(r.Points, roi.Point{ScanIndex: i, MZ: mz, Intensity: v})
		}
	}
	return r, rts
}

func newFinder(t *testing.T, cfg Config) *Finder {
	t.Helper()
	f, err := NewFinder(cfg)
	if err != nil {
		t.Fatalf("NewFinder: %v", err)
	}
	return f
}

func TestFindSingleGaussian(t *testing.T) {
	f := newFinder(t, DefaultConfig())
	r, rts := gaussROI(200.1, 200, 0, []gaussSpec{{apex: 100, sigma: 4, height: 10000}})

	peaks, err := f.Find(r, rts)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(peaks) != 1 {
		t.Fatalf("got %d peaks, want 1", len(peaks))
	}

	p := peaks[0]
	if math.Abs(p.RT-100) > 1 {
		t.Errorf("apex rt %g, want 100 ± 1", p.RT)
	}
	if p.RTMin >= p.RT || p.RTMax <= p.RT {
		t.Errorf("apex %g outside boundaries [%g, %g]", p.RT, p.RTMin, p.RTMax)
	}
	first, last := r.ScanBounds()
	if p.RTMin < rts[first] || p.RTMax > rts[last] {
		t.Errorf("boundaries [%g, %g] escape the roi [%g, %g]", p.RTMin, p.RTMax, rts[first], rts[last])
	}
	if p.MZ != 200.1 || p.MZMin != 200.1 || p.MZMax != 200.1 {
		t.Errorf("mz stats (%g, %g, %g), want all 200.1", p.MZMin, p.MZ, p.MZMax)
	}
	if p.MaxO != 10000 {
		t.Errorf("maxo %g, want 10000 (grid hits the apex exactly)", p.MaxO)
	}
	if p.Into <= 0 {
		t.Errorf("into %g, want > 0", p.Into)
	}
	// The 1%-of-apex boundaries capture almost all of the analytic
	// Gaussian area, about 100265 here.
	testutil.RequireWithinRel(t, p.Into, testutil.GaussArea(10000, 4), 0.05)
	if p.SN < f.cfg.SNRThreshold {
		t.Errorf("sn %g below threshold %g", p.SN, f.cfg.SNRThreshold)
	}
	if p.Filled {
		t.Error("detected peak marked filled")
	}
}

func TestFindTwoPeaks(t *testing.T) {
	f := newFinder(t, DefaultConfig())
	r, rts := gaussROI(200.1, 260, 0, []gaussSpec{
		{apex: 100, sigma: 4, height: 10000},
		{apex: 160, sigma: 4, height: 8000},
	})

	peaks, err := f.Find(r, rts)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(peaks) != 2 {
		t.Fatalf("got %d peaks, want 2", len(peaks))
	}
	// Results are ordered by retention time.
	if math.Abs(peaks[0].RT-100) > 1 || math.Abs(peaks[1].RT-160) > 1 {
		t.Errorf("apexes (%g, %g), want near (100, 160)", peaks[0].RT, peaks[1].RT)
	}
	if peaks[0].RTMax >= peaks[1].RTMin {
		t.Errorf("peak regions overlap: [%g, %g] and [%g, %g]",
			peaks[0].RTMin, peaks[0].RTMax, peaks[1].RTMin, peaks[1].RTMax)
	}
}

// TestWidthConstraint checks both sides of the width filter: every
// emitted peak respects the configured range up to one scan spacing,
// and a peak much narrower than the range is not emitted at all.
func TestWidthConstraint(t *testing.T) {
	const spacing = 1.0

	t.Run("emitted widths in range", func(t *testing.T) {
		for _, sigma := range []float64{2, 4, 6} {
			cfg := DefaultConfig()
			f := newFinder(t, cfg)
			r, rts := gaussROI(300.2, 200, 0, []gaussSpec{{apex: 100, sigma: sigma, height: 10000}})
			peaks, err := f.Find(r, rts)
			if err != nil {
				t.Fatalf("sigma %g: %v", sigma, err)
			}
			for _, p := range peaks {
				w := p.RTMax - p.RTMin
				if w < cfg.PeakWidth[0]-spacing || w > cfg.PeakWidth[1]+spacing {
					t.Errorf("sigma %g: width %g outside [%g, %g] ± spacing",
						sigma, w, cfg.PeakWidth[0], cfg.PeakWidth[1])
				}
			}
		}
	})

	t.Run("too narrow peak rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.PeakWidth = [2]float64{20, 30}
		f := newFinder(t, cfg)
		r, rts := gaussROI(300.2, 200, 0, []gaussSpec{{apex: 100, sigma: 2, height: 10000}})
		peaks, err := f.Find(r, rts)
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		if len(peaks) != 0 {
			t.Fatalf("got %d peaks, want 0 (sigma 2 peak is far below the 20 s minimum)", len(peaks))
		}
	})
}

func TestSNRThreshold(t *testing.T) {
	// A small peak riding on a strong baseline: apex 150, flank noise 50.
	specs := []gaussSpec{{apex: 100, sigma: 4, height: 100}}

	cfg := DefaultConfig()
	cfg.SNRThreshold = 10
	f := newFinder(t, cfg)
	r, rts := gaussROI(400.3, 200, 50, specs)
	peaks, err := f.Find(r, rts)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(peaks) != 0 {
		t.Fatalf("got %d peaks at snr threshold 10, want 0", len(peaks))
	}

	cfg.SNRThreshold = 2
	f = newFinder(t, cfg)
	peaks, err = f.Find(r, rts)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(peaks) != 1 {
		t.Fatalf("got %d peaks at snr threshold 2, want 1", len(peaks))
	}
}

func TestFindNoSignal(t *testing.T) {
	f := newFinder(t, DefaultConfig())

	// Empty roi: nothing to do, no error.
	peaks, err := f.Find(roi.ROI{SampleID: 1}, []float64{0, 1, 2})
	if err != nil || len(peaks) != 0 {
		t.Fatalf("empty roi: got %v, %v; want no peaks, nil error", peaks, err)
	}

	// A short flat trace produces no ridge.
	r := roi.ROI{SampleID: 1}
	for i := 0; i < 10; i++ {
		r.Points = append(r.Points, roi.Point{ScanIndex: i, MZ: 100, Intensity: 5})
	}
	rts := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	peaks, err = f.Find(r, rts)
	if err != nil {
		t.Fatalf("flat trace: %v", err)
	}
	if len(peaks) != 0 {
		t.Fatalf("flat trace: got %d peaks, want 0", len(peaks))
	}
}

func TestFindBadScanGrid(t *testing.T) {
	f := newFinder(t, DefaultConfig())
	r := roi.ROI{SampleID: 1, Points: []roi.Point{
		{ScanIndex: 8, MZ: 100, Intensity: 10},
		{ScanIndex: 9, MZ: 100, Intensity: 10},
		{ScanIndex: 10, MZ: 100, Intensity: 10},
	}}
	_, err := f.Find(r, []float64{0, 1, 2, 3, 4}) // grid too short
	if !errors.Is(err, ErrScanGrid) {
		t.Fatalf("expected ErrScanGrid, got %v", err)
	}
}

func TestFitGaussRefinesApex(t *testing.T) {
	// The true apex sits between two grid points.
	const trueApex = 100.4
	r, rts := gaussROI(500.4, 200, 0, []gaussSpec{{apex: trueApex, sigma: 4, height: 10000}})

	cfg := DefaultConfig()
	f := newFinder(t, cfg)
	peaks, err := f.Find(r, rts)
	if err != nil || len(peaks) != 1 {
		t.Fatalf("without fit: got %v, %v", peaks, err)
	}
	coarse := peaks[0].RT

	cfg.FitGauss = true
	f = newFinder(t, cfg)
	peaks, err = f.Find(r, rts)
	if err != nil || len(peaks) != 1 {
		t.Fatalf("with fit: got %v, %v", peaks, err)
	}
	refined := peaks[0].RT

	if math.Abs(refined-trueApex) > 0.1 {
		t.Errorf("fitted apex %g, want %g ± 0.1", refined, trueApex)
	}
	if math.Abs(refined-trueApex) >= math.Abs(coarse-trueApex) {
		t.Errorf("fit did not improve the apex: coarse %g, refined %g, true %g",
			coarse, refined, trueApex)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"zero min width", func(c *Config) { c.PeakWidth[0] = 0 }},
		{"zero max width", func(c *Config) { c.PeakWidth[1] = 0 }},
		{"inverted range", func(c *Config) { c.PeakWidth = [2]float64{30, 5} }},
		{"negative snr", func(c *Config) { c.SNRThreshold = -1 }},
		{"zero ridge scales", func(c *Config) { c.MinRidgeScales = 0 }},
		{"boundary fraction one", func(c *Config) { c.BoundaryFraction = 1 }},
		{"negative boundary fraction", func(c *Config) { c.BoundaryFraction = -0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mod(&cfg)
			if _, err := NewFinder(cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}
