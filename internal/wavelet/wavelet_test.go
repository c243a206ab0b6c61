package wavelet

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-lcms/internal/testutil"
)

func TestMexicanHatProperties(t *testing.T) {
	for _, scale := range []float64{1, 2, 4, 8} {
		kernel, err := MexicanHat(scale)
		if err != nil {
			t.Fatalf("scale %g: %v", scale, err)
		}

		if len(kernel)%2 != 1 {
			t.Fatalf("scale %g: kernel length %d is even", scale, len(kernel))
		}
		half := len(kernel) / 2

		// Symmetric around the center.
		for i := 0; i <= half; i++ {
			if d := math.Abs(kernel[half-i] - kernel[half+i]); d > 1e-15 {
				t.Fatalf("scale %g: asymmetric at offset %d (diff %g)", scale, i, d)
			}
		}

		// The maximum sits at the center and is positive.
		for i, v := range kernel {
			if v > kernel[half] {
				t.Fatalf("scale %g: kernel[%d]=%g exceeds center %g", scale, i, v, kernel[half])
			}
		}
		if kernel[half] <= 0 {
			t.Fatalf("scale %g: center value %g not positive", scale, kernel[half])
		}

		// Zero mean: the sampled sum vanishes up to discretization.
		var sum float64
		for _, v := range kernel {
			sum += v
		}
		if math.Abs(sum) > 1e-2*kernel[half] {
			t.Errorf("scale %g: kernel sum %g not near zero", scale, sum)
		}

		testutil.RequireFinite(t, kernel)
	}
}

func TestMexicanHatInvalidScale(t *testing.T) {
	for _, scale := range []float64{0, -1} {
		if _, err := MexicanHat(scale); !errors.Is(err, ErrInvalidScale) {
			t.Errorf("scale %g: expected ErrInvalidScale, got %v", scale, err)
		}
	}
}

func TestScales(t *testing.T) {
	tests := []struct {
		name               string
		minW, maxW, spacing float64
		wantFirst, wantLast float64
	}{
		{"default range", 5, 30, 1, 3, 15},
		{"sub-second spacing", 10, 60, 0.5, 10, 60},
		{"narrow range", 4, 6, 1, 2, 3},
		{"degenerate range", 5, 5, 1, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scales, err := Scales(tt.minW, tt.maxW, tt.spacing)
			if err != nil {
				t.Fatalf("Scales: %v", err)
			}
			if len(scales) == 0 {
				t.Fatal("empty ladder")
			}
			if len(scales) > 13 {
				t.Fatalf("ladder has %d rungs, cap is ~12", len(scales))
			}
			if scales[0] != tt.wantFirst {
				t.Errorf("first scale %g, want %g", scales[0], tt.wantFirst)
			}
			if last := scales[len(scales)-1]; last != tt.wantLast {
				t.Errorf("last scale %g, want %g", last, tt.wantLast)
			}
			for i := 1; i < len(scales); i++ {
				if scales[i] <= scales[i-1] {
					t.Fatalf("ladder not strictly increasing: %v", scales)
				}
			}
		})
	}
}

func TestScalesInvalid(t *testing.T) {
	cases := []struct{ minW, maxW, spacing float64 }{
		{0, 30, 1},
		{5, 0, 1},
		{30, 5, 1},
		{5, 30, 0},
	}
	for _, c := range cases {
		if _, err := Scales(c.minW, c.maxW, c.spacing); err == nil {
			t.Errorf("Scales(%g, %g, %g): expected error", c.minW, c.maxW, c.spacing)
		}
	}
}

func TestConvolveDirectMatchesFFT(t *testing.T) {
	signal := make([]float64, 300)
	for i := range signal {
		d := float64(i - 150)
		signal[i] = 1000*math.Exp(-d*d/(2*16)) + 3*math.Sin(float64(i)*0.7)
	}

	// A kernel long enough that Transform would take the FFT path.
	kernel, err := MexicanHat(13)
	if err != nil {
		t.Fatalf("MexicanHat: %v", err)
	}
	if len(kernel) <= directThreshold {
		t.Fatalf("kernel length %d does not exercise the FFT path", len(kernel))
	}

	direct := convolveDirect(signal, kernel)
	viaFFT, err := convolveFFT(signal, kernel)
	if err != nil {
		t.Fatalf("convolveFFT: %v", err)
	}

	diff, err := testutil.MaxAbsDiff(direct, viaFFT)
	if err != nil {
		t.Fatalf("MaxAbsDiff: %v", err)
	}
	// Absolute tolerance scaled to the signal magnitude.
	if diff > 1e-6*1000 {
		t.Fatalf("direct and FFT convolution disagree: max diff %g", diff)
	}
}

func TestTransformShape(t *testing.T) {
	signal := make([]float64, 120)
	for i := range signal {
		d := float64(i - 60)
		signal[i] = math.Exp(-d * d / (2 * 25))
	}

	scales := []float64{2, 5, 13} // short and long kernels, both paths
	coeffs, err := Transform(signal, scales)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(coeffs) != len(scales) {
		t.Fatalf("got %d rows, want %d", len(coeffs), len(scales))
	}
	for i, row := range coeffs {
		if len(row) != len(signal) {
			t.Fatalf("row %d: length %d, want %d (same mode)", i, len(row), len(signal))
		}
		testutil.RequireFinite(t, row)
	}
}

// TestTransformPeakResponse checks that the coefficient maximum sits at
// the peak apex and that the best-responding scale tracks the peak
// width.
func TestTransformPeakResponse(t *testing.T) {
	const (
		n     = 400
		apex  = 200
		sigma = 5.0
	)
	signal := make([]float64, n)
	for i := range signal {
		d := float64(i - apex)
		signal[i] = 1000 * math.Exp(-d*d/(2*sigma*sigma))
	}

	scales := []float64{2, 3, 5, 8, 13}
	coeffs, err := Transform(signal, scales)
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}

	bestScale, bestPos, bestVal := 0.0, 0, math.Inf(-1)
	for si, row := range coeffs {
		for i, v := range row {
			if v > bestVal {
				bestVal, bestPos, bestScale = v, i, scales[si]
			}
		}
	}

	if bestPos < apex-1 || bestPos > apex+1 {
		t.Errorf("coefficient maximum at %d, want near %d", bestPos, apex)
	}
	// With the 1/sqrt(scale) normalization the response of a Gaussian
	// of width sigma peaks near scale sqrt(5)*sigma, about 11 here.
	if bestScale < 8 {
		t.Errorf("best scale %g, want >= 8 for sigma %g", bestScale, sigma)
	}
}

func TestTransformEmptySignal(t *testing.T) {
	if _, err := Transform(nil, []float64{2}); !errors.Is(err, ErrEmptySignal) {
		t.Fatalf("expected ErrEmptySignal, got %v", err)
	}
}
