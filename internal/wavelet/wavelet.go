// Package wavelet implements the continuous wavelet transform used by
// chromatographic peak detection: a Mexican-hat (second derivative of
// Gaussian) kernel evaluated at a ladder of scales, convolved with the
// intensity signal of a region of interest.
//
// Convolution strategy follows the usual size trade-off: direct
// time-domain convolution for short kernels, FFT-based convolution for
// longer ones.
package wavelet

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
	vecmath "github.com/cwbudde/algo-vecmath"
)

var (
	ErrEmptySignal  = errors.New("wavelet: empty signal")
	ErrInvalidScale = errors.New("wavelet: scale must be > 0")
)

// kernelHalfSupport is the kernel half-width in units of scale. The
// Mexican hat decays below 1e-5 of its peak beyond 5 scales.
const kernelHalfSupport = 5.0

// directThreshold is the kernel length up to which direct convolution
// beats the FFT path.
const directThreshold = 64

// MexicanHat returns the sampled Mexican-hat wavelet at the given
// scale (in samples). The kernel has odd length 2*ceil(5*scale)+1 and
// is normalized by 1/sqrt(scale) so responses are comparable across
// the scale ladder.
func MexicanHat(scale float64) ([]float64, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("%w: %g", ErrInvalidScale, scale)
	}

	half := int(math.Ceil(kernelHalfSupport * scale))
	kernel := make([]float64, 2*half+1)

	// psi(t) = c * (1 - t^2) * exp(-t^2 / 2), c = 2 / (sqrt(3) * pi^(1/4))
	c := 2.0 / (math.Sqrt(3) * math.Pow(math.Pi, 0.25))
	for i := range kernel {
		t := float64(i-half) / scale
		kernel[i] = c * (1 - t*t) * math.Exp(-t*t/2)
	}
	vecmath.ScaleBlock(kernel, kernel, 1/math.Sqrt(scale))
	return kernel, nil
}

// Scales builds an integer scale ladder covering peak widths from
// minWidth to maxWidth seconds on a grid with the given scan spacing.
// A peak of width w corresponds to scale w/(2*spacing): the Mexican
// hat crosses zero at ±1 scale.
func Scales(minWidth, maxWidth, spacing float64) ([]float64, error) {
	if minWidth <= 0 || maxWidth <= 0 || minWidth > maxWidth {
		return nil, fmt.Errorf("wavelet: invalid width range [%g, %g]", minWidth, maxWidth)
	}
	if spacing <= 0 {
		return nil, fmt.Errorf("wavelet: spacing must be > 0: %g", spacing)
	}

	lo := int(math.Max(1, math.Round(minWidth/(2*spacing))))
	hi := int(math.Max(float64(lo), math.Round(maxWidth/(2*spacing))))

	// Cap the ladder at ~12 rungs; beyond that adjacent scales are
	// nearly indistinguishable for ridge linking.
	step := 1
	if n := hi - lo + 1; n > 12 {
		step = (n + 11) / 12
	}

	var scales []float64
	for s := lo; s <= hi; s += step {
		scales = append(scales, float64(s))
	}
	if last := float64(hi); scales[len(scales)-1] != last {
		scales = append(scales, last)
	}
	return scales, nil
}

// Transform computes the CWT of signal at each scale. The result has
// one row per scale, each the same length as the signal ("same" mode
// convolution, kernel centered).
func Transform(signal []float64, scales []float64) ([][]float64, error) {
	if len(signal) == 0 {
		return nil, ErrEmptySignal
	}

	coeffs := make([][]float64, len(scales))
	for i, s := range scales {
		kernel, err := MexicanHat(s)
		if err != nil {
			return nil, err
		}
		full, err := convolve(signal, kernel)
		if err != nil {
			return nil, err
		}
		// Trim the full convolution to "same": the kernel is odd, so
		// the centered window starts at half the kernel length.
		start := (len(kernel) - 1) / 2
		coeffs[i] = full[start : start+len(signal)]
	}
	return coeffs, nil
}

// convolve returns the full linear convolution of signal and kernel,
// selecting direct or FFT evaluation by kernel length.
func convolve(signal, kernel []float64) ([]float64, error) {
	if len(kernel) <= directThreshold {
		return convolveDirect(signal, kernel), nil
	}
	return convolveFFT(signal, kernel)
}

func convolveDirect(signal, kernel []float64) []float64 {
	out := make([]float64, len(signal)+len(kernel)-1)
	scratch := make([]float64, len(kernel))
	for i, v := range signal {
		if v == 0 {
			continue
		}
		vecmath.ScaleBlock(scratch, kernel, v)
		vecmath.AddBlockInPlace(out[i:i+len(kernel)], scratch)
	}
	return out
}

func convolveFFT(signal, kernel []float64) ([]float64, error) {
	outLen := len(signal) + len(kernel) - 1
	fftSize := nextPowerOf2(outLen)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("wavelet: fft plan: %w", err)
	}

	a := make([]complex128, fftSize)
	b := make([]complex128, fftSize)
	for i, v := range signal {
		a[i] = complex(v, 0)
	}
	for i, v := range kernel {
		b[i] = complex(v, 0)
	}

	if err := plan.Forward(a, a); err != nil {
		return nil, fmt.Errorf("wavelet: forward fft: %w", err)
	}
	if err := plan.Forward(b, b); err != nil {
		return nil, fmt.Errorf("wavelet: forward fft: %w", err)
	}
	for i := range a {
		a[i] *= b[i]
	}
	if err := plan.Inverse(a, a); err != nil {
		return nil, fmt.Errorf("wavelet: inverse fft: %w", err)
	}

	out := make([]float64, outLen)
	for i := range out {
		out[i] = real(a[i])
	}
	return out, nil
}

func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p *= 2
	}
	return p
}
