// Package centwave finds chromatographic peaks inside regions of
// interest using continuous wavelet transform ridge detection.
//
// For each ROI the intensity signal is laid out on the sample's scan
// grid (scans missing from the ROI contribute zero intensity), a
// Mexican-hat CWT is computed at a ladder of scales spanning the
// configured peak-width range, and maxima that persist across adjacent
// scales form ridge lines. Each ridge whose estimated width falls in
// the peak-width range yields a candidate peak; boundaries are found by
// descending the raw signal from the apex, the area is the trapezoidal
// integral over those boundaries, and candidates below the
// signal-to-noise threshold are discarded.
//
// Finding no peak in an ROI is a normal outcome, reported as an empty
// result with a nil error. Errors are reserved for malformed input.
package centwave

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/optimize"

	"github.com/cwbudde/algo-lcms/internal/wavelet"
	"github.com/cwbudde/algo-lcms/lcms/peaktable"
	"github.com/cwbudde/algo-lcms/lcms/roi"
)

// ErrScanGrid indicates that an ROI references scan indices outside
// the supplied retention-time grid.
var ErrScanGrid = errors.New("centwave: roi outside scan grid")

// Config holds peak detection parameters.
type Config struct {
	// PeakWidth is the expected chromatographic peak width range in
	// seconds, [min, max].
	PeakWidth [2]float64

	// SNRThreshold discards peaks whose signal-to-noise ratio is
	// below it.
	SNRThreshold float64

	// MinRidgeScales is the number of adjacent scales a scale-space
	// maximum must persist across to count as a ridge.
	MinRidgeScales int

	// BoundaryFraction stops the boundary descent once the signal
	// drops below this fraction of the apex intensity.
	BoundaryFraction float64

	// FitGauss refines the apex retention time with a Gaussian
	// least-squares fit. Off by default.
	FitGauss bool
}

// DefaultConfig returns detection defaults for typical UHPLC peak
// widths.
func DefaultConfig() Config {
	return Config{
		PeakWidth:        [2]float64{5, 30},
		SNRThreshold:     10,
		MinRidgeScales:   3,
		BoundaryFraction: 0.01,
	}
}

func validateConfig(cfg Config) error {
	if cfg.PeakWidth[0] <= 0 || cfg.PeakWidth[1] <= 0 {
		return fmt.Errorf("centwave: peak width must be > 0: [%g, %g]", cfg.PeakWidth[0], cfg.PeakWidth[1])
	}
	if cfg.PeakWidth[0] > cfg.PeakWidth[1] {
		return fmt.Errorf("centwave: peak width min %g > max %g", cfg.PeakWidth[0], cfg.PeakWidth[1])
	}
	if cfg.SNRThreshold < 0 {
		return fmt.Errorf("centwave: snr threshold must be >= 0: %g", cfg.SNRThreshold)
	}
	if cfg.MinRidgeScales < 1 {
		return fmt.Errorf("centwave: min ridge scales must be >= 1: %d", cfg.MinRidgeScales)
	}
	if cfg.BoundaryFraction < 0 || cfg.BoundaryFraction >= 1 {
		return fmt.Errorf("centwave: boundary fraction must be in [0, 1): %g", cfg.BoundaryFraction)
	}
	return nil
}

// Finder detects peaks in ROIs.
type Finder struct {
	cfg Config
}

// NewFinder validates cfg and returns a finder.
func NewFinder(cfg Config) (*Finder, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Finder{cfg: cfg}, nil
}

// Find detects peaks in one ROI. rts is the sample's full retention
// time grid, indexed by scan index.
func (f *Finder) Find(r roi.ROI, rts []float64) ([]peaktable.Peak, error) {
	if len(r.Points) == 0 {
		return nil, nil
	}
	first, last := r.ScanBounds()
	if first < 0 || last >= len(rts) {
		return nil, fmt.Errorf("%w: scans [%d, %d], grid length %d", ErrScanGrid, first, last, len(rts))
	}

	n := last - first + 1
	if n < 3 {
		return nil, nil
	}

	// Signal on the scan grid; missing scans stay zero.
	signal := make([]float64, n)
	for _, p := range r.Points {
		signal[p.ScanIndex-first] = p.Intensity
	}
	localRT := rts[first : last+1]

	spacing := medianSpacing(localRT)
	if spacing <= 0 {
		return nil, fmt.Errorf("%w: non-increasing retention times", ErrScanGrid)
	}

	scales, err := wavelet.Scales(f.cfg.PeakWidth[0], f.cfg.PeakWidth[1], spacing)
	if err != nil {
		return nil, err
	}
	coeffs, err := wavelet.Transform(signal, scales)
	if err != nil {
		return nil, err
	}

	ridges := linkRidges(coeffs, scales)

	candidates := f.peaksFromRidges(r, ridges, scales, signal, localRT, spacing, first)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].RT < candidates[j].RT })
	return candidates, nil
}

// ridge is a chain of scale-space maxima across adjacent scales.
type ridge struct {
	// pos[i] is the signal position of the maximum at scale index
	// scaleLo+i.
	scaleLo  int
	pos      []int
	maxCoeff float64
	maxAt    int // scale index of the strongest coefficient
	gap      int
}

// linkRidges connects scale-space maxima from the largest scale down,
// matching each active ridge to the nearest maximum of the next
// smaller scale within a scale-dependent drift window.
func linkRidges(coeffs [][]float64, scales []float64) []ridge {
	var done []ridge
	var active []*ridge

	for si := len(scales) - 1; si >= 0; si-- {
		maxima := localMaxima(coeffs[si], int(math.Max(1, scales[si])))
		window := int(scales[si]) + 1
		claimed := make(map[int]bool, len(maxima))

		for _, rd := range active {
			cur := rd.pos[len(rd.pos)-1]
			best, bestDist := -1, window+1
			for _, m := range maxima {
				if claimed[m] {
					continue
				}
				if d := abs(m - cur); d < bestDist {
					best, bestDist = m, d
				}
			}
			if best < 0 {
				rd.gap++
				continue
			}
			claimed[best] = true
			rd.gap = 0
			rd.pos = append(rd.pos, best)
			rd.scaleLo = si
			if c := coeffs[si][best]; c > rd.maxCoeff {
				rd.maxCoeff = c
				rd.maxAt = si
			}
		}

		// Retire ridges that lost their maximum for too long.
		kept := active[:0]
		for _, rd := range active {
			if rd.gap > 2 {
				done = append(done, *rd)
				continue
			}
			kept = append(kept, rd)
		}
		active = kept

		for _, m := range maxima {
			if claimed[m] {
				continue
			}
			active = append(active, &ridge{
				scaleLo:  si,
				pos:      []int{m},
				maxCoeff: coeffs[si][m],
				maxAt:    si,
			})
		}
	}
	for _, rd := range active {
		done = append(done, *rd)
	}
	return done
}

func (f *Finder) peaksFromRidges(r roi.ROI, ridges []ridge, scales, signal, localRT []float64, spacing float64, firstScan int) []peaktable.Peak {
	minW, maxW := f.cfg.PeakWidth[0], f.cfg.PeakWidth[1]

	// Strongest ridges claim their apex region first.
	sort.Slice(ridges, func(i, j int) bool { return ridges[i].maxCoeff > ridges[j].maxCoeff })

	type region struct{ l, r int }
	var taken []region
	var peaks []peaktable.Peak

	for _, rd := range ridges {
		if len(rd.pos) < f.cfg.MinRidgeScales || rd.maxCoeff <= 0 {
			continue
		}

		bestScale := scales[rd.maxAt]
		estWidth := 2 * bestScale * spacing
		if estWidth < minW-spacing || estWidth > maxW+spacing {
			continue
		}

		// The smallest-scale member localizes the apex best.
		apex := refineApex(signal, rd.pos[len(rd.pos)-1], int(bestScale))
		apexVal := signal[apex]
		if apexVal <= 0 {
			continue
		}

		overlaps := false
		for _, reg := range taken {
			if apex >= reg.l && apex <= reg.r {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}

		l, rr := f.bounds(signal, localRT, apex, maxW)
		width := localRT[rr] - localRT[l]
		if width < minW-spacing {
			continue
		}
		taken = append(taken, region{l, rr})

		p := f.buildPeak(r, signal, localRT, l, apex, rr, firstScan)
		noise := flankingNoise(signal, l, rr)
		p.SN = p.MaxO / noise
		if p.SN < f.cfg.SNRThreshold {
			continue
		}
		peaks = append(peaks, p)
	}
	return peaks
}

// refineApex moves pos to the raw-signal maximum within ±window.
func refineApex(signal []float64, pos, window int) int {
	lo := max(0, pos-window)
	hi := min(len(signal)-1, pos+window)
	best := lo
	for i := lo + 1; i <= hi; i++ {
		if signal[i] > signal[best] {
			best = i
		}
	}
	return best
}

// bounds descends from the apex to a local minimum or below the
// boundary fraction of the apex intensity, never moving further than
// half the maximum peak width from the apex.
func (f *Finder) bounds(signal, localRT []float64, apex int, maxWidth float64) (int, int) {
	apexVal := signal[apex]
	floor := f.cfg.BoundaryFraction * apexVal
	half := maxWidth / 2

	l := apex
	for l > 0 && localRT[apex]-localRT[l-1] <= half {
		if signal[l-1] > signal[l] { // rising again: l is a local minimum
			break
		}
		l--
		if signal[l] <= floor {
			break
		}
	}

	r := apex
	for r < len(signal)-1 && localRT[r+1]-localRT[apex] <= half {
		if signal[r+1] > signal[r] { // rising again: r is a local minimum
			break
		}
		r++
		if signal[r] <= floor {
			break
		}
	}
	return l, r
}

func (f *Finder) buildPeak(r roi.ROI, signal, localRT []float64, l, apex, rr, firstScan int) peaktable.Peak {
	p := peaktable.Peak{
		SampleID: r.SampleID,
		RT:       localRT[apex],
		RTMin:    localRT[l],
		RTMax:    localRT[rr],
		MaxO:     signal[apex],
	}

	// Trapezoidal integral of the raw intensity over the boundaries.
	for i := l; i < rr; i++ {
		p.Into += (signal[i] + signal[i+1]) / 2 * (localRT[i+1] - localRT[i])
	}

	// m/z statistics from the ROI points inside the boundaries.
	var wsum, mzsum float64
	p.MZMin = math.MaxFloat64
	p.MZMax = -math.MaxFloat64
	for _, pt := range r.Points {
		i := pt.ScanIndex - firstScan
		if i < l || i > rr {
			continue
		}
		wsum += pt.Intensity
		mzsum += pt.MZ * pt.Intensity
		if pt.MZ < p.MZMin {
			p.MZMin = pt.MZ
		}
		if pt.MZ > p.MZMax {
			p.MZMax = pt.MZ
		}
	}
	if wsum > 0 {
		p.MZ = mzsum / wsum
	} else {
		mzMin, mzMax := r.MZBounds()
		p.MZ = (mzMin + mzMax) / 2
		p.MZMin, p.MZMax = mzMin, mzMax
	}

	if f.cfg.FitGauss {
		f.fitGauss(&p, signal, localRT, l, apex, rr)
	}
	return p
}

// fitGauss refines the apex retention time by least-squares fitting a
// Gaussian to the signal inside the peak boundaries.
func (f *Finder) fitGauss(p *peaktable.Peak, signal, localRT []float64, l, apex, rr int) {
	if rr-l < 3 {
		return
	}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			h, mu, sigma := x[0], x[1], x[2]
			if sigma <= 0 {
				return math.MaxFloat64
			}
			var sse float64
			for i := l; i <= rr; i++ {
				d := localRT[i] - mu
				res := h*math.Exp(-d*d/(2*sigma*sigma)) - signal[i]
				sse += res * res
			}
			return sse
		},
	}
	x0 := []float64{signal[apex], localRT[apex], (localRT[rr] - localRT[l]) / 4}
	result, err := optimize.Minimize(problem, x0, nil, nil)
	if err != nil || result == nil {
		return
	}
	mu := result.X[1]
	if mu > p.RTMin && mu < p.RTMax {
		p.RT = mu
	}
}

// flankingNoise estimates local noise as the median positive intensity
// in windows flanking the peak, falling back to the whole signal
// outside the peak, then to 1 to keep the ratio defined.
func flankingNoise(signal []float64, l, r int) float64 {
	width := r - l + 1
	var flank []float64
	for i := max(0, l-width); i < l; i++ {
		if signal[i] > 0 {
			flank = append(flank, signal[i])
		}
	}
	for i := r + 1; i <= min(len(signal)-1, r+width); i++ {
		if signal[i] > 0 {
			flank = append(flank, signal[i])
		}
	}
	if len(flank) == 0 {
		for i, v := range signal {
			if (i < l || i > r) && v > 0 {
				flank = append(flank, v)
			}
		}
	}
	if len(flank) == 0 {
		return 1
	}
	sort.Float64s(flank)
	mid := len(flank) / 2
	if len(flank)%2 == 1 {
		return flank[mid]
	}
	return (flank[mid-1] + flank[mid]) / 2
}

// localMaxima returns positions that are the strict maximum of their
// ±window neighborhood.
func localMaxima(row []float64, window int) []int {
	var maxima []int
	for i := range row {
		if row[i] <= 0 {
			continue
		}
		lo := max(0, i-window)
		hi := min(len(row)-1, i+window)
		isMax := true
		for j := lo; j <= hi; j++ {
			if j == i {
				continue
			}
			if row[j] > row[i] || (row[j] == row[i] && j < i) {
				isMax = false
				break
			}
		}
		if isMax {
			maxima = append(maxima, i)
		}
	}
	return maxima
}

func medianSpacing(rts []float64) float64 {
	if len(rts) < 2 {
		return 0
	}
	diffs := make([]float64, len(rts)-1)
	for i := 1; i < len(rts); i++ {
		diffs[i-1] = rts[i] - rts[i-1]
	}
	sort.Float64s(diffs)
	return diffs[len(diffs)/2]
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
