// Package align corrects retention-time drift between samples.
//
// Hook features (features present in every sample, discovered by a
// correspondence pass with MinFraction = 1) act as anchors: for each
// sample, every hook with exactly one peak in that sample yields a
// (raw rt, reference rt) pair, where the reference is the median apex
// rt of the feature across all contributing samples. A loess-style
// curve (tricube-weighted local linear regression, smoothing
// controlled by Span) maps raw to corrected retention times. Outside
// the anchor range the correction holds the boundary shift constant
// instead of extrapolating.
//
// A sample with fewer than two usable anchors is left unmodified and
// reported as a warning; alignment of the remaining samples proceeds.
package align

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/algo-lcms/lcms/correspond"
	"github.com/cwbudde/algo-lcms/lcms/peaktable"
)

// minAnchors is the smallest number of hook pairs a sample needs for
// a correction to be fitted.
const minAnchors = 2

// Config holds alignment parameters.
type Config struct {
	// Span controls loess smoothing, in (0, 1]: small values follow
	// the anchors closely, 1 approaches a global linear fit.
	Span float64
}

// DefaultConfig returns alignment defaults.
func DefaultConfig() Config {
	return Config{Span: 0.2}
}

func validateConfig(cfg Config) error {
	if cfg.Span <= 0 || cfg.Span > 1 {
		return fmt.Errorf("align: span must be in (0, 1]: %g", cfg.Span)
	}
	return nil
}

// Warning reports a sample that could not be aligned.
type Warning struct {
	SampleID int
	Reason   string
}

// Correction maps raw to corrected retention time for one sample.
type Correction struct {
	curve interp.PiecewiseLinear
}

// Apply returns the corrected retention time for a raw one. Outside
// the fitted range the correction is clamped to the boundary value.
func (c *Correction) Apply(rt float64) float64 {
	return c.curve.Predict(rt)
}

// Result holds the fitted per-sample corrections.
type Result struct {
	Corrections map[int]*Correction
	Warnings    []Warning
}

// Aligner fits and applies retention-time corrections.
type Aligner struct {
	cfg Config
}

// NewAligner validates cfg and returns an aligner.
func NewAligner(cfg Config) (*Aligner, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Aligner{cfg: cfg}, nil
}

// Align fits a correction per sample from the hook features. The table
// is not modified; use Apply.
func (a *Aligner) Align(t *peaktable.Table, hooks []correspond.Feature) (Result, error) {
	res := Result{Corrections: make(map[int]*Correction)}

	refs := make([]float64, len(hooks))
	for i, h := range hooks {
		rts := make([]float64, 0, len(h.PeakIDs))
		for _, id := range h.PeakIDs {
			p, err := t.Peak(id)
			if err != nil {
				return Result{}, fmt.Errorf("align: hook feature %d: %w", h.ID, err)
			}
			rts = append(rts, p.RT)
		}
		sort.Float64s(rts)
		refs[i] = stat.Quantile(0.5, stat.Empirical, rts, nil)
	}

	for _, sampleID := range t.SampleIDs() {
		raw, ref := anchorPairs(t, hooks, refs, sampleID)
		if len(raw) < minAnchors {
			res.Warnings = append(res.Warnings, Warning{
				SampleID: sampleID,
				Reason:   fmt.Sprintf("insufficient anchors: %d hook peaks, need %d", len(raw), minAnchors),
			})
			continue
		}

		fitted := loessFit(raw, ref, a.cfg.Span)

		// Retention-time order must survive correction.
		for i := 1; i < len(fitted); i++ {
			if fitted[i] < fitted[i-1] {
				fitted[i] = fitted[i-1]
			}
		}

		xs, ys := extendToObservedRange(t, sampleID, raw, fitted)

		var c Correction
		if err := c.curve.Fit(xs, ys); err != nil {
			return Result{}, fmt.Errorf("align: sample %d: %w", sampleID, err)
		}
		res.Corrections[sampleID] = &c
	}
	return res, nil
}

// Apply rewrites the retention times of every corrected sample. Raw
// values are snapshotted by the table, so DropAdjustment restores them
// exactly.
func (a *Aligner) Apply(t *peaktable.Table, res Result) {
	ids := make([]int, 0, len(res.Corrections))
	for id := range res.Corrections {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		t.AdjustSample(id, res.Corrections[id].Apply)
	}
}

// anchorPairs collects (raw, reference) pairs for hooks with exactly
// one peak of the sample, sorted by raw rt and deduplicated.
func anchorPairs(t *peaktable.Table, hooks []correspond.Feature, refs []float64, sampleID int) (raw, ref []float64) {
	for i, h := range hooks {
		matched := -1
		ok := true
		for _, id := range h.PeakIDs {
			p, err := t.Peak(id)
			if err != nil || p.SampleID != sampleID {
				continue
			}
			if matched >= 0 {
				ok = false // more than one peak of this sample
				break
			}
			matched = id
		}
		if !ok || matched < 0 {
			continue
		}
		p, _ := t.Peak(matched)
		raw = append(raw, p.RT)
		ref = append(ref, refs[i])
	}

	idx := make([]int, len(raw))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return raw[idx[a]] < raw[idx[b]] })

	outRaw := make([]float64, 0, len(raw))
	outRef := make([]float64, 0, len(ref))
	for _, i := range idx {
		if n := len(outRaw); n > 0 && raw[i] == outRaw[n-1] {
			outRef[n-1] = (outRef[n-1] + ref[i]) / 2
			continue
		}
		outRaw = append(outRaw, raw[i])
		outRef = append(outRef, ref[i])
	}
	return outRaw, outRef
}

// loessFit evaluates a tricube-weighted local linear regression of ref
// on raw at each anchor. raw must be sorted ascending.
func loessFit(raw, ref []float64, span float64) []float64 {
	n := len(raw)
	window := int(math.Ceil(span * float64(n)))
	if window < minAnchors {
		window = minAnchors
	}
	if window > n {
		window = n
	}

	fitted := make([]float64, n)
	ws := make([]float64, 0, window)
	for i := range raw {
		lo, hi := nearestWindow(raw, i, window)

		maxDist := math.Max(raw[i]-raw[lo], raw[hi]-raw[i])
		ws = ws[:0]
		for j := lo; j <= hi; j++ {
			d := 1.0
			if maxDist > 0 {
				u := math.Abs(raw[j]-raw[i]) / maxDist
				d = math.Pow(1-u*u*u, 3)
				if d < 1e-9 {
					d = 1e-9
				}
			}
			ws = append(ws, d)
		}

		alpha, beta := stat.LinearRegression(raw[lo:hi+1], ref[lo:hi+1], ws, false)
		fitted[i] = alpha + beta*raw[i]
	}
	return fitted
}

// nearestWindow returns the bounds of the `window` anchors nearest to
// raw[i] (two-pointer expansion over the sorted slice).
func nearestWindow(raw []float64, i, window int) (lo, hi int) {
	lo, hi = i, i
	for hi-lo+1 < window {
		switch {
		case lo == 0:
			hi++
		case hi == len(raw)-1:
			lo--
		case raw[i]-raw[lo-1] <= raw[hi+1]-raw[i]:
			lo--
		default:
			hi++
		}
	}
	return lo, hi
}

// extendToObservedRange anchors the fitted curve at the sample's
// minimum and maximum observed retention time, holding the boundary
// shift constant so correction never extrapolates unboundedly.
func extendToObservedRange(t *peaktable.Table, sampleID int, raw, fitted []float64) (xs, ys []float64) {
	obsMin, obsMax := math.MaxFloat64, -math.MaxFloat64
	for _, id := range t.Select(peaktable.Filter{SampleIDs: []int{sampleID}}) {
		p, _ := t.Peak(id)
		if p.RTMin < obsMin {
			obsMin = p.RTMin
		}
		if p.RTMax > obsMax {
			obsMax = p.RTMax
		}
	}

	xs = append(xs, raw...)
	ys = append(ys, fitted...)
	if obsMin < xs[0] {
		shift := ys[0] - xs[0]
		xs = append([]float64{obsMin}, xs...)
		ys = append([]float64{obsMin + shift}, ys...)
	}
	if obsMax > xs[len(xs)-1] {
		shift := ys[len(ys)-1] - xs[len(xs)-1]
		xs = append(xs, obsMax)
		ys = append(ys, obsMax+shift)
	}
	return xs, ys
}
