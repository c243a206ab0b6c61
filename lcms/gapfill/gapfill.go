// Package gapfill recovers per-sample intensities for features that
// lack a detected peak in some samples.
//
// For every missing (feature, sample) pair the raw signal inside the
// feature's expanded m/z and rt window is integrated rectangularly,
// with no peak-shape detection, and appended to
// the peak table flagged as filled. A window with no signal at all
// still produces a filled peak with zero area, so the feature value
// matrix stays rectangular.
//
// Filled peaks can be dropped as a block and the fill re-run; the
// result is identical, so drop + fill is idempotent.
package gapfill

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cwbudde/algo-lcms/lcms/correspond"
	"github.com/cwbudde/algo-lcms/lcms/peaktable"
	"github.com/cwbudde/algo-lcms/lcms/scan"
)

// Config holds gap-filling parameters.
type Config struct {
	// ExpandMZ widens the feature's m/z window by this fraction of
	// its half-width on each side.
	ExpandMZ float64

	// ExpandRT widens the feature's rt window by this fraction of
	// its half-width on each side.
	ExpandRT float64

	// PPM adds an m/z-proportional expansion on each side.
	PPM float64
}

// DefaultConfig returns gap-filling defaults: the feature's own window
// with no expansion.
func DefaultConfig() Config {
	return Config{}
}

func validateConfig(cfg Config) error {
	if cfg.ExpandMZ < 0 {
		return fmt.Errorf("gapfill: expand mz must be >= 0: %g", cfg.ExpandMZ)
	}
	if cfg.ExpandRT < 0 {
		return fmt.Errorf("gapfill: expand rt must be >= 0: %g", cfg.ExpandRT)
	}
	if cfg.PPM < 0 {
		return fmt.Errorf("gapfill: ppm must be >= 0: %g", cfg.PPM)
	}
	return nil
}

// Assignment links a filled peak to its feature and sample.
type Assignment struct {
	FeatureID int
	SampleID  int
	PeakID    int
}

// Failure records a sample whose raw data could not be read.
type Failure struct {
	SampleID int
	Err      error
}

// Result reports what a fill pass did.
type Result struct {
	Assignments []Assignment
	Failures    []Failure
}

// Filler integrates raw signal at feature locations.
type Filler struct {
	cfg    Config
	access scan.SpectrumAccess
}

// NewFiller validates cfg and returns a filler reading from access.
func NewFiller(access scan.SpectrumAccess, cfg Config) (*Filler, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Filler{cfg: cfg, access: access}, nil
}

// Fill appends a filled peak for every (feature, sample) pair without
// a member peak. samples is the full sample universe; workers bounds
// the read parallelism (values < 1 mean serial). Appends happen in
// deterministic (feature, sample) order regardless of scheduling.
func (f *Filler) Fill(ctx context.Context, t *peaktable.Table, features []correspond.Feature, samples []int, workers int) (Result, error) {
	type item struct {
		featureIdx int
		sampleID   int
		peak       peaktable.Peak
		err        error
	}

	var items []*item
	for fi, feat := range features {
		present := make(map[int]bool, len(feat.PeakIDs))
		for _, id := range feat.PeakIDs {
			p, err := t.Peak(id)
			if err != nil {
				return Result{}, fmt.Errorf("gapfill: feature %d: %w", feat.ID, err)
			}
			present[p.SampleID] = true
		}
		for _, sid := range samples {
			if !present[sid] {
				items = append(items, &item{featureIdx: fi, sampleID: sid})
			}
		}
	}

	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for _, it := range items {
		wg.Add(1)
		go func(it *item) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				it.err = err
				return
			}
			it.peak, it.err = f.integrate(features[it.featureIdx], it.sampleID)
		}(it)
	}
	wg.Wait()

	var res Result
	failed := make(map[int]error)
	for _, it := range items {
		if it.err != nil {
			failed[it.sampleID] = it.err
			continue
		}
		id, err := t.Append(it.peak)
		if err != nil {
			return Result{}, fmt.Errorf("gapfill: append: %w", err)
		}
		res.Assignments = append(res.Assignments, Assignment{
			FeatureID: features[it.featureIdx].ID,
			SampleID:  it.sampleID,
			PeakID:    id,
		})
	}

	ids := make([]int, 0, len(failed))
	for id := range failed {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		res.Failures = append(res.Failures, Failure{SampleID: id, Err: failed[id]})
	}
	return res, nil
}

// window returns the expanded integration windows for a feature.
func (f *Filler) window(feat correspond.Feature) (mz, rt scan.Range) {
	wMZ := f.cfg.ExpandMZ*(feat.MZMax-feat.MZMin)/2 + feat.MZMed*f.cfg.PPM*1e-6
	wRT := f.cfg.ExpandRT * (feat.RTMax - feat.RTMin) / 2
	mz = scan.Range{Min: feat.MZMin - wMZ, Max: feat.MZMax + wMZ}
	rt = scan.Range{Min: feat.RTMin - wRT, Max: feat.RTMax + wRT}
	return mz, rt
}

// integrate performs the rectangular integration of one window.
func (f *Filler) integrate(feat correspond.Feature, sampleID int) (peaktable.Peak, error) {
	mzWin, rtWin := f.window(feat)

	scans, err := f.access.Scans(sampleID, mzWin, rtWin)
	if err != nil {
		return peaktable.Peak{}, err
	}

	var into, maxo, wsum, mzsum float64
	for i, s := range scans {
		var scanSum float64
		for _, p := range s.Points {
			scanSum += p.Intensity
			wsum += p.Intensity
			mzsum += p.MZ * p.Intensity
			if p.Intensity > maxo {
				maxo = p.Intensity
			}
		}
		into += scanSum * scanSpacing(scans, i, rtWin)
	}

	mz := feat.MZMed
	if wsum > 0 {
		mz = mzsum / wsum
	}
	mz = clamp(mz, mzWin)

	return peaktable.Peak{
		SampleID: sampleID,
		MZ:       mz,
		MZMin:    mzWin.Min,
		MZMax:    mzWin.Max,
		RT:       clamp(feat.RTMed, rtWin),
		RTMin:    rtWin.Min,
		RTMax:    rtWin.Max,
		Into:     into,
		MaxO:     maxo,
		Filled:   true,
	}, nil
}

// scanSpacing estimates the rt step owned by scan i: half the distance
// to each neighbor, or the window width for a lone scan.
func scanSpacing(scans []scan.Scan, i int, rtWin scan.Range) float64 {
	if len(scans) == 1 {
		return rtWin.Width()
	}
	lo := scans[max(0, i-1)].RetentionTime
	hi := scans[min(len(scans)-1, i+1)].RetentionTime
	span := i - max(0, i-1) + min(len(scans)-1, i+1) - i
	return (hi - lo) / float64(span)
}

func clamp(v float64, r scan.Range) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}
