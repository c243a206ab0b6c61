// Package pipeline orchestrates the LC-MS preprocessing stages: peak
// detection per sample, retention-time alignment, cross-sample
// correspondence, and gap filling. It owns the peak table, the current
// feature set, and an append-only processing history, and exposes the
// query surface downstream consumers read results through.
package pipeline

import (
	"errors"
	"fmt"
	"runtime"
	"sort"

	"github.com/cwbudde/algo-lcms/lcms/align"
	"github.com/cwbudde/algo-lcms/lcms/centwave"
	"github.com/cwbudde/algo-lcms/lcms/correspond"
	"github.com/cwbudde/algo-lcms/lcms/gapfill"
	"github.com/cwbudde/algo-lcms/lcms/peaktable"
	"github.com/cwbudde/algo-lcms/lcms/roi"
	"github.com/cwbudde/algo-lcms/lcms/scan"
)

var (
	// ErrConfig wraps any invalid parameter; it is returned before
	// any processing starts, never after partial work.
	ErrConfig = errors.New("pipeline: invalid configuration")

	ErrNoSamples = errors.New("pipeline: no samples")

	// ErrAllSamplesFailed is returned when no sample at all could be
	// read; individual failures are recorded in the history instead.
	ErrAllSamplesFailed = errors.New("pipeline: every sample failed")

	// ErrNoFeatures is returned by stages that need a feature set
	// before GroupPeaks has run.
	ErrNoFeatures = errors.New("pipeline: no feature set; run GroupPeaks first")
)

// SampleInfo describes one sample of the experiment.
type SampleInfo struct {
	ID    int
	Name  string
	Group string // experimental group label, opaque to the engines

	// Phenotype holds arbitrary per-sample metadata for downstream
	// consumers; the pipeline never interprets it.
	Phenotype map[string]string
}

// Params collects the per-stage parameter sets.
type Params struct {
	ROI        roi.Config
	CentWave   centwave.Config
	Correspond correspond.Config
	Align      align.Config
	GapFill    gapfill.Config

	// Workers bounds the concurrency of per-sample and per-pair
	// stages. Zero means GOMAXPROCS.
	Workers int
}

// DefaultParams returns the default parameter set of every stage.
func DefaultParams() Params {
	return Params{
		ROI:        roi.DefaultConfig(),
		CentWave:   centwave.DefaultConfig(),
		Correspond: correspond.DefaultConfig(),
		Align:      align.DefaultConfig(),
		GapFill:    gapfill.DefaultConfig(),
	}
}

// Pipeline runs the preprocessing stages over one set of samples.
type Pipeline struct {
	access  scan.SpectrumAccess
	samples []SampleInfo
	params  Params

	detector *roi.Detector
	finder   *centwave.Finder
	grouper  *correspond.Grouper
	aligner  *align.Aligner
	filler   *gapfill.Filler

	table    *peaktable.Table
	features []correspond.Feature
	fills    []gapfill.Assignment
	history  []Entry
}

// New validates every parameter set up front and returns a pipeline.
// Configuration errors wrap ErrConfig and abort before any detection
// runs.
func New(access scan.SpectrumAccess, samples []SampleInfo, params Params) (*Pipeline, error) {
	if access == nil {
		return nil, fmt.Errorf("%w: nil spectrum access", ErrConfig)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrConfig, ErrNoSamples)
	}
	seen := make(map[int]bool, len(samples))
	for _, s := range samples {
		if seen[s.ID] {
			return nil, fmt.Errorf("%w: duplicate sample id %d", ErrConfig, s.ID)
		}
		seen[s.ID] = true
	}
	if params.Workers < 0 {
		return nil, fmt.Errorf("%w: workers must be >= 0: %d", ErrConfig, params.Workers)
	}
	if params.Workers == 0 {
		params.Workers = runtime.GOMAXPROCS(0)
	}

	detector, err := roi.NewDetector(params.ROI)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	finder, err := centwave.NewFinder(params.CentWave)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	grouper, err := correspond.NewGrouper(params.Correspond)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	aligner, err := align.NewAligner(params.Align)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	filler, err := gapfill.NewFiller(access, params.GapFill)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	ordered := append([]SampleInfo(nil), samples...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	return &Pipeline{
		access:   access,
		samples:  ordered,
		params:   params,
		detector: detector,
		finder:   finder,
		grouper:  grouper,
		aligner:  aligner,
		filler:   filler,
		table:    peaktable.New(),
	}, nil
}

// Samples returns the sample metadata in id order.
func (pl *Pipeline) Samples() []SampleInfo {
	return append([]SampleInfo(nil), pl.samples...)
}

// sampleIDs returns all sample ids in order.
func (pl *Pipeline) sampleIDs() []int {
	ids := make([]int, len(pl.samples))
	for i, s := range pl.samples {
		ids[i] = s.ID
	}
	return ids
}

// classes maps sample id to experimental group label.
func (pl *Pipeline) classes() map[int]string {
	m := make(map[int]string, len(pl.samples))
	for _, s := range pl.samples {
		m[s.ID] = s.Group
	}
	return m
}
