package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cwbudde/algo-lcms/lcms/correspond"
	"github.com/cwbudde/algo-lcms/lcms/peaktable"
	"github.com/cwbudde/algo-lcms/lcms/scan"
)

// DetectPeaks runs ROI detection and wavelet peak finding for every
// sample. Samples are processed in parallel on a bounded worker pool;
// each worker fills a private buffer and the buffers are concatenated
// in sample-id order afterwards, so the resulting table does not
// depend on scheduling. A sample whose raw data cannot be read is
// recorded as failed in the history and skipped; the call errors only
// when every sample fails.
//
// Any previous peak table, feature set, and fill assignments are
// discarded.
func (pl *Pipeline) DetectPeaks(ctx context.Context) error {
	n := len(pl.samples)
	results := make([][]peaktable.Peak, n)
	errs := make([]error, n)

	sem := make(chan struct{}, pl.params.Workers)
	var wg sync.WaitGroup
	for i := range pl.samples {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			results[i], errs[i] = pl.detectSample(pl.samples[i].ID)
		}(i)
	}
	wg.Wait()

	table := peaktable.New()
	failed := make(map[int]string)
	for i, s := range pl.samples {
		if errs[i] != nil {
			failed[s.ID] = errs[i].Error()
			continue
		}
		if _, err := table.AppendAll(results[i]); err != nil {
			return fmt.Errorf("pipeline: merge sample %d: %w", s.ID, err)
		}
	}
	if len(failed) == n {
		pl.record(StageDetectPeaks, pl.params.CentWave, nil, failed)
		return fmt.Errorf("%w: first failure: %s", ErrAllSamplesFailed, failed[pl.samples[0].ID])
	}

	pl.table = table
	pl.features = nil
	pl.fills = nil
	pl.record(StageDetectPeaks, pl.params.CentWave, nil, failed)
	return nil
}

// detectSample processes one sample: read scans, detect ROIs, find
// peaks, and order them by retention time.
func (pl *Pipeline) detectSample(sampleID int) ([]peaktable.Peak, error) {
	scans, err := pl.access.Scans(sampleID, scan.Everything(), scan.Everything())
	if err != nil {
		return nil, err
	}

	rts := make([]float64, len(scans))
	for i, s := range scans {
		rts[i] = s.RetentionTime
	}

	var peaks []peaktable.Peak
	for _, region := range pl.detector.Detect(scans) {
		found, err := pl.finder.Find(region, rts)
		if err != nil {
			return nil, err
		}
		peaks = append(peaks, found...)
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].RT < peaks[j].RT })
	return peaks, nil
}

// AdjustRetentionTimes discovers hook features (a correspondence pass
// with MinFraction = 1), fits a per-sample loess correction, and
// applies it to the table. An active previous adjustment is dropped
// first so the correction is always computed from raw retention
// times. Samples with too few anchors are left unmodified and
// reported as warnings.
func (pl *Pipeline) AdjustRetentionTimes() error {
	if pl.table.Adjusted() {
		pl.table.DropAdjustment()
	}

	hookCfg := pl.params.Correspond
	hookCfg.MinFraction = 1
	hookCfg.MinSamples = 0
	hookGrouper, err := correspond.NewGrouper(hookCfg)
	if err != nil {
		return fmt.Errorf("pipeline: hook discovery: %w", err)
	}
	hooks, err := hookGrouper.Group(pl.table, pl.classes())
	if err != nil {
		return fmt.Errorf("pipeline: hook discovery: %w", err)
	}

	var warnings []string
	if len(hooks) == 0 {
		warnings = append(warnings, "no hook features found; retention times left unmodified")
		pl.record(StageAdjustRT, pl.params.Align, warnings, nil)
		return nil
	}

	res, err := pl.aligner.Align(pl.table, hooks)
	if err != nil {
		return fmt.Errorf("pipeline: alignment: %w", err)
	}
	for _, w := range res.Warnings {
		warnings = append(warnings, fmt.Sprintf("sample %d: %s", w.SampleID, w.Reason))
	}
	pl.aligner.Apply(pl.table, res)
	pl.record(StageAdjustRT, pl.params.Align, warnings, nil)
	return nil
}

// DropAdjustment restores the raw retention times recorded before the
// last AdjustRetentionTimes.
func (pl *Pipeline) DropAdjustment() {
	pl.table.DropAdjustment()
	pl.record(StageDropAdjustment, nil, nil, nil)
}

// GroupPeaks runs the final correspondence and replaces the feature
// set. Fill assignments from a previous feature set are discarded.
func (pl *Pipeline) GroupPeaks() error {
	features, err := pl.grouper.Group(pl.table, pl.classes())
	if err != nil {
		return fmt.Errorf("pipeline: correspondence: %w", err)
	}
	pl.features = features
	pl.fills = nil
	pl.record(StageGroupPeaks, pl.params.Correspond, nil, nil)
	return nil
}

// FillPeaks integrates raw signal for every (feature, sample) pair
// missing a detected peak and appends the results as filled peaks.
func (pl *Pipeline) FillPeaks(ctx context.Context) error {
	if pl.features == nil {
		return ErrNoFeatures
	}

	res, err := pl.filler.Fill(ctx, pl.table, pl.features, pl.sampleIDs(), pl.params.Workers)
	if err != nil {
		return fmt.Errorf("pipeline: gap filling: %w", err)
	}
	pl.fills = append(pl.fills, res.Assignments...)

	failed := make(map[int]string)
	for _, f := range res.Failures {
		failed[f.SampleID] = f.Err.Error()
	}
	pl.record(StageFillPeaks, pl.params.GapFill, nil, failed)
	return nil
}

// DropFilledPeaks removes all gap-filled peaks and their assignments,
// so a subsequent FillPeaks reproduces them from scratch.
func (pl *Pipeline) DropFilledPeaks() {
	pl.table.DropFilled()
	pl.fills = nil
	pl.record(StageDropFilledPeaks, nil, nil, nil)
}
