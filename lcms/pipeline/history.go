package pipeline

import (
	"fmt"
	"time"
)

// Stage names used in the processing history.
const (
	StageDetectPeaks     = "peak detection"
	StageAdjustRT        = "retention time adjustment"
	StageDropAdjustment  = "drop retention time adjustment"
	StageGroupPeaks      = "correspondence"
	StageFillPeaks       = "gap filling"
	StageDropFilledPeaks = "drop filled peaks"
)

// Entry is one processing-history record. The history is append-only
// and returned alongside results, so skipped or degraded samples are
// always visible and silent data loss cannot occur.
type Entry struct {
	Stage  string
	Params string
	Time   time.Time

	// Warnings holds stage-local recoverable conditions that were
	// absorbed (insufficient anchors, empty hook set, ...).
	Warnings []string

	// FailedSamples maps sample id to the reason its contribution is
	// absent from this stage's result.
	FailedSamples map[int]string
}

// History returns a copy of the processing history in order.
func (pl *Pipeline) History() []Entry {
	out := make([]Entry, len(pl.history))
	copy(out, pl.history)
	return out
}

func (pl *Pipeline) record(stage string, params any, warnings []string, failed map[int]string) {
	e := Entry{
		Stage:    stage,
		Time:     time.Now(),
		Warnings: warnings,
	}
	if params != nil {
		e.Params = fmt.Sprintf("%+v", params)
	}
	if len(failed) > 0 {
		e.FailedSamples = failed
	}
	pl.history = append(pl.history, e)
}
