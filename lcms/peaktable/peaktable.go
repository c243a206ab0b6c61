// Package peaktable stores detected chromatographic peaks.
//
// The table is append-only with two sanctioned mutations: retention
// times may be rewritten by alignment (the raw values are snapshotted
// so the adjustment can be dropped exactly), and gap-filled peaks may
// be dropped again as a block. Peak ids are indices into the table and
// stay stable across both operations: alignment rewrites in place, and
// filled rows are always appended after all detected rows.
package peaktable

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cwbudde/algo-lcms/lcms/scan"
)

var (
	ErrInvalidPeak = errors.New("peaktable: invalid peak")
	ErrNoSuchPeak  = errors.New("peaktable: no such peak")
)

// Peak is one detected (or gap-filled) chromatographic peak.
type Peak struct {
	SampleID int

	MZ    float64 // apex m/z
	MZMin float64
	MZMax float64

	RT    float64 // apex retention time, seconds
	RTMin float64
	RTMax float64

	Into float64 // integrated area
	MaxO float64 // maximum raw intensity
	SN   float64 // signal-to-noise

	// Filled marks peaks recovered by gap filling rather than
	// detected by the peak finder.
	Filled bool
}

func (p Peak) validate() error {
	if p.RTMin > p.RT || p.RT > p.RTMax {
		return fmt.Errorf("%w: rt %g outside [%g, %g]", ErrInvalidPeak, p.RT, p.RTMin, p.RTMax)
	}
	if p.MZMin > p.MZ || p.MZ > p.MZMax {
		return fmt.Errorf("%w: mz %g outside [%g, %g]", ErrInvalidPeak, p.MZ, p.MZMin, p.MZMax)
	}
	if p.Into < 0 {
		return fmt.Errorf("%w: negative area %g", ErrInvalidPeak, p.Into)
	}
	return nil
}

type rtSnapshot struct {
	rt, rtMin, rtMax float64
}

// Table is an ordered, append-only collection of peaks.
type Table struct {
	peaks []Peak
	raw   []rtSnapshot // non-nil while an rt adjustment is applied
}

// New returns an empty table.
func New() *Table {
	return &Table{}
}

// Len returns the number of stored peaks.
func (t *Table) Len() int {
	return len(t.peaks)
}

// Append validates p and adds it, returning its id.
func (t *Table) Append(p Peak) (int, error) {
	if err := p.validate(); err != nil {
		return -1, err
	}
	t.peaks = append(t.peaks, p)
	if t.raw != nil {
		// Peaks appended while an adjustment is active (gap fill)
		// snapshot their own rts so a later drop restores them too.
		t.raw = append(t.raw, rtSnapshot{p.RT, p.RTMin, p.RTMax})
	}
	return len(t.peaks) - 1, nil
}

// AppendAll appends peaks in order and returns the id of the first.
func (t *Table) AppendAll(peaks []Peak) (int, error) {
	first := len(t.peaks)
	for _, p := range peaks {
		if _, err := t.Append(p); err != nil {
			return -1, err
		}
	}
	return first, nil
}

// Peak returns the peak with the given id.
func (t *Table) Peak(id int) (Peak, error) {
	if id < 0 || id >= len(t.peaks) {
		return Peak{}, fmt.Errorf("%w: %d", ErrNoSuchPeak, id)
	}
	return t.peaks[id], nil
}

// Peaks returns the stored peaks as a copy in table order.
func (t *Table) Peaks() []Peak {
	return append([]Peak(nil), t.peaks...)
}

// SampleIDs returns the distinct sample ids present, ascending.
func (t *Table) SampleIDs() []int {
	seen := make(map[int]bool)
	for _, p := range t.peaks {
		seen[p.SampleID] = true
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Filter selects peak ids. Zero-value fields match everything.
type Filter struct {
	SampleIDs []int      // nil: all samples
	MZ        scan.Range // zero: unbounded
	RT        scan.Range // zero: unbounded
}

// Select returns the ids of peaks matching the filter, in table order.
func (t *Table) Select(f Filter) []int {
	var samples map[int]bool
	if f.SampleIDs != nil {
		samples = make(map[int]bool, len(f.SampleIDs))
		for _, id := range f.SampleIDs {
			samples[id] = true
		}
	}
	mz := f.MZ
	if mz == (scan.Range{}) {
		mz = scan.Everything()
	}
	rt := f.RT
	if rt == (scan.Range{}) {
		rt = scan.Everything()
	}

	var ids []int
	for id, p := range t.peaks {
		if samples != nil && !samples[p.SampleID] {
			continue
		}
		if !mz.Contains(p.MZ) || !rt.Contains(p.RT) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// AdjustSample rewrites the retention times of all peaks of the given
// sample through fn. The first adjustment snapshots the raw values of
// the whole table; DropAdjustment restores them exactly.
func (t *Table) AdjustSample(sampleID int, fn func(float64) float64) {
	t.snapshot()
	for i := range t.peaks {
		if t.peaks[i].SampleID != sampleID {
			continue
		}
		p := &t.peaks[i]
		p.RT = fn(p.RT)
		p.RTMin = fn(p.RTMin)
		p.RTMax = fn(p.RTMax)
		if p.RTMin > p.RTMax {
			p.RTMin, p.RTMax = p.RTMax, p.RTMin
		}
		if p.RT < p.RTMin {
			p.RT = p.RTMin
		}
		if p.RT > p.RTMax {
			p.RT = p.RTMax
		}
	}
}

func (t *Table) snapshot() {
	if t.raw != nil {
		return
	}
	t.raw = make([]rtSnapshot, len(t.peaks))
	for i, p := range t.peaks {
		t.raw[i] = rtSnapshot{p.RT, p.RTMin, p.RTMax}
	}
}

// Adjusted reports whether an rt adjustment is currently applied.
func (t *Table) Adjusted() bool {
	return t.raw != nil
}

// DropAdjustment restores the raw retention times recorded before the
// first AdjustSample call. It is a no-op when nothing is adjusted.
func (t *Table) DropAdjustment() {
	if t.raw == nil {
		return
	}
	for i := range t.peaks {
		t.peaks[i].RT = t.raw[i].rt
		t.peaks[i].RTMin = t.raw[i].rtMin
		t.peaks[i].RTMax = t.raw[i].rtMax
	}
	t.raw = nil
}

// DropFilled removes all gap-filled peaks and returns how many were
// dropped. Filled rows always trail detected rows, so detected ids
// survive unchanged.
func (t *Table) DropFilled() int {
	kept := t.peaks[:0]
	var keptRaw []rtSnapshot
	if t.raw != nil {
		keptRaw = t.raw[:0]
	}
	dropped := 0
	for i, p := range t.peaks {
		if p.Filled {
			dropped++
			continue
		}
		kept = append(kept, p)
		if t.raw != nil {
			keptRaw = append(keptRaw, t.raw[i])
		}
	}
	t.peaks = kept
	if t.raw != nil {
		t.raw = keptRaw
	}
	return dropped
}
