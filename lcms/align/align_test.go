package align

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cwbudde/algo-lcms/lcms/correspond"
	"github.com/cwbudde/algo-lcms/lcms/peaktable"
)

func addPeak(t *testing.T, tbl *peaktable.Table, sampleID int, mz, rt float64) int {
	t.Helper()
	id, err := tbl.Append(peaktable.Peak{
		SampleID: sampleID,
		MZ:       mz, MZMin: mz - 0.001, MZMax: mz + 0.001,
		RT: rt, RTMin: rt - 5, RTMax: rt + 5,
		Into: 1000, MaxO: 300, SN: 25,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	return id
}

// driftTable builds a table where every sample observes the same hook
// compounds, shifted by a constant per-sample drift, plus the hook
// features tying the peaks together.
func driftTable(t *testing.T, drift map[int]float64, hookRTs []float64) (*peaktable.Table, []correspond.Feature) {
	t.Helper()
	tbl := peaktable.New()

	sampleIDs := make([]int, 0, len(drift))
	for id := range drift {
		sampleIDs = append(sampleIDs, id)
	}
	// Deterministic insertion order.
	for i := 0; i < len(sampleIDs); i++ {
		for j := i + 1; j < len(sampleIDs); j++ {
			if sampleIDs[j] < sampleIDs[i] {
				sampleIDs[i], sampleIDs[j] = sampleIDs[j], sampleIDs[i]
			}
		}
	}

	hooks := make([]correspond.Feature, len(hookRTs))
	for h := range hookRTs {
		hooks[h] = correspond.Feature{ID: h, MZMed: 100 + float64(h)}
	}
	for _, sid := range sampleIDs {
		for h, rt := range hookRTs {
			id := addPeak(t, tbl, sid, 100+float64(h), rt+drift[sid])
			hooks[h].PeakIDs = append(hooks[h].PeakIDs, id)
		}
	}
	return tbl, hooks
}

func newAligner(t *testing.T, cfg Config) *Aligner {
	t.Helper()
	a, err := NewAligner(cfg)
	if err != nil {
		t.Fatalf("NewAligner: %v", err)
	}
	return a
}

func TestAlignRemovesConstantDrift(t *testing.T) {
	hookRTs := []float64{100, 200, 300, 400, 500}
	tbl, hooks := driftTable(t, map[int]float64{1: 0, 2: 6}, hookRTs)

	a := newAligner(t, DefaultConfig())
	res, err := a.Align(tbl, hooks)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", res.Warnings)
	}
	if len(res.Corrections) != 2 {
		t.Fatalf("got %d corrections, want 2", len(res.Corrections))
	}

	a.Apply(tbl, res)
	if !tbl.Adjusted() {
		t.Fatal("Apply did not mark the table adjusted")
	}

	// Hook peaks of both samples must land on the same corrected rt.
	for _, h := range hooks {
		var rts []float64
		for _, id := range h.PeakIDs {
			p, err := tbl.Peak(id)
			if err != nil {
				t.Fatalf("Peak: %v", err)
			}
			rts = append(rts, p.RT)
		}
		for _, rt := range rts[1:] {
			if math.Abs(rt-rts[0]) > 1e-6 {
				t.Errorf("hook %d: corrected rts diverge: %v", h.ID, rts)
			}
		}
	}
}

func TestAlignIdempotentDropAndRerun(t *testing.T) {
	hookRTs := []float64{100, 200, 300, 400, 500}
	tbl, hooks := driftTable(t, map[int]float64{1: 0, 2: 6, 3: -4}, hookRTs)
	raw := tbl.Peaks()

	a := newAligner(t, DefaultConfig())
	res, err := a.Align(tbl, hooks)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	a.Apply(tbl, res)
	corrected := tbl.Peaks()

	tbl.DropAdjustment()
	if diff := cmp.Diff(raw, tbl.Peaks()); diff != "" {
		t.Fatalf("drop did not restore raw rts (-want +got):\n%s", diff)
	}

	res, err = a.Align(tbl, hooks)
	if err != nil {
		t.Fatalf("second Align: %v", err)
	}
	a.Apply(tbl, res)
	if diff := cmp.Diff(corrected, tbl.Peaks()); diff != "" {
		t.Fatalf("re-running alignment changed the result (-want +got):\n%s", diff)
	}
}

func TestAlignInsufficientAnchors(t *testing.T) {
	hookRTs := []float64{100, 200, 300}
	tbl, hooks := driftTable(t, map[int]float64{1: 0, 2: 5}, hookRTs)

	// Sample 3 contributes a peak to only one hook.
	id := addPeak(t, tbl, 3, 100, 107)
	hooks[0].PeakIDs = append(hooks[0].PeakIDs, id)

	a := newAligner(t, DefaultConfig())
	res, err := a.Align(tbl, hooks)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].SampleID != 3 {
		t.Fatalf("warnings = %v, want one for sample 3", res.Warnings)
	}
	if _, ok := res.Corrections[3]; ok {
		t.Fatal("sample 3 received a correction despite too few anchors")
	}

	a.Apply(tbl, res)
	p, _ := tbl.Peak(id)
	if p.RT != 107 {
		t.Fatalf("sample 3 rt %g, want unmodified 107", p.RT)
	}
}

func TestAlignSkipsAmbiguousHooks(t *testing.T) {
	hookRTs := []float64{100, 200}
	tbl, hooks := driftTable(t, map[int]float64{1: 0, 2: 5}, hookRTs)

	// A second sample-1 peak in hook 1 makes that hook ambiguous for
	// sample 1, leaving it a single usable anchor.
	id := addPeak(t, tbl, 1, 101, 203)
	hooks[1].PeakIDs = append(hooks[1].PeakIDs, id)

	a := newAligner(t, DefaultConfig())
	res, err := a.Align(tbl, hooks)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].SampleID != 1 {
		t.Fatalf("warnings = %v, want one for sample 1", res.Warnings)
	}
	if _, ok := res.Corrections[2]; !ok {
		t.Fatal("sample 2 lost its correction")
	}
}

func TestCorrectionClampsOutsideObservedRange(t *testing.T) {
	hookRTs := []float64{100, 200, 300, 400, 500}
	tbl, hooks := driftTable(t, map[int]float64{1: 0, 2: 6}, hookRTs)

	a := newAligner(t, DefaultConfig())
	res, err := a.Align(tbl, hooks)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	c := res.Corrections[2]

	// Inside the anchor range the constant 6 s drift is removed.
	if got := c.Apply(306); math.Abs(got-300) > 1e-6 {
		t.Errorf("Apply(306) = %g, want 300", got)
	}

	// Far outside, the correction is clamped: no runaway extrapolation.
	lo := c.Apply(0)
	if got := c.Apply(-1000); got != lo {
		t.Errorf("Apply(-1000) = %g, want clamped %g", got, lo)
	}
	hi := c.Apply(10000)
	if got := c.Apply(100000); got != hi {
		t.Errorf("Apply(100000) = %g, want clamped %g", got, hi)
	}
}

func TestAlignMonotoneOrder(t *testing.T) {
	// Noisy anchors: the fitted curve must still be non-decreasing.
	tbl := peaktable.New()
	hooks := make([]correspond.Feature, 0, 6)
	rawRTs := []float64{100, 150, 200, 250, 300, 350}
	refOffsets := []float64{0, 9, -9, 9, -9, 0} // deliberately rough
	for h, rt := range rawRTs {
		f := correspond.Feature{ID: h, MZMed: 100 + float64(h)}
		f.PeakIDs = append(f.PeakIDs, addPeak(t, tbl, 1, 100+float64(h), rt))
		f.PeakIDs = append(f.PeakIDs, addPeak(t, tbl, 2, 100+float64(h), rt+refOffsets[h]))
		hooks = append(hooks, f)
	}

	cfg := DefaultConfig()
	cfg.Span = 0.4
	a := newAligner(t, cfg)
	res, err := a.Align(tbl, hooks)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}

	for sid, c := range res.Corrections {
		prev := math.Inf(-1)
		for rt := 50.0; rt <= 400; rt += 1 {
			got := c.Apply(rt)
			if got < prev {
				t.Fatalf("sample %d: correction not monotone at rt %g: %g < %g", sid, rt, got, prev)
			}
			prev = got
		}
	}
}

func TestConfigValidation(t *testing.T) {
	for _, span := range []float64{0, -0.5, 1.5} {
		if _, err := NewAligner(Config{Span: span}); err == nil {
			t.Errorf("span %g: expected config error", span)
		}
	}
}
