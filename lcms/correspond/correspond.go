// Package correspond groups peaks across samples into features using
// retention-time density estimation within m/z slices.
//
// The observed m/z range is partitioned into contiguous,
// non-overlapping bins of width BinSize. Within each bin a Gaussian
// kernel density of the member peaks' retention times is evaluated on a
// fixed grid; local maxima of the density are group centers and the
// valleys between them are group boundaries. A candidate group is kept
// when, for at least one declared sample group, the fraction of that
// group's samples contributing a peak reaches MinFraction, OR when the
// absolute number of distinct contributing samples reaches MinSamples
// (logical OR of the two thresholds; MinSamples <= 0 disables the
// absolute branch).
//
// The engine is parameter-agnostic: hook-peak discovery for alignment
// is the same call with MinFraction = 1.
package correspond

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/algo-lcms/lcms/peaktable"
)

// Feature is a cross-sample grouping of peaks believed to represent
// the same ion.
type Feature struct {
	ID int

	MZMed float64
	MZMin float64
	MZMax float64

	RTMed float64
	RTMin float64
	RTMax float64

	// PeakIDs are table ids of the member peaks, ascending.
	PeakIDs []int
}

// Config holds grouping parameters.
type Config struct {
	// BinSize is the m/z slice width.
	BinSize float64

	// Bandwidth is the Gaussian kernel bandwidth in seconds.
	Bandwidth float64

	// MinFraction is the fraction of a sample group's samples that
	// must contribute a peak, in [0, 1].
	MinFraction float64

	// MinSamples is the absolute number of distinct contributing
	// samples that retains a group regardless of MinFraction.
	// Zero or negative disables this branch.
	MinSamples int

	// MaxFeatures caps the number of features emitted per m/z bin,
	// keeping the most populated groups.
	MaxFeatures int
}

// DefaultConfig returns grouping defaults.
func DefaultConfig() Config {
	return Config{
		BinSize:     0.25,
		Bandwidth:   30,
		MinFraction: 0.5,
		MinSamples:  0,
		MaxFeatures: 50,
	}
}

func validateConfig(cfg Config) error {
	if cfg.BinSize <= 0 {
		return fmt.Errorf("correspond: bin size must be > 0: %g", cfg.BinSize)
	}
	if cfg.Bandwidth <= 0 {
		return fmt.Errorf("correspond: bandwidth must be > 0: %g", cfg.Bandwidth)
	}
	if cfg.MinFraction < 0 || cfg.MinFraction > 1 {
		return fmt.Errorf("correspond: min fraction must be in [0, 1]: %g", cfg.MinFraction)
	}
	if cfg.MaxFeatures < 1 {
		return fmt.Errorf("correspond: max features must be >= 1: %d", cfg.MaxFeatures)
	}
	return nil
}

// densityGridSize is the number of evaluation points of the KDE grid
// per bin.
const densityGridSize = 512

// Grouper runs peak-density correspondence.
type Grouper struct {
	cfg Config
}

// NewGrouper validates cfg and returns a grouper.
func NewGrouper(cfg Config) (*Grouper, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Grouper{cfg: cfg}, nil
}

// Group builds a fresh feature set from the table. classes maps sample
// id to its experimental group label; samples absent from the map form
// an implicit "" group. A nil map places every sample of the table in
// one group. The previous feature set of a caller is replaced, never
// merged.
//
// Feature ids are assigned after sorting by (MZMed, RTMed), so the
// result is deterministic for identical inputs.
func (g *Grouper) Group(t *peaktable.Table, classes map[int]string) ([]Feature, error) {
	peaks := t.Peaks()
	if len(peaks) == 0 {
		return nil, nil
	}

	if classes == nil {
		classes = make(map[int]string)
		for _, id := range t.SampleIDs() {
			classes[id] = ""
		}
	}
	classSize := make(map[string]int)
	for _, label := range classes {
		classSize[label]++
	}
	// Samples present in the table but absent from the map belong to
	// the implicit "" group and must count toward its size.
	for _, id := range t.SampleIDs() {
		if _, ok := classes[id]; !ok {
			classSize[""]++
		}
	}

	// Peak ids sorted by m/z for bin partitioning.
	ids := make([]int, len(peaks))
	for i := range ids {
		ids[i] = i
	}
	sort.Slice(ids, func(a, b int) bool { return peaks[ids[a]].MZ < peaks[ids[b]].MZ })

	mzLo := peaks[ids[0]].MZ

	var features []Feature
	var bin []int
	binIdx := func(mz float64) int { return int((mz - mzLo) / g.cfg.BinSize) }

	flush := func() {
		if len(bin) == 0 {
			return
		}
		features = append(features, g.groupBin(peaks, bin, classes, classSize)...)
		bin = bin[:0]
	}

	current := 0
	for _, id := range ids {
		if b := binIdx(peaks[id].MZ); b != current {
			flush()
			current = b
		}
		bin = append(bin, id)
	}
	flush()

	sort.Slice(features, func(a, b int) bool {
		if features[a].MZMed != features[b].MZMed {
			return features[a].MZMed < features[b].MZMed
		}
		return features[a].RTMed < features[b].RTMed
	})
	for i := range features {
		features[i].ID = i
	}
	return features, nil
}

// groupBin splits one m/z bin into rt groups by density estimation.
func (g *Grouper) groupBin(peaks []peaktable.Peak, bin []int, classes map[int]string, classSize map[string]int) []Feature {
	rts := make([]float64, len(bin))
	for i, id := range bin {
		rts[i] = peaks[id].RT
	}
	lo, hi := minMax(rts)
	lo -= 3 * g.cfg.Bandwidth
	hi += 3 * g.cfg.Bandwidth

	density := make([]float64, densityGridSize)
	step := (hi - lo) / float64(densityGridSize-1)
	for i := range density {
		x := lo + float64(i)*step
		var d float64
		for _, rt := range rts {
			u := (x - rt) / g.cfg.Bandwidth
			d += math.Exp(-u * u / 2)
		}
		density[i] = d
	}

	boundaries := valleyBoundaries(density)

	// Assign each peak to its valley-bounded interval.
	groups := make(map[int][]int)
	for _, id := range bin {
		grid := int((peaks[id].RT - lo) / step)
		if grid < 0 {
			grid = 0
		}
		if grid >= densityGridSize {
			grid = densityGridSize - 1
		}
		slot := sort.SearchInts(boundaries, grid+1)
		groups[slot] = append(groups[slot], id)
	}

	slots := make([]int, 0, len(groups))
	for slot := range groups {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	var candidates []Feature
	for _, slot := range slots {
		members := groups[slot]
		if !g.retain(peaks, members, classes, classSize) {
			continue
		}
		candidates = append(candidates, buildFeature(peaks, members))
	}

	if len(candidates) > g.cfg.MaxFeatures {
		// Keep the most populated groups; ties break on earlier rt
		// for determinism.
		sort.Slice(candidates, func(a, b int) bool {
			if len(candidates[a].PeakIDs) != len(candidates[b].PeakIDs) {
				return len(candidates[a].PeakIDs) > len(candidates[b].PeakIDs)
			}
			return candidates[a].RTMed < candidates[b].RTMed
		})
		candidates = candidates[:g.cfg.MaxFeatures]
	}
	return candidates
}

// retain applies the OR of the MinFraction and MinSamples thresholds.
func (g *Grouper) retain(peaks []peaktable.Peak, members []int, classes map[int]string, classSize map[string]int) bool {
	perClass := make(map[string]map[int]bool)
	distinct := make(map[int]bool)
	for _, id := range members {
		sid := peaks[id].SampleID
		label := classes[sid]
		if perClass[label] == nil {
			perClass[label] = make(map[int]bool)
		}
		perClass[label][sid] = true
		distinct[sid] = true
	}

	if g.cfg.MinSamples > 0 && len(distinct) >= g.cfg.MinSamples {
		return true
	}
	for label, samples := range perClass {
		total := classSize[label]
		if total == 0 {
			continue
		}
		if float64(len(samples))/float64(total) >= g.cfg.MinFraction {
			return true
		}
	}
	return false
}

func buildFeature(peaks []peaktable.Peak, members []int) Feature {
	sort.Ints(members)

	mzs := make([]float64, len(members))
	rts := make([]float64, len(members))
	for i, id := range members {
		mzs[i] = peaks[id].MZ
		rts[i] = peaks[id].RT
	}
	sort.Float64s(mzs)
	sort.Float64s(rts)

	return Feature{
		MZMed:   stat.Quantile(0.5, stat.Empirical, mzs, nil),
		MZMin:   mzs[0],
		MZMax:   mzs[len(mzs)-1],
		RTMed:   stat.Quantile(0.5, stat.Empirical, rts, nil),
		RTMin:   rts[0],
		RTMax:   rts[len(rts)-1],
		PeakIDs: members,
	}
}

// valleyBoundaries returns the grid indices of density minima that
// separate adjacent maxima. Group k spans grid positions
// (boundaries[k-1], boundaries[k]].
func valleyBoundaries(density []float64) []int {
	var maxima []int
	for i := 1; i < len(density)-1; i++ {
		if density[i] > density[i-1] && density[i] >= density[i+1] {
			maxima = append(maxima, i)
		}
	}
	if len(maxima) < 2 {
		return nil
	}

	boundaries := make([]int, 0, len(maxima)-1)
	for k := 0; k < len(maxima)-1; k++ {
		valley := maxima[k]
		for i := maxima[k]; i <= maxima[k+1]; i++ {
			if density[i] < density[valley] {
				valley = i
			}
		}
		boundaries = append(boundaries, valley)
	}
	return boundaries
}

func minMax(xs []float64) (lo, hi float64) {
	lo, hi = xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}
