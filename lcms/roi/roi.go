// Package roi detects regions of interest: contiguous m/z traces across
// consecutive scans that may contain a chromatographic peak.
//
// The detector keeps a set of active traces, each with a representative
// m/z. Every point of every scan either extends the nearest active
// trace within a ppm tolerance or opens a new one. Traces that receive
// no point for more than MaxGap consecutive scans are closed; closed
// traces shorter than MinLength points are discarded.
//
// The representative m/z of a trace is the intensity-weighted running
// mean of its points. This is more stable against centroid jitter than
// tracking the most recent m/z and is pinned by a regression test.
package roi

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/cwbudde/algo-lcms/lcms/scan"
)

// Point is one member measurement of a region of interest.
type Point struct {
	ScanIndex int
	MZ        float64
	Intensity float64
}

// ROI is a candidate ion trace for one sample. Points are ordered by
// scan index, at most one point per scan.
type ROI struct {
	SampleID int
	Points   []Point
}

// MZBounds returns the m/z scatter of the member points.
func (r ROI) MZBounds() (min, max float64) {
	min = math.MaxFloat64
	max = -math.MaxFloat64
	for _, p := range r.Points {
		if p.MZ < min {
			min = p.MZ
		}
		if p.MZ > max {
			max = p.MZ
		}
	}
	return min, max
}

// ScanBounds returns the first and last member scan index.
func (r ROI) ScanBounds() (first, last int) {
	if len(r.Points) == 0 {
		return 0, -1
	}
	return r.Points[0].ScanIndex, r.Points[len(r.Points)-1].ScanIndex
}

// Config holds ROI detection parameters.
type Config struct {
	// PPM is the relative m/z tolerance for attaching a point to an
	// active trace: |mz - rep| / rep * 1e6 <= PPM.
	PPM float64

	// MinLength is the minimum number of member points for a trace to
	// be emitted as an ROI.
	MinLength int

	// MaxGap is the number of consecutive scans a trace may miss
	// before it is closed.
	MaxGap int

	// NoiseFloor drops points at or below this intensity before
	// matching.
	NoiseFloor float64
}

// DefaultConfig returns detection defaults suited to high-resolution
// centroided data.
func DefaultConfig() Config {
	return Config{
		PPM:        25,
		MinLength:  4,
		MaxGap:     2,
		NoiseFloor: 0,
	}
}

func validateConfig(cfg Config) error {
	if cfg.PPM <= 0 {
		return fmt.Errorf("roi: ppm must be > 0: %g", cfg.PPM)
	}
	if cfg.MinLength < 1 {
		return fmt.Errorf("roi: min length must be >= 1: %d", cfg.MinLength)
	}
	if cfg.MaxGap < 0 {
		return fmt.Errorf("roi: max gap must be >= 0: %d", cfg.MaxGap)
	}
	if cfg.NoiseFloor < 0 {
		return fmt.Errorf("roi: noise floor must be >= 0: %g", cfg.NoiseFloor)
	}
	return nil
}

// Detector finds ROIs in one sample's scans.
type Detector struct {
	cfg Config
}

// NewDetector validates cfg and returns a detector.
func NewDetector(cfg Config) (*Detector, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg}, nil
}

// trace is an open candidate ROI.
type trace struct {
	points    []Point
	repMZ     float64 // intensity-weighted running mean
	weightSum float64
	lastScan  int
	claimed   bool // already extended in the current scan
}

func (t *trace) extend(p Point) {
	t.points = append(t.points, p)
	t.weightSum += p.Intensity
	if t.weightSum > 0 {
		t.repMZ += (p.MZ - t.repMZ) * p.Intensity / t.weightSum
	} else {
		t.repMZ = p.MZ
	}
	t.lastScan = p.ScanIndex
	t.claimed = true
}

// Detect scans the sample's scans in retention-time order and returns
// the closed ROIs, ordered by ascending representative m/z. Zero scans
// yield an empty result, not an error.
func (d *Detector) Detect(scans []scan.Scan) []ROI {
	var (
		open   []*trace
		closed []ROI
	)
	sampleID := 0
	if len(scans) > 0 {
		sampleID = scans[0].SampleID
	}

	for idx, s := range scans {
		// Close traces that exceeded the gap tolerance.
		open = d.sweep(open, &closed, sampleID, idx)

		for i := range open {
			open[i].claimed = false
		}
		// open stays sorted by repMZ; points arrive sorted by m/z.
		for _, p := range s.Points {
			if p.Intensity <= d.cfg.NoiseFloor {
				continue
			}
			pt := Point{ScanIndex: idx, MZ: p.MZ, Intensity: p.Intensity}
			if t := d.match(open, pt.MZ); t != nil {
				t.extend(pt)
				continue
			}
			nt := &trace{repMZ: pt.MZ, lastScan: idx, claimed: true}
			nt.points = append(nt.points, pt)
			nt.weightSum = pt.Intensity
			// Insert at the sorted position so the binary search in
			// match keeps working for later points of the same scan.
			at := sort.Search(len(open), func(i int) bool { return open[i].repMZ >= nt.repMZ })
			open = slices.Insert(open, at, nt)
		}
		// Extending a trace shifts its weighted mean, which can perturb
		// the order slightly; restore it before the next scan.
		sort.Slice(open, func(i, j int) bool { return open[i].repMZ < open[j].repMZ })
	}

	// Flush everything still open.
	for _, t := range open {
		if len(t.points) >= d.cfg.MinLength {
			closed = append(closed, ROI{SampleID: sampleID, Points: t.points})
		}
	}

	sort.Slice(closed, func(i, j int) bool {
		mi, _ := closed[i].MZBounds()
		mj, _ := closed[j].MZBounds()
		if mi != mj {
			return mi < mj
		}
		fi, _ := closed[i].ScanBounds()
		fj, _ := closed[j].ScanBounds()
		return fi < fj
	})
	return closed
}

// match returns the nearest unclaimed open trace within tolerance of
// mz, or nil. A trace accepts at most one point per scan, so two
// equally close points cannot both land in the same trace.
func (d *Detector) match(open []*trace, mz float64) *trace {
	i := sort.Search(len(open), func(i int) bool { return open[i].repMZ >= mz })

	var best *trace
	bestDiff := math.MaxFloat64
	for _, j := range []int{i - 1, i} {
		// Probe outward from the insertion point; claimed traces are
		// skipped in favor of the next nearest candidate.
		for ; j >= 0 && j < len(open); j = step(j, i) {
			t := open[j]
			diff := math.Abs(mz - t.repMZ)
			if diff/t.repMZ*1e6 > d.cfg.PPM {
				break
			}
			if t.claimed {
				continue
			}
			if diff < bestDiff {
				best = t
				bestDiff = diff
			}
			break
		}
	}
	return best
}

// step moves j away from the insertion point pivot.
func step(j, pivot int) int {
	if j < pivot {
		return j - 1
	}
	return j + 1
}

func (d *Detector) sweep(open []*trace, closed *[]ROI, sampleID, scanIdx int) []*trace {
	kept := open[:0]
	for _, t := range open {
		// scanIdx-t.lastScan-1 scans passed without a member point.
		if scanIdx-t.lastScan-1 > d.cfg.MaxGap {
			if len(t.points) >= d.cfg.MinLength {
				*closed = append(*closed, ROI{SampleID: sampleID, Points: t.points})
			}
			continue
		}
		kept = append(kept, t)
	}
	return kept
}
