package scan

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Errors returned by spectrum readers.
var (
	// ErrRead indicates a failed read from the underlying spectrum source.
	// An empty result is not a read failure; readers return an empty slice
	// and a nil error when no scan falls inside the requested window.
	ErrRead = errors.New("scan: read failure")

	ErrUnknownSample = errors.New("scan: unknown sample")
	ErrUnorderedScan = errors.New("scan: retention time not increasing")
)

// Polarity identifies the ionization mode of a scan.
type Polarity int8

const (
	PolarityUnknown Polarity = iota
	PolarityPositive
	PolarityNegative
)

// Point is a single centroided measurement within a scan.
type Point struct {
	MZ        float64
	Intensity float64
}

// Scan is one instrument measurement at a fixed retention time.
// Points are sorted by ascending m/z. Scans are treated as immutable
// once handed out by a SpectrumAccess.
type Scan struct {
	SampleID      int
	RetentionTime float64 // seconds
	Polarity      Polarity
	Points        []Point
}

// Range is a closed numeric interval. The zero value is the empty
// interval; use Everything for an unbounded query window.
type Range struct {
	Min float64
	Max float64
}

// Everything returns a range covering all representable values.
func Everything() Range {
	return Range{Min: -math.MaxFloat64, Max: math.MaxFloat64}
}

// Contains reports whether v lies inside the closed interval.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Width returns Max - Min.
func (r Range) Width() float64 {
	return r.Max - r.Min
}

// Mid returns the interval midpoint.
func (r Range) Mid() float64 {
	return (r.Min + r.Max) / 2
}

// PPMRange returns the closed m/z interval of ±ppm around mz.
func PPMRange(mz, ppm float64) Range {
	tol := mz * ppm * 1e-6
	return Range{Min: mz - tol, Max: mz + tol}
}

// SpectrumAccess provides range-restricted read access to raw scans.
//
// Implementations must return scans ordered by retention time, with
// points restricted to the requested m/z window and sorted by m/z.
// A window containing no scans yields an empty slice and a nil error;
// errors wrapping ErrRead are reserved for genuine read failures.
type SpectrumAccess interface {
	Scans(sampleID int, mz, rt Range) ([]Scan, error)
}

// Transform is a stateless per-scan transformation (smoothing,
// intensity thresholding, ...) applied lazily on every read.
type Transform func(Scan) Scan

// Memory is an in-memory SpectrumAccess backed by pre-loaded scans.
// It applies an ordered chain of transforms on each read, so derived
// views are recomputed on access rather than materialized.
type Memory struct {
	samples    map[int][]Scan
	transforms []Transform
}

// NewMemory returns an empty in-memory spectrum store.
func NewMemory() *Memory {
	return &Memory{samples: make(map[int][]Scan)}
}

// AddTransform appends a transform to the read chain.
func (m *Memory) AddTransform(t Transform) {
	if t != nil {
		m.transforms = append(m.transforms, t)
	}
}

// AddScan appends a scan to its sample. Scans must be added in
// strictly increasing retention-time order per sample, with points
// sorted by m/z.
func (m *Memory) AddScan(s Scan) error {
	prev := m.samples[s.SampleID]
	if len(prev) > 0 && s.RetentionTime <= prev[len(prev)-1].RetentionTime {
		return fmt.Errorf("%w: sample %d, rt %g after %g",
			ErrUnorderedScan, s.SampleID, s.RetentionTime, prev[len(prev)-1].RetentionTime)
	}
	if !sort.SliceIsSorted(s.Points, func(i, j int) bool { return s.Points[i].MZ < s.Points[j].MZ }) {
		sorted := append([]Point(nil), s.Points...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].MZ < sorted[j].MZ })
		s.Points = sorted
	}
	m.samples[s.SampleID] = append(prev, s)
	return nil
}

// SampleIDs returns the stored sample ids in ascending order.
func (m *Memory) SampleIDs() []int {
	ids := make([]int, 0, len(m.samples))
	for id := range m.samples {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Scans implements SpectrumAccess.
func (m *Memory) Scans(sampleID int, mz, rt Range) ([]Scan, error) {
	all, ok := m.samples[sampleID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSample, sampleID)
	}

	i1 := sort.Search(len(all), func(i int) bool { return all[i].RetentionTime >= rt.Min })
	i2 := sort.Search(len(all), func(i int) bool { return all[i].RetentionTime > rt.Max })

	out := make([]Scan, 0, i2-i1)
	for _, s := range all[i1:i2] {
		for _, t := range m.transforms {
			s = t(s)
		}
		out = append(out, Scan{
			SampleID:      s.SampleID,
			RetentionTime: s.RetentionTime,
			Polarity:      s.Polarity,
			Points:        PointsInWindow(s.Points, mz),
		})
	}
	return out, nil
}

// PointsInWindow returns the sub-slice of points whose m/z lies in the
// window. Points must be sorted by m/z.
func PointsInWindow(points []Point, mz Range) []Point {
	i1 := sort.Search(len(points), func(i int) bool { return points[i].MZ >= mz.Min })
	i2 := sort.Search(len(points), func(i int) bool { return points[i].MZ > mz.Max })
	return points[i1:i2]
}

// MaxPoint returns the highest-intensity point in the slice.
// The boolean result is false for an empty slice.
func MaxPoint(points []Point) (Point, bool) {
	if len(points) == 0 {
		return Point{}, false
	}
	best := points[0]
	for _, p := range points[1:] {
		if p.Intensity > best.Intensity {
			best = p
		}
	}
	return best, true
}
