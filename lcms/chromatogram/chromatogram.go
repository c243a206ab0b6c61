// Package chromatogram extracts intensity-versus-retention-time series
// from raw scans. A chromatogram aggregates every point inside an m/z
// window into a single per-scan intensity, either by summing (total
// ion) or by taking the maximum (base peak).
//
// Chromatograms are ephemeral: they are recomputed per query and never
// persisted.
package chromatogram

import (
	"errors"
	"fmt"

	vecmath "github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-lcms/lcms/scan"
)

// Aggregation selects how points within the m/z window collapse into
// one intensity per scan.
type Aggregation int

const (
	// AggregationSum sums all point intensities ("total ion").
	AggregationSum Aggregation = iota

	// AggregationMax takes the highest point intensity ("base peak").
	AggregationMax
)

// ErrUnknownAggregation is returned for an aggregation value outside
// the defined constants.
var ErrUnknownAggregation = errors.New("chromatogram: unknown aggregation")

// Chromatogram is a derived (rt, intensity) series for one sample.
// RT and Intensity are parallel slices.
type Chromatogram struct {
	SampleID  int
	RT        []float64
	Intensity []float64
}

// Len returns the number of points in the series.
func (c Chromatogram) Len() int {
	return len(c.RT)
}

// Extractor slices chromatograms out of a SpectrumAccess.
type Extractor struct {
	access scan.SpectrumAccess
}

// NewExtractor returns an extractor reading from access.
func NewExtractor(access scan.SpectrumAccess) *Extractor {
	return &Extractor{access: access}
}

// Extract builds the chromatogram of the given sample restricted to an
// m/z and rt window. Scans with no point inside the m/z window
// contribute a zero intensity, so the rt axis always matches the scan
// grid of the window.
func (e *Extractor) Extract(sampleID int, mz, rt scan.Range, agg Aggregation) (Chromatogram, error) {
	if agg != AggregationSum && agg != AggregationMax {
		return Chromatogram{}, fmt.Errorf("%w: %d", ErrUnknownAggregation, agg)
	}

	scans, err := e.access.Scans(sampleID, mz, rt)
	if err != nil {
		return Chromatogram{}, err
	}

	c := Chromatogram{
		SampleID:  sampleID,
		RT:        make([]float64, len(scans)),
		Intensity: make([]float64, len(scans)),
	}

	var buf []float64
	for i, s := range scans {
		c.RT[i] = s.RetentionTime
		switch agg {
		case AggregationSum:
			buf = intensities(buf[:0], s.Points)
			c.Intensity[i] = vecmath.Sum(buf)
		case AggregationMax:
			if p, ok := scan.MaxPoint(s.Points); ok {
				c.Intensity[i] = p.Intensity
			}
		}
	}
	return c, nil
}

// TotalIon returns the full-range total-ion chromatogram of a sample.
func (e *Extractor) TotalIon(sampleID int) (Chromatogram, error) {
	return e.Extract(sampleID, scan.Everything(), scan.Everything(), AggregationSum)
}

// BasePeak returns the full-range base-peak chromatogram of a sample.
func (e *Extractor) BasePeak(sampleID int) (Chromatogram, error) {
	return e.Extract(sampleID, scan.Everything(), scan.Everything(), AggregationMax)
}

func intensities(dst []float64, points []scan.Point) []float64 {
	for _, p := range points {
		dst = append(dst, p.Intensity)
	}
	return dst
}
