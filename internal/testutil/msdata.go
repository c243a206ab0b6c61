package testutil

import (
	"math"

	"github.com/cwbudde/algo-lcms/lcms/scan"
)

// PeakSpec describes one synthetic chromatographic peak: a Gaussian
// elution profile at a fixed m/z channel.
type PeakSpec struct {
	MZ     float64
	RT     float64 // apex retention time, seconds
	Sigma  float64 // elution width, seconds
	Height float64 // apex intensity
}

// specCutoff drops synthetic points below this intensity so peaks have
// finite support, mimicking centroided data.
const specCutoff = 0.5

// SyntheticScans builds scans for one sample on a uniform retention
// time grid. Every PeakSpec contributes a point per scan while its
// Gaussian profile is above a small cutoff; baseline adds a constant
// intensity to every emitted point.
func SyntheticScans(sampleID int, rt0, spacing float64, nScans int, peaks []PeakSpec, baseline float64) []scan.Scan {
	scans := make([]scan.Scan, 0, nScans)
	for i := 0; i < nScans; i++ {
		rt := rt0 + float64(i)*spacing
		s := scan.Scan{
			SampleID:      sampleID,
			RetentionTime: rt,
			Polarity:      scan.PolarityPositive,
		}
		for _, p := range peaks {
			d := rt - p.RT
			v := p.Height * math.Exp(-d*d/(2*p.Sigma*p.Sigma))
			if v < specCutoff {
				continue
			}
			s.Points = append(s.Points, scan.Point{MZ: p.MZ, Intensity: v + baseline})
		}
		sortPoints(s.Points)
		scans = append(scans, s)
	}
	return scans
}

// Memory builds an in-memory spectrum store from per-sample peak
// specs, all on the same retention time grid.
func Memory(rt0, spacing float64, nScans int, perSample map[int][]PeakSpec) *scan.Memory {
	m := scan.NewMemory()
	for id, specs := range perSample {
		for _, s := range SyntheticScans(id, rt0, spacing, nScans, specs, 0) {
			if err := m.AddScan(s); err != nil {
				panic(err) // synthetic grids are always ordered
			}
		}
	}
	return m
}

func sortPoints(points []scan.Point) {
	for i := 1; i < len(points); i++ {
		for j := i; j > 0 && points[j].MZ < points[j-1].MZ; j-- {
			points[j], points[j-1] = points[j-1], points[j]
		}
	}
}
