package pipeline

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-lcms/lcms/correspond"
	"github.com/cwbudde/algo-lcms/lcms/peaktable"
)

// ValueColumn selects the numeric peak column reported in the feature
// value matrix.
type ValueColumn int

const (
	ColumnInto ValueColumn = iota
	ColumnMaxO
	ColumnSN
)

// MultiPeakPolicy selects the value when a sample contributes more
// than one peak to a feature.
type MultiPeakPolicy int

const (
	// PolicyMaxInto reports the column of the peak with the largest
	// integrated area.
	PolicyMaxInto MultiPeakPolicy = iota

	// PolicySum reports the sum of the column over all contributing
	// peaks.
	PolicySum
)

// Matrix is the rectangular features × samples value matrix. A cell
// without any contributing peak holds NaN and is flagged in Missing;
// after gap filling no cell is missing.
type Matrix struct {
	FeatureIDs []int
	SampleIDs  []int
	Values     [][]float64 // Values[featureRow][sampleCol]
	Missing    [][]bool
}

// ChromPeaks returns the peaks matching the filter, in table order.
func (pl *Pipeline) ChromPeaks(f peaktable.Filter) []peaktable.Peak {
	ids := pl.table.Select(f)
	out := make([]peaktable.Peak, len(ids))
	for i, id := range ids {
		out[i], _ = pl.table.Peak(id)
	}
	return out
}

// Table returns the underlying peak table.
func (pl *Pipeline) Table() *peaktable.Table {
	return pl.table
}

// FeatureDefinitions returns the current feature set in id order.
func (pl *Pipeline) FeatureDefinitions() []correspond.Feature {
	return append([]correspond.Feature(nil), pl.features...)
}

// FeatureValues builds the feature value matrix for the chosen column
// and multi-peak policy. Filled peaks contribute through their fill
// assignments.
func (pl *Pipeline) FeatureValues(col ValueColumn, policy MultiPeakPolicy) (Matrix, error) {
	if pl.features == nil {
		return Matrix{}, ErrNoFeatures
	}
	if col != ColumnInto && col != ColumnMaxO && col != ColumnSN {
		return Matrix{}, fmt.Errorf("%w: unknown value column %d", ErrConfig, col)
	}
	if policy != PolicyMaxInto && policy != PolicySum {
		return Matrix{}, fmt.Errorf("%w: unknown multi-peak policy %d", ErrConfig, policy)
	}

	sampleIDs := pl.sampleIDs()
	colOf := make(map[int]int, len(sampleIDs))
	for i, id := range sampleIDs {
		colOf[id] = i
	}

	// Fill assignments per feature id.
	filled := make(map[int][]int)
	for _, a := range pl.fills {
		filled[a.FeatureID] = append(filled[a.FeatureID], a.PeakID)
	}

	m := Matrix{
		FeatureIDs: make([]int, len(pl.features)),
		SampleIDs:  sampleIDs,
		Values:     make([][]float64, len(pl.features)),
		Missing:    make([][]bool, len(pl.features)),
	}

	for row, feat := range pl.features {
		m.FeatureIDs[row] = feat.ID
		m.Values[row] = make([]float64, len(sampleIDs))
		m.Missing[row] = make([]bool, len(sampleIDs))

		perSample := make(map[int][]peaktable.Peak)
		for _, id := range append(append([]int(nil), feat.PeakIDs...), filled[feat.ID]...) {
			p, err := pl.table.Peak(id)
			if err != nil {
				return Matrix{}, fmt.Errorf("pipeline: feature %d: %w", feat.ID, err)
			}
			perSample[p.SampleID] = append(perSample[p.SampleID], p)
		}

		for ci, sid := range sampleIDs {
			peaks := perSample[sid]
			if len(peaks) == 0 {
				m.Values[row][ci] = math.NaN()
				m.Missing[row][ci] = true
				continue
			}
			m.Values[row][ci] = cellValue(peaks, col, policy)
		}
	}
	return m, nil
}

func cellValue(peaks []peaktable.Peak, col ValueColumn, policy MultiPeakPolicy) float64 {
	if policy == PolicySum {
		var sum float64
		for _, p := range peaks {
			sum += column(p, col)
		}
		return sum
	}

	best := peaks[0]
	for _, p := range peaks[1:] {
		if p.Into > best.Into {
			best = p
		}
	}
	return column(best, col)
}

func column(p peaktable.Peak, col ValueColumn) float64 {
	switch col {
	case ColumnMaxO:
		return p.MaxO
	case ColumnSN:
		return p.SN
	default:
		return p.Into
	}
}
