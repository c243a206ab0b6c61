package correspond

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// featureHeader is the flat tabular handoff format: one row per
// feature, member peak ids joined by semicolons.
var featureHeader = []string{
	"feature", "mzmed", "mzmin", "mzmax", "rtmed", "rtmin", "rtmax",
	"peaks",
}

// WriteFeaturesCSV writes the feature definitions for handoff to
// downstream analysis.
func WriteFeaturesCSV(w io.Writer, features []Feature) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(featureHeader); err != nil {
		return fmt.Errorf("correspond: write header: %w", err)
	}
	row := make([]string, len(featureHeader))
	for _, f := range features {
		row[0] = strconv.Itoa(f.ID)
		for i, v := range []float64{f.MZMed, f.MZMin, f.MZMax, f.RTMed, f.RTMin, f.RTMax} {
			row[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		ids := make([]string, len(f.PeakIDs))
		for i, id := range f.PeakIDs {
			ids[i] = strconv.Itoa(id)
		}
		row[7] = strings.Join(ids, ";")
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("correspond: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadFeaturesCSV reads feature definitions previously written by
// WriteFeaturesCSV.
func ReadFeaturesCSV(r io.Reader) ([]Feature, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("correspond: read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var features []Feature
	for _, rec := range records[1:] {
		if len(rec) != len(featureHeader) {
			return nil, fmt.Errorf("correspond: want %d columns, got %d", len(featureHeader), len(rec))
		}
		var f Feature
		if f.ID, err = strconv.Atoi(rec[0]); err != nil {
			return nil, fmt.Errorf("correspond: feature id %q: %w", rec[0], err)
		}
		dst := []*float64{&f.MZMed, &f.MZMin, &f.MZMax, &f.RTMed, &f.RTMin, &f.RTMax}
		for i, field := range rec[1:7] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("correspond: column %s value %q: %w", featureHeader[i+1], field, err)
			}
			*dst[i] = v
		}
		if rec[7] != "" {
			parts := strings.Split(rec[7], ";")
			f.PeakIDs = make([]int, len(parts))
			for i, part := range parts {
				if f.PeakIDs[i], err = strconv.Atoi(part); err != nil {
					return nil, fmt.Errorf("correspond: peak id %q: %w", part, err)
				}
			}
		}
		features = append(features, f)
	}
	return features, nil
}
