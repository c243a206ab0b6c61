package peaktable

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// csvHeader is the flat tabular handoff format: one row per peak.
var csvHeader = []string{
	"sample", "mz", "mzmin", "mzmax", "rt", "rtmin", "rtmax",
	"into", "maxo", "sn", "filled",
}

// WriteCSV writes the table in a flat tabular format for handoff to
// downstream analysis.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("peaktable: write header: %w", err)
	}
	row := make([]string, len(csvHeader))
	for _, p := range t.peaks {
		row[0] = strconv.Itoa(p.SampleID)
		for i, v := range []float64{p.MZ, p.MZMin, p.MZMax, p.RT, p.RTMin, p.RTMax, p.Into, p.MaxO, p.SN} {
			row[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		row[10] = strconv.FormatBool(p.Filled)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("peaktable: write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a table previously written by WriteCSV.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("peaktable: read csv: %w", err)
	}
	if len(records) == 0 {
		return New(), nil
	}

	t := New()
	for _, rec := range records[1:] {
		if len(rec) != len(csvHeader) {
			return nil, fmt.Errorf("peaktable: want %d columns, got %d", len(csvHeader), len(rec))
		}
		var p Peak
		if p.SampleID, err = strconv.Atoi(rec[0]); err != nil {
			return nil, fmt.Errorf("peaktable: sample id %q: %w", rec[0], err)
		}
		dst := []*float64{&p.MZ, &p.MZMin, &p.MZMax, &p.RT, &p.RTMin, &p.RTMax, &p.Into, &p.MaxO, &p.SN}
		for i, field := range rec[1:10] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("peaktable: column %s value %q: %w", csvHeader[i+1], field, err)
			}
			*dst[i] = v
		}
		if p.Filled, err = strconv.ParseBool(rec[10]); err != nil {
			return nil, fmt.Errorf("peaktable: filled flag %q: %w", rec[10], err)
		}
		if _, err := t.Append(p); err != nil {
			return nil, err
		}
	}
	return t, nil
}
