// Command waveinfo prints the wavelet scale ladder used for a given
// chromatographic peak-width range and scan spacing.
//
// Usage:
//
//	waveinfo [flags]
//
// Examples:
//
//	waveinfo
//	waveinfo -peakwidth 10,60 -spacing 0.5
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cwbudde/algo-lcms/internal/wavelet"
)

func main() {
	var (
		peakwidth = flag.String("peakwidth", "5,30", "peak width range in seconds, min,max")
		spacing   = flag.Float64("spacing", 1.0, "scan spacing in seconds")
	)
	flag.Parse()

	minW, maxW, err := parseRange(*peakwidth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "waveinfo: %v\n", err)
		os.Exit(1)
	}

	scales, err := wavelet.Scales(minW, maxW, *spacing)
	if err != nil {
		fmt.Fprintf(os.Stderr, "waveinfo: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("peak width [%g, %g] s, scan spacing %g s: %d scales\n\n", minW, maxW, *spacing, len(scales))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "scale\tkernel len\tpeak width (s)")
	for _, s := range scales {
		kernel, err := wavelet.MexicanHat(s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "waveinfo: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(w, "%g\t%d\t%g\n", s, len(kernel), 2*s**spacing)
	}
	w.Flush()
}

func parseRange(s string) (min, max float64, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid peak width range %q", s)
	}
	if min, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64); err != nil {
		return 0, 0, fmt.Errorf("invalid peak width min %q: %w", parts[0], err)
	}
	if max, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64); err != nil {
		return 0, 0, fmt.Errorf("invalid peak width max %q: %w", parts[1], err)
	}
	return min, max, nil
}
