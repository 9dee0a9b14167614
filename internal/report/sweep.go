package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"startupsim.ai/internal/sim/montecarlo"
)

// WriteSweep prints a comparison table with one line per sweep value.
func WriteSweep(w io.Writer, points []montecarlo.SweepPoint) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	key := "VALUE"
	if len(points) > 0 {
		key = points[0].Key
	}
	fmt.Fprintf(tw, "%s\tFAILURE\t±\tSUCCESS\t±\tAVG VALUATION\tMEDIAN SURVIVAL\tBATCH\t\n", key)
	for _, pt := range points {
		s := pt.Summary
		fmt.Fprintf(tw, "%g\t%s\t%s\t%.1f\t%.1f\t%s\t%.1f\t%s\t\n",
			pt.Value, pct(s.MeanFailureRate), pct(s.StdFailureRate),
			s.MeanSuccessCount, s.StdSuccessCount, crore(s.MeanAvgValuation), s.MedianSurvival, pt.BatchID)
	}
	return tw.Flush()
}
