// Package report renders batch results as a text summary and CSV exports.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"startupsim.ai/internal/sim/montecarlo"
)

const (
	SummaryFile    = "summary_report.txt"
	TimeseriesFile = "model_timeseries.csv"
	AgentFile      = "agent_data.csv"
	MonteCarloFile = "monte_carlo_summary.csv"
)

const rule = "======================================================================"

// crore formats an amount in crore (1e7) with thousands separators.
func crore(v float64) string {
	return "₹" + humanize.FormatFloat("#,###.##", v/1e7) + " Cr"
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

// WriteSummary writes the plain-text batch report.
func WriteSummary(w io.Writer, res *montecarlo.Result, now time.Time) error {
	p := res.Params
	s := res.Summary
	var b strings.Builder

	fmt.Fprintf(&b, "STARTUP FUNDING DYNAMICS - SIMULATION SUMMARY REPORT\n%s\n\n", rule)
	fmt.Fprintf(&b, "SIMULATION PARAMETERS\n%s\n", rule)
	fmt.Fprintf(&b, "Batch: %s\n", res.ID)
	fmt.Fprintf(&b, "Number of Startups: %s\n", humanize.Comma(int64(res.Population)))
	fmt.Fprintf(&b, "Time Horizon: %d months\n", res.Horizon)
	fmt.Fprintf(&b, "Number of Monte Carlo Runs: %d\n", len(res.Runs))
	fmt.Fprintf(&b, "Base Seed: %d\n", res.BaseSeed)
	fmt.Fprintf(&b, "Parameter Digest: %s\n\n", p.Digest())

	fmt.Fprintf(&b, "AGGREGATE RESULTS\n%s\n", rule)
	fmt.Fprintf(&b, "Mean Failure Rate: %s ± %s\n", pct(s.MeanFailureRate), pct(s.StdFailureRate))
	fmt.Fprintf(&b, "Mean Success Count: %.1f ± %.1f\n", s.MeanSuccessCount, s.StdSuccessCount)
	if res.Population > 0 {
		fmt.Fprintf(&b, "Success Rate: %s\n", pct(s.MeanSuccessCount/float64(res.Population)))
	}
	fmt.Fprintf(&b, "Mean Top %.0f%% Count: %.1f\n", (1-p.SuccessPercentile)*100, s.MeanTopPercentileCount)
	fmt.Fprintf(&b, "Mean Average Valuation: %s ± %s\n\n", crore(s.MeanAvgValuation), crore(s.StdAvgValuation))

	fmt.Fprintf(&b, "SURVIVAL ANALYSIS\n%s\n", rule)
	fmt.Fprintln(&b, "Months are numbered from 1: a startup that fails in the first simulated month has survival time 1.")
	fmt.Fprintf(&b, "Total Failed Startups (all runs): %s\n", humanize.Comma(int64(s.Deaths)))
	if s.Deaths > 0 {
		fmt.Fprintf(&b, "Mean Survival Time: %.1f months\n", s.MeanSurvival)
		fmt.Fprintf(&b, "Median Survival Time: %.1f months\n", s.MedianSurvival)
		fmt.Fprintf(&b, "Std Dev Survival Time: %.1f months\n", s.StdSurvival)
	}

	if len(res.Runs) > 0 {
		fr := make([]float64, len(res.Runs))
		sc := make([]int, len(res.Runs))
		for i, r := range res.Runs {
			fr[i], sc[i] = r.FailureRate, r.SuccessCount
		}
		fmt.Fprintf(&b, "\nDISTRIBUTION STATISTICS (ACROSS RUNS)\n%s\n", rule)
		fmt.Fprintf(&b, "Failure Rate Range: [%s, %s]\n", pct(slices.Min(fr)), pct(slices.Max(fr)))
		fmt.Fprintf(&b, "Success Count Range: [%d, %d]\n", slices.Min(sc), slices.Max(sc))
	}

	fmt.Fprintf(&b, "\nMODEL PARAMETERS USED\n%s\n", rule)
	fmt.Fprintf(&b, "Initial Capital Range: %s - %s\n", crore(p.K0Min), crore(p.K0Max))
	fmt.Fprintf(&b, "Burn Rate: %.1f%% - %.1f%% of initial capital\n", p.B0MinRatio*100, p.B0MaxRatio*100)
	fmt.Fprintf(&b, "PMF Distribution: Beta(%g, %g)\n", p.PMFAlpha, p.PMFBeta)
	fmt.Fprintf(&b, "Funding Interval: %d months\n", p.FundingInterval)
	fmt.Fprintf(&b, "Policy Interval: %d months\n", p.PolicyInterval)
	fmt.Fprintf(&b, "Tax Rate: %.1f%%, Subsidy: %s, Compliance Cost: %s\n", p.Tau*100, crore(p.SG), crore(p.CReg))
	fmt.Fprintf(&b, "Shock Probability: %.1f%% per month\n", p.PShock*100)
	fmt.Fprintf(&b, "Success Threshold: %s valuation\n\n", crore(p.VExit))

	fmt.Fprintf(&b, "%s\nReport generated on: %s\n", rule, now.Format("2006-01-02 15:04:05"))

	_, err := io.WriteString(w, b.String())
	return err
}

// Export writes the summary report and the three CSV files into dir and
// returns their paths. Time series and agent data come from the first run.
func Export(dir string, res *montecarlo.Result, now time.Time) ([]string, error) {
	if len(res.Runs) == 0 {
		return nil, fmt.Errorf("report: batch %s has no runs", res.ID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	first := res.Runs[0]
	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{SummaryFile, func(w io.Writer) error { return WriteSummary(w, res, now) }},
		{TimeseriesFile, func(w io.Writer) error { return WriteTimeseries(w, first.Series) }},
		{AgentFile, func(w io.Writer) error { return WriteAgents(w, first, res.Horizon) }},
		{MonteCarloFile, func(w io.Writer) error { return WriteMonteCarlo(w, res.Runs) }},
	}
	var paths []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := writeFile(path, f.write); err != nil {
			return paths, fmt.Errorf("write %s: %w", f.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}
