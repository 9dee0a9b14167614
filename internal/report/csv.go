package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"startupsim.ai/internal/sim/montecarlo"
	"startupsim.ai/internal/sim/runner"
	"startupsim.ai/internal/sim/startup"
)

func f64(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func boolInt(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func writeRows(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteTimeseries writes one row per month.
func WriteTimeseries(w io.Writer, series []runner.MonthStats) error {
	header := []string{"month", "alive_startups", "dead_startups", "failure_rate", "total_funding",
		"funded", "avg_valuation", "avg_pmf", "avg_revenue", "market_size", "competition_index", "shock"}
	rows := make([][]string, 0, len(series))
	for _, ms := range series {
		rows = append(rows, []string{
			strconv.Itoa(ms.Month),
			strconv.Itoa(ms.Alive),
			strconv.Itoa(ms.Dead),
			f64(ms.FailureRate),
			f64(ms.TotalFunding),
			strconv.Itoa(ms.Funded),
			f64(ms.AvgValuation),
			f64(ms.AvgPMF),
			f64(ms.AvgRevenue),
			f64(ms.Market),
			f64(ms.Competition),
			boolInt(ms.Shock != nil && ms.Shock.Occurred),
		})
	}
	return writeRows(w, header, rows)
}

// WriteAgents writes per-month agent rows when the run kept history,
// otherwise the final records stamped with the horizon month.
func WriteAgents(w io.Writer, rr montecarlo.RunResult, horizon int) error {
	header := []string{"month", "agent_id", "capital", "burn_rate", "revenue", "pmf", "valuation",
		"alive", "funding_received", "death_month"}
	var rows [][]string
	add := func(month int, rec startup.Record) {
		death := ""
		if !rec.Alive {
			death = strconv.Itoa(rec.DeathMonth)
		}
		rows = append(rows, []string{
			strconv.Itoa(month),
			strconv.Itoa(rec.ID),
			f64(rec.Capital),
			f64(rec.Burn),
			f64(rec.Revenue),
			f64(rec.PMF),
			f64(rec.Valuation),
			boolInt(rec.Alive),
			f64(rec.Funding),
			death,
		})
	}
	if len(rr.History) > 0 {
		for m := 0; m < len(rr.History[0]); m++ {
			for _, h := range rr.History {
				add(m+1, h[m])
			}
		}
	} else {
		for _, rec := range rr.Agents {
			add(horizon, rec)
		}
	}
	return writeRows(w, header, rows)
}

// WriteMonteCarlo writes one row per run with its end-of-run aggregates.
func WriteMonteCarlo(w io.Writer, runs []montecarlo.RunResult) error {
	header := []string{"run", "seed", "failure_rate", "success_count", "top_percentile_count",
		"alive_startups", "avg_valuation", "median_valuation", "avg_pmf", "avg_revenue"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		var last runner.MonthStats
		if n := len(r.Series); n > 0 {
			last = r.Series[n-1]
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Index),
			strconv.FormatInt(r.Seed, 10),
			f64(r.FailureRate),
			strconv.Itoa(r.SuccessCount),
			strconv.Itoa(r.TopPercentileCount),
			strconv.Itoa(last.Alive),
			f64(r.AvgValuation),
			f64(r.MedianValuation),
			f64(last.AvgPMF),
			f64(last.AvgRevenue),
		})
	}
	return writeRows(w, header, rows)
}
