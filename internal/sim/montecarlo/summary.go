package montecarlo

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"startupsim.ai/internal/sim/mathx"
)

// Summary aggregates a batch. Standard deviations are population standard
// deviations over runs.
type Summary struct {
	Runs int `json:"runs"`

	MeanFailureRate float64 `json:"mean_failure_rate"`
	StdFailureRate  float64 `json:"std_failure_rate"`

	MeanSuccessCount float64 `json:"mean_success_count"`
	StdSuccessCount  float64 `json:"std_success_count"`

	MeanTopPercentileCount float64 `json:"mean_top_percentile_count"`

	MeanAvgValuation float64 `json:"mean_avg_valuation"`
	StdAvgValuation  float64 `json:"std_avg_valuation"`

	// Survival statistics pool the death months of every run.
	Deaths         int     `json:"deaths"`
	MeanSurvival   float64 `json:"mean_survival"`
	MedianSurvival float64 `json:"median_survival"`
	StdSurvival    float64 `json:"std_survival"`
}

func Summarize(runs []RunResult) Summary {
	s := Summary{Runs: len(runs)}
	if len(runs) == 0 {
		return s
	}
	failure := make([]float64, len(runs))
	success := make([]float64, len(runs))
	top := make([]float64, len(runs))
	valuation := make([]float64, len(runs))
	for i, r := range runs {
		failure[i] = r.FailureRate
		success[i] = float64(r.SuccessCount)
		top[i] = float64(r.TopPercentileCount)
		valuation[i] = r.AvgValuation
	}
	s.MeanFailureRate, s.StdFailureRate = stat.PopMeanStdDev(failure, nil)
	s.MeanSuccessCount, s.StdSuccessCount = stat.PopMeanStdDev(success, nil)
	s.MeanTopPercentileCount = stat.Mean(top, nil)
	s.MeanAvgValuation, s.StdAvgValuation = stat.PopMeanStdDev(valuation, nil)

	pooled := PooledSurvival(runs)
	s.Deaths = len(pooled)
	if len(pooled) > 0 {
		s.MeanSurvival, s.StdSurvival = stat.PopMeanStdDev(pooled, nil)
		sorted := append([]float64(nil), pooled...)
		sort.Float64s(sorted)
		s.MedianSurvival = mathx.Median(sorted)
	}
	return s
}

// PooledSurvival concatenates the survival times of all runs in run order.
func PooledSurvival(runs []RunResult) []float64 {
	var out []float64
	for _, r := range runs {
		for _, m := range r.SurvivalTimes {
			out = append(out, float64(m))
		}
	}
	return out
}
