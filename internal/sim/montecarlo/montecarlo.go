// Package montecarlo runs many independent simulation runs with consecutive
// seeds and aggregates their outcomes.
package montecarlo

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"startupsim.ai/internal/sim/runner"
	"startupsim.ai/internal/sim/startup"
	"startupsim.ai/internal/sim/tuning"
)

var ErrInvalidRuns = errors.New("montecarlo: runs must be positive")

// RunError reports the run that aborted a batch.
type RunError struct {
	Run  int
	Seed int64
	Err  error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("montecarlo: run %d (seed %d): %v", e.Run, e.Seed, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Batch describes a Monte Carlo batch. Run i uses seed BaseSeed+i.
type Batch struct {
	ID       string
	Params   tuning.Params
	Runs     int
	BaseSeed int64

	// Population and Horizon default to NUM_STARTUPS and TIME_HORIZON.
	Population int
	Horizon    int

	// Workers bounds the number of runs in flight; 0 means GOMAXPROCS.
	Workers int

	AgentHistory bool
	Log          zerolog.Logger
}

// RunResult is what one run contributes to a batch.
type RunResult struct {
	Index              int                 `json:"index"`
	Seed               int64               `json:"seed"`
	FailureRate        float64             `json:"failure_rate"`
	SuccessCount       int                 `json:"success_count"`
	TopPercentileCount int                 `json:"top_percentile_count"`
	AvgValuation       float64             `json:"avg_valuation"`
	MedianValuation    float64             `json:"median_valuation"`
	SurvivalTimes      []int               `json:"survival_times"`
	Deaths             []runner.Death      `json:"deaths"`
	Series             []runner.MonthStats `json:"series"`
	Agents             []startup.Record    `json:"agents"`
	History            [][]startup.Record  `json:"history,omitempty"`
	FinalDigest        string              `json:"final_digest"`
}

// Result holds every run of a batch ordered by run index.
type Result struct {
	ID         string
	Params     tuning.Params
	BaseSeed   int64
	Population int
	Horizon    int
	Started    time.Time
	Finished   time.Time
	Runs       []RunResult
	Summary    Summary
}

func (b Batch) withDefaults() Batch {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Population == 0 {
		b.Population = b.Params.NumStartups
	}
	if b.Horizon == 0 {
		b.Horizon = b.Params.TimeHorizon
	}
	if b.Workers <= 0 {
		b.Workers = runtime.GOMAXPROCS(0)
	}
	return b
}

// Run executes the batch. Runs proceed in parallel, each strictly sequential
// inside; the first failing run cancels the rest and is returned as a
// *RunError.
func (b Batch) Run(ctx context.Context) (*Result, error) {
	if b.Runs <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRuns, b.Runs)
	}
	if err := b.Params.Validate(); err != nil {
		return nil, err
	}
	b = b.withDefaults()

	res := &Result{
		ID:         b.ID,
		Params:     b.Params,
		BaseSeed:   b.BaseSeed,
		Population: b.Population,
		Horizon:    b.Horizon,
		Started:    time.Now().UTC(),
		Runs:       make([]RunResult, b.Runs),
	}
	b.Log.Info().Str("batch", b.ID).Int("runs", b.Runs).Int("workers", b.Workers).
		Int("population", b.Population).Int("horizon", b.Horizon).Msg("batch start")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.Workers)
	for i := 0; i < b.Runs; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			seed := b.BaseSeed + int64(i)
			rr, err := b.runOne(i, seed)
			if err != nil {
				return &RunError{Run: i, Seed: seed, Err: err}
			}
			res.Runs[i] = rr
			b.Log.Debug().Str("batch", b.ID).Int("run", i).Int64("seed", seed).
				Float64("failure_rate", rr.FailureRate).Int("successes", rr.SuccessCount).Msg("run done")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.Log.Error().Err(err).Str("batch", b.ID).Msg("batch failed")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res.Finished = time.Now().UTC()
	res.Summary = Summarize(res.Runs)
	b.Log.Info().Str("batch", b.ID).
		Float64("mean_failure_rate", res.Summary.MeanFailureRate).
		Float64("mean_success_count", res.Summary.MeanSuccessCount).
		Dur("elapsed", res.Finished.Sub(res.Started)).Msg("batch done")
	return res, nil
}

func (b Batch) runOne(index int, seed int64) (rr RunResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", runner.ErrStagePanic, rec)
		}
	}()

	opts := []runner.Option{runner.WithLogger(b.Log.With().Int("run", index).Logger())}
	if b.AgentHistory {
		opts = append(opts, runner.WithAgentHistory())
	}
	r, err := runner.New(b.Params, b.Population, seed, opts...)
	if err != nil {
		return RunResult{}, err
	}
	if err := r.Run(b.Horizon); err != nil {
		return RunResult{}, err
	}
	return Collect(index, r), nil
}

// Collect extracts the outcome of a finished runner.
func Collect(index int, r *runner.Runner) RunResult {
	rr := RunResult{
		Index:              index,
		Seed:               r.Seed(),
		FailureRate:        r.FailureRate(),
		SuccessCount:       r.SuccessCount(),
		TopPercentileCount: r.TopPercentileCount(),
		MedianValuation:    r.MedianValuation(),
		SurvivalTimes:      r.SurvivalTimes(),
		Deaths:             r.Deaths(),
		Series:             r.Series(),
		Agents:             r.Agents(),
		FinalDigest:        r.Digest(),
	}
	var vals []float64
	for _, a := range rr.Agents {
		if a.Alive {
			vals = append(vals, a.Valuation)
		}
	}
	if len(vals) > 0 {
		rr.AvgValuation = stat.Mean(vals, nil)
	}
	for id := 0; id < r.Population(); id++ {
		h, ok := r.AgentHistory(id)
		if !ok {
			break
		}
		rr.History = append(rr.History, h)
	}
	return rr
}
