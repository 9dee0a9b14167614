package montecarlo

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"startupsim.ai/internal/sim/runner"
	"startupsim.ai/internal/sim/tuning"
)

func smallBatch(runs, workers int) Batch {
	return Batch{
		Params:     tuning.Default(),
		Runs:       runs,
		BaseSeed:   100,
		Population: 80,
		Horizon:    24,
		Workers:    workers,
	}
}

func TestBatch_RunsOrderedBySeed(t *testing.T) {
	res, err := smallBatch(5, 3).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Runs, 5)
	assert.NotEmpty(t, res.ID)
	for i, rr := range res.Runs {
		assert.Equal(t, i, rr.Index)
		assert.Equal(t, int64(100+i), rr.Seed)
		assert.Len(t, rr.Series, 24)
		assert.Len(t, rr.Agents, 80)
	}
	assert.False(t, res.Finished.Before(res.Started))
}

func TestBatch_ParallelMatchesSequential(t *testing.T) {
	par, err := smallBatch(6, 4).Run(context.Background())
	require.NoError(t, err)
	seq, err := smallBatch(6, 1).Run(context.Background())
	require.NoError(t, err)

	for i := range par.Runs {
		assert.Equal(t, seq.Runs[i].FinalDigest, par.Runs[i].FinalDigest, "run %d", i)
	}
	assert.Equal(t, seq.Summary, par.Summary)
}

func TestBatch_MatchesStandaloneRunner(t *testing.T) {
	b := smallBatch(3, 2)
	res, err := b.Run(context.Background())
	require.NoError(t, err)

	r, err := runner.New(b.Params, b.Population, b.BaseSeed+2)
	require.NoError(t, err)
	require.NoError(t, r.Run(b.Horizon))
	assert.Equal(t, r.Digest(), res.Runs[2].FinalDigest)
	assert.Equal(t, r.FailureRate(), res.Runs[2].FailureRate)
}

func TestBatch_DefaultsFromParams(t *testing.T) {
	p := tuning.Default()
	p.NumStartups = 12
	p.TimeHorizon = 5
	res, err := Batch{Params: p, Runs: 2}.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, res.Population)
	assert.Equal(t, 5, res.Horizon)
	assert.Len(t, res.Runs[0].Series, 5)
}

func TestBatch_RejectsBadInput(t *testing.T) {
	_, err := smallBatch(0, 1).Run(context.Background())
	assert.True(t, errors.Is(err, ErrInvalidRuns))

	b := smallBatch(2, 1)
	b.Params.TimeHorizon = 0
	_, err = b.Run(context.Background())
	assert.True(t, errors.Is(err, tuning.ErrInvalid))
}

func TestBatch_FailedRunIsFatal(t *testing.T) {
	b := smallBatch(4, 2)
	b.Horizon = -1
	_, err := b.Run(context.Background())
	require.Error(t, err)

	var re *RunError
	require.True(t, errors.As(err, &re))
	assert.True(t, errors.Is(err, runner.ErrInvalidHorizon))
	assert.Equal(t, b.BaseSeed+int64(re.Run), re.Seed)
}

func TestBatch_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := smallBatch(3, 1).Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestBatch_AgentHistory(t *testing.T) {
	b := smallBatch(1, 1)
	b.AgentHistory = true
	res, err := b.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Runs[0].History, b.Population)
	assert.Len(t, res.Runs[0].History[0], b.Horizon)
}

func TestSummarize(t *testing.T) {
	runs := []RunResult{
		{FailureRate: 0.2, SuccessCount: 1, AvgValuation: 10, SurvivalTimes: []int{3, 5}},
		{FailureRate: 0.4, SuccessCount: 3, AvgValuation: 30, SurvivalTimes: []int{7}},
		{FailureRate: 0.6, SuccessCount: 5, AvgValuation: 20, SurvivalTimes: []int{1, 9, 11}},
	}
	s := Summarize(runs)
	assert.Equal(t, 3, s.Runs)
	assert.InDelta(t, 0.4, s.MeanFailureRate, 1e-12)
	assert.InDelta(t, math.Sqrt(0.08/3), s.StdFailureRate, 1e-12)
	assert.InDelta(t, 3, s.MeanSuccessCount, 1e-12)
	assert.InDelta(t, math.Sqrt(8.0/3), s.StdSuccessCount, 1e-12)
	assert.InDelta(t, 20, s.MeanAvgValuation, 1e-12)
	assert.Equal(t, 6, s.Deaths)
	assert.InDelta(t, 6, s.MeanSurvival, 1e-12)
	assert.InDelta(t, 6, s.MedianSurvival, 1e-12)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.Runs)
	assert.Zero(t, s.MeanFailureRate)

	s = Summarize([]RunResult{{FailureRate: 0}})
	assert.Zero(t, s.Deaths)
	assert.Zero(t, s.MedianSurvival)
}

func TestSweep(t *testing.T) {
	b := smallBatch(2, 2)
	points, err := Sweep(context.Background(), b, "tau", []float64{0, 0.5})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "TAU", points[0].Key)
	assert.Equal(t, 0.0, points[0].Result.Params.Tau)
	assert.Equal(t, 0.5, points[1].Result.Params.Tau)
	assert.NotEqual(t, points[0].BatchID, points[1].BatchID)

	_, err = Sweep(context.Background(), b, "NOT_A_KEY", []float64{1})
	assert.True(t, errors.Is(err, tuning.ErrUnknownKey))

	_, err = Sweep(context.Background(), b, "FUNDING_INTERVAL", []float64{1.5})
	assert.True(t, errors.Is(err, tuning.ErrInvalid))
}
