// Package runner drives one simulation run: it builds the population from a
// seed, steps the scheduler month by month and keeps the per-month series and
// final agent records.
package runner

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"startupsim.ai/internal/sim/digest"
	"startupsim.ai/internal/sim/mathx"
	"startupsim.ai/internal/sim/rng"
	"startupsim.ai/internal/sim/schedule"
	"startupsim.ai/internal/sim/startup"
	"startupsim.ai/internal/sim/tuning"
	"startupsim.ai/internal/sim/world"
)

var (
	ErrInvalidPopulation = errors.New("runner: population must be positive")
	ErrInvalidHorizon    = errors.New("runner: horizon must be positive")
	ErrCompleted         = errors.New("runner: run already completed")
	ErrFailed            = errors.New("runner: run failed earlier")
	ErrStagePanic        = errors.New("runner: stage panicked")
	ErrNonFinite         = errors.New("runner: non-finite state")
)

type State uint8

const (
	NotStarted State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MonthStats is the aggregate row recorded after each month. Averages are
// taken over live startups and are 0 when none are left.
type MonthStats struct {
	Month        int          `json:"month"`
	Alive        int          `json:"alive"`
	Dead         int          `json:"dead"`
	FailureRate  float64      `json:"failure_rate"`
	TotalFunding float64      `json:"total_funding"`
	Funded       int          `json:"funded"`
	AvgValuation float64      `json:"avg_valuation"`
	AvgPMF       float64      `json:"avg_pmf"`
	AvgRevenue   float64      `json:"avg_revenue"`
	Market       float64      `json:"market_size"`
	Competition  float64      `json:"competition_index"`
	Shock        *world.Shock `json:"shock,omitempty"`
	Digest       string       `json:"digest"`
}

// Death is one entry of the death log.
type Death struct {
	ID    int `json:"id"`
	Month int `json:"month"`
}

type Option func(*Runner)

// WithLogger sets the logger used for run lifecycle events.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithAgentHistory keeps a record of every startup after every month.
func WithAgentHistory() Option {
	return func(r *Runner) { r.keepHistory = true }
}

// WithoutStage disables a stage for the whole run.
func WithoutStage(st schedule.Stage) Option {
	return func(r *Runner) { r.disabled = append(r.disabled, st) }
}

type Runner struct {
	params  tuning.Params
	seed    int64
	horizon int
	state   State

	world *world.World
	pop   []*startup.Startup
	sched *schedule.Scheduler

	series  []MonthStats
	deaths  []Death
	history [][]startup.Record

	keepHistory bool
	disabled    []schedule.Stage
	log         zerolog.Logger
	err         error
}

// New creates the world and population. Initial states are drawn from the
// seed's init stream in id order.
func New(p tuning.Params, population int, seed int64, opts ...Option) (*Runner, error) {
	if population <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPopulation, population)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{params: p, seed: seed, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}

	streams := rng.New(seed)
	r.pop = make([]*startup.Startup, population)
	for i := range r.pop {
		r.pop[i] = startup.New(i, p, streams.Init)
	}
	r.world = world.New(p, population)
	r.sched = schedule.New(p, r.world, r.pop, streams)
	for _, st := range r.disabled {
		r.sched.Disable(st)
	}
	if r.keepHistory {
		r.history = make([][]startup.Record, population)
	}
	return r, nil
}

// Run steps the simulation horizon more months. On a fresh runner it stops
// at month horizon; after manual Steps it ends at month Month()+horizon.
func (r *Runner) Run(horizon int) error {
	if horizon <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidHorizon, horizon)
	}
	switch r.state {
	case Completed:
		return ErrCompleted
	case Failed:
		return fmt.Errorf("%w: %w", ErrFailed, r.err)
	}
	start := r.world.Step
	r.horizon = start + horizon
	r.log.Debug().Int64("seed", r.seed).Int("population", len(r.pop)).Int("from", start).Int("months", horizon).Msg("run start")

	for i := 0; i < horizon; i++ {
		if _, err := r.Step(); err != nil {
			return err
		}
	}
	r.state = Completed
	r.log.Debug().Int64("seed", r.seed).Int("alive", r.Alive()).Int("dead", r.Dead()).Msg("run done")
	return nil
}

// Step runs one month and returns its stats row.
func (r *Runner) Step() (MonthStats, error) {
	switch r.state {
	case Completed:
		return MonthStats{}, ErrCompleted
	case Failed:
		return MonthStats{}, fmt.Errorf("%w: %w", ErrFailed, r.err)
	}
	if r.horizon > 0 && r.world.Step >= r.horizon {
		r.state = Completed
		return MonthStats{}, ErrCompleted
	}
	r.state = Running

	out, err := r.stepScheduler()
	if err == nil {
		err = r.checkFinite()
	}
	if err != nil {
		r.state = Failed
		r.err = err
		r.log.Error().Err(err).Int64("seed", r.seed).Int("month", r.world.Step).Msg("run failed")
		return MonthStats{}, err
	}

	for _, a := range r.pop {
		if m, dead := a.DeathMonth(); dead && m == out.Month {
			r.deaths = append(r.deaths, Death{ID: a.ID, Month: m})
		}
	}
	if r.keepHistory {
		for i, a := range r.pop {
			r.history[i] = append(r.history[i], a.Record())
		}
	}
	ms := r.collect(out)
	r.series = append(r.series, ms)
	if r.horizon > 0 && r.world.Step >= r.horizon {
		r.state = Completed
	}
	return ms, nil
}

func (r *Runner) stepScheduler() (out schedule.Outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: month %d: %v", ErrStagePanic, r.world.Step, rec)
		}
	}()
	return r.sched.Step(), nil
}

func (r *Runner) checkFinite() error {
	if !mathx.Finite(r.world.Market, r.world.Competition) {
		return fmt.Errorf("%w: month %d: market=%v competition=%v", ErrNonFinite, r.world.Step, r.world.Market, r.world.Competition)
	}
	for _, a := range r.pop {
		if !mathx.Finite(a.Capital, a.Burn, a.Revenue, a.PMF, a.Valuation, a.FundingReceived()) {
			return fmt.Errorf("%w: month %d: startup %d: %+v", ErrNonFinite, r.world.Step, a.ID, a.Record())
		}
	}
	return nil
}

func (r *Runner) collect(out schedule.Outcome) MonthStats {
	ms := MonthStats{
		Month:       out.Month,
		Market:      r.world.Market,
		Competition: r.world.Competition,
		Funded:      out.Funded,
		Digest:      digest.State(r.world, r.pop),
	}
	if out.Shock.Occurred {
		sh := out.Shock
		ms.Shock = &sh
	}
	var vals, pmfs, revs []float64
	for _, a := range r.pop {
		if !a.Alive() {
			ms.Dead++
			continue
		}
		ms.Alive++
		ms.TotalFunding += a.FundingReceived()
		vals = append(vals, a.Valuation)
		pmfs = append(pmfs, a.PMF)
		revs = append(revs, a.Revenue)
	}
	ms.FailureRate = float64(ms.Dead) / float64(len(r.pop))
	if ms.Alive > 0 {
		ms.AvgValuation = stat.Mean(vals, nil)
		ms.AvgPMF = stat.Mean(pmfs, nil)
		ms.AvgRevenue = stat.Mean(revs, nil)
	}
	return ms
}

func (r *Runner) Params() tuning.Params { return r.params }
func (r *Runner) Seed() int64           { return r.seed }
func (r *Runner) Population() int       { return len(r.pop) }
func (r *Runner) Horizon() int          { return r.horizon }
func (r *Runner) Month() int            { return r.world.Step }
func (r *Runner) State() State          { return r.state }
func (r *Runner) Err() error            { return r.err }

// Market and Competition expose the current global state.
func (r *Runner) Market() float64      { return r.world.Market }
func (r *Runner) Competition() float64 { return r.world.Competition }

// Digest is the state digest of the current month.
func (r *Runner) Digest() string { return digest.State(r.world, r.pop) }

// Series returns the per-month rows recorded so far.
func (r *Runner) Series() []MonthStats {
	return append([]MonthStats(nil), r.series...)
}

func (r *Runner) Alive() int { return world.CountAlive(r.pop) }

func (r *Runner) Dead() int { return len(r.pop) - r.Alive() }

func (r *Runner) FailureRate() float64 {
	return float64(r.Dead()) / float64(len(r.pop))
}

// SuccessCount counts live startups valued at or above V_EXIT.
func (r *Runner) SuccessCount() int {
	n := 0
	for _, a := range r.pop {
		if a.Alive() && a.Valuation >= r.params.VExit {
			n++
		}
	}
	return n
}

func (r *Runner) aliveValuations() []float64 {
	vals := make([]float64, 0, len(r.pop))
	for _, a := range r.pop {
		if a.Alive() {
			vals = append(vals, a.Valuation)
		}
	}
	sort.Float64s(vals)
	return vals
}

// ValuationPercentile is the SUCCESS_PERCENTILE quantile of live valuations,
// interpolated linearly between ranks, or NaN when nobody is alive.
func (r *Runner) ValuationPercentile() float64 {
	vals := r.aliveValuations()
	if len(vals) == 0 {
		return math.NaN()
	}
	return mathx.Quantile(vals, r.params.SuccessPercentile)
}

// TopPercentileCount counts live startups valued at or above the
// SUCCESS_PERCENTILE quantile of live valuations.
func (r *Runner) TopPercentileCount() int {
	vals := r.aliveValuations()
	if len(vals) == 0 {
		return 0
	}
	q := mathx.Quantile(vals, r.params.SuccessPercentile)
	i := sort.SearchFloat64s(vals, q)
	return len(vals) - i
}

// MedianValuation of live startups, 0 when nobody is alive.
func (r *Runner) MedianValuation() float64 {
	vals := r.aliveValuations()
	if len(vals) == 0 {
		return 0
	}
	return mathx.Median(vals)
}

// SurvivalTimes lists the death month of every dead startup in id order.
func (r *Runner) SurvivalTimes() []int {
	var out []int
	for _, a := range r.pop {
		if m, dead := a.DeathMonth(); dead {
			out = append(out, m)
		}
	}
	return out
}

// Deaths is the death log in the order deaths happened.
func (r *Runner) Deaths() []Death {
	return append([]Death(nil), r.deaths...)
}

// Agents returns the current record of every startup in id order.
func (r *Runner) Agents() []startup.Record {
	out := make([]startup.Record, len(r.pop))
	for i, a := range r.pop {
		out[i] = a.Record()
	}
	return out
}

// AgentHistory returns the per-month records of one startup. It is only
// populated when the runner was built WithAgentHistory.
func (r *Runner) AgentHistory(id int) ([]startup.Record, bool) {
	if r.history == nil || id < 0 || id >= len(r.history) {
		return nil, false
	}
	return append([]startup.Record(nil), r.history[id]...), true
}
