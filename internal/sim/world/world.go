// Package world holds the global state shared by every startup in a run:
// market size, competition index and the month counter.
package world

import (
	"math"

	"startupsim.ai/internal/sim/mathx"
	"startupsim.ai/internal/sim/rng"
	"startupsim.ai/internal/sim/startup"
	"startupsim.ai/internal/sim/tuning"
)

// World is owned by a single runner and must only be touched from its step
// loop.
type World struct {
	Market      float64
	Competition float64

	// Step is the number of months started so far. During a month's stages it
	// equals that month's 1-based index.
	Step int

	// Initial is the population size θ is measured against.
	Initial int
}

func New(p tuning.Params, population int) *World {
	return &World{
		Market:  p.M0Initial,
		Initial: population,
	}
}

// BeginMonth advances the month counter and returns the new month.
func (w *World) BeginMonth() int {
	w.Step++
	return w.Step
}

func (w *World) Env() startup.Env {
	return startup.Env{Month: w.Step, Market: w.Market, Competition: w.Competition}
}

// Shock describes the outcome of one shock draw.
type Shock struct {
	Occurred    bool    `json:"occurred"`
	DeltaPMF    float64 `json:"delta_pmf,omitempty"`
	DeltaMarket float64 `json:"delta_market,omitempty"`
}

// ApplyShock draws at most one macro shock. When it fires, the same PMF delta
// hits every live startup and the market is scaled by (1+ΔM), floored at 0.
// The shock stream is consumed only here.
func (w *World) ApplyShock(p tuning.Params, s *rng.Stream, pop []*startup.Startup) Shock {
	if !s.Bernoulli(p.PShock) {
		return Shock{}
	}
	sh := Shock{
		Occurred:    true,
		DeltaPMF:    s.Uniform(p.DeltaPMFShockMin, p.DeltaPMFShockMax),
		DeltaMarket: s.Uniform(p.DeltaMShockMin, p.DeltaMShockMax),
	}
	for _, a := range pop {
		a.ApplyShock(sh.DeltaPMF)
	}
	w.Market = math.Max(0, w.Market*(1+sh.DeltaMarket))
	return sh
}

// UpdateMarket grows the market and recomputes competition as the share of
// the initial population still alive.
func (w *World) UpdateMarket(p tuning.Params, pop []*startup.Startup) {
	w.Market = math.Max(0, w.Market*(1+p.GrowthRateM))
	w.Competition = mathx.Clamp01(mathx.Ratio(float64(CountAlive(pop)), float64(w.Initial)))
}

func CountAlive(pop []*startup.Startup) int {
	n := 0
	for _, a := range pop {
		if a.Alive() {
			n++
		}
	}
	return n
}
