// Package startup implements the simulated company and its monthly stage
// updates. A Startup is mutated only through its stage methods; once dead it
// is frozen and every stage becomes a no-op (Adopt additionally pins revenue
// to zero).
package startup

import (
	"math"

	"startupsim.ai/internal/sim/mathx"
	"startupsim.ai/internal/sim/rng"
	"startupsim.ai/internal/sim/tuning"
)

// Env is the read-only view of global state a stage observes for one month.
type Env struct {
	Month       int
	Market      float64
	Competition float64
}

type Startup struct {
	ID int

	Capital   float64
	Burn      float64
	Revenue   float64
	PMF       float64
	Valuation float64

	runway     float64
	funding    float64
	justFunded bool
	dead       bool
	deathMonth int
}

// New samples the initial state of one startup from the init stream. Draw
// order per startup is capital, burn, PMF.
func New(id int, p tuning.Params, s *rng.Stream) *Startup {
	k := s.Uniform(p.K0Min, p.K0Max)
	b := s.Uniform(p.B0MinRatio*k, p.B0MaxRatio*k)
	st := &Startup{
		ID:        id,
		Capital:   k,
		Burn:      b,
		Revenue:   p.R0Initial,
		PMF:       mathx.Clamp01(s.Beta(p.PMFAlpha, p.PMFBeta)),
		Valuation: p.Lambda3 * k,
	}
	st.updateRunway()
	return st
}

func (s *Startup) Alive() bool { return !s.dead }

// DeathMonth is the month the startup died in; ok is false while alive.
func (s *Startup) DeathMonth() (month int, ok bool) {
	return s.deathMonth, s.dead
}

// Runway is months of capital left at the current burn: +Inf when alive with
// no burn, 0 once dead.
func (s *Startup) Runway() float64 { return s.runway }

// FundingReceived is the funding granted by the last funding stage and not
// yet folded into capital.
func (s *Startup) FundingReceived() float64 { return s.funding }

func (s *Startup) JustFunded() bool { return s.justFunded }

// RevenueBurnRatio is R/B, or 0 when burn is zero.
func (s *Startup) RevenueBurnRatio() float64 {
	return mathx.Ratio(s.Revenue, s.Burn)
}

// Eligible reports whether investors will consider the startup at all.
// A startup with zero burn is never eligible.
func (s *Startup) Eligible(p tuning.Params) bool {
	if s.dead || s.Burn <= 0 {
		return false
	}
	return s.RevenueBurnRatio() >= p.AlphaRevenueBurn && s.PMF >= p.PMFMin
}

func (s *Startup) updateRunway() {
	switch {
	case s.dead:
		s.runway = 0
	case s.Burn > 0:
		s.runway = s.Capital / s.Burn
	default:
		s.runway = math.Inf(1)
	}
}

// ApplyShock shifts PMF by a population-wide shock delta.
func (s *Startup) ApplyShock(deltaPMF float64) {
	if s.dead {
		return
	}
	s.PMF = mathx.Clamp01(s.PMF + deltaPMF)
}

// AdoptionProbability is sigmoid(γ·(PMF − ε·price)).
func AdoptionProbability(p tuning.Params, pmf float64) float64 {
	return mathx.Sigmoid(p.Gamma * (pmf - p.EpsilonPrice*p.BasePrice))
}

// Adopt computes this month's revenue from consumer adoption.
func (s *Startup) Adopt(p tuning.Params, env Env, noise *rng.Stream) {
	if s.dead {
		s.Revenue = 0
		return
	}
	expected := env.Market * AdoptionProbability(p, s.PMF) * p.Quantity * (1 - env.Competition)
	s.Revenue = math.Max(0, expected+noise.Normal(0, p.SigmaR))
}

// AdjustBurn grows burn after a funding round, otherwise cuts it when runway
// is short. The two are exclusive and growth wins.
func (s *Startup) AdjustBurn(p tuning.Params) {
	if s.dead {
		return
	}
	switch {
	case s.justFunded:
		s.Burn = math.Max(0, s.Burn*(1+p.DeltaGrowth))
		s.justFunded = false
	case s.runway < p.RunwayLowThreshold && s.Burn > 0:
		s.Burn = math.Max(0, s.Burn*(1-p.DeltaCut))
	}
}

// SettleCapital folds revenue, burn and pending funding into capital. This is
// the only place a startup can die.
func (s *Startup) SettleCapital(env Env) {
	if s.dead {
		return
	}
	f := s.funding
	s.funding = 0
	s.Capital = s.Capital + s.Revenue - s.Burn + f
	if s.Capital <= 0 {
		s.Capital = 0
		s.dead = true
		s.deathMonth = env.Month
	}
	s.updateRunway()
}

// Revalue evolves PMF from this month's revenue and recomputes valuation from
// the settled capital.
func (s *Startup) Revalue(p tuning.Params, noise *rng.Stream) {
	if s.dead {
		return
	}
	s.PMF = mathx.Clamp01(s.PMF + p.Eta*math.Log1p(s.Revenue) + noise.Normal(0, p.SigmaPMF))
	s.Valuation = p.Lambda1*s.Revenue + p.Lambda2*s.PMF + p.Lambda3*s.Capital
}

// FundingProbability is sigmoid(β1·PMF + β2·ln(R+1) − β3·θ).
func FundingProbability(p tuning.Params, pmf, revenue, competition float64) float64 {
	return mathx.Sigmoid(p.Beta1*pmf + p.Beta2*math.Log1p(revenue) - p.Beta3*competition)
}

// Fund runs the investor decision on funding months and returns the amount
// granted. The grant stays pending until the next SettleCapital.
func (s *Startup) Fund(p tuning.Params, env Env, draw *rng.Stream) float64 {
	s.funding = 0
	if s.dead || env.Month%p.FundingInterval != 0 {
		return 0
	}
	if !s.Eligible(p) {
		return 0
	}
	if draw.Float64() < FundingProbability(p, s.PMF, s.Revenue, env.Competition) {
		s.funding = p.Kappa * s.Valuation
		s.justFunded = true
	}
	return s.funding
}

// ApplyPolicy charges compliance cost and tax and credits subsidy on policy
// months. Burn never drops below zero.
func (s *Startup) ApplyPolicy(p tuning.Params, env Env) {
	if s.dead || env.Month%p.PolicyInterval != 0 {
		return
	}
	s.Burn = math.Max(0, s.Burn+p.CReg-p.SG+p.Tau*s.Revenue)
}
