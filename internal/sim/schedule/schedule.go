// Package schedule runs the eight monthly stages in their fixed order.
//
// Global stages (shock, market) run once per month. Every other stage runs
// over all startups, in id order, before the next stage starts, so a stage
// always observes the completed output of the previous one.
package schedule

import (
	"fmt"
	"strings"

	"startupsim.ai/internal/sim/rng"
	"startupsim.ai/internal/sim/startup"
	"startupsim.ai/internal/sim/tuning"
	"startupsim.ai/internal/sim/world"
)

type Stage uint8

const (
	StageShock Stage = iota + 1
	StageMarket
	StageAdoption
	StageDynamics
	StageCapital
	StageValuation
	StageFunding
	StagePolicy
)

// Order is the fixed monthly stage order.
var Order = [...]Stage{
	StageShock,
	StageMarket,
	StageAdoption,
	StageDynamics,
	StageCapital,
	StageValuation,
	StageFunding,
	StagePolicy,
}

var stageNames = map[Stage]string{
	StageShock:     "shock",
	StageMarket:    "market",
	StageAdoption:  "adoption",
	StageDynamics:  "dynamics",
	StageCapital:   "capital",
	StageValuation: "valuation",
	StageFunding:   "funding",
	StagePolicy:    "policy",
}

func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// Global reports whether the stage runs once per month instead of per startup.
func (s Stage) Global() bool { return s == StageShock || s == StageMarket }

// ParseStage accepts the names printed by String, case-insensitively.
func ParseStage(name string) (Stage, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for st, n := range stageNames {
		if n == name {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// Outcome summarises what happened during one month.
type Outcome struct {
	Month          int
	Shock          world.Shock
	FundingRound   bool
	PolicyApplied  bool
	Funded         int
	FundingGranted float64
}

// Scheduler owns the stage loop for one run. It is not safe for concurrent
// use.
type Scheduler struct {
	params  tuning.Params
	world   *world.World
	pop     []*startup.Startup
	streams *rng.Streams
	skip    map[Stage]bool
}

func New(p tuning.Params, w *world.World, pop []*startup.Startup, streams *rng.Streams) *Scheduler {
	return &Scheduler{
		params:  p,
		world:   w,
		pop:     pop,
		streams: streams,
		skip:    map[Stage]bool{},
	}
}

// Disable turns a stage into a no-op. Used for ablation runs and tests.
func (s *Scheduler) Disable(stage Stage) { s.skip[stage] = true }

func (s *Scheduler) Enabled(stage Stage) bool { return !s.skip[stage] }

// Step runs one month.
func (s *Scheduler) Step() Outcome {
	month := s.world.BeginMonth()
	out := Outcome{
		Month:         month,
		FundingRound:  s.Enabled(StageFunding) && month%s.params.FundingInterval == 0,
		PolicyApplied: s.Enabled(StagePolicy) && month%s.params.PolicyInterval == 0,
	}
	for _, st := range Order {
		if s.skip[st] {
			continue
		}
		s.run(st, &out)
	}
	return out
}

func (s *Scheduler) run(stage Stage, out *Outcome) {
	p := s.params
	switch stage {
	case StageShock:
		out.Shock = s.world.ApplyShock(p, s.streams.Shock, s.pop)
	case StageMarket:
		s.world.UpdateMarket(p, s.pop)
	case StageAdoption:
		env := s.world.Env()
		for _, a := range s.pop {
			a.Adopt(p, env, s.streams.Adoption)
		}
	case StageDynamics:
		for _, a := range s.pop {
			a.AdjustBurn(p)
		}
	case StageCapital:
		env := s.world.Env()
		for _, a := range s.pop {
			a.SettleCapital(env)
		}
	case StageValuation:
		for _, a := range s.pop {
			a.Revalue(p, s.streams.PMF)
		}
	case StageFunding:
		env := s.world.Env()
		for _, a := range s.pop {
			if f := a.Fund(p, env, s.streams.Funding); f > 0 {
				out.Funded++
				out.FundingGranted += f
			}
		}
	case StagePolicy:
		env := s.world.Env()
		for _, a := range s.pop {
			a.ApplyPolicy(p, env)
		}
	}
}
