package startup

import (
	"math"
	"testing"

	"startupsim.ai/internal/sim/rng"
	"startupsim.ai/internal/sim/tuning"
)

func quietParams() tuning.Params {
	p := tuning.Default()
	p.SigmaR = 0
	p.SigmaPMF = 0
	return p
}

func mk(k, b, r, pmf float64) *Startup {
	s := &Startup{ID: 1, Capital: k, Burn: b, Revenue: r, PMF: pmf}
	s.updateRunway()
	return s
}

func TestNew_InitialStateWithinRanges(t *testing.T) {
	p := tuning.Default()
	stream := rng.NewStream(42, rng.StreamInit)
	for i := 0; i < 500; i++ {
		s := New(i, p, stream)
		if s.Capital < p.K0Min || s.Capital > p.K0Max {
			t.Fatalf("capital %v outside [%v,%v]", s.Capital, p.K0Min, p.K0Max)
		}
		ratio := s.Burn / s.Capital
		if ratio < p.B0MinRatio-1e-12 || ratio > p.B0MaxRatio+1e-12 {
			t.Fatalf("burn ratio %v outside [%v,%v]", ratio, p.B0MinRatio, p.B0MaxRatio)
		}
		if s.PMF < 0 || s.PMF > 1 {
			t.Fatalf("pmf %v outside [0,1]", s.PMF)
		}
		if s.Valuation != p.Lambda3*s.Capital {
			t.Fatalf("valuation %v != λ3·K %v", s.Valuation, p.Lambda3*s.Capital)
		}
		if s.Revenue != p.R0Initial || !s.Alive() {
			t.Fatalf("unexpected initial revenue/status: %+v", s.Record())
		}
		if s.Runway() != s.Capital/s.Burn {
			t.Fatalf("runway %v != K/B", s.Runway())
		}
	}
}

func TestAdopt_ExpectedRevenue(t *testing.T) {
	p := quietParams()
	s := mk(1e6, 1e5, 0, 0.5)
	env := Env{Month: 1, Market: 1e6, Competition: 0.25}
	s.Adopt(p, env, rng.NewStream(1, rng.StreamAdoption))

	want := env.Market * AdoptionProbability(p, 0.5) * p.Quantity * (1 - env.Competition)
	if math.Abs(s.Revenue-want) > 1e-9*want {
		t.Fatalf("revenue: got %v want %v", s.Revenue, want)
	}
}

func TestAdopt_FullCompetitionYieldsOnlyNoise(t *testing.T) {
	p := quietParams()
	s := mk(1e6, 1e5, 123, 0.9)
	s.Adopt(p, Env{Month: 1, Market: 1e9, Competition: 1}, rng.NewStream(1, rng.StreamAdoption))
	if s.Revenue != 0 {
		t.Fatalf("revenue with θ=1 and no noise: got %v want 0", s.Revenue)
	}
}

func TestAdopt_NeverNegative(t *testing.T) {
	p := tuning.Default()
	p.SigmaR = 1e9
	noise := rng.NewStream(5, rng.StreamAdoption)
	s := mk(1e6, 1e5, 0, 0.1)
	for i := 0; i < 200; i++ {
		s.Adopt(p, Env{Month: 1, Market: 0, Competition: 0}, noise)
		if s.Revenue < 0 {
			t.Fatalf("negative revenue %v", s.Revenue)
		}
	}
}

func TestAdopt_DeadPinsRevenueToZero(t *testing.T) {
	s := mk(1, 10, 0, 0.5)
	s.SettleCapital(Env{Month: 3})
	if s.Alive() {
		t.Fatalf("expected death")
	}
	s.Revenue = 42
	s.Adopt(quietParams(), Env{Month: 4, Market: 1e9}, rng.NewStream(1, rng.StreamAdoption))
	if s.Revenue != 0 {
		t.Fatalf("dead revenue: got %v want 0", s.Revenue)
	}
}

func TestAdjustBurn_GrowthAfterFunding(t *testing.T) {
	p := quietParams()
	s := mk(100, 100, 0, 0.5) // runway 1, below threshold
	s.justFunded = true
	s.AdjustBurn(p)
	if want := 100 * (1 + p.DeltaGrowth); s.Burn != want {
		t.Fatalf("burn after funding: got %v want %v", s.Burn, want)
	}
	if s.JustFunded() {
		t.Fatalf("just-funded flag not cleared")
	}
}

func TestAdjustBurn_CutOnLowRunway(t *testing.T) {
	p := quietParams()
	s := mk(100, 100, 0, 0.5)
	s.AdjustBurn(p)
	if want := 100 * (1 - p.DeltaCut); s.Burn != want {
		t.Fatalf("burn after cut: got %v want %v", s.Burn, want)
	}

	healthy := mk(1000, 100, 0, 0.5) // runway 10
	healthy.AdjustBurn(p)
	if healthy.Burn != 100 {
		t.Fatalf("healthy burn changed: %v", healthy.Burn)
	}
}

func TestAdjustBurn_ZeroBurnStaysZero(t *testing.T) {
	p := quietParams()
	s := mk(0.5, 0, 0, 0.5)
	if !math.IsInf(s.Runway(), 1) {
		t.Fatalf("runway with zero burn: got %v want +Inf", s.Runway())
	}
	s.AdjustBurn(p)
	if s.Burn != 0 {
		t.Fatalf("burn: got %v want 0", s.Burn)
	}
}

func TestSettleCapital_ConsumesFundingOnce(t *testing.T) {
	s := mk(1000, 100, 50, 0.5)
	s.funding = 400
	s.SettleCapital(Env{Month: 1})
	if s.Capital != 1350 {
		t.Fatalf("capital: got %v want 1350", s.Capital)
	}
	if s.FundingReceived() != 0 {
		t.Fatalf("funding not consumed: %v", s.FundingReceived())
	}
	s.SettleCapital(Env{Month: 2})
	if s.Capital != 1300 {
		t.Fatalf("funding applied twice: capital %v", s.Capital)
	}
	if s.Runway() != 13 {
		t.Fatalf("runway: got %v want 13", s.Runway())
	}
}

func TestSettleCapital_DeathIsMonotonic(t *testing.T) {
	p := quietParams()
	s := mk(100, 150, 10, 0.5)
	s.SettleCapital(Env{Month: 7})
	month, dead := s.DeathMonth()
	if !dead || month != 7 {
		t.Fatalf("death: dead=%v month=%d", dead, month)
	}
	if s.Capital != 0 || s.Runway() != 0 {
		t.Fatalf("dead state: capital=%v runway=%v", s.Capital, s.Runway())
	}

	frozen := s.Record()
	env := Env{Month: 12, Market: 1e9, Competition: 0}
	s.ApplyShock(0.3)
	s.Adopt(p, env, rng.NewStream(1, rng.StreamAdoption))
	s.AdjustBurn(p)
	s.SettleCapital(env)
	s.Revalue(p, rng.NewStream(1, rng.StreamPMF))
	if got := s.Fund(p, env, rng.NewStream(1, rng.StreamFunding)); got != 0 {
		t.Fatalf("dead startup funded: %v", got)
	}
	s.ApplyPolicy(p, env)

	if month, _ := s.DeathMonth(); month != 7 {
		t.Fatalf("death month overwritten: %d", month)
	}
	after := s.Record()
	if after.Capital != 0 || after.Revenue != 0 || after.Alive {
		t.Fatalf("dead startup moved: %+v", after)
	}
	if after.Burn != frozen.Burn || after.PMF != frozen.PMF || after.Valuation != frozen.Valuation {
		t.Fatalf("dead startup state changed: before %+v after %+v", frozen, after)
	}
}

func TestRevalue_UsesSettledCapital(t *testing.T) {
	p := quietParams()
	s := mk(1000, 10, 100, 0.2)
	s.Revalue(p, rng.NewStream(1, rng.StreamPMF))
	wantPMF := 0.2 + p.Eta*math.Log(101)
	if math.Abs(s.PMF-wantPMF) > 1e-12 {
		t.Fatalf("pmf: got %v want %v", s.PMF, wantPMF)
	}
	wantV := p.Lambda1*100 + p.Lambda2*s.PMF + p.Lambda3*1000
	if s.Valuation != wantV {
		t.Fatalf("valuation: got %v want %v", s.Valuation, wantV)
	}
}

func TestRevalue_PMFStaysBounded(t *testing.T) {
	p := tuning.Default()
	p.SigmaPMF = 5
	noise := rng.NewStream(11, rng.StreamPMF)
	s := mk(1e6, 1e3, 1e12, 0.5)
	for i := 0; i < 500; i++ {
		s.Revalue(p, noise)
		if s.PMF < 0 || s.PMF > 1 {
			t.Fatalf("pmf out of bounds: %v", s.PMF)
		}
	}
}

func TestFund_ZeroBurnNeverEligible(t *testing.T) {
	p := quietParams()
	p.AlphaRevenueBurn = 0
	p.PMFMin = 0
	s := mk(1e6, 0, 1e6, 1)
	if s.RevenueBurnRatio() != 0 {
		t.Fatalf("ratio with zero burn: got %v want 0", s.RevenueBurnRatio())
	}
	if s.Eligible(p) {
		t.Fatalf("zero-burn startup eligible")
	}
	if got := s.Fund(p, Env{Month: p.FundingInterval}, rng.NewStream(1, rng.StreamFunding)); got != 0 {
		t.Fatalf("zero-burn startup funded %v", got)
	}
}

func TestFund_OnlyOnFundingMonths(t *testing.T) {
	p := quietParams()
	p.Beta1 = 1000 // probability ~1
	s := mk(1e6, 100, 1e4, 0.9)
	s.Valuation = 4000

	if got := s.Fund(p, Env{Month: p.FundingInterval + 1}, rng.NewStream(1, rng.StreamFunding)); got != 0 {
		t.Fatalf("funded off-cadence: %v", got)
	}
	got := s.Fund(p, Env{Month: p.FundingInterval}, rng.NewStream(1, rng.StreamFunding))
	if want := p.Kappa * 4000; got != want || s.FundingReceived() != want {
		t.Fatalf("funding: got %v (pending %v) want %v", got, s.FundingReceived(), want)
	}
	if !s.JustFunded() {
		t.Fatalf("just-funded flag not set")
	}
}

func TestFund_IneligibleBelowThresholds(t *testing.T) {
	p := quietParams()
	low := mk(1e6, 1000, 100, 0.9) // ratio 0.1 < α
	if low.Eligible(p) {
		t.Fatalf("low ratio eligible")
	}
	weak := mk(1e6, 100, 1000, 0.1) // pmf below PMF_MIN
	if weak.Eligible(p) {
		t.Fatalf("low pmf eligible")
	}
}

func TestApplyPolicy(t *testing.T) {
	p := quietParams()
	s := mk(1e6, 1000, 10_000, 0.5)
	s.ApplyPolicy(p, Env{Month: 1})
	if s.Burn != 1000 {
		t.Fatalf("policy applied off-cadence: %v", s.Burn)
	}
	s.ApplyPolicy(p, Env{Month: p.PolicyInterval})
	if want := 1000 + p.CReg - p.SG + p.Tau*10_000; s.Burn != want {
		t.Fatalf("policy burn: got %v want %v", s.Burn, want)
	}

	p.SG = 1e9
	s.ApplyPolicy(p, Env{Month: p.PolicyInterval})
	if s.Burn != 0 {
		t.Fatalf("burn below zero floor: %v", s.Burn)
	}
}
