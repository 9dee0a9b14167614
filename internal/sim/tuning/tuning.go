// Package tuning holds the parameter record that drives one simulation batch.
//
// Params is a flat value type: every stage reads it, nothing writes it once a
// run has been constructed. Keys follow the canonical upper-case names of the
// policy configuration file (TAU, NUM_STARTUPS, ...).
package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	ErrUnknownKey = errors.New("unknown parameter")
	ErrNotNumeric = errors.New("parameter is not numeric")
	ErrInvalid    = errors.New("invalid parameter")
)

type Params struct {
	// Initial conditions.
	K0Min      float64 `json:"K0_MIN" yaml:"K0_MIN"`
	K0Max      float64 `json:"K0_MAX" yaml:"K0_MAX"`
	B0MinRatio float64 `json:"B0_MIN_RATIO" yaml:"B0_MIN_RATIO"`
	B0MaxRatio float64 `json:"B0_MAX_RATIO" yaml:"B0_MAX_RATIO"`
	R0Initial  float64 `json:"R0_INITIAL" yaml:"R0_INITIAL"`
	PMFAlpha   float64 `json:"PMF_ALPHA" yaml:"PMF_ALPHA"`
	PMFBeta    float64 `json:"PMF_BETA" yaml:"PMF_BETA"`

	// Consumer adoption.
	Gamma        float64 `json:"GAMMA" yaml:"GAMMA"`
	EpsilonPrice float64 `json:"EPSILON_PRICE" yaml:"EPSILON_PRICE"`
	BasePrice    float64 `json:"BASE_PRICE" yaml:"BASE_PRICE"`
	Quantity     float64 `json:"Q_T" yaml:"Q_T"`
	SigmaR       float64 `json:"SIGMA_R" yaml:"SIGMA_R"`

	// Burn rate dynamics.
	DeltaGrowth        float64 `json:"DELTA_GROWTH" yaml:"DELTA_GROWTH"`
	DeltaCut           float64 `json:"DELTA_CUT" yaml:"DELTA_CUT"`
	RunwayLowThreshold float64 `json:"RUNWAY_LOW_THRESHOLD" yaml:"RUNWAY_LOW_THRESHOLD"`

	// PMF evolution.
	Eta      float64 `json:"ETA" yaml:"ETA"`
	SigmaPMF float64 `json:"SIGMA_PMF" yaml:"SIGMA_PMF"`

	// Valuation V = λ1·R + λ2·PMF + λ3·K.
	Lambda1 float64 `json:"LAMBDA_1" yaml:"LAMBDA_1"`
	Lambda2 float64 `json:"LAMBDA_2" yaml:"LAMBDA_2"`
	Lambda3 float64 `json:"LAMBDA_3" yaml:"LAMBDA_3"`

	// Investor logic.
	FundingInterval  int     `json:"FUNDING_INTERVAL" yaml:"FUNDING_INTERVAL"`
	AlphaRevenueBurn float64 `json:"ALPHA_REVENUE_BURN" yaml:"ALPHA_REVENUE_BURN"`
	PMFMin           float64 `json:"PMF_MIN" yaml:"PMF_MIN"`
	Beta1            float64 `json:"BETA_1" yaml:"BETA_1"`
	Beta2            float64 `json:"BETA_2" yaml:"BETA_2"`
	Beta3            float64 `json:"BETA_3" yaml:"BETA_3"`
	Kappa            float64 `json:"KAPPA" yaml:"KAPPA"`

	// Market.
	M0Initial   float64 `json:"M0_INITIAL" yaml:"M0_INITIAL"`
	GrowthRateM float64 `json:"GROWTH_RATE_M" yaml:"GROWTH_RATE_M"`

	// Policy.
	PolicyInterval int     `json:"POLICY_INTERVAL" yaml:"POLICY_INTERVAL"`
	CReg           float64 `json:"C_REG" yaml:"C_REG"`
	SG             float64 `json:"S_G" yaml:"S_G"`
	Tau            float64 `json:"TAU" yaml:"TAU"`

	// Shocks.
	PShock           float64 `json:"P_SHOCK" yaml:"P_SHOCK"`
	DeltaPMFShockMin float64 `json:"DELTA_PMF_SHOCK_MIN" yaml:"DELTA_PMF_SHOCK_MIN"`
	DeltaPMFShockMax float64 `json:"DELTA_PMF_SHOCK_MAX" yaml:"DELTA_PMF_SHOCK_MAX"`
	DeltaMShockMin   float64 `json:"DELTA_M_SHOCK_MIN" yaml:"DELTA_M_SHOCK_MIN"`
	DeltaMShockMax   float64 `json:"DELTA_M_SHOCK_MAX" yaml:"DELTA_M_SHOCK_MAX"`

	// Sizing.
	NumStartups int   `json:"NUM_STARTUPS" yaml:"NUM_STARTUPS"`
	TimeHorizon int   `json:"TIME_HORIZON" yaml:"TIME_HORIZON"`
	RandomSeed  int64 `json:"RANDOM_SEED" yaml:"RANDOM_SEED"`

	// Success.
	VExit             float64 `json:"V_EXIT" yaml:"V_EXIT"`
	SuccessPercentile float64 `json:"SUCCESS_PERCENTILE" yaml:"SUCCESS_PERCENTILE"`
}

// Default returns the documented parameter set.
func Default() Params {
	return Params{
		K0Min:      2_000_000,
		K0Max:      20_000_000,
		B0MinRatio: 0.05,
		B0MaxRatio: 0.15,
		R0Initial:  0,
		PMFAlpha:   2,
		PMFBeta:    5,

		Gamma:        2,
		EpsilonPrice: 0.01,
		BasePrice:    100,
		Quantity:     10,
		SigmaR:       10_000,

		DeltaGrowth:        0.2,
		DeltaCut:           0.15,
		RunwayLowThreshold: 3,

		Eta:      0.01,
		SigmaPMF: 0.02,

		Lambda1: 10,
		Lambda2: 10_000_000,
		Lambda3: 2,

		FundingInterval:  6,
		AlphaRevenueBurn: 0.3,
		PMFMin:           0.3,
		Beta1:            5,
		Beta2:            0.5,
		Beta3:            2,
		Kappa:            0.25,

		M0Initial:   100_000_000,
		GrowthRateM: 0.05,

		PolicyInterval: 12,
		CReg:           50_000,
		SG:             30_000,
		Tau:            0.18,

		PShock:           0.05,
		DeltaPMFShockMin: -0.1,
		DeltaPMFShockMax: 0.15,
		DeltaMShockMin:   -0.05,
		DeltaMShockMax:   0.1,

		NumStartups: 1000,
		TimeHorizon: 60,
		RandomSeed:  42,

		VExit:             100_000_000,
		SuccessPercentile: 0.90,
	}
}

type fieldKind int

const (
	kindFloat fieldKind = iota
	kindInt
	kindSeed
)

type field struct {
	key  string
	kind fieldKind
	f    func(*Params) *float64
	i    func(*Params) *int
	s    func(*Params) *int64
}

func floatField(key string, f func(*Params) *float64) field {
	return field{key: key, kind: kindFloat, f: f}
}

func intField(key string, i func(*Params) *int) field {
	return field{key: key, kind: kindInt, i: i}
}

var fields = []field{
	floatField("K0_MIN", func(p *Params) *float64 { return &p.K0Min }),
	floatField("K0_MAX", func(p *Params) *float64 { return &p.K0Max }),
	floatField("B0_MIN_RATIO", func(p *Params) *float64 { return &p.B0MinRatio }),
	floatField("B0_MAX_RATIO", func(p *Params) *float64 { return &p.B0MaxRatio }),
	floatField("R0_INITIAL", func(p *Params) *float64 { return &p.R0Initial }),
	floatField("PMF_ALPHA", func(p *Params) *float64 { return &p.PMFAlpha }),
	floatField("PMF_BETA", func(p *Params) *float64 { return &p.PMFBeta }),
	floatField("GAMMA", func(p *Params) *float64 { return &p.Gamma }),
	floatField("EPSILON_PRICE", func(p *Params) *float64 { return &p.EpsilonPrice }),
	floatField("BASE_PRICE", func(p *Params) *float64 { return &p.BasePrice }),
	floatField("Q_T", func(p *Params) *float64 { return &p.Quantity }),
	floatField("SIGMA_R", func(p *Params) *float64 { return &p.SigmaR }),
	floatField("DELTA_GROWTH", func(p *Params) *float64 { return &p.DeltaGrowth }),
	floatField("DELTA_CUT", func(p *Params) *float64 { return &p.DeltaCut }),
	floatField("RUNWAY_LOW_THRESHOLD", func(p *Params) *float64 { return &p.RunwayLowThreshold }),
	floatField("ETA", func(p *Params) *float64 { return &p.Eta }),
	floatField("SIGMA_PMF", func(p *Params) *float64 { return &p.SigmaPMF }),
	floatField("LAMBDA_1", func(p *Params) *float64 { return &p.Lambda1 }),
	floatField("LAMBDA_2", func(p *Params) *float64 { return &p.Lambda2 }),
	floatField("LAMBDA_3", func(p *Params) *float64 { return &p.Lambda3 }),
	intField("FUNDING_INTERVAL", func(p *Params) *int { return &p.FundingInterval }),
	floatField("ALPHA_REVENUE_BURN", func(p *Params) *float64 { return &p.AlphaRevenueBurn }),
	floatField("PMF_MIN", func(p *Params) *float64 { return &p.PMFMin }),
	floatField("BETA_1", func(p *Params) *float64 { return &p.Beta1 }),
	floatField("BETA_2", func(p *Params) *float64 { return &p.Beta2 }),
	floatField("BETA_3", func(p *Params) *float64 { return &p.Beta3 }),
	floatField("KAPPA", func(p *Params) *float64 { return &p.Kappa }),
	floatField("M0_INITIAL", func(p *Params) *float64 { return &p.M0Initial }),
	floatField("GROWTH_RATE_M", func(p *Params) *float64 { return &p.GrowthRateM }),
	intField("POLICY_INTERVAL", func(p *Params) *int { return &p.PolicyInterval }),
	floatField("C_REG", func(p *Params) *float64 { return &p.CReg }),
	floatField("S_G", func(p *Params) *float64 { return &p.SG }),
	floatField("TAU", func(p *Params) *float64 { return &p.Tau }),
	floatField("P_SHOCK", func(p *Params) *float64 { return &p.PShock }),
	floatField("DELTA_PMF_SHOCK_MIN", func(p *Params) *float64 { return &p.DeltaPMFShockMin }),
	floatField("DELTA_PMF_SHOCK_MAX", func(p *Params) *float64 { return &p.DeltaPMFShockMax }),
	floatField("DELTA_M_SHOCK_MIN", func(p *Params) *float64 { return &p.DeltaMShockMin }),
	floatField("DELTA_M_SHOCK_MAX", func(p *Params) *float64 { return &p.DeltaMShockMax }),
	intField("NUM_STARTUPS", func(p *Params) *int { return &p.NumStartups }),
	intField("TIME_HORIZON", func(p *Params) *int { return &p.TimeHorizon }),
	{key: "RANDOM_SEED", kind: kindSeed, s: func(p *Params) *int64 { return &p.RandomSeed }},
	floatField("V_EXIT", func(p *Params) *float64 { return &p.VExit }),
	floatField("SUCCESS_PERCENTILE", func(p *Params) *float64 { return &p.SuccessPercentile }),
}

var fieldsByKey = func() map[string]field {
	m := make(map[string]field, len(fields))
	for _, f := range fields {
		m[f.key] = f
	}
	return m
}()

// Keys lists every parameter key in declaration order.
func Keys() []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.key)
	}
	return out
}

// NormalizeKey maps lower-case or mixed-case keys to the canonical form.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// Get returns the value of key as a float64.
func (p Params) Get(key string) (float64, error) {
	f, ok := fieldsByKey[NormalizeKey(key)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	switch f.kind {
	case kindInt:
		return float64(*f.i(&p)), nil
	case kindSeed:
		return float64(*f.s(&p)), nil
	default:
		return *f.f(&p), nil
	}
}

// With returns a copy of p with key set to v. Integer parameters reject
// fractional values.
func (p Params) With(key string, v float64) (Params, error) {
	f, ok := fieldsByKey[NormalizeKey(key)]
	if !ok {
		return p, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return p, fmt.Errorf("%w: %s must be finite", ErrInvalid, f.key)
	}
	switch f.kind {
	case kindInt, kindSeed:
		if v != math.Trunc(v) {
			return p, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalid, f.key, v)
		}
		if f.kind == kindInt {
			*f.i(&p) = int(v)
		} else {
			*f.s(&p) = int64(v)
		}
	default:
		*f.f(&p) = v
	}
	return p, nil
}

// FromMap overlays a flat key/value mapping on the defaults. Absent keys keep
// their default; unknown keys and non-numeric values are errors.
func FromMap(m map[string]any) (Params, error) {
	return Default().Overlay(m)
}

// Overlay applies m on top of p. Keys are applied in sorted order so error
// reporting is stable.
func (p Params) Overlay(m map[string]any) (Params, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := toFloat(m[k])
		if err != nil {
			return p, fmt.Errorf("%s: %w", k, err)
		}
		next, err := p.With(k, v)
		if err != nil {
			return p, err
		}
		p = next
	}
	return p, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, n.String())
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %v (%T)", ErrNotNumeric, v, v)
	}
}

// ToMap returns the canonical flat mapping of p.
func (p Params) ToMap() map[string]float64 {
	out := make(map[string]float64, len(fields))
	for _, f := range fields {
		v, _ := p.Get(f.key)
		out[f.key] = v
	}
	return out
}

// Validate rejects parameter sets no run can be built from.
func (p Params) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}
	for _, f := range fields {
		v, _ := p.Get(f.key)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			bad("%s must be finite", f.key)
		}
	}
	if p.NumStartups <= 0 {
		bad("NUM_STARTUPS must be positive, got %d", p.NumStartups)
	}
	if p.TimeHorizon <= 0 {
		bad("TIME_HORIZON must be positive, got %d", p.TimeHorizon)
	}
	if p.FundingInterval < 1 {
		bad("FUNDING_INTERVAL must be >= 1, got %d", p.FundingInterval)
	}
	if p.PolicyInterval < 1 {
		bad("POLICY_INTERVAL must be >= 1, got %d", p.PolicyInterval)
	}
	if p.K0Min < 0 || p.K0Min > p.K0Max {
		bad("K0 range [%v, %v] is empty or negative", p.K0Min, p.K0Max)
	}
	if p.B0MinRatio < 0 || p.B0MinRatio > p.B0MaxRatio {
		bad("B0 ratio range [%v, %v] is empty or negative", p.B0MinRatio, p.B0MaxRatio)
	}
	if p.R0Initial < 0 {
		bad("R0_INITIAL must be >= 0, got %v", p.R0Initial)
	}
	if p.PMFAlpha <= 0 || p.PMFBeta <= 0 {
		bad("PMF Beta shape must be positive, got (%v, %v)", p.PMFAlpha, p.PMFBeta)
	}
	if p.SigmaR < 0 || p.SigmaPMF < 0 {
		bad("noise std-devs must be >= 0, got SIGMA_R=%v SIGMA_PMF=%v", p.SigmaR, p.SigmaPMF)
	}
	if p.DeltaCut < 0 || p.DeltaCut > 1 {
		bad("DELTA_CUT must be within [0,1], got %v", p.DeltaCut)
	}
	if p.DeltaGrowth < -1 {
		bad("DELTA_GROWTH must be >= -1, got %v", p.DeltaGrowth)
	}
	if p.PShock < 0 || p.PShock > 1 {
		bad("P_SHOCK must be within [0,1], got %v", p.PShock)
	}
	if p.DeltaPMFShockMin > p.DeltaPMFShockMax {
		bad("PMF shock range [%v, %v] is empty", p.DeltaPMFShockMin, p.DeltaPMFShockMax)
	}
	if p.DeltaMShockMin > p.DeltaMShockMax {
		bad("market shock range [%v, %v] is empty", p.DeltaMShockMin, p.DeltaMShockMax)
	}
	if p.M0Initial < 0 {
		bad("M0_INITIAL must be >= 0, got %v", p.M0Initial)
	}
	if p.SuccessPercentile < 0 || p.SuccessPercentile > 1 {
		bad("SUCCESS_PERCENTILE must be within [0,1], got %v", p.SuccessPercentile)
	}
	return errors.Join(errs...)
}

// Digest identifies a parameter set. Equal params always share a digest.
func (p Params) Digest() string {
	b, _ := json.Marshal(p)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
