package tuning

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Validates(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())
	assert.Equal(t, 1000, p.NumStartups)
	assert.Equal(t, 60, p.TimeHorizon)
	assert.Equal(t, int64(42), p.RandomSeed)
	assert.Equal(t, 6, p.FundingInterval)
	assert.Equal(t, 12, p.PolicyInterval)
}

func TestFromMap_MissingKeysKeepDefaults(t *testing.T) {
	p, err := FromMap(map[string]any{"TAU": 0.3, "num_startups": 50})
	require.NoError(t, err)
	assert.Equal(t, 0.3, p.Tau)
	assert.Equal(t, 50, p.NumStartups)
	assert.Equal(t, Default().Kappa, p.Kappa)
}

func TestFromMap_RejectsNonNumeric(t *testing.T) {
	_, err := FromMap(map[string]any{"TAU": "high"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotNumeric))
}

func TestFromMap_RejectsUnknownKey(t *testing.T) {
	_, err := FromMap(map[string]any{"INTEREST_RATE": 0.1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownKey))
}

func TestWith_IntegerKeysRejectFractions(t *testing.T) {
	_, err := Default().With("FUNDING_INTERVAL", 2.5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))

	p, err := Default().With("funding_interval", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, p.FundingInterval)
}

func TestWith_DoesNotMutateReceiver(t *testing.T) {
	base := Default()
	_, err := base.With("TAU", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.18, base.Tau)
}

func TestValidate_CollectsErrors(t *testing.T) {
	p := Default()
	p.NumStartups = 0
	p.PolicyInterval = 0
	p.DeltaMShockMin = 1
	p.DeltaMShockMax = -1
	err := p.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "NUM_STARTUPS")
	assert.Contains(t, err.Error(), "POLICY_INTERVAL")
	assert.Contains(t, err.Error(), "market shock range")
}

func TestParse_YAMLAndJSON(t *testing.T) {
	p, err := Parse([]byte("TAU: 0.25\nfunding_interval: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.25, p.Tau)
	assert.Equal(t, 3, p.FundingInterval)

	p, err = Parse([]byte(`{"C_REG": 70000, "S_G": 10000}`))
	require.NoError(t, err)
	assert.Equal(t, 70000.0, p.CReg)
	assert.Equal(t, 10000.0, p.SG)
}

func TestParse_EmptyDocumentIsDefault(t *testing.T) {
	p, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), p)
}

func TestParse_SchemaRejectsOutOfRange(t *testing.T) {
	_, err := Parse([]byte("P_SHOCK: 1.5\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))

	_, err = Parse([]byte("NUM_STARTUPS: 0\n"))
	require.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("TAU: 0.05\nV_EXIT: 50000000\n"), 0o644))
	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.05, p.Tau)
	assert.Equal(t, 50_000_000.0, p.VExit)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"STARTUPSIM_TAU":          "0.4",
		"STARTUPSIM_TIME_HORIZON": "24",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	p, err := Default().ApplyEnv(lookup)
	require.NoError(t, err)
	assert.Equal(t, 0.4, p.Tau)
	assert.Equal(t, 24, p.TimeHorizon)

	env["STARTUPSIM_KAPPA"] = "lots"
	_, err = Default().ApplyEnv(lookup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotNumeric))
}

func TestEncode_RoundTrip(t *testing.T) {
	want, err := Default().With("TAU", 0.22)
	require.NoError(t, err)
	raw, err := Encode(want)
	require.NoError(t, err)
	got, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, want.Digest(), got.Digest())
}

func TestDigest_ChangesWithParams(t *testing.T) {
	a := Default()
	b, err := a.With("S_G", 1)
	require.NoError(t, err)
	assert.NotEqual(t, a.Digest(), b.Digest())
	assert.Equal(t, a.Digest(), Default().Digest())
}

func TestKeysCoverEveryField(t *testing.T) {
	m := Default().ToMap()
	assert.Len(t, m, len(Keys()))
	for _, k := range Keys() {
		_, err := Default().Get(k)
		assert.NoError(t, err, k)
	}
}
