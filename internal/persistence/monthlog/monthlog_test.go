package monthlog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"startupsim.ai/internal/sim/runner"
	"startupsim.ai/internal/sim/tuning"
)

func runSeries(t *testing.T, p tuning.Params, pop, horizon int, seed int64) []runner.MonthStats {
	t.Helper()
	r, err := runner.New(p, pop, seed)
	require.NoError(t, err)
	require.NoError(t, r.Run(horizon))
	return r.Series()
}

func header(p tuning.Params, pop, horizon int, seed int64) Header {
	return Header{BatchID: "b1", Run: 0, Seed: seed, Population: pop, Horizon: horizon, Params: p}
}

func TestWriteRun_ReadAllRoundTrip(t *testing.T) {
	p := tuning.Default()
	p.PShock = 0.4
	series := runSeries(t, p, 40, 18, 5)
	path := Path(t.TempDir(), 3)
	assert.Equal(t, "run-0003.jsonl.zst", filepath.Base(path))

	require.NoError(t, WriteRun(path, header(p, 40, 18, 5), series))

	h, got, err := ReadAll(path)
	require.NoError(t, err)
	assert.Equal(t, Version, h.Version)
	assert.Equal(t, p, h.Params)
	assert.Equal(t, p.Digest(), h.ParamsDigest)
	assert.Equal(t, series, got)
}

func TestVerify_ReplaysDigests(t *testing.T) {
	p := tuning.Default()
	series := runSeries(t, p, 30, 12, 77)
	path := Path(t.TempDir(), 0)
	require.NoError(t, WriteRun(path, header(p, 30, 12, 77), series))

	n, err := Verify(path)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestVerify_DetectsTampering(t *testing.T) {
	p := tuning.Default()
	series := runSeries(t, p, 30, 6, 77)
	series[4].Digest = "deadbeef"
	path := Path(t.TempDir(), 0)
	require.NoError(t, WriteRun(path, header(p, 30, 6, 77), series))

	n, err := Verify(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDigestMismatch))
	assert.Equal(t, 4, n)
}

func TestVerify_WrongSeedFailsAtMonthOne(t *testing.T) {
	p := tuning.Default()
	series := runSeries(t, p, 30, 6, 1)
	path := Path(t.TempDir(), 0)
	require.NoError(t, WriteRun(path, header(p, 30, 6, 2), series))

	n, err := Verify(path)
	assert.True(t, errors.Is(err, ErrDigestMismatch))
	assert.Zero(t, n)
}

func TestVerify_TruncatedLog(t *testing.T) {
	p := tuning.Default()
	series := runSeries(t, p, 10, 6, 1)
	path := Path(t.TempDir(), 0)
	require.NoError(t, WriteRun(path, header(p, 10, 6, 1), series[:4]))

	n, err := Verify(path)
	require.Error(t, err)
	assert.Equal(t, 4, n)
}

func TestOpen_RejectsBadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl.zst")
	f, err := os.Create(path)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = enc.Write([]byte("{\"version\": 99}\n"))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	_, err = Open(path)
	assert.True(t, errors.Is(err, ErrBadHeader))

	empty := filepath.Join(t.TempDir(), "empty.jsonl.zst")
	require.NoError(t, WriteRun(empty, header(tuning.Default(), 1, 1, 1), nil))
	r, err := Open(empty)
	require.NoError(t, err)
	require.NoError(t, r.Close())
}

func TestJSONLZstdWriter_WriteAfterClose(t *testing.T) {
	w, err := NewJSONLZstdWriter(filepath.Join(t.TempDir(), "x", "y.jsonl.zst"))
	require.NoError(t, err)
	require.NoError(t, w.Write(map[string]int{"a": 1}))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Write(1), os.ErrClosed)
}
