package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"startupsim.ai/internal/sim/montecarlo"
	"startupsim.ai/internal/sim/tuning"
)

func runBatch(t *testing.T, id string, runs int) *montecarlo.Result {
	t.Helper()
	p := tuning.Default()
	p.PShock = 0.5
	res, err := montecarlo.Batch{
		ID: id, Params: p, Runs: runs, BaseSeed: 1, Population: 20, Horizon: 8, Workers: 2,
	}.Run(context.Background())
	require.NoError(t, err)
	return res
}

func TestRecordBatch_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "catalog.db")
	idx, err := OpenSQLite(path)
	require.NoError(t, err)
	defer idx.Close()

	res := runBatch(t, "b-1", 3)
	require.NoError(t, idx.RecordBatch(ctx, res, Artefacts{SnapshotPath: "/tmp/b-1.snap.zst", LogDir: "/tmp/logs"}))

	b, err := idx.Batch(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, 3, b.Runs)
	assert.Equal(t, 20, b.Population)
	assert.Equal(t, 8, b.Horizon)
	assert.Equal(t, res.Params.Digest(), b.ParamsDigest)
	assert.Equal(t, "/tmp/b-1.snap.zst", b.SnapshotPath)
	assert.Empty(t, b.SweepKey)
	assert.InDelta(t, res.Summary.MeanFailureRate, b.MeanFailureRate, 1e-12)
	assert.False(t, b.RecordedAt.IsZero())

	runs, err := idx.Runs(ctx, "b-1")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for i, r := range runs {
		assert.Equal(t, i, r.Run)
		assert.Equal(t, res.Runs[i].Seed, r.Seed)
		assert.Equal(t, res.Runs[i].FinalDigest, r.FinalDigest)
		assert.Equal(t, len(res.Runs[i].SurvivalTimes), r.Deaths)
	}

	months, err := idx.Months(ctx, "b-1", 1)
	require.NoError(t, err)
	require.Len(t, months, 8)
	for i, ms := range months {
		want := res.Runs[1].Series[i]
		assert.Equal(t, want.Month, ms.Month)
		assert.Equal(t, want.Digest, ms.Digest)
		assert.Equal(t, want.Alive, ms.Alive)
		assert.Equal(t, want.Shock != nil, ms.Shock != nil)
	}
}

func TestRecordBatch_ReplacesSameID(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.RecordBatch(ctx, runBatch(t, "same", 3), Artefacts{}))
	require.NoError(t, idx.RecordBatch(ctx, runBatch(t, "same", 2), Artefacts{SweepKey: "TAU", SweepValue: 0.3}))

	list, err := idx.ListBatches(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Runs)
	assert.Equal(t, "TAU", list[0].SweepKey)
	assert.Equal(t, 0.3, list[0].SweepValue)

	runs, err := idx.Runs(ctx, "same")
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestListBatches_NewestFirstWithLimit(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer idx.Close()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, idx.RecordBatch(ctx, runBatch(t, id, 1), Artefacts{}))
	}
	list, err := idx.ListBatches(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	_, err = idx.Batch(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenSQLite_SchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	idx, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = OpenSQLite("")
	assert.Error(t, err)

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var v string
	require.NoError(t, db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&v))
	assert.Equal(t, schemaVersion, v)
}
