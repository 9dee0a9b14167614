// Package indexdb keeps a queryable SQLite catalog of finished batches. It is
// an export sink: the simulation never reads from it.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"startupsim.ai/internal/sim/montecarlo"
)

const schemaVersion = "1"

// timeLayout is fixed-width so recorded_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var ErrNotFound = errors.New("indexdb: not found")

type SQLiteIndex struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteIndex{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS batches (
			id TEXT PRIMARY KEY,
			recorded_at TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			base_seed INTEGER NOT NULL,
			runs INTEGER NOT NULL,
			population INTEGER NOT NULL,
			horizon INTEGER NOT NULL,
			params_digest TEXT NOT NULL,
			params_json TEXT NOT NULL,
			snapshot_path TEXT,
			log_dir TEXT,
			sweep_key TEXT,
			sweep_value REAL,
			mean_failure_rate REAL NOT NULL,
			std_failure_rate REAL NOT NULL,
			mean_success_count REAL NOT NULL,
			std_success_count REAL NOT NULL,
			mean_avg_valuation REAL NOT NULL,
			mean_survival REAL NOT NULL,
			median_survival REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_batches_recorded ON batches(recorded_at);`,
		`CREATE TABLE IF NOT EXISTS runs (
			batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
			run INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			failure_rate REAL NOT NULL,
			success_count INTEGER NOT NULL,
			top_percentile_count INTEGER NOT NULL,
			avg_valuation REAL NOT NULL,
			median_valuation REAL NOT NULL,
			deaths INTEGER NOT NULL,
			final_digest TEXT NOT NULL,
			PRIMARY KEY (batch_id, run)
		);`,
		`CREATE TABLE IF NOT EXISTS months (
			batch_id TEXT NOT NULL,
			run INTEGER NOT NULL,
			month INTEGER NOT NULL,
			alive INTEGER NOT NULL,
			dead INTEGER NOT NULL,
			failure_rate REAL NOT NULL,
			total_funding REAL NOT NULL,
			funded INTEGER NOT NULL,
			avg_valuation REAL NOT NULL,
			avg_pmf REAL NOT NULL,
			avg_revenue REAL NOT NULL,
			market_size REAL NOT NULL,
			competition_index REAL NOT NULL,
			shock INTEGER NOT NULL,
			digest TEXT NOT NULL,
			PRIMARY KEY (batch_id, run, month),
			FOREIGN KEY (batch_id, run) REFERENCES runs(batch_id, run) ON DELETE CASCADE
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version',?)`, schemaVersion)
	return err
}

func (s *SQLiteIndex) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Artefacts names the files written for a batch, plus the sweep point it
// belongs to, if any.
type Artefacts struct {
	SnapshotPath string
	LogDir       string
	SweepKey     string
	SweepValue   float64
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// RecordBatch writes a batch with all its runs and months in one transaction.
// Recording the same batch id again replaces it.
func (s *SQLiteIndex) RecordBatch(ctx context.Context, res *montecarlo.Result, art Artefacts) error {
	paramsJSON, err := json.Marshal(res.Params)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE id=?`, res.ID); err != nil {
		return err
	}
	sweepValue := sql.NullFloat64{Float64: art.SweepValue, Valid: art.SweepKey != ""}
	sum := res.Summary
	if _, err := tx.ExecContext(ctx, `INSERT INTO batches(
			id,recorded_at,started_at,finished_at,base_seed,runs,population,horizon,
			params_digest,params_json,snapshot_path,log_dir,sweep_key,sweep_value,
			mean_failure_rate,std_failure_rate,mean_success_count,std_success_count,
			mean_avg_valuation,mean_survival,median_survival)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		res.ID, now,
		res.Started.UTC().Format(timeLayout), res.Finished.UTC().Format(timeLayout),
		res.BaseSeed, len(res.Runs), res.Population, res.Horizon,
		res.Params.Digest(), string(paramsJSON),
		nullString(art.SnapshotPath), nullString(art.LogDir), nullString(art.SweepKey), sweepValue,
		sum.MeanFailureRate, sum.StdFailureRate, sum.MeanSuccessCount, sum.StdSuccessCount,
		sum.MeanAvgValuation, sum.MeanSurvival, sum.MedianSurvival,
	); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	insertRun, err := tx.PrepareContext(ctx, `INSERT INTO runs(
			batch_id,run,seed,failure_rate,success_count,top_percentile_count,
			avg_valuation,median_valuation,deaths,final_digest)
		VALUES(?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insertRun.Close()
	insertMonth, err := tx.PrepareContext(ctx, `INSERT INTO months(
			batch_id,run,month,alive,dead,failure_rate,total_funding,funded,
			avg_valuation,avg_pmf,avg_revenue,market_size,competition_index,shock,digest)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insertMonth.Close()

	for _, rr := range res.Runs {
		if _, err := insertRun.ExecContext(ctx,
			res.ID, rr.Index, rr.Seed, rr.FailureRate, rr.SuccessCount, rr.TopPercentileCount,
			rr.AvgValuation, rr.MedianValuation, len(rr.SurvivalTimes), rr.FinalDigest,
		); err != nil {
			return fmt.Errorf("insert run %d: %w", rr.Index, err)
		}
		for _, ms := range rr.Series {
			shock := 0
			if ms.Shock != nil && ms.Shock.Occurred {
				shock = 1
			}
			if _, err := insertMonth.ExecContext(ctx,
				res.ID, rr.Index, ms.Month, ms.Alive, ms.Dead, ms.FailureRate, ms.TotalFunding, ms.Funded,
				ms.AvgValuation, ms.AvgPMF, ms.AvgRevenue, ms.Market, ms.Competition, shock, ms.Digest,
			); err != nil {
				return fmt.Errorf("insert run %d month %d: %w", rr.Index, ms.Month, err)
			}
		}
	}
	return tx.Commit()
}
