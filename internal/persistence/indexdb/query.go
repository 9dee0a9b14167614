package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"startupsim.ai/internal/sim/runner"
	"startupsim.ai/internal/sim/world"
)

type BatchRow struct {
	ID               string
	RecordedAt       time.Time
	BaseSeed         int64
	Runs             int
	Population       int
	Horizon          int
	ParamsDigest     string
	SnapshotPath     string
	LogDir           string
	SweepKey         string
	SweepValue       float64
	MeanFailureRate  float64
	StdFailureRate   float64
	MeanSuccessCount float64
	StdSuccessCount  float64
	MeanAvgValuation float64
	MeanSurvival     float64
	MedianSurvival   float64
}

type RunRow struct {
	Run                int
	Seed               int64
	FailureRate        float64
	SuccessCount       int
	TopPercentileCount int
	AvgValuation       float64
	MedianValuation    float64
	Deaths             int
	FinalDigest        string
}

const batchColumns = `id,recorded_at,base_seed,runs,population,horizon,params_digest,
	snapshot_path,log_dir,sweep_key,sweep_value,
	mean_failure_rate,std_failure_rate,mean_success_count,std_success_count,
	mean_avg_valuation,mean_survival,median_survival`

type scanner interface {
	Scan(dest ...any) error
}

func scanBatch(sc scanner) (BatchRow, error) {
	var (
		b                      BatchRow
		recorded               string
		snap, logDir, sweepKey sql.NullString
		sweepValue             sql.NullFloat64
	)
	if err := sc.Scan(&b.ID, &recorded, &b.BaseSeed, &b.Runs, &b.Population, &b.Horizon, &b.ParamsDigest,
		&snap, &logDir, &sweepKey, &sweepValue,
		&b.MeanFailureRate, &b.StdFailureRate, &b.MeanSuccessCount, &b.StdSuccessCount,
		&b.MeanAvgValuation, &b.MeanSurvival, &b.MedianSurvival); err != nil {
		return b, err
	}
	b.RecordedAt, _ = time.Parse(timeLayout, recorded)
	b.SnapshotPath, b.LogDir, b.SweepKey = snap.String, logDir.String, sweepKey.String
	b.SweepValue = sweepValue.Float64
	return b, nil
}

// ListBatches returns the most recently recorded batches first. limit <= 0
// means no limit.
func (s *SQLiteIndex) ListBatches(ctx context.Context, limit int) ([]BatchRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+batchColumns+` FROM batches ORDER BY recorded_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BatchRow
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Batch(ctx context.Context, id string) (BatchRow, error) {
	b, err := scanBatch(s.db.QueryRowContext(ctx, `SELECT `+batchColumns+` FROM batches WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrNotFound
	}
	return b, err
}

// Runs lists the runs of a batch by run index.
func (s *SQLiteIndex) Runs(ctx context.Context, batchID string) ([]RunRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run,seed,failure_rate,success_count,top_percentile_count,
			avg_valuation,median_valuation,deaths,final_digest
		FROM runs WHERE batch_id=? ORDER BY run`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.Run, &r.Seed, &r.FailureRate, &r.SuccessCount, &r.TopPercentileCount,
			&r.AvgValuation, &r.MedianValuation, &r.Deaths, &r.FinalDigest); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Months returns the stored series of one run. Shock deltas are not stored,
// only whether a shock occurred.
func (s *SQLiteIndex) Months(ctx context.Context, batchID string, run int) ([]runner.MonthStats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT month,alive,dead,failure_rate,total_funding,funded,
			avg_valuation,avg_pmf,avg_revenue,market_size,competition_index,shock,digest
		FROM months WHERE batch_id=? AND run=? ORDER BY month`, batchID, run)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []runner.MonthStats
	for rows.Next() {
		var (
			ms    runner.MonthStats
			shock int
		)
		if err := rows.Scan(&ms.Month, &ms.Alive, &ms.Dead, &ms.FailureRate, &ms.TotalFunding, &ms.Funded,
			&ms.AvgValuation, &ms.AvgPMF, &ms.AvgRevenue, &ms.Market, &ms.Competition, &shock, &ms.Digest); err != nil {
			return nil, err
		}
		if shock != 0 {
			ms.Shock = &world.Shock{Occurred: true}
		}
		out = append(out, ms)
	}
	return out, rows.Err()
}
