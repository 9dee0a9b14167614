package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"startupsim.ai/internal/persistence/indexdb"
	"startupsim.ai/internal/persistence/monthlog"
	"startupsim.ai/internal/persistence/objstore"
	"startupsim.ai/internal/persistence/snapshot"
	"startupsim.ai/internal/report"
	"startupsim.ai/internal/sim/montecarlo"
	"startupsim.ai/internal/sim/tuning"
)

// batchFlags are shared by run and sweep.
type batchFlags struct {
	runs       int
	seed       int64
	population int
	horizon    int
	workers    int
	outDir     string
	dbPath     string
	noDB       bool
	history    bool
	mirror     bool
}

func (f *batchFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.IntVarP(&f.runs, "runs", "n", 10, "number of Monte Carlo runs")
	fs.Int64Var(&f.seed, "seed", 0, "base seed; run i uses seed+i (default RANDOM_SEED)")
	fs.IntVar(&f.population, "population", 0, "startups per run (default NUM_STARTUPS)")
	fs.IntVar(&f.horizon, "horizon", 0, "months per run (default TIME_HORIZON)")
	fs.IntVar(&f.workers, "workers", 0, "runs in flight (default GOMAXPROCS)")
	fs.StringVarP(&f.outDir, "out", "o", "results", "output directory")
	fs.StringVar(&f.dbPath, "db", "", "results catalog (default <out>/catalog.db)")
	fs.BoolVar(&f.noDB, "no-db", false, "do not record the batch in the catalog")
	fs.BoolVar(&f.history, "history", false, "export per-month agent data for the first run")
	fs.BoolVar(&f.mirror, "mirror", false, "upload the batch directory to the STARTUPSIM_S3_* bucket")
}

func (f *batchFlags) catalogPath() string {
	if f.dbPath != "" {
		return f.dbPath
	}
	return filepath.Join(f.outDir, "catalog.db")
}

func (f *batchFlags) batch(cmd *cobra.Command, a *app, p tuning.Params) montecarlo.Batch {
	seed := p.RandomSeed
	if cmd.Flags().Changed("seed") {
		seed = f.seed
	}
	return montecarlo.Batch{
		Params:       p,
		Runs:         f.runs,
		BaseSeed:     seed,
		Population:   f.population,
		Horizon:      f.horizon,
		Workers:      f.workers,
		AgentHistory: f.history,
		Log:          a.logger().Logger,
	}
}

// artefacts are the files written for one batch.
type artefacts struct {
	Dir      string   `json:"dir"`
	Snapshot string   `json:"snapshot"`
	LogDir   string   `json:"log_dir"`
	Reports  []string `json:"reports"`
}

// writeArtefacts stores month logs, the batch snapshot and the reports under
// <out>/<batch id>.
func writeArtefacts(res *montecarlo.Result, outDir string) (artefacts, error) {
	art := artefacts{Dir: filepath.Join(outDir, res.ID)}
	art.LogDir = filepath.Join(art.Dir, "logs")
	for _, rr := range res.Runs {
		h := monthlog.Header{
			BatchID:    res.ID,
			Run:        rr.Index,
			Seed:       rr.Seed,
			Population: res.Population,
			Horizon:    res.Horizon,
			Params:     res.Params,
		}
		if err := monthlog.WriteRun(monthlog.Path(art.LogDir, rr.Index), h, rr.Series); err != nil {
			return art, fmt.Errorf("month log for run %d: %w", rr.Index, err)
		}
	}

	art.Snapshot = filepath.Join(art.Dir, "batch.snap.zst")
	if err := snapshot.WriteSnapshot(art.Snapshot, snapshot.FromResult(res)); err != nil {
		return art, fmt.Errorf("snapshot: %w", err)
	}

	paths, err := report.Export(art.Dir, res, time.Now())
	if err != nil {
		return art, err
	}
	art.Reports = paths
	return art, nil
}

func recordBatch(ctx context.Context, dbPath string, res *montecarlo.Result, art artefacts, sweepKey string, sweepValue float64) error {
	idx, err := indexdb.OpenSQLite(dbPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer idx.Close()
	return idx.RecordBatch(ctx, res, indexdb.Artefacts{
		SnapshotPath: art.Snapshot,
		LogDir:       art.LogDir,
		SweepKey:     sweepKey,
		SweepValue:   sweepValue,
	})
}

// store finishes a batch: artefacts on disk, the optional bucket mirror and
// the catalog row.
func (f *batchFlags) store(ctx context.Context, log zerolog.Logger, res *montecarlo.Result, sweepKey string, sweepValue float64) (artefacts, error) {
	art, err := writeArtefacts(res, f.outDir)
	if err != nil {
		return art, err
	}
	if f.mirror {
		if err := mirrorBatch(ctx, log, res.ID, art.Dir); err != nil {
			return art, err
		}
	}
	if !f.noDB {
		if err := recordBatch(ctx, f.catalogPath(), res, art, sweepKey, sweepValue); err != nil {
			return art, err
		}
	}
	return art, nil
}

func mirrorBatch(ctx context.Context, log zerolog.Logger, batchID, dir string) error {
	cfg := objstore.ConfigFromEnv(os.LookupEnv)
	client, err := objstore.New(cfg)
	if err != nil {
		return err
	}
	st, err := objstore.NewMirror(client, cfg.Prefix, 4, log).UploadDir(ctx, dir, batchID)
	if err != nil {
		return fmt.Errorf("mirror batch %s: %w", batchID, err)
	}
	log.Info().Str("batch", batchID).Str("bucket", cfg.Bucket).Int("files", st.Files).
		Int64("bytes", st.Bytes).Int("retries", st.Retries).Msg("batch mirrored")
	return nil
}
