package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"startupsim.ai/internal/report"
	"startupsim.ai/internal/sim/montecarlo"
)

func newRunCmd(a *app) *cobra.Command {
	var f batchFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a Monte Carlo batch",
		Long: `Run a batch of independent simulations and write, under <out>/<batch id>:
month logs (logs/run-NNNN.jsonl.zst), a batch snapshot (batch.snap.zst),
summary_report.txt, model_timeseries.csv, agent_data.csv and
monte_carlo_summary.csv. The batch is also recorded in the results catalog.

Examples:
  startupsim run --runs 50
  startupsim run -c policy.yaml --runs 20 --seed 7 --history`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.params()
			if err != nil {
				return err
			}
			log := a.logger()

			res, err := f.batch(cmd, a, p).Run(cmd.Context())
			if err != nil {
				return err
			}
			art, err := f.store(cmd.Context(), log.Logger, res, "", 0)
			if err != nil {
				return err
			}
			log.Info().Str("batch", res.ID).Str("dir", art.Dir).Msg("batch written")

			out := cmd.OutOrStdout()
			if a.jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Batch     string             `json:"batch"`
					Summary   montecarlo.Summary `json:"summary"`
					Artefacts artefacts          `json:"artefacts"`
				}{res.ID, res.Summary, art})
			}
			if err := report.WriteSummary(out, res, res.Finished.Local()); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nFull report saved to %s\n", filepath.Join(art.Dir, report.SummaryFile))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
