package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"startupsim.ai/internal/report"
	"startupsim.ai/internal/sim/montecarlo"
)

func newSweepCmd(a *app) *cobra.Command {
	var (
		f      batchFlags
		key    string
		values []float64
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Compare batches across values of one parameter",
		Long: `Run one Monte Carlo batch per value of a single parameter, everything
else fixed and every batch on the same seeds, then print a comparison table.

Examples:
  startupsim sweep --key TAU --values 0.1,0.18,0.3
  startupsim sweep --key ALPHA_REVENUE_BURN --values 0.1,0.3,0.5 --runs 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" || len(values) == 0 {
				return errors.New("sweep needs --key and --values")
			}
			p, err := a.params()
			if err != nil {
				return err
			}
			log := a.logger()

			points, err := montecarlo.Sweep(cmd.Context(), f.batch(cmd, a, p), key, values)
			if err != nil {
				return err
			}
			for _, pt := range points {
				art, err := f.store(cmd.Context(), log.Logger, pt.Result, pt.Key, pt.Value)
				if err != nil {
					return err
				}
				log.Info().Str("batch", pt.BatchID).Str("key", pt.Key).Float64("value", pt.Value).
					Str("dir", art.Dir).Msg("sweep point written")
			}

			out := cmd.OutOrStdout()
			if a.jsonOut {
				type row struct {
					Key     string             `json:"key"`
					Value   float64            `json:"value"`
					Batch   string             `json:"batch"`
					Summary montecarlo.Summary `json:"summary"`
				}
				rows := make([]row, len(points))
				for i, pt := range points {
					rows[i] = row{pt.Key, pt.Value, pt.BatchID, pt.Summary}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			return report.WriteSweep(out, points)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&key, "key", "k", "", "parameter to sweep, e.g. TAU or funding_interval")
	cmd.Flags().Float64SliceVar(&values, "values", nil, "comma separated values")
	return cmd
}
