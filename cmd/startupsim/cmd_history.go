package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"startupsim.ai/internal/persistence/indexdb"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		dbPath string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history [batch id]",
		Short: "List recorded batches, or the runs of one batch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := indexdb.OpenSQLite(dbPath)
			if err != nil {
				return err
			}
			defer idx.Close()

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

			if len(args) == 1 {
				if _, err := idx.Batch(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("batch %s: %w", args[0], err)
				}
				runs, err := idx.Runs(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if a.jsonOut {
					return enc.Encode(runs)
				}
				fmt.Fprintln(tw, "RUN\tSEED\tFAILURE\tSUCCESS\tTOP\tAVG VALUATION\tDEATHS\tDIGEST")
				for _, r := range runs {
					fmt.Fprintf(tw, "%d\t%d\t%.4f\t%d\t%d\t%.0f\t%d\t%.12s\n",
						r.Run, r.Seed, r.FailureRate, r.SuccessCount, r.TopPercentileCount, r.AvgValuation, r.Deaths, r.FinalDigest)
				}
				return tw.Flush()
			}

			batches, err := idx.ListBatches(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return enc.Encode(batches)
			}
			fmt.Fprintln(tw, "BATCH\tRECORDED\tRUNS\tN\tH\tSEED\tFAILURE\tSUCCESS\tSWEEP")
			for _, b := range batches {
				sweep := "-"
				if b.SweepKey != "" {
					sweep = fmt.Sprintf("%s=%g", b.SweepKey, b.SweepValue)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%.4f\t%.1f\t%s\n",
					b.ID, b.RecordedAt.Local().Format("2006-01-02 15:04"), b.Runs, b.Population, b.Horizon,
					b.BaseSeed, b.MeanFailureRate, b.MeanSuccessCount, sweep)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "results/catalog.db", "results catalog")
	cmd.Flags().IntVar(&limit, "limit", 20, "max batches to list (0 for all)")
	return cmd
}
