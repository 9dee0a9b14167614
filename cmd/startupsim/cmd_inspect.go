package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"startupsim.ai/internal/persistence/snapshot"
	"startupsim.ai/internal/report"
)

func newInspectCmd(a *app) *cobra.Command {
	var headerOnly bool
	cmd := &cobra.Command{
		Use:   "inspect <batch.snap.zst>",
		Short: "Print the summary stored in a batch snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if headerOnly {
				h, err := snapshot.ReadHeader(args[0])
				if err != nil {
					return err
				}
				if a.jsonOut {
					return json.NewEncoder(out).Encode(h)
				}
				fmt.Fprintf(out, "snapshot v%d batch=%s runs=%d population=%d horizon=%d base_seed=%d created=%s\n",
					h.Version, h.BatchID, h.Runs, h.Population, h.Horizon, h.BaseSeed, h.Created.Format("2006-01-02 15:04:05"))
				return nil
			}

			snap, err := snapshot.ReadSnapshot(args[0])
			if err != nil {
				return err
			}
			res := snap.Result()
			if a.jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Header  snapshot.Header `json:"header"`
					Summary any             `json:"summary"`
				}{snap.Header, res.Summary})
			}
			return report.WriteSummary(out, res, res.Finished.Local())
		},
	}
	cmd.Flags().BoolVar(&headerOnly, "header", false, "only decode the header line")
	return cmd
}
