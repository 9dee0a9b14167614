package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"startupsim.ai/internal/sim/tuning"
)

func newParamsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "params",
		Short: "Print the effective parameter set",
		Long: `Print the parameters a run would use: built-in defaults, overlaid with
the --config file, overlaid with STARTUPSIM_<KEY> environment variables.
The output is itself a valid --config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.params()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(p)
			}
			raw, err := tuning.Encode(p)
			if err != nil {
				return err
			}
			_, err = out.Write(raw)
			return err
		},
	}
}
