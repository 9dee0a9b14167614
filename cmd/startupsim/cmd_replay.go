package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"startupsim.ai/internal/persistence/monthlog"
)

func newReplayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <log|dir>...",
		Short: "Re-run month logs and verify every month digest",
		Long: `Rebuild each run from its month log header (parameters, population,
seed), step it again and compare the state digest of every month with the
logged one. A directory argument verifies every run-*.jsonl.zst inside it.

Examples:
  startupsim replay results/<batch>/logs
  startupsim replay results/<batch>/logs/run-0003.jsonl.zst`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expandLogs(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no month logs found in %s", strings.Join(args, ", "))
			}

			type result struct {
				File   string `json:"file"`
				Months int    `json:"months"`
				OK     bool   `json:"ok"`
				Error  string `json:"error,omitempty"`
			}
			var (
				results []result
				failed  int
			)
			out := cmd.OutOrStdout()
			for _, path := range files {
				n, err := monthlog.Verify(path)
				r := result{File: path, Months: n, OK: err == nil}
				if err != nil {
					r.Error = err.Error()
					failed++
					a.logger().Error().Err(err).Str("file", path).Msg("replay failed")
				}
				results = append(results, r)
				if !a.jsonOut {
					if err != nil {
						fmt.Fprintf(out, "FAIL %s after %d months: %v\n", path, n, err)
					} else {
						fmt.Fprintf(out, "ok   %s (%d months)\n", path, n)
					}
				}
			}
			if a.jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("replay: %d of %d logs failed", failed, len(files))
			}
			return nil
		},
	}
}

func expandLogs(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		ents, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, e := range ents {
			name := e.Name()
			if !e.IsDir() && strings.HasPrefix(name, "run-") && strings.HasSuffix(name, ".jsonl.zst") {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			files = append(files, filepath.Join(arg, name))
		}
	}
	return files, nil
}
