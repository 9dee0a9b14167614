package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"startupsim.ai/internal/logger"
	"startupsim.ai/internal/sim/tuning"
)

var version = "0.1.0-dev"

// app carries the persistent flags and the objects built from them.
type app struct {
	configPath string
	logLevel   string
	logFile    string
	jsonOut    bool

	log *logger.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "startupsim",
		Short: "Monte Carlo simulation of a startup funding ecosystem",
		Long: `startupsim simulates a population of startups month by month: consumer
adoption, burn-rate dynamics, investor funding rounds, government policy and
macro shocks. Batches of seeded runs are summarised, exported as CSV and
recorded in a SQLite catalog.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logger.New(logger.Config{
				Level:   a.logLevel,
				File:    a.logFile,
				Console: true,
				Pretty:  true,
			})
			if err != nil {
				return err
			}
			a.log = l
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.log != nil {
				return a.log.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "parameter file (YAML or JSON); STARTUPSIM_<KEY> env vars override it")
	pf.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&a.logFile, "log-file", "", "also append logs to this file")
	pf.BoolVar(&a.jsonOut, "json", false, "print machine-readable JSON")

	root.AddCommand(
		newRunCmd(a),
		newSweepCmd(a),
		newReplayCmd(a),
		newInspectCmd(a),
		newHistoryCmd(a),
		newParamsCmd(a),
	)
	return root
}

func (a *app) params() (tuning.Params, error) {
	p, err := tuning.Resolve(a.configPath)
	if err != nil {
		return p, fmt.Errorf("load parameters: %w", err)
	}
	return p, nil
}

func (a *app) logger() *logger.Logger {
	if a.log == nil {
		return logger.Nop()
	}
	return a.log
}
