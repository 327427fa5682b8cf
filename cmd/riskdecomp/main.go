// Package main is the riskdecomp command line tool. It imports market history
// from CSV files into a local SQLite database and runs factor-model risk
// decompositions against it.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/riskdecomp/internal/config"
	"github.com/aristath/riskdecomp/pkg/logger"
)

// app carries the state shared by every subcommand
type app struct {
	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "riskdecomp",
		Short:         "Factor-model risk decomposition of active returns",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
			logger.SetGlobalLogger(a.log)
			return nil
		},
	}

	root.AddCommand(newImportCmd(a), newAnalyzeCmd(a), newTrackCmd(a))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{log: logger.New(logger.Config{Level: "info", Pretty: true})}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		a.log.Error().Err(err).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}
