package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aristath/riskdecomp/internal/config"
	"github.com/aristath/riskdecomp/internal/database"
	"github.com/aristath/riskdecomp/internal/di"
	"github.com/aristath/riskdecomp/internal/report"
)

func newImportCmd(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load fundamentals.csv and prices/*.csv into the history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := di.Wire(a.cfg, database.ProfileImport, a.log)
			if err != nil {
				return err
			}
			defer container.Close()

			summary, err := container.Importer.ImportDir(dir)
			if err != nil {
				return err
			}
			for _, s := range summary.Skipped {
				a.log.Warn().Str("row", s).Msg("Skipped row")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d fundamentals in %d snapshots and %d prices for %d assets into %s\n",
				summary.Fundamentals, summary.Snapshots, summary.Prices, summary.Assets, container.HistoryDB.Path())
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "directory holding fundamentals.csv and prices/")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

// outputFlags are shared by analyze and track
type outputFlags struct {
	configPath string
	format     string
	out        string
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.configPath, "config", "c", "", "analysis definition (YAML)")
	cmd.Flags().StringVarP(&o.format, "format", "f", "", "output format: table, json, yaml or msgpack")
	cmd.Flags().StringVarP(&o.out, "out", "o", "", "write the report to this file instead of stdout")
	_ = cmd.MarkFlagRequired("config")
}

// resolve loads the analysis file and applies flag overrides on top of its
// output section
func (o *outputFlags) resolve() (*config.AnalysisFile, report.Format, string, error) {
	file, err := config.LoadAnalysis(o.configPath)
	if err != nil {
		return nil, "", "", err
	}
	name := file.Output.Format
	if o.format != "" {
		name = o.format
	}
	format, err := report.ParseFormat(name)
	if err != nil {
		return nil, "", "", err
	}
	path := file.Output.Path
	if o.out != "" {
		path = o.out
	}
	return file, format, path, nil
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var flags outputFlags

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Build factors, regress active returns and attribute active risk",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, format, path, err := flags.resolve()
			if err != nil {
				return err
			}
			req, err := file.ToRequest()
			if err != nil {
				return err
			}

			container, err := di.Wire(a.cfg, database.ProfileStandard, a.log)
			if err != nil {
				return err
			}
			defer container.Close()

			result, err := container.Analysis.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), path, func(w io.Writer) error {
				return report.Write(w, format, result)
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func newTrackCmd(a *app) *cobra.Command {
	var flags outputFlags

	cmd := &cobra.Command{
		Use:   "track",
		Short: "Solve only the tracking portfolio of an analysis definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, format, path, err := flags.resolve()
			if err != nil {
				return err
			}
			req, err := file.ToRequest()
			if err != nil {
				return err
			}

			container, err := di.Wire(a.cfg, database.ProfileStandard, a.log)
			if err != nil {
				return err
			}
			defer container.Close()

			result, err := container.Analysis.Track(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), path, func(w io.Writer) error {
				return report.WriteTracking(w, format, result)
			})
		},
	}

	flags.register(cmd)
	return cmd
}

// writeOutput sends render's output to path, or to stdout when path is empty
func writeOutput(stdout io.Writer, path string, render func(io.Writer) error) error {
	if path == "" {
		return render(stdout)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
