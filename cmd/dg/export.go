package main

import (
	"fmt"
	"os"

	"github.com/datagoal/datagoal/internal/export"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var (
		configPath string
		format     string
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export delivery metrics",
		Long:  "Aggregates per-status run counts, mean quality score, and mean delivery time, and writes them as CSV or JSON.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, configPath, format, outPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "datagoal.yaml", "path to Data Goal config file")
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "output format (csv or json)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	return cmd
}

func runExport(cmd *cobra.Command, configPath, format, outPath string) error {
	if format != "csv" && format != "json" {
		return fmt.Errorf("unknown format %q (want csv or json)", format)
	}

	_, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	report, err := export.Metrics(gormDB)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", outPath, err)
		}
		defer f.Close()
		out = f
	}

	if format == "json" {
		err = export.WriteJSON(out, report)
	} else {
		err = export.WriteCSV(out, report)
	}
	if err != nil {
		return err
	}

	if outPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s metrics to %s\n", format, outPath)
	}
	return nil
}
