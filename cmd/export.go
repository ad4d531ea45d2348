package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chesapeake-vector/parcelrisk/internal/export"
	"github.com/chesapeake-vector/parcelrisk/internal/risk"
)

var (
	exportOutput   string
	exportFormat   string
	exportMinScore float64
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export parcels at or above a risk threshold",
	Long:  "Filters stored parcels by minimum risk score and writes them as CSV or XLSX, highest score first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		parcels, err := st.ListParcels(ctx)
		if err != nil {
			return err
		}

		threshold := cfg.Risk.DefaultThreshold
		if cmd.Flags().Changed("min-score") {
			threshold = exportMinScore
		}
		filtered, err := risk.FilterByScore(parcels, threshold)
		if err != nil {
			return err
		}

		out := os.Stdout
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		if err := export.Write(out, exportFormat, filtered); err != nil {
			return err
		}

		zap.L().Info("export: complete",
			zap.Int("rows", len(filtered)),
			zap.Float64("min_score", threshold),
			zap.String("format", exportFormat),
			zap.String("output", exportOutput),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&exportFormat, "format", export.FormatCSV, "output format: csv or xlsx")
	exportCmd.Flags().Float64Var(&exportMinScore, "min-score", 0, "minimum risk score (default from config)")
	rootCmd.AddCommand(exportCmd)
}
