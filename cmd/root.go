package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chesapeake-vector/parcelrisk/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "parcelrisk",
	Short: "Mosquito-risk parcel dashboard backend",
	Long:  "Loads county parcel, wetland, and road datasets, scores parcels for mosquito breeding risk, and serves nearest-parcel lookups, threshold filtering, and exports.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
