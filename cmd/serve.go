package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chesapeake-vector/parcelrisk/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard HTTP API",
	Long:  "Serves nearest-parcel resolution, threshold filtering, overlay GeoJSON, exports, health, and metrics until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		srv := server.New(*cfg, st, buildGeocoder(cfg.Geocode, st))
		if err := srv.Refresh(ctx); err != nil {
			return err
		}

		return srv.ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
