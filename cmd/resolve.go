package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chesapeake-vector/parcelrisk/internal/risk"
)

var (
	resolveLat float64
	resolveLon float64
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [address]",
	Short: "Resolve a point or address to its nearest parcel",
	Long:  "Finds the parcel geometrically closest to the given coordinates or geocoded address and prints it with distance and risk score as JSON.",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		pt := risk.Point{Lat: resolveLat, Lon: resolveLon}
		var address string
		if len(args) > 0 {
			address = strings.Join(args, " ")
			result, err := buildGeocoder(cfg.Geocode, st).Geocode(ctx, address)
			if err != nil {
				return err
			}
			if !result.Matched {
				return eris.Errorf("resolve: no geocode match for %q", address)
			}
			pt = risk.Point{Lat: result.Latitude, Lon: result.Longitude}
			zap.L().Info("resolve: geocoded address",
				zap.String("address", address),
				zap.String("source", result.Source),
				zap.Float64("lat", pt.Lat),
				zap.Float64("lon", pt.Lon),
			)
		} else if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
			return eris.New("resolve: provide an address or both --lat and --lon")
		}

		parcels, err := st.ListParcels(ctx)
		if err != nil {
			return err
		}

		match, err := risk.NewCollection(parcels).Nearest(ctx, pt)
		if err != nil {
			return err
		}

		out := map[string]any{
			"query": map[string]any{"lat": pt.Lat, "lon": pt.Lon},
			"match": match,
		}
		if address != "" {
			out["query"].(map[string]any)["address"] = address
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	resolveCmd.Flags().Float64Var(&resolveLat, "lat", 0, "query latitude in decimal degrees")
	resolveCmd.Flags().Float64Var(&resolveLon, "lon", 0, "query longitude in decimal degrees")
	rootCmd.AddCommand(resolveCmd)
}
