package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
	"github.com/chesapeake-vector/parcelrisk/internal/scorer"
	"github.com/chesapeake-vector/parcelrisk/internal/store"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Recompute risk scores for all stored parcels",
	Long:  "Builds spatial indexes over the stored wetland and road overlays, computes wetland adjacency and total risk score for every parcel, and writes the results back to the store.",
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

		wetlands, err := overlayGeoms(ctx, st, parcel.LayerWetlands)
		if err != nil {
			return err
		}
		roads, err := overlayGeoms(ctx, st, parcel.LayerRoads)
		if err != nil {
			return err
		}

		sc, err := scorer.New(cfg.Risk, wetlands, roads)
		if err != nil {
			return err
		}

		scored, err := sc.ScoreAll(ctx, parcels)
		if err != nil {
			return err
		}
		if err := st.UpdateScores(ctx, scored); err != nil {
			return err
		}

		adjacent := 0
		for i := range scored {
			if scored[i].WetlandAdjacent {
				adjacent++
			}
		}
		zap.L().Info("score: complete",
			zap.Int("parcels", len(scored)),
			zap.Int("wetland_adjacent", adjacent),
			zap.Int("wetlands", len(wetlands)),
			zap.Int("roads", len(roads)),
		)
		return nil
	},
}

func overlayGeoms(ctx context.Context, st store.Store, layer string) ([]geom.T, error) {
	overlays, err := st.ListOverlays(ctx, layer)
	if err != nil {
		return nil, err
	}
	geoms := make([]geom.T, 0, len(overlays))
	for i := range overlays {
		if overlays[i].Geometry != nil {
			geoms = append(geoms, overlays[i].Geometry)
		}
	}
	return geoms, nil
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}
