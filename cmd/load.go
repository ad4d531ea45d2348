package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chesapeake-vector/parcelrisk/internal/config"
	"github.com/chesapeake-vector/parcelrisk/internal/geodata"
	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
	"github.com/chesapeake-vector/parcelrisk/internal/store"
)

var (
	loadParcelsSrc  string
	loadWetlandsSrc string
	loadRoadsSrc    string
	loadParcelsShp  string
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Fetch parcel, wetland, and road datasets into the store",
	Long:  "Downloads the configured GeoJSON feature services (or reads local files), parses them, and replaces the stored datasets. Use score afterwards to recompute risk scores.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		dataCfg := cfg.Data
		if loadParcelsSrc != "" {
			dataCfg.ParcelsURL = loadParcelsSrc
		}
		if loadWetlandsSrc != "" {
			dataCfg.WetlandsURL = loadWetlandsSrc
		}
		if loadRoadsSrc != "" {
			dataCfg.RoadsURL = loadRoadsSrc
		}

		var parcels []parcel.Parcel
		fetchCfg := dataCfg

		if loadParcelsShp != "" {
			// Parcels come from a local shapefile; only overlays are fetched.
			parcels, err = geodata.ParcelsFromShapefile(loadParcelsShp, dataCfg.IDProperty, "total_score")
			if err != nil {
				return err
			}
			fetchCfg.ParcelsURL = ""
		}

		fetcher := geodata.NewFetcher(fetchCfg, nil)

		raw := map[string][]byte{}
		if loadParcelsShp != "" {
			wetlands, err := fetcher.Fetch(ctx, fetchCfg.WetlandsURL)
			if err != nil {
				return eris.Wrap(err, "load: fetch wetlands")
			}
			roads, err := fetcher.Fetch(ctx, fetchCfg.RoadsURL)
			if err != nil {
				return eris.Wrap(err, "load: fetch roads")
			}
			raw[parcel.LayerWetlands] = wetlands
			raw[parcel.LayerRoads] = roads
		} else {
			raw, err = fetcher.FetchAll(ctx, fetchCfg)
			if err != nil {
				return err
			}
			parcels, err = geodata.ParseParcels(raw[parcel.LayerParcels], dataCfg.IDProperty)
			if err != nil {
				return err
			}
		}

		if len(parcels) == 0 {
			return eris.New("load: parcel dataset is empty, refusing to replace stored parcels")
		}

		if err := st.ReplaceParcels(ctx, parcels); err != nil {
			return err
		}
		if err := recordLoad(ctx, st, parcel.LayerParcels, len(parcels), parcelSource(dataCfg)); err != nil {
			return err
		}
		zap.L().Info("load: parcels stored", zap.Int("count", len(parcels)))

		for _, layer := range []string{parcel.LayerWetlands, parcel.LayerRoads} {
			overlays, err := geodata.ParseOverlays(raw[layer], layer, dataCfg.IDProperty)
			if err != nil {
				return err
			}
			if err := st.ReplaceOverlays(ctx, layer, overlays); err != nil {
				return err
			}
			if err := recordLoad(ctx, st, layer, len(overlays), overlaySource(dataCfg, layer)); err != nil {
				return err
			}
			zap.L().Info("load: overlays stored", zap.String("layer", layer), zap.Int("count", len(overlays)))
		}

		return nil
	},
}

func recordLoad(ctx context.Context, st store.Store, layer string, count int, source string) error {
	return st.RecordLoad(ctx, store.LoadRecord{
		Layer:        layer,
		FeatureCount: count,
		Source:       source,
	})
}

func parcelSource(dataCfg config.DataConfig) string {
	if loadParcelsShp != "" {
		return loadParcelsShp
	}
	return dataCfg.ParcelsURL
}

func overlaySource(dataCfg config.DataConfig, layer string) string {
	if layer == parcel.LayerWetlands {
		return dataCfg.WetlandsURL
	}
	return dataCfg.RoadsURL
}

func init() {
	loadCmd.Flags().StringVar(&loadParcelsSrc, "parcels", "", "parcels source URL or file (default from config)")
	loadCmd.Flags().StringVar(&loadWetlandsSrc, "wetlands", "", "wetlands source URL or file (default from config)")
	loadCmd.Flags().StringVar(&loadRoadsSrc, "roads", "", "roads source URL or file (default from config)")
	loadCmd.Flags().StringVar(&loadParcelsShp, "parcels-shp", "", "load parcels from a local shapefile instead of GeoJSON")
	rootCmd.AddCommand(loadCmd)
}
