// Package store persists parcels, overlay geometries, dataset load
// history, and the geocode cache in SQLite (default) or PostgreSQL.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/chesapeake-vector/parcelrisk/internal/config"
	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
	"github.com/chesapeake-vector/parcelrisk/pkg/geocode"
)

// LoadRecord documents one dataset load.
type LoadRecord struct {
	ID           string    `json:"id"`
	Layer        string    `json:"layer"`
	FeatureCount int       `json:"feature_count"`
	Source       string    `json:"source"`
	LoadedAt     time.Time `json:"loaded_at"`
}

// Store defines the persistence interface. It doubles as the geocode
// cache backend.
type Store interface {
	// Parcels
	ReplaceParcels(ctx context.Context, parcels []parcel.Parcel) error
	ListParcels(ctx context.Context) ([]parcel.Parcel, error)
	UpdateScores(ctx context.Context, parcels []parcel.Parcel) error

	// Overlays
	ReplaceOverlays(ctx context.Context, layer string, overlays []parcel.Overlay) error
	ListOverlays(ctx context.Context, layer string) ([]parcel.Overlay, error)

	// Load history
	RecordLoad(ctx context.Context, rec LoadRecord) error
	ListLoads(ctx context.Context, limit int) ([]LoadRecord, error)

	// Geocode cache
	geocode.Cache

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the store selected by config and runs migrations.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		s, err = NewSQLite(cfg.SQLitePath)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}
