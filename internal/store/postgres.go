package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/chesapeake-vector/parcelrisk/internal/db"
	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
	"github.com/chesapeake-vector/parcelrisk/pkg/geocode"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS parcels (
	id                 TEXT PRIMARY KEY,
	geom               BYTEA,
	centroid_lat       DOUBLE PRECISION NOT NULL DEFAULT 0,
	centroid_lon       DOUBLE PRECISION NOT NULL DEFAULT 0,
	score              DOUBLE PRECISION NOT NULL DEFAULT 0,
	wetland_adjacent   BOOLEAN NOT NULL DEFAULT FALSE,
	wetland_distance_m DOUBLE PRECISION,
	properties         JSONB,
	loaded_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS overlays (
	id         TEXT NOT NULL,
	layer      TEXT NOT NULL,
	geom       BYTEA,
	properties JSONB,
	PRIMARY KEY (layer, id)
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash TEXT PRIMARY KEY,
	latitude     DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude    DOUBLE PRECISION NOT NULL DEFAULT 0,
	source       TEXT,
	quality      TEXT,
	matched      BOOLEAN NOT NULL,
	cached_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dataset_loads (
	id            TEXT PRIMARY KEY,
	layer         TEXT NOT NULL,
	feature_count INTEGER NOT NULL,
	source        TEXT,
	loaded_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_parcels_score ON parcels(score);
CREATE INDEX IF NOT EXISTS idx_dataset_loads_layer ON dataset_loads(layer, loaded_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var parcelColumns = []string{
	"id", "geom", "centroid_lat", "centroid_lon", "score",
	"wetland_adjacent", "wetland_distance_m", "properties", "loaded_at",
}

// ReplaceParcels swaps the full parcel dataset using TRUNCATE plus the
// COPY protocol inside one transaction.
func (s *PostgresStore) ReplaceParcels(ctx context.Context, parcels []parcel.Parcel) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace parcels")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `TRUNCATE parcels`); err != nil {
		return eris.Wrap(err, "postgres: truncate parcels")
	}

	rows := make([][]any, 0, len(parcels))
	for i := range parcels {
		p := &parcels[i]
		geomBytes, err := encodeGeom(p.Geometry)
		if err != nil {
			return err
		}
		loadedAt := p.LoadedAt
		if loadedAt.IsZero() {
			loadedAt = time.Now().UTC()
		}
		rows = append(rows, []any{
			p.ID, geomBytes, p.CentroidLat, p.CentroidLon, p.Score,
			p.WetlandAdjacent, nil, nullIfEmpty(p.Properties), loadedAt,
		})
	}

	if _, err := db.CopyFrom(ctx, tx, "parcels", parcelColumns, rows); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace parcels")
}

func (s *PostgresStore) ListParcels(ctx context.Context) ([]parcel.Parcel, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, geom, centroid_lat, centroid_lon, score, wetland_adjacent, wetland_distance_m, properties, loaded_at
		FROM parcels ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list parcels")
	}
	defer rows.Close()

	var parcels []parcel.Parcel
	for rows.Next() {
		var p parcel.Parcel
		var geomBytes []byte
		var wetlandDist *float64
		var props []byte
		if err := rows.Scan(
			&p.ID, &geomBytes, &p.CentroidLat, &p.CentroidLon, &p.Score, &p.WetlandAdjacent, &wetlandDist, &props, &p.LoadedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan parcel")
		}
		if p.Geometry, err = decodeGeom(geomBytes); err != nil {
			return nil, err
		}
		p.WetlandDistance = floatOrInf(wetlandDist)
		p.Properties = props
		parcels = append(parcels, p)
	}
	return parcels, eris.Wrap(rows.Err(), "postgres: iterate parcels")
}

func (s *PostgresStore) UpdateScores(ctx context.Context, parcels []parcel.Parcel) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin update scores")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for i := range parcels {
		p := &parcels[i]
		if _, err := tx.Exec(ctx, `
			UPDATE parcels SET score = $1, wetland_adjacent = $2, wetland_distance_m = $3 WHERE id = $4`,
			p.Score, p.WetlandAdjacent, finiteOrNil(p.WetlandDistance), p.ID,
		); err != nil {
			return eris.Wrapf(err, "postgres: update score for parcel %s", p.ID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit update scores")
}

func (s *PostgresStore) ReplaceOverlays(ctx context.Context, layer string, overlays []parcel.Overlay) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace overlays")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM overlays WHERE layer = $1`, layer); err != nil {
		return eris.Wrapf(err, "postgres: clear overlays %s", layer)
	}

	rows := make([][]any, 0, len(overlays))
	for i := range overlays {
		o := &overlays[i]
		geomBytes, err := encodeGeom(o.Geometry)
		if err != nil {
			return err
		}
		rows = append(rows, []any{o.ID, layer, geomBytes, nullIfEmpty(o.Properties)})
	}

	if _, err := db.CopyFrom(ctx, tx, "overlays", []string{"id", "layer", "geom", "properties"}, rows); err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace overlays")
}

func (s *PostgresStore) ListOverlays(ctx context.Context, layer string) ([]parcel.Overlay, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, layer, geom, properties FROM overlays WHERE layer = $1 ORDER BY id`, layer)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list overlays %s", layer)
	}
	defer rows.Close()

	var overlays []parcel.Overlay
	for rows.Next() {
		var o parcel.Overlay
		var geomBytes []byte
		var props []byte
		if err := rows.Scan(&o.ID, &o.Layer, &geomBytes, &props); err != nil {
			return nil, eris.Wrap(err, "postgres: scan overlay")
		}
		if o.Geometry, err = decodeGeom(geomBytes); err != nil {
			return nil, err
		}
		o.Properties = props
		overlays = append(overlays, o)
	}
	return overlays, eris.Wrap(rows.Err(), "postgres: iterate overlays")
}

func (s *PostgresStore) RecordLoad(ctx context.Context, rec LoadRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.LoadedAt.IsZero() {
		rec.LoadedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dataset_loads (id, layer, feature_count, source, loaded_at) VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.Layer, rec.FeatureCount, rec.Source, rec.LoadedAt,
	)
	return eris.Wrapf(err, "postgres: record load %s", rec.Layer)
}

func (s *PostgresStore) ListLoads(ctx context.Context, limit int) ([]LoadRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, layer, feature_count, source, loaded_at FROM dataset_loads
		ORDER BY loaded_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list loads")
	}
	defer rows.Close()

	var recs []LoadRecord
	for rows.Next() {
		var r LoadRecord
		if err := rows.Scan(&r.ID, &r.Layer, &r.FeatureCount, &r.Source, &r.LoadedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan load record")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: iterate loads")
}

// GetGeocode implements geocode.Cache.
func (s *PostgresStore) GetGeocode(ctx context.Context, key string, maxAge time.Duration) (*geocode.Result, error) {
	var r geocode.Result
	var cachedAt time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT latitude, longitude, source, quality, matched, cached_at
		FROM geocode_cache WHERE address_hash = $1`, key,
	).Scan(&r.Latitude, &r.Longitude, &r.Source, &r.Quality, &r.Matched, &cachedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get geocode")
	}
	if maxAge > 0 && time.Since(cachedAt) > maxAge {
		return nil, nil
	}
	return &r, nil
}

// PutGeocode implements geocode.Cache.
func (s *PostgresStore) PutGeocode(ctx context.Context, key string, r geocode.Result) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO geocode_cache (address_hash, latitude, longitude, source, quality, matched, cached_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address_hash) DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			source = EXCLUDED.source,
			quality = EXCLUDED.quality,
			matched = EXCLUDED.matched,
			cached_at = EXCLUDED.cached_at`,
		key, r.Latitude, r.Longitude, r.Source, r.Quality, r.Matched, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: put geocode")
}
