package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
	"github.com/chesapeake-vector/parcelrisk/pkg/geocode"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. Use ":memory:" for an ephemeral store.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS parcels (
	id                 TEXT PRIMARY KEY,
	geom               BLOB,
	centroid_lat       REAL NOT NULL DEFAULT 0,
	centroid_lon       REAL NOT NULL DEFAULT 0,
	score              REAL NOT NULL DEFAULT 0,
	wetland_adjacent   INTEGER NOT NULL DEFAULT 0,
	wetland_distance_m REAL,
	properties         TEXT,
	loaded_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS overlays (
	id         TEXT NOT NULL,
	layer      TEXT NOT NULL,
	geom       BLOB,
	properties TEXT,
	PRIMARY KEY (layer, id)
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	address_hash TEXT PRIMARY KEY,
	latitude     REAL NOT NULL DEFAULT 0,
	longitude    REAL NOT NULL DEFAULT 0,
	source       TEXT,
	quality      TEXT,
	matched      INTEGER NOT NULL,
	cached_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS dataset_loads (
	id            TEXT PRIMARY KEY,
	layer         TEXT NOT NULL,
	feature_count INTEGER NOT NULL,
	source        TEXT,
	loaded_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_parcels_score ON parcels(score);
CREATE INDEX IF NOT EXISTS idx_dataset_loads_layer ON dataset_loads(layer, loaded_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ReplaceParcels swaps the full parcel dataset in one transaction. The
// wetland distance is reset to NULL; scoring fills it in.
func (s *SQLiteStore) ReplaceParcels(ctx context.Context, parcels []parcel.Parcel) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace parcels")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM parcels`); err != nil {
		return eris.Wrap(err, "sqlite: clear parcels")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO parcels (id, geom, centroid_lat, centroid_lon, score, wetland_adjacent, wetland_distance_m, properties, loaded_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare parcel insert")
	}
	defer stmt.Close()

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
		if _, err := stmt.ExecContext(ctx,
			p.ID, geomBytes, p.CentroidLat, p.CentroidLon, p.Score, p.WetlandAdjacent, nullIfEmpty(p.Properties), loadedAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert parcel %s", p.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace parcels")
}

func (s *SQLiteStore) ListParcels(ctx context.Context) ([]parcel.Parcel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, geom, centroid_lat, centroid_lon, score, wetland_adjacent, wetland_distance_m, properties, loaded_at
		FROM parcels ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list parcels")
	}
	defer rows.Close()

	var parcels []parcel.Parcel
	for rows.Next() {
		var p parcel.Parcel
		var geomBytes []byte
		var wetlandDist *float64
		var props sql.NullString
		if err := rows.Scan(
			&p.ID, &geomBytes, &p.CentroidLat, &p.CentroidLon, &p.Score, &p.WetlandAdjacent, &wetlandDist, &props, &p.LoadedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan parcel")
		}
		if p.Geometry, err = decodeGeom(geomBytes); err != nil {
			return nil, err
		}
		p.WetlandDistance = floatOrInf(wetlandDist)
		if props.Valid {
			p.Properties = []byte(props.String)
		}
		parcels = append(parcels, p)
	}
	return parcels, eris.Wrap(rows.Err(), "sqlite: iterate parcels")
}

// UpdateScores persists scoring results for the given parcels.
func (s *SQLiteStore) UpdateScores(ctx context.Context, parcels []parcel.Parcel) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin update scores")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE parcels SET score = ?, wetland_adjacent = ?, wetland_distance_m = ? WHERE id = ?`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare score update")
	}
	defer stmt.Close()

	for i := range parcels {
		p := &parcels[i]
		if _, err := stmt.ExecContext(ctx, p.Score, p.WetlandAdjacent, finiteOrNil(p.WetlandDistance), p.ID); err != nil {
			return eris.Wrapf(err, "sqlite: update score for parcel %s", p.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit update scores")
}

// ReplaceOverlays swaps all overlay geometries of one layer.
func (s *SQLiteStore) ReplaceOverlays(ctx context.Context, layer string, overlays []parcel.Overlay) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace overlays")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM overlays WHERE layer = ?`, layer); err != nil {
		return eris.Wrapf(err, "sqlite: clear overlays %s", layer)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO overlays (id, layer, geom, properties) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare overlay insert")
	}
	defer stmt.Close()

	for i := range overlays {
		o := &overlays[i]
		geomBytes, err := encodeGeom(o.Geometry)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, o.ID, layer, geomBytes, nullIfEmpty(o.Properties)); err != nil {
			return eris.Wrapf(err, "sqlite: insert overlay %s/%s", layer, o.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace overlays")
}

func (s *SQLiteStore) ListOverlays(ctx context.Context, layer string) ([]parcel.Overlay, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, layer, geom, properties FROM overlays WHERE layer = ? ORDER BY id`, layer)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list overlays %s", layer)
	}
	defer rows.Close()

	var overlays []parcel.Overlay
	for rows.Next() {
		var o parcel.Overlay
		var geomBytes []byte
		var props sql.NullString
		if err := rows.Scan(&o.ID, &o.Layer, &geomBytes, &props); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan overlay")
		}
		if o.Geometry, err = decodeGeom(geomBytes); err != nil {
			return nil, err
		}
		if props.Valid {
			o.Properties = []byte(props.String)
		}
		overlays = append(overlays, o)
	}
	return overlays, eris.Wrap(rows.Err(), "sqlite: iterate overlays")
}

func (s *SQLiteStore) RecordLoad(ctx context.Context, rec LoadRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.LoadedAt.IsZero() {
		rec.LoadedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dataset_loads (id, layer, feature_count, source, loaded_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Layer, rec.FeatureCount, rec.Source, rec.LoadedAt,
	)
	return eris.Wrapf(err, "sqlite: record load %s", rec.Layer)
}

func (s *SQLiteStore) ListLoads(ctx context.Context, limit int) ([]LoadRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, layer, feature_count, source, loaded_at FROM dataset_loads
		ORDER BY loaded_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list loads")
	}
	defer rows.Close()

	var recs []LoadRecord
	for rows.Next() {
		var r LoadRecord
		if err := rows.Scan(&r.ID, &r.Layer, &r.FeatureCount, &r.Source, &r.LoadedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan load record")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: iterate loads")
}

// GetGeocode implements geocode.Cache. Returns nil on a miss or when the
// entry is older than maxAge (maxAge <= 0 disables expiry).
func (s *SQLiteStore) GetGeocode(ctx context.Context, key string, maxAge time.Duration) (*geocode.Result, error) {
	var r geocode.Result
	var cachedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT latitude, longitude, source, quality, matched, cached_at
		FROM geocode_cache WHERE address_hash = ?`, key,
	).Scan(&r.Latitude, &r.Longitude, &r.Source, &r.Quality, &r.Matched, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get geocode")
	}
	if maxAge > 0 && time.Since(cachedAt) > maxAge {
		return nil, nil
	}
	return &r, nil
}

// PutGeocode implements geocode.Cache.
func (s *SQLiteStore) PutGeocode(ctx context.Context, key string, r geocode.Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO geocode_cache (address_hash, latitude, longitude, source, quality, matched, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (address_hash) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			source = excluded.source,
			quality = excluded.quality,
			matched = excluded.matched,
			cached_at = excluded.cached_at`,
		key, r.Latitude, r.Longitude, r.Source, r.Quality, r.Matched, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: put geocode")
}

// nullIfEmpty maps empty byte slices to nil for SQL NULL storage.
func nullIfEmpty(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
