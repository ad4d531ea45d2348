package server

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/chesapeake-vector/parcelrisk/internal/export"
	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
	"github.com/chesapeake-vector/parcelrisk/internal/risk"
)

type resolveQuery struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Address   string  `json:"address,omitempty"`
	Source    string  `json:"source,omitempty"`
}

type resolveResponse struct {
	Query resolveQuery `json:"query"`
	Match *risk.Match  `json:"match"`
}

type parcelSummary struct {
	ID              string   `json:"parcel_id"`
	Score           float64  `json:"total_score"`
	WetlandAdjacent bool     `json:"wetland_adjacent"`
	WetlandDistance *float64 `json:"wetland_distance_m"`
	CentroidLat     float64  `json:"centroid_lat"`
	CentroidLon     float64  `json:"centroid_lon"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"parcels": s.collection().Len(),
	})
}

// handleResolve answers GET /api/v1/resolve?lat=..&lon=.. or ?address=..
// with the nearest parcel and its risk score.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	query, ok := s.resolveQueryPoint(w, r)
	if !ok {
		return
	}

	match, err := s.collection().Nearest(r.Context(), risk.Point{Lat: query.Latitude, Lon: query.Longitude})
	switch {
	case eris.Is(err, risk.ErrInvalidInput):
		resolveRequests.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, "coordinates out of range")
		return
	case eris.Is(err, risk.ErrNotFound):
		resolveRequests.WithLabelValues("empty").Inc()
		writeError(w, http.StatusNotFound, "no parcels loaded")
		return
	case err != nil:
		resolveRequests.WithLabelValues("error").Inc()
		zap.L().Error("server: resolve failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "resolve failed")
		return
	}

	resolveRequests.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, resolveResponse{Query: query, Match: match})
}

// resolveQueryPoint extracts the query point from lat/lon params or by
// geocoding an address param. A false return means the response has
// already been written.
func (s *Server) resolveQueryPoint(w http.ResponseWriter, r *http.Request) (resolveQuery, bool) {
	q := r.URL.Query()

	if address := q.Get("address"); address != "" {
		if s.geocoder == nil {
			writeError(w, http.StatusNotImplemented, "geocoding not configured")
			return resolveQuery{}, false
		}
		result, err := s.geocoder.Geocode(r.Context(), address)
		if err != nil {
			resolveRequests.WithLabelValues("geocode_error").Inc()
			zap.L().Error("server: geocode failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, "geocoding failed")
			return resolveQuery{}, false
		}
		if !result.Matched {
			resolveRequests.WithLabelValues("no_match").Inc()
			writeError(w, http.StatusNotFound, "address not found")
			return resolveQuery{}, false
		}
		return resolveQuery{
			Latitude:  result.Latitude,
			Longitude: result.Longitude,
			Address:   address,
			Source:    result.Source,
		}, true
	}

	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeError(w, http.StatusBadRequest, "provide either address or numeric lat and lon")
		return resolveQuery{}, false
	}
	return resolveQuery{Latitude: lat, Longitude: lon}, true
}

// handleParcels answers GET /api/v1/parcels?min_score=..&limit=.. with
// parcels at or above the threshold, highest score first.
func (s *Server) handleParcels(w http.ResponseWriter, r *http.Request) {
	filtered, ok := s.filteredParcels(w, r)
	if !ok {
		return
	}

	if bbox := r.URL.Query().Get("bbox"); bbox != "" {
		filtered, ok = filterBBox(w, filtered, bbox)
		if !ok {
			return
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if limit < len(filtered) {
			filtered = filtered[:limit]
		}
	}

	items := make([]parcelSummary, 0, len(filtered))
	for i := range filtered {
		items = append(items, summarize(&filtered[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(items),
		"parcels": items,
	})
}

// handleExport answers GET /api/v1/parcels/export?format=csv|xlsx with a
// download of the filtered parcel set.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	filtered, ok := s.filteredParcels(w, r)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatCSV
	}
	if format != export.FormatCSV && format != export.FormatXLSX {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
		return
	}

	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=parcels.%s", format))
	if err := export.Write(w, format, filtered); err != nil {
		zap.L().Error("server: export failed", zap.Error(err))
		return
	}
	exportRows.Add(float64(len(filtered)))
}

// filteredParcels applies the min_score threshold filter. A false return
// means the response has already been written.
func (s *Server) filteredParcels(w http.ResponseWriter, r *http.Request) ([]parcel.Parcel, bool) {
	threshold := s.cfg.Risk.DefaultThreshold
	if minScore := r.URL.Query().Get("min_score"); minScore != "" {
		v, err := strconv.ParseFloat(minScore, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_score")
			return nil, false
		}
		threshold = v
	}

	filtered, err := risk.FilterByScore(s.collection().Parcels(), threshold)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid min_score")
		return nil, false
	}
	return filtered, true
}

// filterBBox keeps parcels whose centroid lies inside a
// "minLon,minLat,maxLon,maxLat" bounding box. A false return means the
// response has already been written.
func filterBBox(w http.ResponseWriter, parcels []parcel.Parcel, bbox string) ([]parcel.Parcel, bool) {
	parts := strings.Split(bbox, ",")
	if len(parts) != 4 {
		writeError(w, http.StatusBadRequest, "bbox must be minLon,minLat,maxLon,maxLat")
		return nil, false
	}
	vals := make([]float64, 4)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bbox must be minLon,minLat,maxLon,maxLat")
			return nil, false
		}
		vals[i] = v
	}
	minLon, minLat, maxLon, maxLat := vals[0], vals[1], vals[2], vals[3]

	kept := make([]parcel.Parcel, 0, len(parcels))
	for _, p := range parcels {
		if p.CentroidLon >= minLon && p.CentroidLon <= maxLon &&
			p.CentroidLat >= minLat && p.CentroidLat <= maxLat {
			kept = append(kept, p)
		}
	}
	return kept, true
}

// handleOverlays answers GET /api/v1/overlays/{layer} with the layer's
// features as a GeoJSON FeatureCollection.
func (s *Server) handleOverlays(w http.ResponseWriter, r *http.Request) {
	layer := chi.URLParam(r, "layer")
	if !parcel.ValidLayer(layer) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown layer %q", layer))
		return
	}

	if cached := s.cache.Get(layer); cached != nil {
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("X-Cache", "hit")
		_, _ = w.Write(cached)
		return
	}

	overlays, err := s.store.ListOverlays(r.Context(), layer)
	if err != nil {
		zap.L().Error("server: list overlays failed", zap.String("layer", layer), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "overlay lookup failed")
		return
	}

	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(overlays))}
	for i := range overlays {
		o := &overlays[i]
		var props map[string]any
		if len(o.Properties) > 0 {
			if err := json.Unmarshal(o.Properties, &props); err != nil {
				zap.L().Warn("server: bad overlay properties", zap.String("id", o.ID), zap.Error(err))
			}
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         o.ID,
			Geometry:   o.Geometry,
			Properties: props,
		})
	}

	body, err := json.Marshal(&fc)
	if err != nil {
		zap.L().Error("server: encode overlays failed", zap.String("layer", layer), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "overlay encoding failed")
		return
	}

	s.cache.Put(layer, body)
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("X-Cache", "miss")
	_, _ = w.Write(body)
}

func summarize(p *parcel.Parcel) parcelSummary {
	s := parcelSummary{
		ID:              p.ID,
		Score:           p.Score,
		WetlandAdjacent: p.WetlandAdjacent,
		CentroidLat:     p.CentroidLat,
		CentroidLon:     p.CentroidLon,
	}
	if !math.IsInf(p.WetlandDistance, 0) && !math.IsNaN(p.WetlandDistance) {
		d := p.WetlandDistance
		s.WetlandDistance = &d
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
