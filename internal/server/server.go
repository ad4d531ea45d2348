// Package server exposes the risk dashboard HTTP API: nearest-parcel
// resolution, threshold filtering, overlay GeoJSON, and export downloads.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/chesapeake-vector/parcelrisk/internal/config"
	"github.com/chesapeake-vector/parcelrisk/internal/parcel"
	"github.com/chesapeake-vector/parcelrisk/internal/risk"
	"github.com/chesapeake-vector/parcelrisk/internal/store"
	"github.com/chesapeake-vector/parcelrisk/pkg/geocode"
)

// Server holds the HTTP API state. The parcel collection is swapped
// atomically on Refresh so in-flight lookups keep a consistent view.
type Server struct {
	cfg      config.Config
	store    store.Store
	geocoder geocode.Client
	cache    *overlayCache

	mu   sync.RWMutex
	coll *risk.Collection
}

// New creates a Server. Call Refresh before serving to load parcels from
// the store.
func New(cfg config.Config, st store.Store, geocoder geocode.Client) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		geocoder: geocoder,
		cache: newOverlayCache(
			cfg.Server.OverlayCacheSize,
			time.Duration(cfg.Server.OverlayCacheTTLSecs)*time.Second,
		),
		coll: risk.NewCollection(nil),
	}
}

// Refresh reloads the parcel collection from the store and invalidates
// the overlay cache.
func (s *Server) Refresh(ctx context.Context) error {
	parcels, err := s.store.ListParcels(ctx)
	if err != nil {
		return eris.Wrap(err, "server: refresh parcels")
	}
	coll := risk.NewCollection(parcels)

	s.mu.Lock()
	s.coll = coll
	s.mu.Unlock()

	for _, layer := range parcel.Layers {
		s.cache.Invalidate(layer)
	}

	zap.L().Info("server: parcel collection refreshed", zap.Int("parcels", coll.Len()))
	return nil
}

func (s *Server) collection() *risk.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coll
}

// Router builds the HTTP route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/resolve", s.handleResolve)
		r.Get("/parcels", s.handleParcels)
		r.Get("/parcels/export", s.handleExport)
		r.Get("/overlays/{layer}", s.handleOverlays)
	})

	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("server: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server: shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("server: listening", zap.Int("port", s.cfg.Server.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

// observe logs each request and records HTTP metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)

		httpRequests.WithLabelValues(route, r.Method, fmt.Sprintf("%d", ww.Status())).Inc()
		httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		zap.L().Debug("server: request",
			zap.String("route", route),
			zap.String("method", r.Method),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", elapsed),
		)
	})
}
