// Package api serves the live key/value store and its snapshots over HTTP.
//
// All routes under /api/v1 require an X-API-Key header when an API key is
// configured. /metrics is left open for scraping.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// NewRouter builds the HTTP routes for s. gatherer backs /metrics, nil uses
// the default gatherer.
func NewRouter(s *Server, gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	metrics := s.metrics

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(metrics.InstrumentAuthMiddleware(requireAPIKey(s.config.APIKey)))

		r.Get("/health", metrics.InstrumentHandler("GET", "/api/v1/health", s.handleHealth))

		// KV operations
		r.Get("/kv", metrics.InstrumentHandler("GET", "/api/v1/kv", s.handleListKeys))
		r.Get("/kv/{key}", metrics.InstrumentHandler("GET", "/api/v1/kv/{key}", s.handleGet))
		r.Put("/kv/{key}", metrics.InstrumentHandler("PUT", "/api/v1/kv/{key}", s.handlePut))
		r.Delete("/kv/{key}", metrics.InstrumentHandler("DELETE", "/api/v1/kv/{key}", s.handleDelete))
		r.Post("/kv/{key}/incr", metrics.InstrumentHandler("POST", "/api/v1/kv/{key}/incr", s.handleIncr))

		// Snapshots
		r.Post("/snapshot", metrics.InstrumentHandler("POST", "/api/v1/snapshot", s.handleSaveSnapshot))
		r.Get("/snapshot", metrics.InstrumentHandler("GET", "/api/v1/snapshot", s.handleDownloadSnapshot))
		r.Put("/snapshot", metrics.InstrumentHandler("PUT", "/api/v1/snapshot", s.handleRestoreSnapshot))
		r.Get("/archive", metrics.InstrumentHandler("GET", "/api/v1/archive", s.handleListArchive))

		r.Get("/stats", metrics.InstrumentHandler("GET", "/api/v1/stats", s.handleStats))
	})

	return r
}

// requestLogger logs one line per request through logrus
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("request handled")
		})
	}
}

// Start serves the API until ctx is done, then shuts the listener down
// gracefully. The store gauges are refreshed in the background while the
// server runs.
func (s *Server) Start(ctx context.Context, gatherer prometheus.Gatherer) error {
	addr := fmt.Sprintf("%s:%d", s.config.Bind, s.config.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(s, gatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.startMetricsUpdater(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("starting kvsnap api server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	s.log.Info("shutting down api server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}

// RunSnapshotLoop saves a snapshot every interval until ctx is done, then
// writes one final snapshot. The returned channel is closed once the final
// save has finished.
func (s *Server) RunSnapshotLoop(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)
		var tick <-chan time.Time
		if interval > 0 {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-ctx.Done():
				if _, err := s.SaveSnapshot(context.Background()); err != nil {
					s.log.WithError(err).Error("final snapshot failed")
				}
				return
			case <-tick:
				if _, err := s.SaveSnapshot(ctx); err != nil && ctx.Err() == nil {
					s.log.WithError(err).Error("periodic snapshot failed")
				}
			}
		}
	}()
	return done
}
