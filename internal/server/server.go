// Package server exposes the record store over HTTP.
//
// Routes:
//
//	GET  /files                  record store files
//	GET  /rows/stream            NDJSON rows by index range
//	GET  /rows/stream_time       NDJSON rows by time window
//	GET  /rows/:index            one row by global index
//	GET  /bounds                 timestamp (kind=time) or position (kind=geo) bounds
//	GET  /heatmap                position density of a time window
//	GET  /unique-vessels         distinct vessel count of a time window
//	GET  /vessel-ids             distinct vessel ids of a time window
//	POST /unique-vessels-multi   NDJSON distinct vessel counts per file
//	GET  /healthz                liveness
//	GET  /metrics                Prometheus metrics
//
// Every record in a response has been sanitized by the query engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed1916/marine-anomaly/internal/analytics"
	"github.com/mohammed1916/marine-anomaly/internal/config"
	"github.com/mohammed1916/marine-anomaly/internal/logging"
	"github.com/mohammed1916/marine-anomaly/internal/query"
)

// Server is the HTTP serving layer.
type Server struct {
	cfg          config.ServerConfig
	dataDir      string
	queryTimeout time.Duration

	engine    *query.Engine
	analytics *analytics.Service
	cache     *ResultCache
	router    *gin.Engine
	log       *slog.Logger
}

// New creates a server over the record store of cfg. svc may be nil, in
// which case the analytics routes respond 503.
func New(cfg *config.Config, svc *analytics.Service) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:          cfg.Server,
		dataDir:      cfg.DataDir,
		queryTimeout: cfg.Query.Timeout,
		engine:       query.New(),
		analytics:    svc,
		cache:        NewResultCache("results", cfg.Server.CacheSize, cfg.Server.CacheTTL),
		log:          logging.Component("server"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.observe(), s.cors())

	r.GET("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/files", s.handleFiles)
	r.GET("/rows/stream", s.handleStreamRows)
	r.GET("/rows/stream_time", s.handleStreamTime)
	r.GET("/rows/:index", s.handleRow)
	r.GET("/bounds", s.handleBounds)
	r.GET("/heatmap", s.handleHeatmap)
	r.GET("/unique-vessels", s.handleUniqueVessels)
	r.GET("/vessel-ids", s.handleVesselIDs)
	r.POST("/unique-vessels-multi", s.handleUniqueVesselsMulti)
	return r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Cache returns the result cache.
func (s *Server) Cache() *ResultCache {
	return s.cache
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "address", ln.Addr().String(), "data_dir", s.dataDir)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	<-errCh
	s.log.Info("shutdown complete")
	return nil
}
