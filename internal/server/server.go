// Package server provides the HTTP API for clipsim.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/clipsim/internal/config"
	"github.com/hyperjump/clipsim/internal/fetch"
	"github.com/hyperjump/clipsim/internal/service"
)

// FetchStats reports image cache counters; *fetch.Fetcher satisfies it.
type FetchStats interface {
	Stats() fetch.Stats
}

// Server is the HTTP server for the clipsim API.
type Server struct {
	service *service.Service
	fetch   FetchStats
	config  *config.ServerConfig
	render  config.RenderConfig
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies. fetchStats may be nil.
func NewServer(
	svc *service.Service,
	fetchStats FetchStats,
	cfg *config.ServerConfig,
	renderCfg config.RenderConfig,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		service: svc,
		fetch:   fetchStats,
		config:  cfg,
		render:  renderCfg,
		logger:  logger,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/similarity", s.handleSimilarity)
	r.Route("/api/v1/reports", func(r chi.Router) {
		r.Get("/", s.handleListReports)
		r.Get("/{id}", s.handleGetReport)
		r.Delete("/{id}", s.handleDeleteReport)
		r.Get("/{id}/heatmap.png", s.handleHeatmapPNG)
		r.Get("/{id}/heatmap.xlsx", s.handleHeatmapXLSX)
	})
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
