// Package server provides the HTTP API for libris.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/libris/internal/blob"
	"github.com/hyperjump/libris/internal/config"
	"github.com/hyperjump/libris/internal/ingest"
	"github.com/hyperjump/libris/internal/ratelimit"
	"github.com/hyperjump/libris/internal/search"
	"github.com/hyperjump/libris/internal/storage"
)

// Uploads may carry a cover alongside the PDF; this is the allowance on top of
// the configured PDF size limit.
const coverAllowance int64 = 10 << 20

// Ingester runs one book upload through the ingestion pipeline.
type Ingester interface {
	Ingest(ctx context.Context, req *ingest.Request) (*ingest.Result, error)
}

// Deps are the services the handlers call.
type Deps struct {
	Ingester Ingester
	Library  *ingest.Library
	Store    storage.Storage
	Blobs    blob.Store
	// Index is nil when search is disabled.
	Index   *search.Index
	Limiter *ratelimit.KeyedRateLimiter
}

// Server is the HTTP server for the libris API.
type Server struct {
	ingester Ingester
	library  *ingest.Library
	store    storage.Storage
	blobs    blob.Store
	index    *search.Index
	engine   *search.Engine
	limiter  *ratelimit.KeyedRateLimiter
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(deps Deps, cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ingester: deps.Ingester,
		library:  deps.Library,
		store:    deps.Store,
		blobs:    deps.Blobs,
		index:    deps.Index,
		limiter:  deps.Limiter,
		config:   cfg,
		logger:   logger,
	}
	if deps.Index != nil {
		s.engine = search.NewEngine(deps.Index)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	if len(s.config.Server.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.Server.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", s.config.Auth.OwnerHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Get("/blobs/*", s.handleBlob)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Compress(5, "application/json"))
		r.Get("/slug", s.handleSlug)
		r.Get("/status", s.handleStatus)

		r.Group(func(r chi.Router) {
			r.Use(s.requireOwner)
			r.With(s.rateLimit).Post("/books", s.handleUpload)
			r.Get("/books", s.handleListBooks)
			r.Get("/books/exists", s.handleBookExists)
			r.Get("/books/{slug}", s.handleGetBook)
			r.Get("/books/{slug}/segments", s.handleGetSegments)
			r.Delete("/books/{slug}", s.handleDeleteBook)
			r.Get("/search", s.handleSearch)
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
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

func (s *Server) maxUploadBytes() int64 {
	limit := s.config.Ingest.MaxFileSize
	if limit <= 0 {
		limit = ingest.DefaultMaxFileSize
	}
	return limit + coverAllowance
}
