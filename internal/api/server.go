// Package api provides the HTTP API server and handlers for the Inkwell
// library.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/inkwellapp/inkwell-server/internal/export"
	"github.com/inkwellapp/inkwell-server/internal/http/response"
	"github.com/inkwellapp/inkwell-server/internal/ratelimit"
	"github.com/inkwellapp/inkwell-server/internal/service"
	"github.com/inkwellapp/inkwell-server/internal/sse"
	"github.com/inkwellapp/inkwell-server/internal/store"
	"github.com/inkwellapp/inkwell-server/internal/validation"
)

// maxImportSize caps an uploaded EPUB payload at 256 MiB.
const maxImportSize = 256 << 20

// Server holds dependencies for HTTP handlers.
type Server struct {
	store      *store.Store
	library    *service.LibraryService
	index      *service.IndexService
	search     *service.SearchService
	events     *sse.Manager
	sseHandler *sse.Handler
	exporter   *export.Exporter
	validator  *validation.Validator
	limiter    *ratelimit.KeyedRateLimiter
	router     *chi.Mux
	logger     *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(st *store.Store, library *service.LibraryService, index *service.IndexService, search *service.SearchService, events *sse.Manager, logger *slog.Logger) *Server {
	s := &Server{
		store:      st,
		library:    library,
		index:      index,
		search:     search,
		events:     events,
		sseHandler: sse.NewHandler(events, logger),
		exporter:   export.New(st),
		validator:  validation.New(),
		limiter:    ratelimit.New(20, 40), // 20 rps steady, bursts of 40
		router:     chi.NewRouter(),
		logger:     logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases handler-owned resources.
func (s *Server) Close() {
	s.limiter.Stop()
}

// setupMiddleware configures the middleware stack. The browser front end
// is a first-class client, so CORS is part of the base stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	s.router.Use(s.rateLimit)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// Health check.
	s.router.Get("/health", s.handleHealthCheck)

	// API v1.
	s.router.Route("/api/v1", func(r chi.Router) {
		// The event stream and the library export are long-lived, so
		// they stay outside the request timeout applied to the rest of
		// the API.
		r.Get("/events", s.sseHandler.ServeHTTP)
		r.Get("/export", s.handleExportLibrary)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/books", func(r chi.Router) {
				r.Post("/", s.handleImportBook)
				r.Get("/", s.handleListBooks)
				r.Get("/trash", s.handleListTrash)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetBook)
					r.Delete("/", s.handleTrashBook)
					r.Post("/restore", s.handleRestoreBook)
					r.Delete("/purge", s.handlePurgeBook)
					r.Patch("/progress", s.handleUpdateProgress)
					r.Put("/favorite", s.handleSetFavorite)

					r.Post("/highlights", s.handleAddHighlight)
					r.Patch("/highlights/{highlightID}", s.handleUpdateHighlightNote)
					r.Delete("/highlights/{highlightID}", s.handleRemoveHighlight)

					r.Post("/bookmarks", s.handleAddBookmark)
					r.Delete("/bookmarks/{bookmarkID}", s.handleRemoveBookmark)

					r.Get("/search", s.handleSearchBook)
				})
			})

			r.Get("/search", s.handleSearch)
			r.Post("/index/rebuild", s.handleRebuildIndex)
		})
	})
}

// rateLimit enforces the per-IP request budget. 429 on excess.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// RealIP middleware already resolved forwarded headers.
		key := r.RemoteAddr
		if !s.limiter.Allow(key) {
			s.logger.Warn("Rate limit exceeded",
				"ip", key,
				"path", r.URL.Path,
			)
			response.Error(w, http.StatusTooManyRequests, "Too many requests. Please try again later.", s.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}
