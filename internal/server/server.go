// Package server provides the HTTP server and routing for Fundament.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/openfund/fundament/internal/clients/schwab"
	"github.com/openfund/fundament/internal/config"
	"github.com/openfund/fundament/internal/database"
	"github.com/openfund/fundament/internal/fundamentals"
	"github.com/openfund/fundament/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log          zerolog.Logger
	Config       *config.Config
	Fundamentals *fundamentals.Service
	Schwab       *schwab.Client
	CacheDB      *database.DB
	Scheduler    *scheduler.Scheduler
	CleanupJob   scheduler.Job
	Port         int
	DevMode      bool
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	fundamentals   *fundamentals.Service
	oauthHandlers  *OAuthHandlers
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		cfg:            cfg.Config,
		fundamentals:   cfg.Fundamentals,
		oauthHandlers:  NewOAuthHandlers(cfg.Schwab, cfg.Config.FrontendURL, cfg.Log),
		systemHandlers: NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.CacheDB, cfg.Scheduler, cfg.CleanupJob),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleRoot)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/financials/{ticker}", s.handleFinancials)
		r.Get("/metrics/{ticker}", s.handleMetrics)
		r.Get("/reference/{ticker}", s.handleReference)

		r.Route("/oauth", func(r chi.Router) {
			r.Get("/connect", s.oauthHandlers.HandleConnect)
			r.Get("/callback", s.oauthHandlers.HandleCallback)
			r.Get("/status", s.oauthHandlers.HandleStatus)
			r.Post("/disconnect", s.oauthHandlers.HandleDisconnect)
			r.Post("/refresh", s.oauthHandlers.HandleRefresh)
			r.Get("/quote/{symbol}", s.oauthHandlers.HandleQuote)
			r.Get("/quotes", s.oauthHandlers.HandleQuotes)
		})
	})

	s.router.Route("/api/system", func(r chi.Router) {
		r.Get("/status", s.systemHandlers.HandleSystemStatus)
		r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
		r.Get("/jobs", s.systemHandlers.HandleJobsStatus)
		r.Post("/jobs/cache-cleanup", s.systemHandlers.HandleTriggerCacheCleanup)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeDetail writes an error response in the {"detail": ...} shape the
// original API clients expect.
func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
