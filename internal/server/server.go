// Package server provides the HTTP server and routing for ibfolio.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/dchernov/ibfolio/internal/clients/ibgateway"
	"github.com/dchernov/ibfolio/internal/config"
	"github.com/dchernov/ibfolio/internal/database"
	"github.com/dchernov/ibfolio/internal/modules/auth"
	gatewayhandlers "github.com/dchernov/ibfolio/internal/modules/gateway/handlers"
	"github.com/dchernov/ibfolio/internal/modules/snapshot"
	snapshothandlers "github.com/dchernov/ibfolio/internal/modules/snapshot/handlers"
)

// Config holds server configuration
type Config struct {
	Log             zerolog.Logger
	Config          *config.Config
	DB              *database.DB
	GatewayClient   *ibgateway.Client
	SnapshotService *snapshot.Service
	AuthStore       *auth.TokenStore
	Port            int
	DevMode         bool
}

// Server represents the HTTP server
type Server struct {
	router          *chi.Mux
	server          *http.Server
	log             zerolog.Logger
	cfg             *config.Config
	db              *database.DB
	gatewayClient   *ibgateway.Client
	snapshotService *snapshot.Service
	authStore       *auth.TokenStore
	systemHandlers  *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:          chi.NewRouter(),
		log:             cfg.Log.With().Str("component", "server").Logger(),
		cfg:             cfg.Config,
		db:              cfg.DB,
		gatewayClient:   cfg.GatewayClient,
		snapshotService: cfg.SnapshotService,
		authStore:       cfg.AuthStore,
		systemHandlers:  NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.DB),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
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
		AllowedOrigins:   []string{"*"},
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
	// Health check (unauthenticated)
	s.router.Get("/health", s.handleHealth)

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		// Mutating requests require a valid token when auth is configured
		r.Use(auth.RequireForMutations(s.authStore))

		if s.authStore != nil {
			authHandler := auth.NewHandler(s.authStore, s.cfg.AuthUsername, s.cfg.AuthPassword, s.log)
			authHandler.RegisterRoutes(r)
		}

		snapshotHandler := snapshothandlers.NewHandler(s.snapshotService, s.log)
		snapshotHandler.RegisterRoutes(r)

		gatewayHandler := gatewayhandlers.NewHandler(s.gatewayClient, s.log)
		gatewayHandler.RegisterRoutes(r)

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Get("/database/stats", s.systemHandlers.HandleDatabaseStats)
			r.Get("/disk", s.systemHandlers.HandleDiskUsage)
		})
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

// Router exposes the router for tests
func (s *Server) Router() http.Handler {
	return s.router
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
