// internal/server/server.go

package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"regionalert/internal/adapter/stream"
	"regionalert/internal/config"
	"regionalert/internal/domain/geo"
	"regionalert/internal/server/handlers"
	"regionalert/internal/server/middleware"
)

// Services groups what the HTTP layer exposes
type Services struct {
	Alerts    handlers.AlertService
	Locations handlers.LocationService
	Geo       geo.Service
	Bus       stream.Bus
	Checks    map[string]handlers.Check
}

// Server represents the HTTP server
type Server struct {
	server  *http.Server
	router  *chi.Mux
	limiter *middleware.RateLimiter
	logger  *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, services Services, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := chi.NewRouter()
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 3*time.Minute, logger)

	// Middleware
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.RequestLogger(logger))
	router.Use(chimw.Recoverer)

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Create handler dependencies
	validate := handlers.NewValidator()
	alertHandler := handlers.NewAlertHandler(services.Alerts, validate, logger)
	locationHandler := handlers.NewLocationHandler(services.Locations, validate, logger)
	geoHandler := handlers.NewGeoHandler(services.Geo, logger)
	healthHandler := handlers.NewHealthHandler(services.Checks, 2*time.Second, logger)
	streamHandler := handlers.NewAlertStreamHandler(
		services.Bus,
		services.Alerts,
		services.Locations,
		handlers.DefaultWebSocketConfig(),
		originChecker(cfg.CorsOrigins),
		logger,
	)

	// Probes and metrics
	router.Get("/healthz", healthHandler.Liveness)
	router.Get("/readyz", healthHandler.Readiness)
	router.Handle("/metrics", promhttp.Handler())

	// API version
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(limiter.Handler)
		r.Use(chimw.Timeout(30 * time.Second))

		// Locations API
		r.Route("/locations/{userID}", func(r chi.Router) {
			r.Put("/", locationHandler.UpdateLocation)
			r.Get("/", locationHandler.GetLocation)
		})

		// Geo API
		r.Route("/geo", func(r chi.Router) {
			r.Get("/classify", geoHandler.ClassifyRegion)
			r.Get("/nearest", geoHandler.NearestPlace)
			r.Get("/distance", geoHandler.Distance)
			r.Get("/within-country", geoHandler.WithinCountry)
		})

		// Alerts API
		r.Route("/alerts", func(r chi.Router) {
			r.Post("/", alertHandler.CreateAlert)
			r.Get("/nearby", alertHandler.ListNearby)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", alertHandler.GetAlert)
				r.Post("/responses", alertHandler.RecordResponse)
				r.Post("/expire", alertHandler.ExpireAlert)
				r.Get("/coordination", alertHandler.GetCoordination)
			})
		})
	})

	// WebSocket endpoint for real-time alerts
	router.With(limiter.Handler).Get("/ws/alerts", streamHandler.ServeHTTP)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		server:  httpServer,
		router:  router,
		limiter: limiter,
		logger:  logger,
	}
}

// originChecker accepts WebSocket upgrades from the configured CORS origins.
func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return nil
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

// ServeHTTP delegates to the router, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server and the rate limiter housekeeping.
// It returns http.ErrServerClosed after Shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	go s.limiter.Run(ctx, time.Minute)

	s.logger.Info("http server starting", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
