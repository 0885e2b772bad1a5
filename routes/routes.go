package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/electria-gateway/app"
	"github.com/upb/electria-gateway/middleware"
	"github.com/upb/electria-gateway/utils"
)

const defaultRequestTimeout = 90 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	requests := middleware.NewRequestMiddleware(deps.Logger)

	// Core middleware
	r.Use(requests.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requests.AccessLog)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(requestTimeout(deps)))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(deps),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	health := deps.HealthHandler
	inference := deps.InferenceHandler

	// Health check endpoints
	r.Get("/health", health.HandleHealth)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/health/ready", health.HandleReadiness)
	r.Get("/readyz", health.HandleReadiness)
	r.Get("/health/ai", health.HandleAIHealth)

	// Front-end endpoints
	r.Post("/generate-content", inference.HandleGenerateContent)
	r.Get("/api/bcv", inference.HandleRate)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", health.HandleStatus)
		r.Post("/generate", inference.HandleGenerate)
		r.Get("/rates/{instrument}", inference.HandleRateByInstrument)
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteMethodNotAllowed(w)
	})

	return r
}

func allowedOrigins(deps *app.Dependencies) []string {
	if deps.Config != nil && len(deps.Config.Server.CORSAllowedOrigins) > 0 {
		return deps.Config.Server.CORSAllowedOrigins
	}
	return []string{"http://localhost:*", "https://*"}
}

// requestTimeout bounds a request by the configured deadline, which covers a full provider chain
func requestTimeout(deps *app.Dependencies) time.Duration {
	if deps.Config != nil {
		if timeout := deps.Config.RequestTimeout(); timeout > 0 {
			return timeout
		}
	}
	return defaultRequestTimeout
}
