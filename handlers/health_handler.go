package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/electria-gateway/services/providers"
	"github.com/upb/electria-gateway/utils"
)

const (
	statusOperational = "operational"
	statusDegraded    = "degraded"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// AIHealthResponse reports the configured providers with redacted credentials
type AIHealthResponse struct {
	Status    string                     `json:"status"`
	Timestamp string                     `json:"timestamp"`
	Strategy  string                     `json:"strategy"`
	Providers []providers.ProviderStatus `json:"providers"`
}

// StatusResponse describes the running gateway
type StatusResponse struct {
	Version     string                     `json:"version"`
	Environment string                     `json:"environment"`
	Strategy    string                     `json:"strategy"`
	Providers   []providers.ProviderStatus `json:"providers"`
}

// ProviderStatusSource lists registered providers
type ProviderStatusSource interface {
	Status() []providers.ProviderStatus
	Count(kind providers.RequestKind) int
}

// Pinger checks a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuildInfo identifies the running gateway
type BuildInfo struct {
	Version     string
	Environment string
	Strategy    string
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	registry ProviderStatusSource
	cache    Pinger
	info     BuildInfo
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. cache may be nil when no rate cache is configured.
func NewHealthHandler(registry ProviderStatusSource, cache Pinger, info BuildInfo, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		registry: registry,
		cache:    cache,
		info:     info,
		logger:   logger,
	}
}

// HandleHealth handles GET /health
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /health/ready
// Ready means at least one text provider is enabled and the rate cache, when configured, answers
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.cache == nil {
		checks["rate_cache"] = "not_configured"
	} else if err := h.cache.Ping(ctx); err != nil {
		h.logger.Warn("rate cache health check failed", zap.Error(err))
		checks["rate_cache"] = "unhealthy"
		allHealthy = false
	} else {
		checks["rate_cache"] = "healthy"
	}

	if h.registry.Count(providers.KindGenerateText) == 0 {
		checks["text_providers"] = "none_configured"
		allHealthy = false
	} else {
		checks["text_providers"] = "configured"
	}

	// Rates always have the fallback value
	if h.registry.Count(providers.KindFetchRate) == 0 {
		checks["rate_providers"] = "fallback_only"
	} else {
		checks["rate_providers"] = "configured"
	}

	// Determine overall status
	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

// HandleAIHealth handles GET /health/ai
func (h *HealthHandler) HandleAIHealth(w http.ResponseWriter, r *http.Request) {
	status := statusDegraded
	if h.registry.Count(providers.KindGenerateText) > 0 {
		status = statusOperational
	}

	response := AIHealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Strategy:  h.info.Strategy,
		Providers: h.registry.Status(),
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write ai health response", zap.Error(err))
	}
}

// HandleStatus handles GET /api/v1/status
func (h *HealthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Version:     h.info.Version,
		Environment: h.info.Environment,
		Strategy:    h.info.Strategy,
		Providers:   h.registry.Status(),
	}

	if err := utils.WriteOK(w, response); err != nil {
		h.logger.Error("failed to write status response", zap.Error(err))
	}
}
