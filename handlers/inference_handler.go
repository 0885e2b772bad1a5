package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/electria-gateway/middleware"
	"github.com/upb/electria-gateway/services/inference"
	"github.com/upb/electria-gateway/services/providers/gemini"
	"github.com/upb/electria-gateway/services/routing"
	"github.com/upb/electria-gateway/utils"
)

const maxRequestBodyBytes = 1 << 20

// GenerateContentRequest accepts either a flat prompt or the Gemini contents schema
type GenerateContentRequest struct {
	Prompt   string           `json:"prompt,omitempty"`
	Contents []gemini.Content `json:"contents,omitempty"`
}

// PromptText returns the flat prompt, or the text of the first content part
func (r GenerateContentRequest) PromptText() string {
	if r.Prompt != "" {
		return r.Prompt
	}
	return (&gemini.GenerateContentRequest{Contents: r.Contents}).Prompt()
}

// generateParams is the validated form of a generate request
type generateParams struct {
	Prompt string `json:"prompt" validate:"required"`
}

// rateParams are the validated inputs of the rate endpoints
type rateParams struct {
	Instrument string `json:"instrument" validate:"omitempty,max=32"`
}

// GenerateContentResponse is the canonical answer plus the Gemini candidates envelope
type GenerateContentResponse struct {
	Text       string                `json:"text"`
	Provider   string                `json:"provider"`
	Model      string                `json:"model,omitempty"`
	RequestID  string                `json:"request_id"`
	Candidates []gemini.Candidate    `json:"candidates"`
	Attempts   routing.FailureReport `json:"attempts,omitempty"`
}

// RateBody is the flat rate body read by the front-end
type RateBody struct {
	Rate      float64 `json:"rate"`
	UpdatedAt string  `json:"updated_at"`
	Source    string  `json:"source"`
}

// InferenceService defines the caller-facing operations
type InferenceService interface {
	// GenerateText answers a prompt through the first text provider that succeeds
	GenerateText(ctx context.Context, prompt string) (*inference.TextResponse, error)

	// FetchRate returns the rate of instrument, or a fallback value
	FetchRate(ctx context.Context, instrument string) (*inference.RateResponse, error)
}

// InferenceHandler handles generate-content and rate HTTP requests
type InferenceHandler struct {
	service InferenceService
	logger  *zap.Logger
}

// NewInferenceHandler creates a new InferenceHandler
func NewInferenceHandler(service InferenceService, logger *zap.Logger) *InferenceHandler {
	return &InferenceHandler{
		service: service,
		logger:  logger,
	}
}

// HandleGenerateContent handles POST /generate-content
func (h *InferenceHandler) HandleGenerateContent(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.generate(w, r)
	if !ok {
		return
	}

	body := GenerateContentResponse{
		Text:       resp.Text,
		Provider:   resp.Provider,
		Model:      resp.Model,
		RequestID:  resp.RequestID,
		Candidates: gemini.NewGenerateContentResponse(resp.Text).Candidates,
		Attempts:   h.report(r, resp.Attempts),
	}
	if err := utils.WriteJSON(w, http.StatusOK, body); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleGenerate handles POST /api/v1/generate
func (h *InferenceHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.generate(w, r)
	if !ok {
		return
	}

	resp.Attempts = h.report(r, resp.Attempts)
	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

func (h *InferenceHandler) generate(w http.ResponseWriter, r *http.Request) (*inference.TextResponse, bool) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	diagnostics, err := diagnosticsRequested(r)
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return nil, false
	}

	var req GenerateContentRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes)).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return nil, false
	}

	params := generateParams{Prompt: req.PromptText()}
	if err := utils.ValidateStruct(&params); err != nil {
		HandleValidationError(w, err, h.logger)
		return nil, false
	}

	resp, err := h.service.GenerateText(ctx, params.Prompt)
	if err != nil {
		h.logger.Warn("generate content failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceErrorWithDiagnostics(w, err, h.logger, diagnostics)
		return nil, false
	}

	h.logger.Info("generate content successful",
		zap.String("request_id", requestID),
		zap.String("orchestration_id", resp.RequestID),
		zap.String("provider", resp.Provider),
		zap.Int("failed_attempts", resp.Attempts.Len()),
		zap.Int64("latency_ms", resp.LatencyMs))

	return resp, true
}

// HandleRate handles GET /api/bcv?instrument=
func (h *InferenceHandler) HandleRate(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.fetchRate(w, r, r.URL.Query().Get("instrument"))
	if !ok {
		return
	}

	rate, _ := resp.Rate.Float64()
	body := RateBody{
		Rate:      rate,
		UpdatedAt: resp.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		Source:    resp.Source,
	}
	if err := utils.WriteJSON(w, http.StatusOK, body); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// HandleRateByInstrument handles GET /api/v1/rates/{instrument}
func (h *InferenceHandler) HandleRateByInstrument(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.fetchRate(w, r, chi.URLParam(r, "instrument"))
	if !ok {
		return
	}

	resp.Attempts = h.report(r, resp.Attempts)
	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

func (h *InferenceHandler) fetchRate(w http.ResponseWriter, r *http.Request, instrument string) (*inference.RateResponse, bool) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	diagnostics, err := diagnosticsRequested(r)
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return nil, false
	}

	params := rateParams{Instrument: instrument}
	if err := utils.ValidateStruct(&params); err != nil {
		HandleValidationError(w, err, h.logger)
		return nil, false
	}

	resp, err := h.service.FetchRate(ctx, params.Instrument)
	if err != nil {
		h.logger.Warn("fetch rate failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceErrorWithDiagnostics(w, err, h.logger, diagnostics)
		return nil, false
	}

	if resp.Fallback {
		h.logger.Warn("serving fallback rate",
			zap.String("request_id", requestID),
			zap.String("instrument", resp.Instrument),
			zap.String("report", resp.Attempts.String()))
	}

	return resp, true
}

// report hides upstream details unless the caller asked for diagnostics
func (h *InferenceHandler) report(r *http.Request, report routing.FailureReport) routing.FailureReport {
	if diagnostics, _ := diagnosticsRequested(r); diagnostics {
		return report
	}
	if len(report) == 0 {
		return nil
	}
	return report.Redacted()
}

var errInvalidDiagnostics = errors.New("diagnostics must be a boolean")

func diagnosticsRequested(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("diagnostics")
	if raw == "" {
		return false, nil
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errInvalidDiagnostics
	}
	return enabled, nil
}
