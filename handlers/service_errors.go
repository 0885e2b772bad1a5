package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/electria-gateway/services"
	"github.com/upb/electria-gateway/services/routing"
	"github.com/upb/electria-gateway/utils"
)

// HandleServiceError maps domain errors to HTTP responses.
// Failure reports are reduced to provider and error kind.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	HandleServiceErrorWithDiagnostics(w, err, logger, false)
}

// HandleServiceErrorWithDiagnostics is HandleServiceError, keeping the truncated
// upstream detail of each failed attempt when diagnostics is true
func HandleServiceErrorWithDiagnostics(w http.ResponseWriter, err error, logger *zap.Logger, diagnostics bool) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)

	// Map error type to HTTP status and response
	switch {
	case services.IsValidationError(err):
		if err := utils.WriteBadRequest(w, messageOf(err), details); err != nil {
			logger.Error("failed to write bad request response", zap.Error(err))
		}

	case services.IsUnavailableError(err):
		if err := utils.WriteServiceUnavailable(w, "", unavailableDetails(details, diagnostics)); err != nil {
			logger.Error("failed to write service unavailable response", zap.Error(err))
		}

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An internal error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}

	default:
		// Unknown error type - log and return internal error
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		if err := utils.WriteInternalServerError(w, "An unexpected error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	// Generic validation error
	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

func messageOf(err error) string {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return err.Error()
}

// unavailableDetails copies the public parts of an unavailable error's details
func unavailableDetails(details map[string]interface{}, diagnostics bool) map[string]interface{} {
	out := map[string]interface{}{
		"attempts": routing.FailureReport{},
	}
	if id, ok := details["request_id"]; ok {
		out["request_id"] = id
	}
	if report, ok := details["attempts"].(routing.FailureReport); ok && report != nil {
		if diagnostics {
			out["attempts"] = report
		} else {
			out["attempts"] = report.Redacted()
		}
	}
	return out
}
