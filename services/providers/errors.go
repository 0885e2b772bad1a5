package providers

import (
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"
)

// previewLimit bounds upstream bodies copied into error details
const previewLimit = 200

// ErrorKind classifies why a provider attempt failed
type ErrorKind string

const (
	// ErrorNotConfigured means the provider credential is missing
	ErrorNotConfigured ErrorKind = "not_configured"

	// ErrorUnauthorized means the upstream rejected the credential
	ErrorUnauthorized ErrorKind = "unauthorized"

	// ErrorRateLimited means the upstream throttled the request
	ErrorRateLimited ErrorKind = "rate_limited"

	// ErrorUnreachable covers transport failures, timeouts and cancellation
	ErrorUnreachable ErrorKind = "unreachable"

	// ErrorMalformedResponse means the body did not match the expected shape
	ErrorMalformedResponse ErrorKind = "malformed_response"

	// ErrorUpstream is any other unexpected status code
	ErrorUpstream ErrorKind = "upstream_error"

	// ErrorUnavailable is the orchestrator-level outcome when every provider failed
	ErrorUnavailable ErrorKind = "unavailable"
)

// ProviderError represents a failed provider attempt
type ProviderError struct {
	// Provider that generated the error
	Provider string

	// Kind is the failure classification
	Kind ErrorKind

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Message is a short, credential-free description
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", e.Provider, e.Label(), e.Message)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Label returns the error kind, qualified with the status code for upstream errors
func (e *ProviderError) Label() string {
	if e.Kind == ErrorUpstream && e.StatusCode != 0 {
		return fmt.Sprintf("%s(%d)", e.Kind, e.StatusCode)
	}
	return string(e.Kind)
}

// NewProviderError creates a new provider error
func NewProviderError(provider string, kind ErrorKind, statusCode int, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Kind:       kind,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// AsProviderError returns err as a *ProviderError, classifying untyped errors as transport failures
func AsProviderError(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		if provErr.Provider == "" {
			provErr.Provider = provider
		}
		return provErr
	}
	return NewProviderError(provider, ClassifyTransportError(err), 0, "request failed", err)
}

// ClassifyStatus maps a non-success HTTP status code to an error kind
func ClassifyStatus(statusCode int) ErrorKind {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrorUnauthorized
	case http.StatusTooManyRequests:
		return ErrorRateLimited
	default:
		return ErrorUpstream
	}
}

// ClassifyTransportError maps an error returned by the HTTP client to an error kind.
// Timeouts, DNS failures, refused connections and cancellation are all unreachable.
func ClassifyTransportError(err error) ErrorKind {
	if err == nil {
		return ""
	}
	return ErrorUnreachable
}

// Preview truncates an upstream body for logs and diagnostics
func Preview(body []byte) string {
	if len(body) <= previewLimit {
		return string(body)
	}
	cut := previewLimit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "..."
}
