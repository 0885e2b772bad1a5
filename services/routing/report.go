package routing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/upb/electria-gateway/services/providers"
)

// ErrUnavailable matches every *UnavailableError via errors.Is
var ErrUnavailable = errors.New("service temporarily unavailable")

// AttemptFailure is one failed provider attempt
type AttemptFailure struct {
	Provider   string              `json:"provider"`
	Kind       providers.ErrorKind `json:"error_kind"`
	StatusCode int                 `json:"status_code,omitempty"`
	Detail     string              `json:"detail,omitempty"`
}

// Label returns the error kind, qualified with the status code for upstream errors
func (f AttemptFailure) Label() string {
	if f.Kind == providers.ErrorUpstream && f.StatusCode != 0 {
		return fmt.Sprintf("%s(%d)", f.Kind, f.StatusCode)
	}
	return string(f.Kind)
}

// NewAttemptFailure builds a report entry from a failed attempt; the detail is truncated
func NewAttemptFailure(err *providers.ProviderError) AttemptFailure {
	detail := err.Message
	if err.Cause != nil {
		detail += ": " + err.Cause.Error()
	}
	return AttemptFailure{
		Provider:   err.Provider,
		Kind:       err.Kind,
		StatusCode: err.StatusCode,
		Detail:     providers.Preview([]byte(detail)),
	}
}

// FailureReport is the ordered list of failed attempts of one orchestration pass
type FailureReport []AttemptFailure

// Len returns the number of failed attempts
func (r FailureReport) Len() int {
	return len(r)
}

// Providers returns the provider names in report order
func (r FailureReport) Providers() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Provider
	}
	return names
}

// Redacted returns a copy without details, suitable for callers that did not ask for diagnostics
func (r FailureReport) Redacted() FailureReport {
	out := make(FailureReport, len(r))
	for i, f := range r {
		f.Detail = ""
		out[i] = f
	}
	return out
}

// String renders "provider=label" pairs
func (r FailureReport) String() string {
	parts := make([]string, len(r))
	for i, f := range r {
		parts[i] = f.Provider + "=" + f.Label()
	}
	return strings.Join(parts, ", ")
}

// UnavailableError is returned when every provider failed and the request kind has no fallback,
// or when the caller's context ended first. Report holds the attempts that failed before then.
type UnavailableError struct {
	ID     string
	Kind   providers.RequestKind
	Report FailureReport

	// Cause is the context error of an abandoned pass, nil when the pass ran to the end
	Cause error
}

// Error implements the error interface
func (e *UnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: pass abandoned after %d failed attempts: %v", ErrUnavailable, e.Kind, len(e.Report), e.Cause)
	}
	if len(e.Report) == 0 {
		return fmt.Sprintf("%s: %s: no providers configured", ErrUnavailable, e.Kind)
	}
	return fmt.Sprintf("%s: %s: all providers failed [%s]", ErrUnavailable, e.Kind, e.Report)
}

// Is reports whether target is ErrUnavailable
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Unwrap returns the context error of an abandoned pass
func (e *UnavailableError) Unwrap() error {
	return e.Cause
}

// AsUnavailable extracts an *UnavailableError from err
func AsUnavailable(err error) (*UnavailableError, bool) {
	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		return unavailable, true
	}
	return nil, false
}
