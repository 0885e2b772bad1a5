package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// FallbackSource marks a result produced by a fallback resolver instead of a real provider
	FallbackSource = "fallback"

	// DefaultInstrument is the rate instrument used when a request names none
	DefaultInstrument = "oficial"
)

// RequestKind identifies the canonical operation a request or result belongs to
type RequestKind string

const (
	// KindGenerateText asks a model provider for free-form text
	KindGenerateText RequestKind = "generate_text"

	// KindFetchRate asks a data source for an exchange rate
	KindFetchRate RequestKind = "fetch_rate"
)

// Adapter translates canonical requests into one external provider's wire format and back.
// Implementations must be safe for concurrent use and must not mutate shared state.
type Adapter interface {
	// Name returns the provider name (e.g., "gemini-1.5-flash", "dolarapi")
	Name() string

	// Kind returns the only request kind this adapter accepts
	Kind() RequestKind

	// Invoke issues exactly one upstream call. A nil error means the returned
	// result was fully parsed; any failure is returned as a *ProviderError.
	Invoke(ctx context.Context, req *Request) (*Result, error)
}

// Request is the canonical request. It is immutable once constructed;
// use NewGenerateTextRequest or NewFetchRateRequest.
type Request struct {
	kind       RequestKind
	prompt     string
	instrument string
}

// NewGenerateTextRequest creates a text generation request
func NewGenerateTextRequest(prompt string) *Request {
	return &Request{kind: KindGenerateText, prompt: prompt}
}

// NewFetchRateRequest creates an exchange rate request for the given instrument
func NewFetchRateRequest(instrument string) *Request {
	return &Request{kind: KindFetchRate, instrument: NormalizeInstrument(instrument)}
}

// NormalizeInstrument lower-cases instrument and substitutes DefaultInstrument for blanks
func NormalizeInstrument(instrument string) string {
	instrument = strings.ToLower(strings.TrimSpace(instrument))
	if instrument == "" {
		return DefaultInstrument
	}
	return instrument
}

// Kind returns the request kind
func (r *Request) Kind() RequestKind {
	return r.kind
}

// Prompt returns the prompt of a text generation request
func (r *Request) Prompt() string {
	return r.prompt
}

// Instrument returns the instrument of a rate request
func (r *Request) Instrument() string {
	return r.instrument
}

// Result is the normalized result. Exactly one of Text or Rate is set, matching Kind.
type Result struct {
	// Kind mirrors the request kind
	Kind RequestKind `json:"kind"`

	// Provider that produced the result, or FallbackSource
	Provider string `json:"provider"`

	// Text is set for KindGenerateText
	Text *TextResult `json:"text,omitempty"`

	// Rate is set for KindFetchRate
	Rate *RateResult `json:"rate,omitempty"`
}

// TextResult is the canonical result of a text generation request
type TextResult struct {
	Text         string `json:"text"`
	Model        string `json:"model,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// RateResult is the canonical result of an exchange rate request
type RateResult struct {
	Instrument string          `json:"instrument"`
	Rate       decimal.Decimal `json:"rate"`
	Source     string          `json:"source"`
	ObservedAt time.Time       `json:"observed_at"`
}

// NewTextResult wraps a text result produced by provider
func NewTextResult(provider string, text TextResult) *Result {
	return &Result{Kind: KindGenerateText, Provider: provider, Text: &text}
}

// NewRateResult wraps a rate result produced by provider
func NewRateResult(provider string, rate RateResult) *Result {
	return &Result{Kind: KindFetchRate, Provider: provider, Rate: &rate}
}

// IsFallback reports whether the result came from a fallback resolver
func (r *Result) IsFallback() bool {
	if r == nil {
		return false
	}
	if r.Provider == FallbackSource {
		return true
	}
	return r.Rate != nil && r.Rate.Source == FallbackSource
}

// Validate checks that the result carries exactly the payload its kind requires
func (r *Result) Validate() error {
	switch r.Kind {
	case KindGenerateText:
		if r.Text == nil || r.Rate != nil {
			return fmt.Errorf("text result must carry only a text payload")
		}
	case KindFetchRate:
		if r.Rate == nil || r.Text != nil {
			return fmt.Errorf("rate result must carry only a rate payload")
		}
	default:
		return fmt.Errorf("unknown result kind %q", r.Kind)
	}
	return nil
}

// Outcome is the result of a single adapter invocation. Exactly one of Result and Err is set.
type Outcome struct {
	Provider string
	Result   *Result
	Err      *ProviderError
	Duration time.Duration
}

// Succeeded reports whether the attempt produced a result
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Result != nil
}

// Invoke calls adapter and folds its return values into an Outcome.
// Untyped errors are classified, and a nil result without an error counts as malformed.
func Invoke(ctx context.Context, adapter Adapter, req *Request) Outcome {
	MustMatchKind(adapter, req)

	start := time.Now()
	result, err := adapter.Invoke(ctx, req)
	outcome := Outcome{Provider: adapter.Name(), Duration: time.Since(start)}

	switch {
	case err != nil:
		outcome.Err = AsProviderError(adapter.Name(), err)
	case result == nil:
		outcome.Err = NewProviderError(adapter.Name(), ErrorMalformedResponse, 0, "adapter returned no result", nil)
	case result.Kind != req.Kind():
		outcome.Err = NewProviderError(adapter.Name(), ErrorMalformedResponse, 0,
			fmt.Sprintf("adapter returned %s result for %s request", result.Kind, req.Kind()), nil)
	default:
		if verr := result.Validate(); verr != nil {
			outcome.Err = NewProviderError(adapter.Name(), ErrorMalformedResponse, 0, verr.Error(), nil)
		} else {
			outcome.Result = result
		}
	}

	return outcome
}

// MustMatchKind panics when req is not of the adapter's declared kind.
// Registries never hand out such pairs, so a mismatch is a wiring bug.
func MustMatchKind(adapter Adapter, req *Request) {
	if req == nil {
		panic(fmt.Sprintf("providers: nil request passed to adapter %s", adapter.Name()))
	}
	if req.Kind() != adapter.Kind() {
		panic(fmt.Sprintf("providers: adapter %s accepts %s requests, got %s", adapter.Name(), adapter.Kind(), req.Kind()))
	}
}
