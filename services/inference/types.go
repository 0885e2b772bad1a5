package inference

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/upb/electria-gateway/services/routing"
)

// DefaultMaxPromptLength bounds the prompt size accepted by GenerateText
const DefaultMaxPromptLength = 32000

// Config holds the tunables of the inference service
type Config struct {
	// DefaultInstrument is used when FetchRate is called without an instrument
	DefaultInstrument string

	// MaxPromptLength is the maximum prompt length in characters
	MaxPromptLength int

	// CacheWriteTimeout bounds the last-known-good cache write after a rate success
	CacheWriteTimeout time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MaxPromptLength:   DefaultMaxPromptLength,
		CacheWriteTimeout: 500 * time.Millisecond,
	}
}

// TextResponse is the caller-facing result of GenerateText
type TextResponse struct {
	// Request tracking
	RequestID string `json:"request_id"`

	// Provider that answered
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`

	// Response content
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`

	// Attempts lists the providers that failed before Provider answered
	Attempts routing.FailureReport `json:"attempts,omitempty"`

	LatencyMs int64 `json:"latency_ms"`
}

// RateResponse is the caller-facing result of FetchRate
type RateResponse struct {
	RequestID  string          `json:"request_id"`
	Instrument string          `json:"instrument"`
	Rate       decimal.Decimal `json:"rate"`
	Source     string          `json:"source"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Provider   string          `json:"provider"`

	// Fallback is true when every rate provider failed and a fallback value was returned
	Fallback bool `json:"fallback"`

	Attempts  routing.FailureReport `json:"attempts,omitempty"`
	LatencyMs int64                 `json:"latency_ms"`
}
