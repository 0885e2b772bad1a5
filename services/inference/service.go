package inference

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/upb/electria-gateway/services"
	"github.com/upb/electria-gateway/services/providers"
	"github.com/upb/electria-gateway/services/routing"
)

var instrumentPattern = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

// Executor runs one failover pass
type Executor interface {
	Execute(ctx context.Context, req *providers.Request) (*routing.Execution, error)
}

// RateWriter stores last-known-good rates
type RateWriter interface {
	Put(ctx context.Context, rate providers.RateResult) error
}

// InferenceService exposes the caller-facing operations on top of the text and rate orchestrators
type InferenceService struct {
	config Config
	text   Executor
	rates  Executor
	cache  RateWriter
	logger *zap.Logger
}

// NewInferenceService creates a new inference service. cache may be nil.
func NewInferenceService(config Config, text, rates Executor, cache RateWriter, logger *zap.Logger) *InferenceService {
	defaults := DefaultConfig()
	if config.MaxPromptLength <= 0 {
		config.MaxPromptLength = defaults.MaxPromptLength
	}
	if config.CacheWriteTimeout <= 0 {
		config.CacheWriteTimeout = defaults.CacheWriteTimeout
	}
	config.DefaultInstrument = providers.NormalizeInstrument(config.DefaultInstrument)
	if logger == nil {
		logger = zap.NewNop()
	}

	return &InferenceService{
		config: config,
		text:   text,
		rates:  rates,
		cache:  cache,
		logger: logger,
	}
}

// DefaultInstrument returns the instrument used when a caller names none
func (s *InferenceService) DefaultInstrument() string {
	return s.config.DefaultInstrument
}

// GenerateText runs prompt through the text providers in priority order
func (s *InferenceService) GenerateText(ctx context.Context, prompt string) (*TextResponse, error) {
	if err := s.validatePrompt(prompt); err != nil {
		return nil, err
	}

	exec, err := s.text.Execute(ctx, providers.NewGenerateTextRequest(prompt))
	if err != nil {
		return nil, s.mapError(ctx, providers.KindGenerateText, err)
	}

	result := exec.Result
	response := &TextResponse{
		RequestID: exec.ID,
		Provider:  result.Provider,
		Attempts:  exec.Report,
		LatencyMs: exec.Duration.Milliseconds(),
	}
	if result.Text != nil {
		response.Text = result.Text.Text
		response.Model = result.Text.Model
		response.FinishReason = result.Text.FinishReason
	}

	return response, nil
}

// FetchRate returns the current rate of instrument, or a fallback value when every rate provider fails.
// An empty instrument means the configured default.
func (s *InferenceService) FetchRate(ctx context.Context, instrument string) (*RateResponse, error) {
	if strings.TrimSpace(instrument) == "" {
		instrument = s.config.DefaultInstrument
	}
	instrument = providers.NormalizeInstrument(instrument)
	if !instrumentPattern.MatchString(instrument) {
		return nil, services.NewDomainError(services.ErrorTypeValidation, services.ErrInvalidInstrument.Message, nil).
			WithDetail("instrument", instrument)
	}

	exec, err := s.rates.Execute(ctx, providers.NewFetchRateRequest(instrument))
	if err != nil {
		return nil, s.mapError(ctx, providers.KindFetchRate, err)
	}

	rate := exec.Result.Rate
	if !exec.UsedFallback {
		s.remember(ctx, *rate)
	}

	return &RateResponse{
		RequestID:  exec.ID,
		Instrument: rate.Instrument,
		Rate:       rate.Rate,
		Source:     rate.Source,
		UpdatedAt:  rate.ObservedAt,
		Provider:   exec.Result.Provider,
		Fallback:   exec.UsedFallback,
		Attempts:   exec.Report,
		LatencyMs:  exec.Duration.Milliseconds(),
	}, nil
}

func (s *InferenceService) validatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return services.ErrEmptyPrompt
	}
	if n := utf8.RuneCountInString(prompt); n > s.config.MaxPromptLength {
		return services.NewDomainError(services.ErrorTypeValidation, services.ErrPromptTooLong.Message, nil).
			WithDetail("length", n).
			WithDetail("max_length", s.config.MaxPromptLength)
	}
	return nil
}

// remember stores a real provider rate as last-known-good. Failures are logged only.
func (s *InferenceService) remember(ctx context.Context, rate providers.RateResult) {
	if s.cache == nil {
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.CacheWriteTimeout)
	defer cancel()

	if err := s.cache.Put(writeCtx, rate); err != nil {
		s.logger.Warn("failed to cache rate",
			zap.String("instrument", rate.Instrument),
			zap.String("source", rate.Source),
			zap.Error(err))
	}
}

// mapError converts orchestration errors into domain errors
func (s *InferenceService) mapError(ctx context.Context, kind providers.RequestKind, err error) error {
	if unavailable, ok := routing.AsUnavailable(err); ok {
		domainErr := services.WrapUnavailable(err)
		if unavailable.Cause != nil {
			s.logger.Warn("request ended before a provider answered",
				zap.String("kind", string(kind)),
				zap.Int("failed_attempts", len(unavailable.Report)),
				zap.Error(ctx.Err()))
			domainErr.Message = "request ended before a provider answered"
		}
		return domainErr.
			WithDetail("request_id", unavailable.ID).
			WithDetail("attempts", unavailable.Report)
	}

	s.logger.Error("orchestration failed", zap.String("kind", string(kind)), zap.Error(err))
	return services.WrapInternal(fmt.Sprintf("%s failed", kind), err)
}
