package routing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/electria-gateway/services/providers"
)

// ErrRoutingStrategyNotFound is returned when a strategy name is unknown
var ErrRoutingStrategyNotFound = errors.New("routing strategy not found")

// Strategy defines how the providers of one pass are attempted
type Strategy string

const (
	// StrategySequential tries providers one at a time in priority order until one succeeds
	StrategySequential Strategy = "sequential"

	// StrategyFanOut starts every provider at once, takes the first success and cancels the rest
	StrategyFanOut Strategy = "fanout"
)

// ParseStrategy parses a strategy name; empty means sequential
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case "", StrategySequential:
		return StrategySequential, nil
	case StrategyFanOut, "fan-out", "fan_out":
		return StrategyFanOut, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrRoutingStrategyNotFound, name)
	}
}

// SpecSource returns the ordered active provider specs of a request kind
type SpecSource interface {
	AdaptersFor(kind providers.RequestKind) []providers.ProviderSpec
}

// Recorder receives per-attempt and per-pass metrics
type Recorder interface {
	ObserveAttempt(kind providers.RequestKind, provider, outcome string, duration time.Duration)
	IncFallback(kind providers.RequestKind)
	IncUnavailable(kind providers.RequestKind)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(providers.RequestKind, string, string, time.Duration) {}
func (nopRecorder) IncFallback(providers.RequestKind)                                  {}
func (nopRecorder) IncUnavailable(providers.RequestKind)                               {}

// OutcomeSuccess is the outcome label of a successful attempt
const OutcomeSuccess = "success"

// RoutingConfig holds configuration for the orchestrator
type RoutingConfig struct {
	// Strategy is sequential unless configured otherwise
	Strategy Strategy

	// Fallbacks maps request kinds to their last-resort resolver; missing kinds have none
	Fallbacks map[providers.RequestKind]FallbackResolver
}

// DefaultRoutingConfig returns the sequential strategy with no fallbacks
func DefaultRoutingConfig() RoutingConfig {
	return RoutingConfig{
		Strategy:  StrategySequential,
		Fallbacks: map[providers.RequestKind]FallbackResolver{},
	}
}

// Execution is the terminal state of a successful pass: the first success or the fallback value,
// plus the report of every failed attempt
type Execution struct {
	ID           string
	Result       *providers.Result
	Report       FailureReport
	UsedFallback bool
	Duration     time.Duration
}

// Orchestrator runs failover passes over the specs returned by a SpecSource.
// It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	config   RoutingConfig
	specs    SpecSource
	logger   *zap.Logger
	recorder Recorder
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithRecorder sets the metrics recorder
func WithRecorder(recorder Recorder) Option {
	return func(o *Orchestrator) {
		if recorder != nil {
			o.recorder = recorder
		}
	}
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(config RoutingConfig, specs SpecSource, logger *zap.Logger, opts ...Option) *Orchestrator {
	if config.Strategy == "" {
		config.Strategy = StrategySequential
	}
	if config.Fallbacks == nil {
		config.Fallbacks = map[providers.RequestKind]FallbackResolver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		config:   config,
		specs:    specs,
		logger:   logger,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Strategy returns the configured strategy
func (o *Orchestrator) Strategy() Strategy {
	return o.config.Strategy
}

// Execute runs one pass for req. It returns an *UnavailableError when every provider failed
// and the request kind has no fallback. When the caller went away first, the *UnavailableError
// keeps the failures recorded so far and unwraps to the context error.
func (o *Orchestrator) Execute(ctx context.Context, req *providers.Request) (*Execution, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	start := time.Now()
	id := uuid.New().String()
	specs := o.specs.AdaptersFor(req.Kind())

	logger := o.logger.With(
		zap.String("orchestration_id", id),
		zap.String("kind", string(req.Kind())),
	)
	logger.Info("Starting failover pass",
		zap.String("strategy", string(o.config.Strategy)),
		zap.Strings("providers", specNames(specs)),
	)

	var (
		result *providers.Result
		report FailureReport
	)
	if o.config.Strategy == StrategyFanOut && len(specs) > 1 {
		result, report = o.fanOut(ctx, logger, req, specs)
	} else {
		result, report = o.sequential(ctx, logger, req, specs)
	}

	if result != nil {
		logger.Info("Failover pass succeeded",
			zap.String("provider", result.Provider),
			zap.Int("failed_attempts", len(report)),
			zap.Duration("duration", time.Since(start)),
		)
		return &Execution{ID: id, Result: result, Report: report, Duration: time.Since(start)}, nil
	}

	if err := ctx.Err(); err != nil {
		logger.Warn("Failover pass abandoned by caller", zap.Int("failed_attempts", len(report)), zap.Error(err))
		return nil, &UnavailableError{ID: id, Kind: req.Kind(), Report: report, Cause: err}
	}

	if fallback, ok := o.fallbackFor(req.Kind()).Resolve(ctx, req); ok {
		o.recorder.IncFallback(req.Kind())
		logger.Warn("All providers exhausted, returning fallback value",
			zap.Int("failed_attempts", len(report)),
			zap.String("report", report.String()),
		)
		return &Execution{ID: id, Result: fallback, Report: report, UsedFallback: true, Duration: time.Since(start)}, nil
	}

	o.recorder.IncUnavailable(req.Kind())
	logger.Error("All providers exhausted, no fallback available",
		zap.Int("failed_attempts", len(report)),
		zap.String("report", report.String()),
	)
	return nil, &UnavailableError{ID: id, Kind: req.Kind(), Report: report}
}

// sequential tries specs in order. The next provider is only called once the previous one
// has definitively failed.
func (o *Orchestrator) sequential(ctx context.Context, logger *zap.Logger, req *providers.Request, specs []providers.ProviderSpec) (*providers.Result, FailureReport) {
	report := make(FailureReport, 0, len(specs))

	for _, spec := range specs {
		if ctx.Err() != nil {
			break
		}

		outcome := o.attempt(ctx, spec, req)
		if outcome.Succeeded() {
			return outcome.Result, report
		}

		o.logFailure(logger, outcome)
		report = append(report, NewAttemptFailure(outcome.Err))
	}

	return nil, report
}

type indexedOutcome struct {
	index   int
	outcome providers.Outcome
}

// fanOut starts every spec at once. The first success cancels the others; the report holds the
// failures that completed before it, in priority order. It returns only after every call has ended.
func (o *Orchestrator) fanOut(ctx context.Context, logger *zap.Logger, req *providers.Request, specs []providers.ProviderSpec) (*providers.Result, FailureReport) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan indexedOutcome, len(specs))
	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec providers.ProviderSpec) {
			defer wg.Done()
			outcomes <- indexedOutcome{index: i, outcome: o.attempt(raceCtx, spec, req)}
		}(i, spec)
	}

	var (
		winner   *providers.Result
		failures []indexedOutcome
	)
	for received := 0; received < len(specs); received++ {
		res := <-outcomes
		if res.outcome.Succeeded() {
			winner = res.outcome.Result
			cancel()
			break
		}
		o.logFailure(logger, res.outcome)
		failures = append(failures, res)
	}

	// outcomes is buffered, so losers never block on send
	wg.Wait()

	sort.Slice(failures, func(i, j int) bool { return failures[i].index < failures[j].index })
	report := make(FailureReport, len(failures))
	for i, f := range failures {
		report[i] = NewAttemptFailure(f.outcome.Err)
	}

	return winner, report
}

// attempt invokes one spec and records its metrics. Outcomes are reported under the spec name.
func (o *Orchestrator) attempt(ctx context.Context, spec providers.ProviderSpec, req *providers.Request) providers.Outcome {
	outcome := providers.Invoke(ctx, spec.Adapter, req)
	outcome.Provider = spec.Name

	label := OutcomeSuccess
	if outcome.Result != nil {
		outcome.Result.Provider = spec.Name
		if rate := outcome.Result.Rate; rate != nil && rate.Source == spec.Adapter.Name() {
			renamed := *rate
			renamed.Source = spec.Name
			outcome.Result.Rate = &renamed
		}
	}
	if outcome.Err != nil {
		provErr := *outcome.Err
		provErr.Provider = spec.Name
		outcome.Err = &provErr
		label = string(provErr.Kind)
	}

	o.recorder.ObserveAttempt(req.Kind(), spec.Name, label, outcome.Duration)
	return outcome
}

func (o *Orchestrator) logFailure(logger *zap.Logger, outcome providers.Outcome) {
	logger.Warn("Provider attempt failed",
		zap.String("provider", outcome.Provider),
		zap.String("error_kind", string(outcome.Err.Kind)),
		zap.Int("status_code", outcome.Err.StatusCode),
		zap.Duration("duration", outcome.Duration),
		zap.String("detail", outcome.Err.Message),
	)
}

func (o *Orchestrator) fallbackFor(kind providers.RequestKind) FallbackResolver {
	if resolver, ok := o.config.Fallbacks[kind]; ok && resolver != nil {
		return resolver
	}
	return NoFallback{}
}

func specNames(specs []providers.ProviderSpec) []string {
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name
	}
	return names
}
