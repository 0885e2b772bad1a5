package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/electria-gateway/config"
	"github.com/upb/electria-gateway/handlers"
	"github.com/upb/electria-gateway/internal/observability"
	"github.com/upb/electria-gateway/services/inference"
	"github.com/upb/electria-gateway/services/providers"
	"github.com/upb/electria-gateway/services/providers/exchange"
	"github.com/upb/electria-gateway/services/providers/gemini"
	"github.com/upb/electria-gateway/services/providers/openai"
	"github.com/upb/electria-gateway/services/ratecache"
	"github.com/upb/electria-gateway/services/routing"
)

// Version is reported by the status endpoint
const Version = "1.0.0"

// Provider ranks, lower first
const (
	priorityZhipu    = 10
	priorityGemini   = 20
	priorityDeepSeek = 30

	priorityRateProxy = 10
	priorityDolarAPI  = 20
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics // nil when metrics are disabled

	// RateCache is nil when REDIS_URL is not set or Redis was unreachable at start
	RateCache *ratecache.RedisStore

	// Provider Registry
	ProviderRegistry *providers.Registry

	// Orchestrators
	TextOrchestrator *routing.Orchestrator
	RateOrchestrator *routing.Orchestrator

	// Services
	InferenceService *inference.InferenceService

	// Handlers
	InferenceHandler *handlers.InferenceHandler
	HealthHandler    *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics()
	}

	deps.initCache(ctx, cfg)

	// Initialize provider registry
	if err := deps.initProviders(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	if err := deps.initOrchestrators(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize orchestrators: %w", err)
	}

	deps.initServices(cfg)
	deps.initHandlers(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.Int("providers", deps.ProviderRegistry.Len()),
		zap.Bool("rate_cache", deps.RateCache != nil),
		zap.Bool("metrics", deps.Metrics != nil))
	return deps, nil
}

// initCache connects the last-known-good rate cache. The cache is optional, so a
// connection failure only disables it.
func (d *Dependencies) initCache(ctx context.Context, cfg *config.Config) {
	if !cfg.Cache.CacheEnabled() {
		d.Logger.Info("rate cache not configured, fallback uses the static rate only")
		return
	}

	store, err := ratecache.Connect(ctx, cfg.Cache.RedisURL, cfg.Cache.RateTTL)
	if err != nil {
		d.Logger.Warn("rate cache unavailable, continuing without it", zap.Error(err))
		return
	}

	d.RateCache = store
	d.Logger.Info("rate cache connected", zap.Duration("ttl", cfg.Cache.RateTTL))
}

// initProviders registers every known provider; activation predicates decide which are tried
func (d *Dependencies) initProviders(cfg *config.Config) error {
	registry := providers.NewRegistry()
	p := cfg.Providers

	systemPrompt := p.AI.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = openai.DefaultSystemPrompt
	}

	// Text generation
	specs := []providers.ProviderSpec{{
		Priority:   priorityZhipu,
		Active:     providers.CredentialPresent(p.Zhipu.APIKey),
		Credential: p.Zhipu.APIKey,
		Adapter: openai.NewZhipuAdapter(openai.ChatConfig{
			Config:       providers.Config{APIKey: p.Zhipu.APIKey, BaseURL: p.Zhipu.BaseURL, Timeout: p.Zhipu.Timeout},
			Model:        p.Zhipu.Model,
			SystemPrompt: systemPrompt,
			Temperature:  p.AI.Temperature,
		}),
	}}

	if len(p.Gemini.Models) > config.MaxGeminiModels {
		return fmt.Errorf("at most %d gemini models are supported, got %d", config.MaxGeminiModels, len(p.Gemini.Models))
	}
	for i, raw := range p.Gemini.Models {
		model, err := gemini.ParseModel(raw)
		if err != nil {
			return err
		}
		specs = append(specs, providers.ProviderSpec{
			Priority:   priorityGemini + i,
			Active:     providers.CredentialPresent(p.Gemini.APIKey),
			Credential: p.Gemini.APIKey,
			Adapter: gemini.NewAdapter(providers.Config{
				APIKey:  p.Gemini.APIKey,
				BaseURL: p.Gemini.BaseURL,
				Timeout: p.Gemini.Timeout,
			}, model),
		})
	}

	specs = append(specs, providers.ProviderSpec{
		Priority:   priorityDeepSeek,
		Active:     providers.CredentialPresent(p.DeepSeek.APIKey),
		Credential: p.DeepSeek.APIKey,
		Adapter: openai.NewDeepSeekAdapter(openai.ChatConfig{
			Config:       providers.Config{APIKey: p.DeepSeek.APIKey, BaseURL: p.DeepSeek.BaseURL, Timeout: p.DeepSeek.Timeout},
			Model:        p.DeepSeek.Model,
			SystemPrompt: systemPrompt,
			Temperature:  p.AI.Temperature,
		}),
	})

	// Exchange rates
	dolarAPIActive := providers.Never
	if cfg.Rates.DolarAPIEnabled {
		dolarAPIActive = providers.Always
	}
	specs = append(specs,
		providers.ProviderSpec{
			Priority: priorityRateProxy,
			Active:   providers.CredentialPresent(cfg.Rates.ProxyURL),
			Adapter: exchange.NewProxyAdapter(providers.Config{
				BaseURL: cfg.Rates.ProxyURL,
				Timeout: cfg.Rates.ProxyTimeout,
			}),
		},
		providers.ProviderSpec{
			Priority: priorityDolarAPI,
			Active:   dolarAPIActive,
			Adapter: exchange.NewDolarAPIAdapter(providers.Config{
				BaseURL: cfg.Rates.DolarAPIBaseURL,
				Timeout: cfg.Rates.DolarAPITimeout,
			}),
		},
	)

	for _, spec := range specs {
		if err := registry.Register(spec); err != nil {
			return err
		}
		d.Logger.Info("provider registered",
			zap.String("provider", spec.Adapter.Name()),
			zap.String("kind", string(spec.Adapter.Kind())),
			zap.Int("priority", spec.Priority),
			zap.Bool("enabled", spec.Enabled()))
	}

	if registry.Count(providers.KindGenerateText) == 0 {
		d.Logger.Warn("no text providers configured, text generation will be unavailable")
	}
	if registry.Count(providers.KindFetchRate) == 0 {
		d.Logger.Warn("no rate providers enabled, rates will always use the fallback value")
	}

	d.ProviderRegistry = registry
	return nil
}

func (d *Dependencies) initOrchestrators(cfg *config.Config) error {
	strategy, err := routing.ParseStrategy(cfg.Failover.Strategy)
	if err != nil {
		return err
	}

	var opts []routing.Option
	if d.Metrics != nil {
		opts = append(opts, routing.WithRecorder(d.Metrics))
	}

	static := routing.NewStaticRateFallback(cfg.Failover.FallbackRate)
	var rateFallback routing.FallbackResolver = static
	if d.RateCache != nil {
		rateFallback = routing.NewCachedRateFallback(d.RateCache, static, d.Logger)
	}

	d.TextOrchestrator = routing.NewOrchestrator(
		routing.RoutingConfig{Strategy: strategy},
		d.ProviderRegistry, d.Logger, opts...)

	d.RateOrchestrator = routing.NewOrchestrator(
		routing.RoutingConfig{
			Strategy: strategy,
			Fallbacks: map[providers.RequestKind]routing.FallbackResolver{
				providers.KindFetchRate: rateFallback,
			},
		},
		d.ProviderRegistry, d.Logger, opts...)

	d.Logger.Info("orchestrators initialized", zap.String("strategy", string(strategy)))
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) {
	var cache inference.RateWriter
	if d.RateCache != nil {
		cache = d.RateCache
	}

	d.InferenceService = inference.NewInferenceService(
		inference.Config{DefaultInstrument: cfg.Failover.DefaultInstrument},
		d.TextOrchestrator,
		d.RateOrchestrator,
		cache,
		d.Logger,
	)
}

func (d *Dependencies) initHandlers(cfg *config.Config) {
	var pinger handlers.Pinger
	if d.RateCache != nil {
		pinger = d.RateCache
	}

	d.InferenceHandler = handlers.NewInferenceHandler(d.InferenceService, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.ProviderRegistry, pinger, handlers.BuildInfo{
		Version:     Version,
		Environment: cfg.Environment,
		Strategy:    string(d.TextOrchestrator.Strategy()),
	}, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	// Close Redis connection
	if d.RateCache != nil {
		if err := d.RateCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close rate cache: %w", err))
		} else {
			d.Logger.Info("rate cache connection closed")
		}
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
