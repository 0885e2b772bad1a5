package routing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/upb/electria-gateway/services/providers"
)

// DefaultFallbackRate is the last-resort exchange rate
var DefaultFallbackRate = decimal.RequireFromString("50.00")

const cacheLookupTimeout = 500 * time.Millisecond

// FallbackResolver supplies the last-resort result of a request kind.
// ok is false when the kind has no fallback; otherwise the result is always usable.
type FallbackResolver interface {
	Resolve(ctx context.Context, req *providers.Request) (result *providers.Result, ok bool)
}

// NoFallback is the resolver of kinds without a safe static value, such as free-form text
type NoFallback struct{}

// Resolve never produces a result
func (NoFallback) Resolve(context.Context, *providers.Request) (*providers.Result, bool) {
	return nil, false
}

// StaticRateFallback returns a configured rate tagged as fallback
type StaticRateFallback struct {
	Rate decimal.Decimal
	now  func() time.Time
}

// NewStaticRateFallback creates a static resolver; non-positive rates use DefaultFallbackRate
func NewStaticRateFallback(rate decimal.Decimal) *StaticRateFallback {
	if !rate.IsPositive() {
		rate = DefaultFallbackRate
	}
	return &StaticRateFallback{Rate: rate, now: time.Now}
}

// Resolve returns the static rate
func (f *StaticRateFallback) Resolve(_ context.Context, req *providers.Request) (*providers.Result, bool) {
	return fallbackRate(req.Instrument(), f.Rate, f.now().UTC()), true
}

// RateStore reads last-known-good rates
type RateStore interface {
	Get(ctx context.Context, instrument string) (*providers.RateResult, error)
}

// CachedRateFallback prefers the last rate a real provider returned and otherwise
// delegates to a static resolver. Store errors are logged, never returned.
type CachedRateFallback struct {
	store  RateStore
	static *StaticRateFallback
	logger *zap.Logger
}

// NewCachedRateFallback creates a resolver backed by store
func NewCachedRateFallback(store RateStore, static *StaticRateFallback, logger *zap.Logger) *CachedRateFallback {
	if static == nil {
		static = NewStaticRateFallback(DefaultFallbackRate)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRateFallback{store: store, static: static, logger: logger}
}

// Resolve returns the cached rate when available, the static rate otherwise
func (f *CachedRateFallback) Resolve(ctx context.Context, req *providers.Request) (*providers.Result, bool) {
	if f.store == nil {
		return f.static.Resolve(ctx, req)
	}

	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheLookupTimeout)
	defer cancel()

	cached, err := f.store.Get(lookupCtx, req.Instrument())
	if err != nil {
		f.logger.Warn("Last-known-good rate lookup failed, using static fallback",
			zap.String("instrument", req.Instrument()),
			zap.Error(err),
		)
		return f.static.Resolve(ctx, req)
	}
	if cached == nil || !cached.Rate.IsPositive() {
		return f.static.Resolve(ctx, req)
	}

	return fallbackRate(req.Instrument(), cached.Rate, cached.ObservedAt), true
}

func fallbackRate(instrument string, rate decimal.Decimal, observedAt time.Time) *providers.Result {
	return providers.NewRateResult(providers.FallbackSource, providers.RateResult{
		Instrument: providers.NormalizeInstrument(instrument),
		Rate:       rate,
		Source:     providers.FallbackSource,
		ObservedAt: observedAt,
	})
}
