package ratecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/upb/electria-gateway/services/providers"
)

const (
	keyPrefix  = "electria:rate:"
	DefaultTTL = 24 * time.Hour
)

// ErrFallbackNotCacheable is returned when asked to store a fallback value as last-known-good
var ErrFallbackNotCacheable = errors.New("fallback rates are not cacheable")

// RedisStore keeps the last rate a real provider returned for each instrument
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Connect parses a redis:// URL, opens a client and checks it with a ping
func Connect(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStore(client, ttl), nil
}

type storedRate struct {
	Instrument string `json:"instrument"`
	Rate       string `json:"rate"`
	Source     string `json:"source"`
	ObservedAt int64  `json:"observed_at"`
}

// Put stores rate as the last-known-good value of its instrument
func (s *RedisStore) Put(ctx context.Context, rate providers.RateResult) error {
	if rate.Source == providers.FallbackSource {
		return ErrFallbackNotCacheable
	}
	if !rate.Rate.IsPositive() {
		return fmt.Errorf("refusing to cache non-positive rate %s", rate.Rate)
	}

	payload, err := json.Marshal(storedRate{
		Instrument: providers.NormalizeInstrument(rate.Instrument),
		Rate:       rate.Rate.String(),
		Source:     rate.Source,
		ObservedAt: rate.ObservedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal rate: %w", err)
	}

	if err := s.client.Set(ctx, key(rate.Instrument), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store rate: %w", err)
	}
	return nil
}

// Get returns the last-known-good rate of instrument, or nil when none is stored
func (s *RedisStore) Get(ctx context.Context, instrument string) (*providers.RateResult, error) {
	payload, err := s.client.Get(ctx, key(instrument)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rate: %w", err)
	}

	var stored storedRate
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("corrupt cached rate: %w", err)
	}

	rate, err := decimal.NewFromString(stored.Rate)
	if err != nil {
		return nil, fmt.Errorf("corrupt cached rate: %w", err)
	}

	return &providers.RateResult{
		Instrument: stored.Instrument,
		Rate:       rate,
		Source:     stored.Source,
		ObservedAt: time.UnixMilli(stored.ObservedAt).UTC(),
	}, nil
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func key(instrument string) string {
	return keyPrefix + providers.NormalizeInstrument(instrument)
}
