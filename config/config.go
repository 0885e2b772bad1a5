package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/upb/electria-gateway/services/routing"
)

// DefaultGeminiModels is the Gemini cascade tried in order when GEMINI_MODELS is not set
var DefaultGeminiModels = []string{
	"v1beta/gemini-1.5-flash-8b",
	"v1beta/gemini-2.0-flash-exp",
	"v1/gemini-1.5-flash",
}

// MaxGeminiModels bounds the Gemini cascade so its ranks stay between Zhipu and DeepSeek
const MaxGeminiModels = 10

// responseMargin is added to the worst-case provider chain when sizing the request deadline
const responseMargin = 2 * time.Second

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Providers     ProvidersConfig
	Rates         RatesConfig
	Failover      FailoverConfig
	Cache         CacheConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host               string
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	CORSAllowedOrigins []string
}

// ProvidersConfig holds text generation provider configurations
type ProvidersConfig struct {
	Zhipu    ZhipuConfig
	Gemini   GeminiConfig
	DeepSeek DeepSeekConfig
	AI       AIConfig
}

// ZhipuConfig holds Zhipu GLM provider configuration. The API key has the form "id.secret".
type ZhipuConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// GeminiConfig holds Google Gemini provider configuration
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Models  []string // "version/name", tried in order
	Timeout time.Duration
}

// DeepSeekConfig holds DeepSeek provider configuration
type DeepSeekConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// AIConfig holds settings shared by the chat-completions providers
type AIConfig struct {
	SystemPrompt string
	Temperature  float64
}

// RatesConfig holds exchange rate provider configuration
type RatesConfig struct {
	ProxyURL        string
	ProxyTimeout    time.Duration
	DolarAPIEnabled bool
	DolarAPIBaseURL string
	DolarAPITimeout time.Duration
}

// FailoverConfig holds orchestration settings
type FailoverConfig struct {
	Strategy          string
	FallbackRate      decimal.Decimal
	DefaultInstrument string
}

// CacheConfig holds the last-known-good rate cache configuration
type CacheConfig struct {
	RedisURL string // empty disables the cache
	RateTTL  time.Duration
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	fallbackRate, err := getEnvAsDecimal("FALLBACK_RATE", routing.DefaultFallbackRate)
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			Port:               getPort(),
			ReadTimeout:        getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:       getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout:    getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://*"}),
		},
		Providers: ProvidersConfig{
			Zhipu: ZhipuConfig{
				APIKey:  getEnv("ZHIPU_API_KEY", ""),
				BaseURL: getEnv("ZHIPU_BASE_URL", ""),
				Model:   getEnv("ZHIPU_MODEL", "glm-4"),
				Timeout: getEnvAsDuration("ZHIPU_TIMEOUT", 60*time.Second),
			},
			Gemini: GeminiConfig{
				APIKey:  getEnv("GEMINI_API_KEY", ""),
				BaseURL: getEnv("GEMINI_BASE_URL", ""),
				Models:  getEnvAsSlice("GEMINI_MODELS", DefaultGeminiModels),
				Timeout: getEnvAsDuration("GEMINI_TIMEOUT", 60*time.Second),
			},
			DeepSeek: DeepSeekConfig{
				APIKey:  getEnv("DEEPSEEK_API_KEY", ""),
				BaseURL: getEnv("DEEPSEEK_BASE_URL", ""),
				Model:   getEnv("DEEPSEEK_MODEL", "deepseek-chat"),
				Timeout: getEnvAsDuration("DEEPSEEK_TIMEOUT", 60*time.Second),
			},
			AI: AIConfig{
				SystemPrompt: getEnv("AI_SYSTEM_PROMPT", ""),
				Temperature:  getEnvAsFloat("AI_TEMPERATURE", 0.7),
			},
		},
		Rates: RatesConfig{
			ProxyURL:        getEnv("RATE_PROXY_URL", ""),
			ProxyTimeout:    getEnvAsDuration("RATE_PROXY_TIMEOUT", 20*time.Second),
			DolarAPIEnabled: getEnvAsBool("DOLARAPI_ENABLED", true),
			DolarAPIBaseURL: getEnv("DOLARAPI_BASE_URL", "https://ve.dolarapi.com"),
			DolarAPITimeout: getEnvAsDuration("DOLARAPI_TIMEOUT", 20*time.Second),
		},
		Failover: FailoverConfig{
			Strategy:          getEnv("FAILOVER_STRATEGY", string(routing.StrategySequential)),
			FallbackRate:      fallbackRate,
			DefaultInstrument: getEnv("DEFAULT_RATE_INSTRUMENT", "oficial"),
		},
		Cache: CacheConfig{
			RedisURL: getEnv("REDIS_URL", ""),
			RateTTL:  getEnvAsDuration("RATE_CACHE_TTL", 24*time.Hour),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Failover validation
	if _, err := routing.ParseStrategy(c.Failover.Strategy); err != nil {
		return fmt.Errorf("invalid failover strategy: %w", err)
	}
	if !c.Failover.FallbackRate.IsPositive() {
		return fmt.Errorf("fallback rate must be positive, got %s", c.Failover.FallbackRate)
	}

	// Provider validation (at least one text provider API key required in production)
	if c.IsProduction() {
		if c.Providers.Zhipu.APIKey == "" &&
			c.Providers.Gemini.APIKey == "" &&
			c.Providers.DeepSeek.APIKey == "" {
			return fmt.Errorf("at least one text provider must be configured in production")
		}
	}
	if c.Providers.Gemini.APIKey != "" && len(c.Providers.Gemini.Models) == 0 {
		return fmt.Errorf("at least one gemini model is required when GEMINI_API_KEY is set")
	}
	if len(c.Providers.Gemini.Models) > MaxGeminiModels {
		return fmt.Errorf("at most %d gemini models are supported, got %d", MaxGeminiModels, len(c.Providers.Gemini.Models))
	}
	if c.Providers.AI.Temperature < 0 || c.Providers.AI.Temperature > 2 {
		return fmt.Errorf("ai temperature must be between 0 and 2, got %v", c.Providers.AI.Temperature)
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// TextChainTimeout is the longest a sequential text pass can take: every enabled provider timing out in turn
func (c *Config) TextChainTimeout() time.Duration {
	p := c.Providers
	var total time.Duration
	if p.Zhipu.APIKey != "" {
		total += p.Zhipu.Timeout
	}
	if p.Gemini.APIKey != "" {
		total += p.Gemini.Timeout * time.Duration(len(p.Gemini.Models))
	}
	if p.DeepSeek.APIKey != "" {
		total += p.DeepSeek.Timeout
	}
	return total
}

// RateChainTimeout is the longest a sequential rate pass can take
func (c *Config) RateChainTimeout() time.Duration {
	var total time.Duration
	if c.Rates.ProxyURL != "" {
		total += c.Rates.ProxyTimeout
	}
	if c.Rates.DolarAPIEnabled {
		total += c.Rates.DolarAPITimeout
	}
	return total
}

// RequestTimeout is the per-request deadline. SERVER_WRITE_TIMEOUT is raised
// when it would cut a full provider chain short.
func (c *Config) RequestTimeout() time.Duration {
	timeout := c.Server.WriteTimeout
	chain := c.TextChainTimeout()
	if rates := c.RateChainTimeout(); rates > chain {
		chain = rates
	}
	if chain > 0 && chain+responseMargin > timeout {
		timeout = chain + responseMargin
	}
	return timeout
}

// CacheEnabled reports whether a Redis URL was configured
func (c *CacheConfig) CacheEnabled() bool {
	return c.RedisURL != ""
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8001)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8001
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDecimal parses a decimal with a "." separator; a set but unparsable value is an error
func getEnvAsDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := decimal.NewFromString(strings.TrimSpace(valueStr))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s %q: %w", key, valueStr, err)
	}
	return value, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice splits a comma separated value, dropping blank entries
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
