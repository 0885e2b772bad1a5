package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/upb/electria-gateway/services/providers"
)

// ProxyAdapter fetches rates from an upstream rate proxy serving {rate, updated_at, source}
type ProxyAdapter struct {
	config     providers.Config
	httpClient *http.Client
	now        func() time.Time
}

// NewProxyAdapter creates a rate proxy adapter; config.BaseURL is the full endpoint URL
func NewProxyAdapter(config providers.Config) *ProxyAdapter {
	if config.Name == "" {
		config.Name = "rate-proxy"
	}
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}

	return &ProxyAdapter{
		config:     config,
		httpClient: providers.NewHTTPClient(config.Timeout),
		now:        time.Now,
	}
}

// Name returns the provider name
func (a *ProxyAdapter) Name() string {
	return a.config.Name
}

// Kind returns the request kind served
func (a *ProxyAdapter) Kind() providers.RequestKind {
	return providers.KindFetchRate
}

// Invoke fetches the rate of req's instrument
func (a *ProxyAdapter) Invoke(ctx context.Context, req *providers.Request) (*providers.Result, error) {
	providers.MustMatchKind(a, req)

	if strings.TrimSpace(a.config.BaseURL) == "" {
		return nil, providers.NewProviderError(a.Name(), providers.ErrorNotConfigured, 0, "proxy URL not set", nil)
	}

	endpoint, err := url.Parse(a.config.BaseURL)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.ErrorNotConfigured, 0, "invalid proxy URL", err)
	}
	query := endpoint.Query()
	query.Set("instrument", req.Instrument())
	endpoint.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.ErrorUnreachable, 0, "failed to create request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if a.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	}
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	body, err := providers.Do(a.httpClient, a.Name(), httpReq)
	if err != nil {
		return nil, err
	}

	return NormalizeProxyRate(a.Name(), req.Instrument(), body, a.now())
}

// ProxyRateResponse is the rate proxy body
type ProxyRateResponse struct {
	Rate      json.RawMessage `json:"rate"`
	UpdatedAt string          `json:"updated_at"`
	Source    string          `json:"source"`
}

// NormalizeProxyRate parses a rate proxy body. The upstream source label is kept when present.
func NormalizeProxyRate(provider, instrument string, body []byte, now time.Time) (*providers.Result, error) {
	var resp ProxyRateResponse
	if err := providers.DecodeJSON(provider, body, &resp); err != nil {
		return nil, err
	}

	rate, err := ParseRate(resp.Rate)
	if err != nil {
		return nil, providers.Malformed(provider, err.Error())
	}

	observedAt, err := ParseTimestamp(resp.UpdatedAt, now)
	if err != nil {
		return nil, providers.Malformed(provider, err.Error())
	}

	source := strings.TrimSpace(resp.Source)
	switch {
	case strings.EqualFold(source, providers.FallbackSource):
		// an upstream fallback is not an observation
		return nil, providers.Malformed(provider, "upstream returned its own fallback value")
	case source == "":
		source = provider
	}

	return providers.NewRateResult(provider, providers.RateResult{
		Instrument: providers.NormalizeInstrument(instrument),
		Rate:       rate,
		Source:     source,
		ObservedAt: observedAt,
	}), nil
}

// compile-time check
var _ providers.Adapter = (*ProxyAdapter)(nil)
