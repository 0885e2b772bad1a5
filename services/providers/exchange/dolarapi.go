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

const dolarAPIBaseURL = "https://ve.dolarapi.com"

// DolarAPIAdapter fetches rates from DolarAPI's /v1/dolares/{instrument}
type DolarAPIAdapter struct {
	config     providers.Config
	httpClient *http.Client
	now        func() time.Time
}

// NewDolarAPIAdapter creates a DolarAPI adapter
func NewDolarAPIAdapter(config providers.Config) *DolarAPIAdapter {
	if config.Name == "" {
		config.Name = "dolarapi"
	}
	if config.BaseURL == "" {
		config.BaseURL = dolarAPIBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}

	return &DolarAPIAdapter{
		config:     config,
		httpClient: providers.NewHTTPClient(config.Timeout),
		now:        time.Now,
	}
}

// Name returns the provider name
func (a *DolarAPIAdapter) Name() string {
	return a.config.Name
}

// Kind returns the request kind served
func (a *DolarAPIAdapter) Kind() providers.RequestKind {
	return providers.KindFetchRate
}

// Invoke fetches the rate of req's instrument
func (a *DolarAPIAdapter) Invoke(ctx context.Context, req *providers.Request) (*providers.Result, error) {
	providers.MustMatchKind(a, req)

	instrument := req.Instrument()
	endpoint := a.config.BaseURL + "/v1/dolares/" + url.PathEscape(instrument)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.ErrorUnreachable, 0, "failed to create request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	body, err := providers.Do(a.httpClient, a.Name(), httpReq)
	if err != nil {
		return nil, err
	}

	return NormalizeDolarAPIRate(a.Name(), instrument, body, a.now())
}

// DolarAPIResponse is the DolarAPI body
type DolarAPIResponse struct {
	Fuente             string          `json:"fuente"`
	Nombre             string          `json:"nombre"`
	Promedio           json.RawMessage `json:"promedio"`
	FechaActualizacion string          `json:"fechaActualizacion"`
}

// NormalizeDolarAPIRate parses a DolarAPI body; the average ("promedio") is the rate
func NormalizeDolarAPIRate(provider, instrument string, body []byte, now time.Time) (*providers.Result, error) {
	var resp DolarAPIResponse
	if err := providers.DecodeJSON(provider, body, &resp); err != nil {
		return nil, err
	}

	rate, err := ParseRate(resp.Promedio)
	if err != nil {
		return nil, providers.Malformed(provider, err.Error())
	}

	observedAt, err := ParseTimestamp(resp.FechaActualizacion, now)
	if err != nil {
		return nil, providers.Malformed(provider, err.Error())
	}

	return providers.NewRateResult(provider, providers.RateResult{
		Instrument: providers.NormalizeInstrument(instrument),
		Rate:       rate,
		Source:     provider,
		ObservedAt: observedAt,
	}), nil
}

// compile-time check
var _ providers.Adapter = (*DolarAPIAdapter)(nil)
