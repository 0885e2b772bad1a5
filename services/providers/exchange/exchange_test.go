package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/upb/electria-gateway/services/providers"
)

const dolarAPIFixture = `{
  "fuente": "oficial",
  "nombre": "Oficial",
  "compra": null,
  "venta": null,
  "promedio": 36.58,
  "fechaActualizacion": "2024-05-31T20:01:45.317Z"
}`

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestParseRate(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{`36.58`, "36.58", false},
		{`"36,58"`, "36.58", false},
		{`"36,5"`, "36.5", false},
		{`"36,5812"`, "36.5812", false},
		{`"1,234"`, "", true},
		{`"1.234,5"`, "", true},
		{`"1,234.5"`, "", true},
		{`"1,234,567"`, "", true},
		{`" 40.1 "`, "40.1", false},
		{`0`, "", true},
		{`-1.5`, "", true},
		{`"abc"`, "", true},
		{`null`, "", true},
		{``, "", true},
		{`true`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseRate(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRate(%s) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseRate(%s) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("", fixedNow)
	if err != nil || !got.Equal(fixedNow) {
		t.Errorf("ParseTimestamp(\"\") = %v, %v", got, err)
	}

	got, err = ParseTimestamp("2024-05-31T20:01:45.317Z", fixedNow)
	if err != nil {
		t.Fatalf("ParseTimestamp() error = %v", err)
	}
	if got.Year() != 2024 || got.Month() != time.May || got.Day() != 31 {
		t.Errorf("ParseTimestamp() = %v", got)
	}

	if _, err := ParseTimestamp("yesterday", fixedNow); err == nil {
		t.Error("ParseTimestamp(yesterday) should fail")
	}
}

func TestDolarAPIAdapter_Invoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/dolares/oficial" {
			t.Errorf("path = %s, want /v1/dolares/oficial", r.URL.Path)
		}
		_, _ = w.Write([]byte(dolarAPIFixture))
	}))
	defer server.Close()

	adapter := NewDolarAPIAdapter(providers.Config{BaseURL: server.URL})
	if adapter.Name() != "dolarapi" {
		t.Errorf("Name() = %s, want dolarapi", adapter.Name())
	}

	result, err := adapter.Invoke(context.Background(), providers.NewFetchRateRequest(""))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	if !result.Rate.Rate.Equal(decimal.RequireFromString("36.58")) {
		t.Errorf("Rate = %s, want 36.58", result.Rate.Rate)
	}
	if result.Rate.Source != "dolarapi" {
		t.Errorf("Source = %s, want dolarapi", result.Rate.Source)
	}
	if result.Rate.Instrument != providers.DefaultInstrument {
		t.Errorf("Instrument = %s, want %s", result.Rate.Instrument, providers.DefaultInstrument)
	}
	if result.IsFallback() {
		t.Error("IsFallback() = true for a real rate")
	}
}

func TestDolarAPIAdapter_InvokeErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind providers.ErrorKind
	}{
		{"zero average", http.StatusOK, `{"promedio": 0}`, providers.ErrorMalformedResponse},
		{"missing average", http.StatusOK, `{"fuente": "oficial"}`, providers.ErrorMalformedResponse},
		{"bad timestamp", http.StatusOK, `{"promedio": 36.5, "fechaActualizacion": "ayer"}`, providers.ErrorMalformedResponse},
		{"html", http.StatusOK, `<html></html>`, providers.ErrorMalformedResponse},
		{"grouped average", http.StatusOK, `{"promedio": "1,234"}`, providers.ErrorMalformedResponse},
		{"throttled", http.StatusTooManyRequests, `{}`, providers.ErrorRateLimited},
		{"down", http.StatusInternalServerError, `{}`, providers.ErrorUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			adapter := NewDolarAPIAdapter(providers.Config{BaseURL: server.URL})
			_, err := adapter.Invoke(context.Background(), providers.NewFetchRateRequest("oficial"))
			if errorKind(err) != tt.wantKind {
				t.Errorf("errorKind() = %s, want %s (err = %v)", errorKind(err), tt.wantKind, err)
			}
		})
	}
}

func TestProxyAdapter_Invoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("instrument") != "paralelo" {
			t.Errorf("instrument = %q, want paralelo", r.URL.Query().Get("instrument"))
		}
		_, _ = w.Write([]byte(`{"rate": "39,12", "updated_at": "2024-05-31T20:00:00Z", "source": "BCV"}`))
	}))
	defer server.Close()

	adapter := NewProxyAdapter(providers.Config{BaseURL: server.URL + "/api/bcv"})
	adapter.now = func() time.Time { return fixedNow }

	result, err := adapter.Invoke(context.Background(), providers.NewFetchRateRequest("Paralelo"))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	if !result.Rate.Rate.Equal(decimal.RequireFromString("39.12")) {
		t.Errorf("Rate = %s, want 39.12", result.Rate.Rate)
	}
	if result.Rate.Source != "BCV" {
		t.Errorf("Source = %s, want BCV", result.Rate.Source)
	}
	if result.Provider != "rate-proxy" {
		t.Errorf("Provider = %s, want rate-proxy", result.Provider)
	}
	if result.Rate.Instrument != "paralelo" {
		t.Errorf("Instrument = %s, want paralelo", result.Rate.Instrument)
	}
}

func TestProxyAdapter_NotConfigured(t *testing.T) {
	adapter := NewProxyAdapter(providers.Config{})

	_, err := adapter.Invoke(context.Background(), providers.NewFetchRateRequest("oficial"))
	if errorKind(err) != providers.ErrorNotConfigured {
		t.Errorf("errorKind() = %s, want not_configured", errorKind(err))
	}
}

func TestNormalizeProxyRate(t *testing.T) {
	t.Run("missing source defaults to provider", func(t *testing.T) {
		result, err := NormalizeProxyRate("rate-proxy", "oficial", []byte(`{"rate": 36.5}`), fixedNow)
		if err != nil {
			t.Fatalf("NormalizeProxyRate() error = %v", err)
		}
		if result.Rate.Source != "rate-proxy" {
			t.Errorf("Source = %s, want rate-proxy", result.Rate.Source)
		}
		if !result.Rate.ObservedAt.Equal(fixedNow) {
			t.Errorf("ObservedAt = %v, want %v", result.Rate.ObservedAt, fixedNow)
		}
	})

	t.Run("upstream fallback is rejected", func(t *testing.T) {
		_, err := NormalizeProxyRate("rate-proxy", "oficial", []byte(`{"rate": 50.0, "source": "fallback"}`), fixedNow)
		if errorKind(err) != providers.ErrorMalformedResponse {
			t.Errorf("errorKind() = %s, want malformed_response", errorKind(err))
		}
	})
}

func errorKind(err error) providers.ErrorKind {
	var provErr *providers.ProviderError
	if errors.As(err, &provErr) {
		return provErr.Kind
	}
	return ""
}
