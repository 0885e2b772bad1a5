package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/upb/electria-gateway/services/providers"
)

const flashFixture = `{
  "candidates": [
    {
      "content": {"role": "model", "parts": [{"text": "Use a 20 A breaker "}, {"text": "with 12 AWG copper."}]},
      "finishReason": "STOP",
      "index": 0
    }
  ],
  "modelVersion": "gemini-1.5-flash-8b"
}`

func TestParseModel(t *testing.T) {
	tests := []struct {
		in      string
		want    Model
		wantErr bool
	}{
		{"v1beta/gemini-1.5-flash-8b", Model{Version: "v1beta", Name: "gemini-1.5-flash-8b"}, false},
		{"v1/gemini-1.5-flash", Model{Version: "v1", Name: "gemini-1.5-flash"}, false},
		{" gemini-2.0-flash-exp ", Model{Version: "v1beta", Name: "gemini-2.0-flash-exp"}, false},
		{"v1/", Model{}, true},
		{"", Model{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseModel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseModel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseModel() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAdapter_Invoke(t *testing.T) {
	var captured GenerateContentRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-1.5-flash-8b:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "gemini-key" {
			t.Errorf("key = %q, want gemini-key", r.URL.Query().Get("key"))
		}

		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("request body is not JSON: %v", err)
		}

		_, _ = w.Write([]byte(flashFixture))
	}))
	defer server.Close()

	model, _ := ParseModel("v1beta/gemini-1.5-flash-8b")
	adapter := NewAdapter(providers.Config{APIKey: "gemini-key", BaseURL: server.URL}, model)

	if adapter.Name() != "gemini-1.5-flash-8b" {
		t.Errorf("Name() = %s", adapter.Name())
	}

	result, err := adapter.Invoke(context.Background(), providers.NewGenerateTextRequest("breaker for 16 A load?"))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	if result.Text.Text != "Use a 20 A breaker with 12 AWG copper." {
		t.Errorf("Text = %q", result.Text.Text)
	}
	if captured.Prompt() != "breaker for 16 A load?" {
		t.Errorf("sent prompt = %q", captured.Prompt())
	}
}

func TestAdapter_InvokeStatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind providers.ErrorKind
	}{
		{"forbidden", http.StatusForbidden, providers.ErrorUnauthorized},
		{"quota", http.StatusTooManyRequests, providers.ErrorRateLimited},
		{"not found", http.StatusNotFound, providers.ErrorUpstream},
		{"unavailable", http.StatusServiceUnavailable, providers.ErrorUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(strings.Repeat("x", 1000)))
			}))
			defer server.Close()

			adapter := NewAdapter(providers.Config{APIKey: "gemini-key", BaseURL: server.URL}, Model{Version: "v1", Name: "gemini-1.5-flash"})

			_, err := adapter.Invoke(context.Background(), providers.NewGenerateTextRequest("hi"))

			var provErr *providers.ProviderError
			if !errors.As(err, &provErr) {
				t.Fatalf("error %v is not a *ProviderError", err)
			}
			if provErr.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", provErr.Kind, tt.wantKind)
			}
			if provErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", provErr.StatusCode, tt.status)
			}
			if len(provErr.Message) > 300 {
				t.Errorf("Message was not truncated: %d bytes", len(provErr.Message))
			}
		})
	}
}

func TestAdapter_TransportErrorHidesKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	adapter := NewAdapter(providers.Config{APIKey: "super-secret-gemini-key", BaseURL: server.URL, Timeout: 20 * time.Millisecond},
		Model{Version: "v1", Name: "gemini-1.5-flash"})

	_, err := adapter.Invoke(context.Background(), providers.NewGenerateTextRequest("hi"))
	if errorKind(err) != providers.ErrorUnreachable {
		t.Fatalf("errorKind() = %s, want unreachable", errorKind(err))
	}
	if strings.Contains(err.Error(), "super-secret-gemini-key") {
		t.Errorf("error leaks the API key: %v", err)
	}
}

func TestNormalizeGenerateContent(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "concatenates parts", body: flashFixture, want: "Use a 20 A breaker with 12 AWG copper."},
		{name: "blocked prompt", body: `{"promptFeedback":{"blockReason":"SAFETY"}}`, wantErr: true},
		{name: "no candidates", body: `{"candidates":[]}`, wantErr: true},
		{name: "empty parts", body: `{"candidates":[{"content":{"parts":[]},"finishReason":"MAX_TOKENS"}]}`, wantErr: true},
		{name: "blank text", body: `{"candidates":[{"content":{"parts":[{"text":" "}]}}]}`, wantErr: true},
		{name: "not json", body: `candidates`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := NormalizeGenerateContent("gemini-1.5-flash", []byte(tt.body))
			if tt.wantErr {
				if errorKind(err) != providers.ErrorMalformedResponse {
					t.Errorf("errorKind() = %s, want malformed_response", errorKind(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeGenerateContent() error = %v", err)
			}
			if result.Text.Text != tt.want {
				t.Errorf("Text = %q, want %q", result.Text.Text, tt.want)
			}
		})
	}
}

func TestGenerateContentRequestPrompt(t *testing.T) {
	var req GenerateContentRequest
	if err := json.Unmarshal([]byte(`{"contents":[{"parts":[{"text":"first"},{"text":"second"}]}]}`), &req); err != nil {
		t.Fatal(err)
	}
	if req.Prompt() != "first" {
		t.Errorf("Prompt() = %q, want first", req.Prompt())
	}

	var empty *GenerateContentRequest
	if empty.Prompt() != "" {
		t.Error("Prompt() of nil request should be empty")
	}
}

func errorKind(err error) providers.ErrorKind {
	var provErr *providers.ProviderError
	if errors.As(err, &provErr) {
		return provErr.Kind
	}
	return ""
}
