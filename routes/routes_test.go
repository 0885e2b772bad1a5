package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/upb/electria-gateway/app"
	"github.com/upb/electria-gateway/config"
)

type upstreams struct {
	gemini   *httptest.Server
	dolarAPI *httptest.Server

	geminiFailing atomic.Bool
	rateFailing   atomic.Bool
}

func newUpstreams(t *testing.T) *upstreams {
	t.Helper()
	u := &upstreams{}

	u.gemini = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u.geminiFailing.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"API key not valid"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Un kVA es un kilovoltio-amperio."}]}}]}`))
	}))
	t.Cleanup(u.gemini.Close)

	u.dolarAPI = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u.rateFailing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fuente":"oficial","nombre":"Oficial","promedio":36.58,"fechaActualizacion":"2024-05-31T20:01:45.000Z"}`))
	}))
	t.Cleanup(u.dolarAPI.Close)

	return u
}

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()

	deps, err := app.NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(context.Background()) })

	ts := httptest.NewServer(SetupRoutes(deps))
	t.Cleanup(ts.Close)
	return ts
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthEndpoints(t *testing.T) {
	u := newUpstreams(t)
	ts := newTestServer(t, testConfig(u, true))

	for _, path := range []string{"/health", "/healthz"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + path)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

			data := decode(t, resp)["data"].(map[string]interface{})
			assert.Equal(t, "healthy", data["status"])
		})
	}

	t.Run("readiness with a text provider", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/readyz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		data := decode(t, resp)["data"].(map[string]interface{})
		checks := data["checks"].(map[string]interface{})
		assert.Equal(t, "configured", checks["text_providers"])
		assert.Equal(t, "not_configured", checks["rate_cache"])
	})

	t.Run("ai health redacts credentials", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/health/ai")
		require.NoError(t, err)
		defer resp.Body.Close()

		raw := decode(t, resp)
		data := raw["data"].(map[string]interface{})
		assert.Equal(t, "operational", data["status"])

		encoded, err := json.Marshal(raw)
		require.NoError(t, err)
		assert.NotContains(t, string(encoded), "AIzaSyABCDEFGHIJKLMNOPwxyz")
	})

	t.Run("status endpoint returns version info", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/status")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		data := decode(t, resp)["data"].(map[string]interface{})
		assert.Equal(t, app.Version, data["version"])
		assert.Equal(t, "test", data["environment"])
		assert.Contains(t, data, "providers")
	})
}

func TestReadinessWithoutTextProviders(t *testing.T) {
	u := newUpstreams(t)
	ts := newTestServer(t, testConfig(u, false))

	resp, err := http.Get(ts.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	data := decode(t, resp)["data"].(map[string]interface{})
	assert.Equal(t, "unhealthy", data["status"])
}

func TestGenerateContent(t *testing.T) {
	u := newUpstreams(t)
	ts := newTestServer(t, testConfig(u, true))

	t.Run("flat prompt", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/generate-content", "application/json", strings.NewReader(`{"prompt":"¿Qué es un kVA?"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode(t, resp)
		assert.Equal(t, "Un kVA es un kilovoltio-amperio.", body["text"])
		assert.Equal(t, "gemini-1.5-flash", body["provider"])
		assert.NotEmpty(t, body["candidates"])
	})

	t.Run("gemini contents schema", func(t *testing.T) {
		payload := `{"contents":[{"parts":[{"text":"¿Qué es un kVA?"}]}]}`
		resp, err := http.Post(ts.URL+"/api/v1/generate", "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		data := decode(t, resp)["data"].(map[string]interface{})
		assert.Equal(t, "Un kVA es un kilovoltio-amperio.", data["text"])
	})

	t.Run("empty prompt", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/generate-content", "application/json", strings.NewReader(`{"prompt":""}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("every provider failing", func(t *testing.T) {
		u.geminiFailing.Store(true)
		defer u.geminiFailing.Store(false)

		resp, err := http.Post(ts.URL+"/generate-content?diagnostics=true", "application/json", strings.NewReader(`{"prompt":"hola"}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		body := decode(t, resp)
		assert.Equal(t, "service_unavailable", body["error"])
		details := body["details"].(map[string]interface{})
		attempts := details["attempts"].([]interface{})
		require.Len(t, attempts, 1)
		assert.Equal(t, "unauthorized", attempts[0].(map[string]interface{})["error_kind"])
	})
}

func hangingServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestGenerateContentOutlivesWriteTimeout(t *testing.T) {
	u := newUpstreams(t)
	deepseek := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Respuesta de DeepSeek."}}]}`))
	}))
	t.Cleanup(deepseek.Close)

	cfg := testConfig(u, false)
	cfg.Server.WriteTimeout = 300 * time.Millisecond
	cfg.Providers.Zhipu = config.ZhipuConfig{
		APIKey:  "zhipu-id.zhipu-secret",
		BaseURL: hangingServer(t).URL,
		Model:   "glm-4",
		Timeout: 200 * time.Millisecond,
	}
	cfg.Providers.Gemini.APIKey = "AIzaSyABCDEFGHIJKLMNOPwxyz"
	cfg.Providers.Gemini.BaseURL = hangingServer(t).URL
	cfg.Providers.Gemini.Timeout = 200 * time.Millisecond
	cfg.Providers.DeepSeek = config.DeepSeekConfig{
		APIKey:  "sk-deepseek",
		BaseURL: deepseek.URL,
		Model:   "deepseek-chat",
		Timeout: 200 * time.Millisecond,
	}
	ts := newTestServer(t, cfg)

	resp, err := http.Post(ts.URL+"/generate-content", "application/json", strings.NewReader(`{"prompt":"hola"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "Respuesta de DeepSeek.", body["text"])
	assert.Equal(t, "deepseek", body["provider"])
}

func TestRateEndpoints(t *testing.T) {
	u := newUpstreams(t)
	ts := newTestServer(t, testConfig(u, false))

	t.Run("live rate", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/bcv")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode(t, resp)
		assert.Equal(t, 36.58, body["rate"])
		assert.Equal(t, "dolarapi", body["source"])
		assert.Equal(t, "2024-05-31T20:01:45.000Z", body["updated_at"])
	})

	t.Run("fallback rate", func(t *testing.T) {
		u.rateFailing.Store(true)
		defer u.rateFailing.Store(false)

		resp, err := http.Get(ts.URL + "/api/v1/rates/oficial")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		data := decode(t, resp)["data"].(map[string]interface{})
		assert.Equal(t, "fallback", data["source"])
		assert.Equal(t, true, data["fallback"])
	})

	t.Run("invalid diagnostics flag", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/bcv?diagnostics=maybe")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRouting(t *testing.T) {
	u := newUpstreams(t)
	ts := newTestServer(t, testConfig(u, false))

	testCases := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"metrics", "GET", "/metrics", http.StatusOK},
		{"not found", "GET", "/api/v1/nonexistent", http.StatusNotFound},
		{"wrong method", "GET", "/generate-content", http.StatusMethodNotAllowed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, ts.URL+tc.path, nil)
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tc.expectedStatus, resp.StatusCode, "endpoint: %s %s", tc.method, tc.path)
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	u := newUpstreams(t)
	ts := newTestServer(t, testConfig(u, false))

	req, err := http.NewRequest("OPTIONS", ts.URL+"/generate-content", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRequestIDPropagation(t *testing.T) {
	u := newUpstreams(t)
	ts := newTestServer(t, testConfig(u, false))

	req, err := http.NewRequest("GET", ts.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "front-end-42")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "front-end-42", resp.Header.Get("X-Request-ID"))
}

// Test helpers

func testConfig(u *upstreams, withText bool) *config.Config {
	cfg := &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:               "127.0.0.1",
			Port:               8001,
			ReadTimeout:        5 * time.Second,
			WriteTimeout:       10 * time.Second,
			ShutdownTimeout:    5 * time.Second,
			CORSAllowedOrigins: []string{"http://localhost:*"},
		},
		Providers: config.ProvidersConfig{
			Gemini: config.GeminiConfig{
				BaseURL: u.gemini.URL,
				Models:  []string{"v1/gemini-1.5-flash"},
				Timeout: 2 * time.Second,
			},
			AI: config.AIConfig{Temperature: 0.7},
		},
		Rates: config.RatesConfig{
			DolarAPIEnabled: true,
			DolarAPIBaseURL: u.dolarAPI.URL,
			DolarAPITimeout: 2 * time.Second,
		},
		Failover: config.FailoverConfig{
			Strategy:          "sequential",
			FallbackRate:      decimal.RequireFromString("50"),
			DefaultInstrument: "oficial",
		},
		Observability: config.ObservabilityConfig{
			LogLevel:       "debug",
			LogFormat:      "console",
			MetricsEnabled: true,
		},
	}
	if withText {
		cfg.Providers.Gemini.APIKey = "AIzaSyABCDEFGHIJKLMNOPwxyz"
	}
	return cfg
}
