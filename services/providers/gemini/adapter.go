package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/upb/electria-gateway/services/providers"
)

const (
	defaultBaseURL    = "https://generativelanguage.googleapis.com"
	defaultAPIVersion = "v1beta"
)

// Model identifies one Gemini model and the API version that serves it
type Model struct {
	Version string
	Name    string
}

// ParseModel parses "version/name" (e.g. "v1beta/gemini-1.5-flash-8b"); a bare name uses v1beta
func ParseModel(s string) (Model, error) {
	s = strings.TrimSpace(s)
	version, name, ok := strings.Cut(s, "/")
	if !ok {
		version, name = defaultAPIVersion, s
	}
	if version == "" || name == "" {
		return Model{}, fmt.Errorf("invalid gemini model %q", s)
	}
	return Model{Version: version, Name: name}, nil
}

// String returns the "version/name" form
func (m Model) String() string {
	return m.Version + "/" + m.Name
}

// Adapter implements providers.Adapter for one Gemini model
type Adapter struct {
	config     providers.Config
	model      Model
	httpClient *http.Client
}

// NewAdapter creates a Gemini adapter bound to model
func NewAdapter(config providers.Config, model Model) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Name == "" {
		config.Name = model.Name
	}

	return &Adapter{
		config:     config,
		model:      model,
		httpClient: providers.NewHTTPClient(config.Timeout),
	}
}

// Name returns the provider name, the model name unless overridden
func (a *Adapter) Name() string {
	return a.config.Name
}

// Kind returns the request kind served
func (a *Adapter) Kind() providers.RequestKind {
	return providers.KindGenerateText
}

// Model returns the bound model
func (a *Adapter) Model() Model {
	return a.model
}

// Invoke performs one generateContent call
func (a *Adapter) Invoke(ctx context.Context, req *providers.Request) (*providers.Result, error) {
	providers.MustMatchKind(a, req)

	if a.config.APIKey == "" {
		return nil, providers.NewProviderError(a.Name(), providers.ErrorNotConfigured, 0, "API key not set", nil)
	}

	reqBody, err := json.Marshal(NewGenerateContentRequest(req.Prompt()))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.ErrorMalformedResponse, 0, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(), bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.ErrorUnreachable, 0, "failed to create request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	body, err := providers.Do(a.httpClient, a.Name(), httpReq)
	if err != nil {
		return nil, err
	}

	result, err := NormalizeGenerateContent(a.Name(), body)
	if err != nil {
		return nil, err
	}
	if result.Text.Model == "" {
		result.Text.Model = a.model.Name
	}
	return result, nil
}

func (a *Adapter) endpoint() string {
	return fmt.Sprintf("%s/%s/models/%s:generateContent?key=%s",
		a.config.BaseURL, a.model.Version, a.model.Name, url.QueryEscape(a.config.APIKey))
}

// NormalizeGenerateContent parses a generateContent body into a text result.
// Blocked prompts, missing candidates and candidates without text are malformed.
func NormalizeGenerateContent(provider string, body []byte) (*providers.Result, error) {
	var resp GenerateContentResponse
	if err := providers.DecodeJSON(provider, body, &resp); err != nil {
		return nil, err
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, providers.Malformed(provider, "prompt blocked: "+resp.PromptFeedback.BlockReason)
	}

	if len(resp.Candidates) == 0 {
		return nil, providers.Malformed(provider, "response has no candidates")
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}

	if strings.TrimSpace(text.String()) == "" {
		reason := "first candidate has no text"
		if candidate.FinishReason != "" {
			reason += " (finish reason " + candidate.FinishReason + ")"
		}
		return nil, providers.Malformed(provider, reason)
	}

	return providers.NewTextResult(provider, providers.TextResult{
		Text:         text.String(),
		Model:        resp.ModelVersion,
		FinishReason: candidate.FinishReason,
	}), nil
}

// compile-time check
var _ providers.Adapter = (*Adapter)(nil)
