package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/upb/electria-gateway/services/providers"
)

const (
	chatCompletionsPath = "/chat/completions"

	deepSeekBaseURL = "https://api.deepseek.com"
	deepSeekModel   = "deepseek-chat"

	// DefaultSystemPrompt is sent ahead of every user prompt
	DefaultSystemPrompt = "You are ElectrIA, an expert electrical engineering assistant. Always output valid JSON when requested."

	// DefaultTemperature is the sampling temperature used when none is configured
	DefaultTemperature = 0.7
)

// TokenSource supplies the bearer token of one request
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource for plain API keys
type StaticToken string

// Token returns the key itself
func (s StaticToken) Token() (string, error) {
	return string(s), nil
}

// ChatConfig configures an OpenAI-compatible chat completions adapter
type ChatConfig struct {
	providers.Config

	// Model sent in the request body
	Model string

	// SystemPrompt is prepended as a system message when non-empty
	SystemPrompt string

	// Temperature is sent when positive
	Temperature float64

	// Tokens overrides the static bearer token built from APIKey
	Tokens TokenSource
}

// Adapter implements providers.Adapter for OpenAI-compatible chat completions APIs
type Adapter struct {
	name       string
	config     ChatConfig
	tokens     TokenSource
	httpClient *http.Client
}

// NewAdapter creates a chat completions adapter
func NewAdapter(config ChatConfig) *Adapter {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	tokens := config.Tokens
	if tokens == nil {
		tokens = StaticToken(config.APIKey)
	}

	name := config.Name
	if name == "" {
		name = config.Model
	}

	return &Adapter{
		name:       name,
		config:     config,
		tokens:     tokens,
		httpClient: providers.NewHTTPClient(config.Timeout),
	}
}

// NewDeepSeekAdapter creates the DeepSeek adapter
func NewDeepSeekAdapter(config ChatConfig) *Adapter {
	if config.Name == "" {
		config.Name = "deepseek"
	}
	if config.BaseURL == "" {
		config.BaseURL = deepSeekBaseURL
	}
	if config.Model == "" {
		config.Model = deepSeekModel
	}
	return NewAdapter(config)
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return a.name
}

// Kind returns the request kind served
func (a *Adapter) Kind() providers.RequestKind {
	return providers.KindGenerateText
}

// Invoke performs one chat completion call
func (a *Adapter) Invoke(ctx context.Context, req *providers.Request) (*providers.Result, error) {
	providers.MustMatchKind(a, req)

	if a.config.APIKey == "" {
		return nil, providers.NewProviderError(a.name, providers.ErrorNotConfigured, 0, "API key not set", nil)
	}

	token, err := a.tokens.Token()
	if err != nil {
		return nil, providers.NewProviderError(a.name, providers.ErrorUnauthorized, 0, "failed to build credentials", err)
	}

	reqBody, err := json.Marshal(a.buildChatRequest(req.Prompt()))
	if err != nil {
		return nil, providers.NewProviderError(a.name, providers.ErrorMalformedResponse, 0, "failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+chatCompletionsPath, bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.name, providers.ErrorUnreachable, 0, "failed to create request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	body, err := providers.Do(a.httpClient, a.name, httpReq)
	if err != nil {
		return nil, err
	}

	return NormalizeChatCompletion(a.name, body)
}

func (a *Adapter) buildChatRequest(prompt string) *ChatRequest {
	chatReq := &ChatRequest{
		Model:    a.config.Model,
		Messages: make([]ChatMessage, 0, 2),
	}

	if a.config.SystemPrompt != "" {
		chatReq.Messages = append(chatReq.Messages, ChatMessage{Role: "system", Content: a.config.SystemPrompt})
	}
	chatReq.Messages = append(chatReq.Messages, ChatMessage{Role: "user", Content: prompt})

	if a.config.Temperature > 0 {
		temperature := a.config.Temperature
		chatReq.Temperature = &temperature
	}

	return chatReq
}

// NormalizeChatCompletion parses a chat completions body into a text result.
// The first choice must carry non-blank message content.
func NormalizeChatCompletion(provider string, body []byte) (*providers.Result, error) {
	var resp ChatResponse
	if err := providers.DecodeJSON(provider, body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, providers.Malformed(provider, "response has no choices")
	}

	choice := resp.Choices[0]
	if strings.TrimSpace(choice.Message.Content) == "" {
		return nil, providers.Malformed(provider, "first choice has empty content")
	}

	return providers.NewTextResult(provider, providers.TextResult{
		Text:         choice.Message.Content,
		Model:        resp.Model,
		FinishReason: choice.FinishReason,
	}), nil
}

// OpenAI-compatible request/response types

type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// compile-time check
var _ providers.Adapter = (*Adapter)(nil)
