package openai

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	zhipuBaseURL  = "https://open.bigmodel.cn/api/paas/v4"
	zhipuModel    = "glm-4"
	zhipuTokenTTL = 60 * time.Second
)

// ErrInvalidZhipuKey is returned when the key is not of the form "id.secret"
var ErrInvalidZhipuKey = errors.New("zhipu api key must have the form id.secret")

// ZhipuTokenSource signs the short-lived HS256 tokens the GLM API expects instead of raw keys
type ZhipuTokenSource struct {
	apiKey string
	ttl    time.Duration
	now    func() time.Time
}

// NewZhipuTokenSource creates a token source for apiKey
func NewZhipuTokenSource(apiKey string) *ZhipuTokenSource {
	return &ZhipuTokenSource{
		apiKey: apiKey,
		ttl:    zhipuTokenTTL,
		now:    time.Now,
	}
}

// Token signs a fresh token. Timestamps are in milliseconds.
func (z *ZhipuTokenSource) Token() (string, error) {
	id, secret, ok := strings.Cut(z.apiKey, ".")
	if !ok || id == "" || secret == "" {
		return "", ErrInvalidZhipuKey
	}

	now := z.now()
	claims := jwt.MapClaims{
		"api_key":   id,
		"exp":       now.Add(z.ttl).UnixMilli(),
		"timestamp": now.UnixMilli(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["sign_type"] = "SIGN"

	return token.SignedString([]byte(secret))
}

// NewZhipuAdapter creates the Zhipu GLM adapter
func NewZhipuAdapter(config ChatConfig) *Adapter {
	if config.Name == "" {
		config.Name = "zhipu"
	}
	if config.BaseURL == "" {
		config.BaseURL = zhipuBaseURL
	}
	if config.Model == "" {
		config.Model = zhipuModel
	}
	if config.Tokens == nil {
		config.Tokens = NewZhipuTokenSource(config.APIKey)
	}
	return NewAdapter(config)
}
