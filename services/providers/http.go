package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// maxResponseBytes caps how much of an upstream body is read
const maxResponseBytes = 4 << 20

// Config holds common configuration for HTTP adapters
type Config struct {
	// Name overrides the provider name reported in outcomes
	Name string

	// APIKey for authentication
	APIKey string

	// BaseURL for the API
	BaseURL string

	// Timeout bounds the single upstream call
	Timeout time.Duration

	// Additional headers
	Headers map[string]string
}

// NewHTTPClient returns a client whose timeout bounds every call made by one adapter
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// Do issues req once and returns the body of a 200 response.
// Any other status, or a transport or read failure, is returned as a classified *ProviderError.
func Do(client *http.Client, provider string, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, NewProviderError(provider, ClassifyTransportError(err), 0, "HTTP request failed", stripURL(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, NewProviderError(provider, ErrorUnreachable, resp.StatusCode, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, NewProviderError(provider, ClassifyStatus(resp.StatusCode), resp.StatusCode,
			fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, Preview(body)), nil)
	}

	return body, nil
}

// stripURL drops the request URL from transport errors; some providers carry the key in the query string
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

// DecodeJSON unmarshals body into v, reporting failures as malformed responses
func DecodeJSON(provider string, body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return NewProviderError(provider, ErrorMalformedResponse, http.StatusOK, "failed to unmarshal response", err)
	}
	return nil
}

// Malformed builds a malformed-response error for a body that parsed but had the wrong shape
func Malformed(provider, reason string) *ProviderError {
	return NewProviderError(provider, ErrorMalformedResponse, http.StatusOK, reason, nil)
}
