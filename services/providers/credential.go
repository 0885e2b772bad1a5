package providers

import "strings"

const (
	previewHead = 8
	previewTail = 4
)

// RedactCredential returns a preview safe to expose on status endpoints.
// Only credentials long enough to keep most characters hidden get a head/tail preview.
func RedactCredential(secret string) string {
	secret = strings.TrimSpace(secret)
	switch {
	case secret == "":
		return "not set"
	case len(secret) <= previewHead+previewTail:
		return "configured"
	default:
		return secret[:previewHead] + "..." + secret[len(secret)-previewTail:]
	}
}

// CredentialPresent returns an activation predicate that holds while credential is non-empty
func CredentialPresent(credential string) ActivationFunc {
	present := strings.TrimSpace(credential) != ""
	return func() bool { return present }
}

// Always is the activation predicate of providers that need no credential
func Always() bool {
	return true
}

// Never is the activation predicate of explicitly disabled providers
func Never() bool {
	return false
}
