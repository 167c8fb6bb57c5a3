// Package embedding turns text into vectors through pluggable LLM providers
// and normalizes their heterogeneous failures into a closed error taxonomy.
package embedding

import "fmt"

// Kind is the closed set of provider failure categories. Callers branch on
// Kind; the raw provider text is classified exactly once at the adapter
// boundary and never re-parsed downstream.
type Kind string

// Provider failure kinds.
const (
	KindAuthentication Kind = "authentication_failed"
	KindQuotaExhausted Kind = "quota_exhausted"
	KindRateLimit      Kind = "rate_limit"
	KindAPI            Kind = "api_error"
)

// ProviderError is implemented by every taxonomy error. Messages carried by a
// ProviderError are already sanitized and safe to show to clients.
type ProviderError interface {
	error
	Kind() Kind
	Provider() Provider
}

// AuthenticationError signals an invalid or expired provider credential.
type AuthenticationError struct {
	provider Provider
	message  string

	// APIKeyPrefix is the truncated ("sk-1…") prefix of the offending key,
	// empty when unknown.
	APIKeyPrefix string
}

// NewAuthenticationError builds an AuthenticationError. keyPrefix is truncated
// so at most four characters of the original key survive.
func NewAuthenticationError(provider Provider, message, keyPrefix string) *AuthenticationError {
	return &AuthenticationError{
		provider:     provider,
		message:      message,
		APIKeyPrefix: truncateKeyPrefix(keyPrefix),
	}
}

func (e *AuthenticationError) Error() string      { return e.message }
func (e *AuthenticationError) Kind() Kind         { return KindAuthentication }
func (e *AuthenticationError) Provider() Provider { return e.provider }

// QuotaExhaustedError signals the provider account has no remaining credits.
type QuotaExhaustedError struct {
	provider Provider
	message  string

	// TokensUsed is the token count reported by the provider, zero when unknown.
	TokensUsed int
}

// NewQuotaExhaustedError builds a QuotaExhaustedError.
func NewQuotaExhaustedError(provider Provider, message string, tokensUsed int) *QuotaExhaustedError {
	return &QuotaExhaustedError{provider: provider, message: message, TokensUsed: tokensUsed}
}

func (e *QuotaExhaustedError) Error() string      { return e.message }
func (e *QuotaExhaustedError) Kind() Kind         { return KindQuotaExhausted }
func (e *QuotaExhaustedError) Provider() Provider { return e.provider }

// RateLimitError signals the provider throttled the request.
type RateLimitError struct {
	provider Provider
	message  string

	// RetryAfterSeconds is the provider-supplied backoff hint, zero when the
	// provider did not send one.
	RetryAfterSeconds int
}

// NewRateLimitError builds a RateLimitError.
func NewRateLimitError(provider Provider, message string, retryAfterSeconds int) *RateLimitError {
	return &RateLimitError{provider: provider, message: message, RetryAfterSeconds: retryAfterSeconds}
}

func (e *RateLimitError) Error() string      { return e.message }
func (e *RateLimitError) Kind() Kind         { return KindRateLimit }
func (e *RateLimitError) Provider() Provider { return e.provider }

// APIError is the generic fallback kind wrapping a sanitized provider message.
type APIError struct {
	provider Provider
	message  string
}

// NewAPIError builds an APIError from an already-sanitized message.
func NewAPIError(provider Provider, message string) *APIError {
	return &APIError{provider: provider, message: message}
}

func (e *APIError) Error() string      { return e.message }
func (e *APIError) Kind() Kind         { return KindAPI }
func (e *APIError) Provider() Provider { return e.provider }

// truncateKeyPrefix keeps at most four characters of a key prefix so even the
// hint we surface cannot leak meaningful key material.
func truncateKeyPrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	if len(prefix) <= 4 {
		return prefix
	}
	return fmt.Sprintf("%s…", prefix[:4])
}
