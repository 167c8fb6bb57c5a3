package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kbforge/ingestd/internal/embedding"
	"github.com/kbforge/ingestd/internal/ingest"
)

// defaultRetryAfterSeconds is the backoff hint returned when a throttling
// provider did not supply one.
const defaultRetryAfterSeconds = 30

// providerErrorBody is the JSON shape for failures surfaced by an embedding
// provider. Message is always sanitized before it reaches this layer.
type providerErrorBody struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	ErrorType    string `json:"error_type"`
	ErrorCode    string `json:"error_code"`
	APIKeyPrefix string `json:"api_key_prefix,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
	RetryAfter   int    `json:"retry_after,omitempty"`
}

// writeProviderError maps normalized provider failures onto HTTP responses.
// Anything outside the provider taxonomy becomes a generic 500.
func writeProviderError(w http.ResponseWriter, log *zap.Logger, err error) {
	var (
		authErr  *embedding.AuthenticationError
		quotaErr *embedding.QuotaExhaustedError
		rateErr  *embedding.RateLimitError
		apiErr   *embedding.APIError
	)
	switch {
	case errors.As(err, &authErr):
		writeJSON(w, http.StatusUnauthorized, providerErrorBody{
			Error:        authErr.Error(),
			Message:      authErr.Error(),
			ErrorType:    string(authErr.Kind()),
			ErrorCode:    providerErrorCode(authErr.Provider(), "AUTH_FAILED"),
			APIKeyPrefix: authErr.APIKeyPrefix,
		})
	case errors.As(err, &quotaErr):
		writeJSON(w, http.StatusTooManyRequests, providerErrorBody{
			Error:      quotaErr.Error(),
			Message:    quotaErr.Error(),
			ErrorType:  string(quotaErr.Kind()),
			ErrorCode:  providerErrorCode(quotaErr.Provider(), "QUOTA_EXHAUSTED"),
			TokensUsed: quotaErr.TokensUsed,
		})
	case errors.As(err, &rateErr):
		retryAfter := rateErr.RetryAfterSeconds
		if retryAfter <= 0 {
			retryAfter = defaultRetryAfterSeconds
		}
		writeJSON(w, http.StatusTooManyRequests, providerErrorBody{
			Error:      rateErr.Error(),
			Message:    rateErr.Error(),
			ErrorType:  string(rateErr.Kind()),
			ErrorCode:  providerErrorCode(rateErr.Provider(), "RATE_LIMIT"),
			RetryAfter: retryAfter,
		})
	case errors.As(err, &apiErr):
		writeJSON(w, http.StatusBadGateway, providerErrorBody{
			Error:     apiErr.Error(),
			Message:   apiErr.Error(),
			ErrorType: string(apiErr.Kind()),
			ErrorCode: providerErrorCode(apiErr.Provider(), "API_ERROR"),
		})
	case errors.Is(err, ingest.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "query is required")
	case errors.Is(err, ingest.ErrSearchUnavailable):
		writeError(w, http.StatusServiceUnavailable, "search is not configured")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, "request canceled")
	default:
		log.Error("search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func providerErrorCode(provider embedding.Provider, suffix string) string {
	name := strings.ToUpper(string(provider))
	if name == "" {
		name = "UNKNOWN"
	}
	return name + "_" + suffix
}
