package embedding

import (
	"regexp"
	"strconv"
	"strings"
)

// Provider identifies an embedding backend for error handling purposes.
type Provider string

// Known providers. Unknown identifiers fall back to ProviderOpenAI so a
// classification miss never becomes a second, confusing error.
const (
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
	ProviderAnthropic Provider = "anthropic"
	ProviderOllama    Provider = "ollama"
)

// Adapter classifies and sanitizes raw error text for one provider. The
// provider set is closed, so adapters are plain values dispatched through a
// lookup table rather than an open plugin interface.
type Adapter struct {
	provider Provider
	fallback string
	keyToken func(word string) bool
}

// Raw messages longer than this are assumed to contain dumped payloads and are
// replaced wholesale by the fallback.
const maxRawErrorLen = 2000

const (
	redactedKey  = "[REDACTED_KEY]"
	redactedURL  = "[REDACTED_URL]"
	redactedOrg  = "[REDACTED_ORG]"
	redactedProj = "[REDACTED_PROJ]"
	redactedReq  = "[REDACTED_REQ]"
	redactedAuth = "[REDACTED_AUTH]"
)

var (
	urlPattern        = regexp.MustCompile(`(?i)https?://[a-zA-Z0-9.-]+/[^\s]*`)
	orgPattern        = regexp.MustCompile(`(?i)org-[a-zA-Z0-9]{24}`)
	projPattern       = regexp.MustCompile(`(?i)proj_[a-zA-Z0-9]+`)
	reqPattern        = regexp.MustCompile(`(?i)req_[a-zA-Z0-9]+`)
	quotedAuthPattern = regexp.MustCompile(`(?i)"[^"]*(?:auth|bearer)[^"]*"`)
	bearerPattern     = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]+`)
	retryAfterPattern = regexp.MustCompile(`(?i)retry[-\s]?after[:\s]+(\d+)`)
)

var adapters = map[Provider]Adapter{
	ProviderOpenAI: {
		provider: ProviderOpenAI,
		fallback: "OpenAI API encountered an error. Please verify your API key and quota.",
		keyToken: func(w string) bool {
			// sk- plus exactly 48 trailing characters; sk-ant- keys belong
			// to the Anthropic adapter.
			return strings.HasPrefix(w, "sk-") && !strings.HasPrefix(w, "sk-ant-") && len(w) == 51
		},
	},
	ProviderGoogle: {
		provider: ProviderGoogle,
		fallback: "Google AI API encountered an error. Please verify your API key.",
		keyToken: func(w string) bool {
			return strings.HasPrefix(w, "AIza") && len(w) == 39
		},
	},
	ProviderAnthropic: {
		provider: ProviderAnthropic,
		fallback: "Anthropic API encountered an error. Please verify your API key.",
		keyToken: func(w string) bool {
			return strings.HasPrefix(w, "sk-ant-") && len(w) > len("sk-ant-")+20
		},
	},
	ProviderOllama: {
		provider: ProviderOllama,
		fallback: "Local embedding provider encountered an error. Verify that Ollama is running and reachable.",
		keyToken: func(string) bool { return false },
	},
}

// AdapterFor returns the adapter registered for the provider, falling back to
// the OpenAI-compatible adapter for unknown identifiers.
func AdapterFor(provider Provider) Adapter {
	if a, ok := adapters[Provider(strings.ToLower(string(provider)))]; ok {
		return a
	}
	return adapters[ProviderOpenAI]
}

// DetectProvider guesses the provider from raw error text when no provider
// context is available. Checks run in fixed priority order; the
// OpenAI-compatible adapter is the default guess.
func DetectProvider(raw string) Provider {
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "anthropic") || strings.Contains(raw, "sk-ant-"):
		return ProviderAnthropic
	case strings.Contains(lower, "google") || strings.Contains(raw, "AIza"):
		return ProviderGoogle
	case strings.Contains(lower, "ollama") || strings.Contains(lower, "localhost"):
		return ProviderOllama
	default:
		return ProviderOpenAI
	}
}

// Classify maps raw provider error text to a taxonomy kind by case-insensitive
// substring checks. Authentication wins over quota and rate limiting: an
// invalid key frequently also triggers quota-like wording, and reporting it as
// a quota problem sends the operator down the wrong path.
func (a Adapter) Classify(raw string) Kind {
	lower := strings.ToLower(raw)
	statusSignal := strings.Contains(lower, "401") || strings.Contains(lower, "403")
	keySignal := strings.Contains(lower, "key") ||
		strings.Contains(lower, "invalid") ||
		strings.Contains(lower, "incorrect")

	switch {
	case statusSignal && keySignal:
		return KindAuthentication
	case strings.Contains(lower, "quota") ||
		strings.Contains(lower, "billing") ||
		strings.Contains(lower, "credits") ||
		strings.Contains(lower, "usage"):
		return KindQuotaExhausted
	case strings.Contains(lower, "rate") && strings.Contains(lower, "limit"):
		return KindRateLimit
	default:
		return KindAPI
	}
}

// Sanitize produces a safe-to-display version of raw provider error text.
// Empty, whitespace-only, or oversized input returns the provider's fixed
// fallback. Otherwise key tokens are redacted word-by-word, then URLs and
// org/project/request/auth identifiers are redacted by pattern, and finally a
// denylist guard discards the whole message in favor of the fallback if any
// sensitive word survived. The guard is deliberately coarse: leaking nothing
// beats preserving detail.
func (a Adapter) Sanitize(raw string) string {
	if strings.TrimSpace(raw) == "" || len(raw) > maxRawErrorLen {
		return a.fallback
	}

	sanitized := a.redactKeyTokens(raw)

	urlRedacted := urlPattern.MatchString(sanitized)
	sanitized = urlPattern.ReplaceAllString(sanitized, redactedURL)
	sanitized = orgPattern.ReplaceAllString(sanitized, redactedOrg)
	sanitized = projPattern.ReplaceAllString(sanitized, redactedProj)
	sanitized = reqPattern.ReplaceAllString(sanitized, redactedReq)
	sanitized = quotedAuthPattern.ReplaceAllString(sanitized, `"`+redactedAuth+`"`)
	sanitized = bearerPattern.ReplaceAllString(sanitized, redactedAuth)

	if a.containsDenied(sanitized, urlRedacted) {
		return a.fallback
	}
	return sanitized
}

// Normalize converts raw provider error text into exactly one taxonomy error
// carrying a sanitized message.
func (a Adapter) Normalize(raw string) ProviderError {
	safe := a.Sanitize(raw)
	switch a.Classify(raw) {
	case KindAuthentication:
		return NewAuthenticationError(a.provider, safe, a.findKeyPrefix(raw))
	case KindQuotaExhausted:
		return NewQuotaExhaustedError(a.provider, safe, 0)
	case KindRateLimit:
		return NewRateLimitError(a.provider, safe, parseRetryAfter(raw))
	default:
		return NewAPIError(a.provider, safe)
	}
}

// Fallback returns the provider's fixed generic message.
func (a Adapter) Fallback() string {
	return a.fallback
}

func (a Adapter) redactKeyTokens(raw string) string {
	if a.keyToken == nil {
		return raw
	}
	words := strings.Fields(raw)
	changed := false
	for i, w := range words {
		if a.keyToken(w) {
			words[i] = redactedKey
			changed = true
		}
	}
	if !changed {
		return raw
	}
	return strings.Join(words, " ")
}

func (a Adapter) containsDenied(sanitized string, urlRedacted bool) bool {
	lower := strings.ToLower(sanitized)
	if strings.Contains(lower, "internal") ||
		strings.Contains(lower, "server") ||
		strings.Contains(lower, "token") {
		return true
	}
	// "endpoint" only counts when no URL redaction fired; with the URL gone
	// the word alone no longer points anywhere.
	return !urlRedacted && strings.Contains(lower, "endpoint")
}

// findKeyPrefix pulls the leading characters of any key-shaped token so the
// authentication error can hint at which key failed. Truncation to four
// characters happens in the error constructor.
func (a Adapter) findKeyPrefix(raw string) string {
	if a.keyToken == nil {
		return ""
	}
	for _, w := range strings.Fields(raw) {
		if a.keyToken(w) {
			return w
		}
	}
	return ""
}

func parseRetryAfter(raw string) int {
	m := retryAfterPattern.FindStringSubmatch(raw)
	if len(m) != 2 {
		return 0
	}
	seconds, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return seconds
}
