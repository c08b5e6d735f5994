package llm

import "fmt"

// AuthError indicates the provider rejected credentials. Never retried.
type AuthError struct {
	Provider string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %s", e.Provider, e.Message)
}

// RateLimitError indicates the provider is throttling requests. IsDaily
// distinguishes a daily-quota exhaustion (no further retry is useful) from
// a transient per-minute rate limit (retry after RetryAfter seconds).
type RateLimitError struct {
	Provider   string
	RetryAfter float64
	IsDaily    bool
}

func (e *RateLimitError) Error() string {
	if e.IsDaily {
		return fmt.Sprintf("%s: daily quota exhausted", e.Provider)
	}
	return fmt.Sprintf("%s: rate limited, retry after %.1fs", e.Provider, e.RetryAfter)
}

// ToolCallGenerationError indicates the model produced a malformed or
// unparseable tool call.
type ToolCallGenerationError struct {
	Provider string
	Message  string
}

func (e *ToolCallGenerationError) Error() string {
	return fmt.Sprintf("%s: tool call generation failed: %s", e.Provider, e.Message)
}

// RequestError is a generic, non-specific provider failure (network error,
// malformed response, unexpected status code).
type RequestError struct {
	Provider string
	Message  string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: request failed: %s", e.Provider, e.Message)
}
