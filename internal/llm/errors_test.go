package llm

import "testing"

func TestRateLimitError_MessageDistinguishesDaily(t *testing.T) {
	daily := &RateLimitError{Provider: "anthropic", IsDaily: true}
	if got := daily.Error(); got == "" {
		t.Fatal("expected non-empty message")
	}
	transient := &RateLimitError{Provider: "anthropic", RetryAfter: 2.5}
	if daily.Error() == transient.Error() {
		t.Error("expected daily and transient messages to differ")
	}
}

func TestAuthError_Error(t *testing.T) {
	err := &AuthError{Provider: "openai", Message: "invalid key"}
	if err.Error() == "" {
		t.Fatal("expected non-empty message")
	}
}

func TestToolCallGenerationError_Error(t *testing.T) {
	err := &ToolCallGenerationError{Provider: "anthropic", Message: "bad json"}
	if err.Error() == "" {
		t.Fatal("expected non-empty message")
	}
}

func TestRequestError_Error(t *testing.T) {
	err := &RequestError{Provider: "openai", Message: "timeout"}
	if err.Error() == "" {
		t.Fatal("expected non-empty message")
	}
}
