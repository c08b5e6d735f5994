package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProvider struct {
	name  string
	calls int
	fn    func(calls int) (<-chan Chunk, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	f.calls++
	return f.fn(f.calls)
}

func drainChunks(ch <-chan Chunk) []Chunk {
	var out []Chunk
	for c := range ch {
		out = append(out, c)
	}
	return out
}

func TestRetryingProvider_RetriesTransientRateLimit(t *testing.T) {
	base := &fakeProvider{name: "fake", fn: func(calls int) (<-chan Chunk, error) {
		if calls < 2 {
			return nil, &RateLimitError{Provider: "fake", RetryAfter: 0.001}
		}
		ch := make(chan Chunk, 1)
		ch <- Chunk{ContentDelta: "hi"}
		close(ch)
		return ch, nil
	}}

	p := NewRetryingProvider(base, RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, JitterFraction: 0.1})
	ch, err := p.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	chunks := drainChunks(ch)
	if base.calls != 2 {
		t.Errorf("calls = %d, want 2", base.calls)
	}

	var sawRateLimit, sawContent bool
	for _, c := range chunks {
		if c.RateLimitStatus != nil {
			sawRateLimit = true
			if c.RateLimitStatus.Attempt != 1 || c.RateLimitStatus.MaxAttempt != 4 {
				t.Errorf("unexpected RateLimitStatus: %+v", c.RateLimitStatus)
			}
		}
		if c.ContentDelta == "hi" {
			sawContent = true
		}
	}
	if !sawRateLimit {
		t.Error("expected a RateLimitStatus chunk before the eventual success")
	}
	if !sawContent {
		t.Errorf("expected the eventual content chunk, got %+v", chunks)
	}
}

func TestRetryingProvider_DailyQuotaAbortsImmediately(t *testing.T) {
	base := &fakeProvider{name: "fake", fn: func(calls int) (<-chan Chunk, error) {
		return nil, &RateLimitError{Provider: "fake", IsDaily: true}
	}}

	p := NewRetryingProvider(base, RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond})
	ch, err := p.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	chunks := drainChunks(ch)
	if base.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on daily quota)", base.calls)
	}
	if len(chunks) != 1 || chunks[0].Err == nil {
		t.Fatalf("expected a single error chunk, got %+v", chunks)
	}
	var rle *RateLimitError
	if !errors.As(chunks[0].Err, &rle) || !rle.IsDaily {
		t.Fatalf("expected daily RateLimitError, got %v", chunks[0].Err)
	}
}

func TestRetryingProvider_AuthErrorNotRetried(t *testing.T) {
	base := &fakeProvider{name: "fake", fn: func(calls int) (<-chan Chunk, error) {
		return nil, &AuthError{Provider: "fake", Message: "bad key"}
	}}

	p := NewRetryingProvider(base, RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond})
	ch, err := p.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	chunks := drainChunks(ch)
	if base.calls != 1 {
		t.Errorf("calls = %d, want 1", base.calls)
	}
	if len(chunks) != 1 || chunks[0].Err == nil {
		t.Fatalf("expected a single error chunk, got %+v", chunks)
	}
	var authErr *AuthError
	if !errors.As(chunks[0].Err, &authErr) {
		t.Fatalf("expected AuthError, got %v", chunks[0].Err)
	}
}
