package llm

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/chatcore/internal/retry"
)

// RetryConfig bounds the retry behavior a RetryingProvider applies on top
// of a base Provider.
type RetryConfig struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	JitterFraction float64
}

// DefaultRetryConfig returns the library's recommended backoff parameters.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.1,
	}
}

// RetryingProvider wraps a Provider, retrying transient rate limits with
// exponential backoff and jitter while aborting immediately on daily-quota
// exhaustion or any other typed error.
type RetryingProvider struct {
	base   Provider
	config RetryConfig
}

// NewRetryingProvider wraps base with config's retry policy.
func NewRetryingProvider(base Provider, config RetryConfig) *RetryingProvider {
	return &RetryingProvider{base: base, config: config}
}

func (p *RetryingProvider) Name() string { return p.base.Name() }

// retryChunkBuffer bounds how far the retry goroutine can run ahead of the
// consumer, matching the orchestrator's own chunk channel sizing.
const retryChunkBuffer = 32

// Stream opens its output channel immediately and runs the attempt loop in
// a background goroutine, so every backoff between attempts can surface a
// RateLimitStatus chunk on the same channel the eventual stream's own
// chunks arrive on, instead of retrying behind a closed interface where no
// chunk could ever be emitted. A server-supplied RetryAfter on the
// RateLimitError takes precedence over the computed backoff delay. Any
// other error (including a daily RateLimitError) ends the stream with one
// Chunk carrying Err set, without retry.
func (p *RetryingProvider) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	out := make(chan Chunk, retryChunkBuffer)
	go p.run(ctx, req, out)
	return out, nil
}

func (p *RetryingProvider) run(ctx context.Context, req Request, out chan<- Chunk) {
	defer close(out)

	maxAttempts := p.config.MaxRetries + 1
	retryCfg := retry.Config{
		MaxAttempts:    maxAttempts,
		InitialDelay:   p.config.InitialDelay,
		MaxDelay:       p.config.MaxDelay,
		Factor:         2.0,
		Jitter:         true,
		JitterFraction: p.config.JitterFraction,
		RetryAfter: func(err error) time.Duration {
			var rle *RateLimitError
			if errors.As(err, &rle) && rle.RetryAfter > 0 {
				return time.Duration(rle.RetryAfter * float64(time.Second))
			}
			return 0
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			retryAfter := delay.Seconds()
			select {
			case out <- Chunk{RateLimitStatus: &RateLimitStatus{
				Attempt: attempt, MaxAttempt: maxAttempts, RetryAfter: &retryAfter,
			}}:
			case <-ctx.Done():
			}
		},
	}

	_, result := retry.DoWithValue(ctx, retryCfg, func() (struct{}, error) {
		inner, err := p.base.Stream(ctx, req)
		if err != nil {
			var rle *RateLimitError
			if errors.As(err, &rle) && !rle.IsDaily {
				return struct{}{}, err // transient: retryable
			}
			return struct{}{}, retry.Permanent(err)
		}
		for ch := range inner {
			select {
			case out <- ch:
			case <-ctx.Done():
				return struct{}{}, nil
			}
		}
		return struct{}{}, nil
	})

	if result.Err != nil {
		select {
		case out <- Chunk{Err: result.Err}:
		case <-ctx.Done():
		}
	}
}
