package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Retrier handles retry logic for LLM operations
type Retrier struct {
	config RetryConfig

	mu   sync.Mutex
	rand *rand.Rand

	// sleep is swapped in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a new retrier with the given configuration
func NewRetrier(config RetryConfig) *Retrier {
	return &Retrier{
		config: config,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:  sleepContext,
	}
}

// RetryOperation represents an operation that can be retried
type RetryOperation[T any] func(ctx context.Context, attempt int) (T, error)

// Execute runs operation until it succeeds, returns a non-retryable error, or
// the retry budget is spent.
func Execute[T any](r *Retrier, ctx context.Context, operation RetryOperation[T]) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := operation(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !r.shouldRetry(err, attempt) {
			if attempt >= r.config.MaxRetries && r.config.MaxRetries > 0 {
				return zero, fmt.Errorf("operation failed after %d attempts: %w", attempt+1, err)
			}
			return zero, err
		}

		delay := r.calculateDelay(attempt, err)
		slog.Debug("retrying llm call", "attempt", attempt+1, "delay", delay, "error", err)
		if err := r.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("operation failed after %d attempts: %w", r.config.MaxRetries+1, lastErr)
}

// Do is Execute for operations without a result.
func (r *Retrier) Do(ctx context.Context, operation func(context.Context, int) error) error {
	_, err := Execute(r, ctx, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, operation(ctx, attempt)
	})
	return err
}

func (r *Retrier) shouldRetry(err error, attempt int) bool {
	if attempt >= r.config.MaxRetries {
		return false
	}

	if llmErr, ok := IsLLMError(err); ok {
		return llmErr.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	for _, retryableErr := range r.config.RetryableErrors {
		if strings.Contains(errStr, strings.ToLower(retryableErr)) {
			return true
		}
	}
	return false
}

func (r *Retrier) calculateDelay(attempt int, err error) time.Duration {
	if llmErr, ok := IsLLMError(err); ok && llmErr.RetryAfter > 0 {
		return time.Duration(llmErr.RetryAfter) * time.Second
	}

	factor := r.config.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := float64(r.config.InitialDelay) * math.Pow(factor, float64(attempt))

	if r.config.Jitter {
		r.mu.Lock()
		delay += 0.25 * delay * (r.rand.Float64()*2 - 1)
		r.mu.Unlock()
	}

	if r.config.MaxDelay > 0 && delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	if delay < float64(r.config.InitialDelay) {
		delay = float64(r.config.InitialDelay)
	}
	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
