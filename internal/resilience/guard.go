package resilience

import (
	"context"
	"errors"
)

// Guard applies a retry policy inside a provider's circuit breaker. Each
// attempt passes through the breaker, so an opening circuit stops the
// remaining retries.
type Guard struct {
	Name    string
	Retry   RetryConfig
	Breaker *CircuitBreaker
}

// NewGuard returns a guard for the named provider, taking its breaker from
// breakers.
func NewGuard(name string, retry RetryConfig, breakers *Breakers) *Guard {
	if retry.OnRetry == nil {
		retry.OnRetry = RetryLogger(name, "fetch")
	}
	return &Guard{Name: name, Retry: retry, Breaker: breakers.Get(name)}
}

// Call runs fn under g. A nil guard runs fn once.
func Call[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	if g == nil {
		return fn(ctx)
	}
	retry := g.Retry
	shouldRetry := retry.withDefaults().ShouldRetry
	retry.ShouldRetry = func(err error) bool {
		return !errors.Is(err, ErrCircuitOpen) && shouldRetry(err)
	}
	return DoVal(ctx, retry, func(ctx context.Context) (T, error) {
		if g.Breaker == nil {
			return fn(ctx)
		}
		return ExecuteVal(ctx, g.Breaker, fn)
	})
}
