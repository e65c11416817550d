package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ThrottledProvider is a decorator that blocks until the shared limiter
// admits the request.
type ThrottledProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// WithRateLimit wraps a Provider with a token bucket limiter. Burst is one
// request per second of allowance, never less than one.
func WithRateLimit(p Provider, rps float64) Provider {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &ThrottledProvider{inner: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (t *ThrottledProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return t.inner.Generate(ctx, req)
}

func (t *ThrottledProvider) ModelID() string {
	return t.inner.ModelID()
}

// TimeoutProvider bounds each Generate call, retries included.
type TimeoutProvider struct {
	inner   Provider
	timeout time.Duration
}

// WithTimeout wraps a Provider so every call carries its own deadline.
func WithTimeout(p Provider, d time.Duration) Provider {
	return &TimeoutProvider{inner: p, timeout: d}
}

func (t *TimeoutProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Generate(ctx, req)
}

func (t *TimeoutProvider) ModelID() string {
	return t.inner.ModelID()
}
