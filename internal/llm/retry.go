package llm

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryProvider is a decorator that retries transient errors with
// exponential backoff and jitter.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
	log    *zap.Logger
}

// WithRetry wraps a Provider with retry logic.
func WithRetry(p Provider, cfg RetryConfig, log *zap.Logger) Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &RetryProvider{inner: p, config: cfg, log: log}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	invalidRetried := false

	for attempt := range r.config.MaxAttempts {
		resp, err := r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !r.shouldRetry(err, &invalidRetried) {
			return nil, err
		}

		// Last attempt: return the error without sleeping.
		if attempt == r.config.MaxAttempts-1 {
			break
		}

		wait := r.backoff(attempt, err)
		r.log.Warn("retrying llm request", append(logFields(ctx),
			zap.Int("attempt", attempt+1),
			zap.Duration("wait", wait),
			zap.Error(err))...)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, lastErr
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

// shouldRetry reports whether err is worth another attempt. A malformed
// judgment is retried once; the oracle falls back after that.
func (r *RetryProvider) shouldRetry(err error, invalidRetried *bool) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var (
		maxTok   *ErrMaxTokensExceeded
		auth     *ErrAuthentication
		rejected *ErrRequestRejected
		invResp  *ErrInvalidResponse
	)
	switch {
	case errors.As(err, &maxTok), errors.As(err, &auth), errors.As(err, &rejected):
		return false
	case errors.As(err, &invResp):
		if *invalidRetried {
			return false
		}
		*invalidRetried = true
		return true
	}

	// Rate limits, outages and bare network errors are transient.
	return true
}

// backoff computes the wait duration for the given attempt.
func (r *RetryProvider) backoff(attempt int, err error) time.Duration {
	// Respect RetryAfter for rate limits.
	var rl *ErrRateLimit
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter
	}

	wait := float64(r.config.InitialWait) * math.Pow(r.config.Multiplier, float64(attempt))
	if wait > float64(r.config.MaxWait) {
		wait = float64(r.config.MaxWait)
	}

	// Add ±20% jitter.
	jitter := wait * 0.2 * (2*rand.Float64() - 1)
	wait += jitter

	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}
