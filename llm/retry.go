package llm

import (
	"context"
	"math/rand"
	"net"
	"time"

	"github.com/semtexzv/termineer-sub001/errors"
)

// RetryConfig bounds the retry loop around Send.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Sleep is injectable for tests; nil means a context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig retries up to five times with exponential backoff
// capped at 30 seconds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// CallWithRetry calls b.Send, retrying rate limits and transient network
// failures. The wait honors the provider's retry_after when present, else
// exponential backoff with jitter. Non-transient errors surface
// immediately; after MaxAttempts the last error surfaces.
func CallWithRetry(ctx context.Context, b Backend, req *Request, cfg RetryConfig) (*Response, error) {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		resp, err := b.Send(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		delay, retryable := retryDelay(err, attempt, cfg)
		if !retryable || attempt == cfg.MaxAttempts-1 {
			break
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// retryDelay decides whether err is transient and how long to wait before
// the given attempt's retry.
func retryDelay(err error, attempt int, cfg RetryConfig) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		if rl.RetryAfter > 0 {
			return rl.RetryAfter, true
		}
		return backoff(attempt, cfg), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return backoff(attempt, cfg), true
	}
	return 0, false
}

// backoff computes base*2^attempt with +-50% jitter, capped at MaxDelay.
func backoff(attempt int, cfg RetryConfig) time.Duration {
	d := cfg.BaseDelay << uint(attempt)
	if d > cfg.MaxDelay || d <= 0 {
		d = cfg.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d)+1)) - d/2
	d += jitter
	if d < 0 {
		d = cfg.BaseDelay
	}
	if d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
