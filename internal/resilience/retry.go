package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Timeout bounds a single attempt. Zero disables it.
	Timeout time.Duration
	// RetryIf reports whether err is worth another attempt. Nil retries everything.
	RetryIf func(err error) bool
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Timeout:         30 * time.Second,
	}
}

// Retry runs op until it succeeds, returns a permanent error, the attempts
// are exhausted or ctx is done. Each attempt gets its own timeout context.
func Retry(ctx context.Context, name string, cfg RetryConfig, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		b.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		b.MaxInterval = cfg.MaxInterval
	}
	b.MaxElapsedTime = 0
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		callCtx := ctx
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}
		err := op(callCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		logutil.GetLogger(ctx).Warn("operation failed, retrying",
			zap.String("op", name),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})
}

func RetryWithResult[T any](ctx context.Context, name string, cfg RetryConfig, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Retry(ctx, name, cfg, func(ctx context.Context) error {
		res, err := op(ctx)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}
