package crawler

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// RetryConfig bounds the exponential backoff applied to transient failures.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt, so an
	// operation runs at most MaxRetries+1 times.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Retryer executes operations with bounded exponential backoff. Transient
// failures wait BaseDelay*2^attempt between attempts; fatal failures and
// context cancellation propagate immediately.
type Retryer struct {
	cfg    RetryConfig
	logger *zap.Logger
}

// NewRetryer builds a Retryer, filling in defaults for unset fields.
func NewRetryer(cfg RetryConfig, logger *zap.Logger) *Retryer {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{cfg: cfg, logger: logger}
}

// Execute runs op until it succeeds, fails fatally, or the attempt budget is
// spent. The returned error on exhaustion wraps the last attempt's error and
// is tagged with the total number of attempts.
func (r *Retryer) Execute(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var lastErr error
	attempts := r.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op(ctx)
		if err == nil {
			if attempt > 0 {
				r.logger.Info("operation succeeded after retry",
					zap.String("op", name),
					zap.Int("attempt", attempt+1),
				)
			}
			return nil
		}
		lastErr = err
		if !IsTransient(err) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%s failed after %d attempts: %w", name, attempt+1, err)
		}
		if attempt == attempts-1 {
			break
		}
		delay := r.backoff(attempt)
		r.logger.Warn("operation failed, backing off",
			zap.String("op", name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, attempts, lastErr)
}

func (r *Retryer) backoff(attempt int) time.Duration {
	delay := float64(r.cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(r.cfg.MaxDelay) {
		delay = float64(r.cfg.MaxDelay)
	}
	return time.Duration(delay)
}
