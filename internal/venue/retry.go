package venue

import (
	"context"
	"math/rand"
	"time"

	"tradeflow/config"
	"tradeflow/internal/model"
	"tradeflow/logger"
)

// WithRetry runs fn up to cfg.MaxAttempts times, backing off exponentially
// between attempts. Only retryable failures are attempted again; rejections,
// unsupported operations and authentication errors return immediately. A
// rate limited call gets exactly one retry regardless of MaxAttempts: the
// venue is already throttling, and repeat traffic extends the lockout.
func WithRetry(ctx context.Context, cfg config.RetryConfig, log *logger.Entry, venueName, op string, fn func() error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	rateLimitRetried := false
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !model.IsRetryable(err) || attempt == attempts {
			return err
		}
		if model.ErrorKindOf(err) == model.KindRateLimit {
			if rateLimitRetried {
				return err
			}
			rateLimitRetried = true
		}

		delay := backoffDelay(cfg, attempt)
		log.WithError(err).WithFields(logger.Fields{
			"operation": op,
			"attempt":   attempt,
			"delay":     delay.String(),
		}).Warn("retrying after transient failure")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return model.NewVenueError(venueName, op, model.KindConnection, "cancelled during retry backoff", ctx.Err())
		}
	}
	return err
}

// backoffDelay computes the delay before the next attempt. Full jitter keeps
// simultaneous retries from re-hitting the venue in lockstep.
func backoffDelay(cfg config.RetryConfig, attempt int) time.Duration {
	base := cfg.BaseDelay
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	mult := cfg.BackoffMultiplier
	if mult <= 1 {
		mult = 2
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= time.Duration(mult)
		if cfg.MaxDelay > 0 && delay >= cfg.MaxDelay {
			delay = cfg.MaxDelay
			break
		}
	}
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}

	return time.Duration(rand.Int63n(int64(delay)) + int64(delay)/2)
}
