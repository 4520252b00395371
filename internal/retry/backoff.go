// Package retry provides context-aware exponential backoff for idempotent
// network calls.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the backoff schedule.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool
}

// DefaultConfig suits short HTTP reads against the message store.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Do runs op until it succeeds, retries are exhausted or the context ends.
// Only wire idempotent operations through here; the last error is returned
// unwrapped so callers can errors.Is against their own sentinels.
func Do(ctx context.Context, cfg Config, logger zerolog.Logger, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := op(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt == cfg.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := backoffDelay(cfg, attempt)
		logger.Debug().Err(lastErr).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func backoffDelay(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		span := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * span
		if delay < 0 {
			delay = float64(cfg.BaseDelay)
		}
	}
	return time.Duration(delay)
}
