package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fastConfig() Config {
	return Config{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2.0}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), zerolog.Nop(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoReturnsLastErrorWhenExhausted(t *testing.T) {
	sentinel := errors.New("still broken")
	calls := 0
	err := Do(context.Background(), fastConfig(), zerolog.Nop(), func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected initial attempt plus 3 retries, got %d", calls)
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Config{MaxRetries: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}, zerolog.Nop(), func() error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestBackoffDelayIsCapped(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: 2 * time.Second, Multiplier: 10}
	if d := backoffDelay(cfg, 5); d > cfg.MaxDelay {
		t.Fatalf("delay %v exceeds cap %v", d, cfg.MaxDelay)
	}
}
