package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/asaficontact/reflective-resonance/pkg/types"
)

// RetryConfig tunes [Retry]. Zero-value fields are replaced with defaults.
type RetryConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// Attempts is the total number of tries, including the first. Default: 3.
	Attempts int

	// BaseDelay is the wait before the second attempt; each further attempt
	// doubles it. Default: 500ms.
	BaseDelay time.Duration
}

// Retry runs fn up to cfg.Attempts times, backing off exponentially between
// tries. Only failures classified as transient (network, timeout, rate limit)
// are retried; anything else is returned immediately. Context cancellation
// aborts the backoff wait.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}

	var err error
	delay := cfg.BaseDelay
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		kind := types.Classify(err)
		if !kind.Retryable() || attempt == cfg.Attempts {
			return err
		}
		slog.Warn("retrying after transient failure",
			"name", cfg.Name,
			"attempt", attempt,
			"kind", string(kind),
			"delay", delay,
			"error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return err
		}
		delay *= 2
	}
	return err
}
