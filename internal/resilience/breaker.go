// Package resilience holds the failure-handling primitives of the broadcast
// pipeline: [Breaker], a three-state circuit breaker that shields the
// speech-synthesis vendor from hammering while it is down, and [Retry],
// which re-runs provider calls whose classified error kind is transient.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Execute] while the breaker is open
// and the reset timeout has not yet elapsed.
var ErrBreakerOpen = errors.New("breaker open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards all calls.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls with [ErrBreakerOpen] until the reset
	// timeout elapses.
	BreakerOpen

	// BreakerHalfOpen lets a single probe call through; its outcome decides
	// whether the breaker closes or re-opens.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero-value fields are replaced with
// defaults.
type BreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive failures before the breaker
	// opens. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker holds open before allowing a
	// probe. Default: 30s.
	ResetTimeout time.Duration
}

// Breaker is a three-state circuit breaker (closed → open → half-open).
// Synthesis failures within one broadcast fan-out count against the same
// breaker, so a vendor outage trips it before every slot has timed out
// individually.
type Breaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a [Breaker] from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
	}
}

// Execute runs fn unless the breaker is open. After the reset timeout one
// probe call is let through at a time; a successful probe closes the breaker,
// a failed one re-opens it for another full timeout.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.resetTimeout {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		slog.Info("breaker half-open", "name", b.name)
	case BreakerHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	}
	probe := b.state == BreakerHalfOpen
	if probe {
		b.probing = true
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}
	if err != nil {
		b.recordFailure(probe)
		return err
	}
	b.recordSuccess(probe)
	return nil
}

// recordFailure must be called with b.mu held.
func (b *Breaker) recordFailure(probe bool) {
	b.openedAt = time.Now()
	if probe {
		b.state = BreakerOpen
		slog.Warn("breaker re-opened after failed probe", "name", b.name)
		return
	}
	b.failures++
	if b.failures >= b.maxFailures {
		b.state = BreakerOpen
		slog.Warn("breaker opened", "name", b.name, "failures", b.failures)
	}
}

// recordSuccess must be called with b.mu held.
func (b *Breaker) recordSuccess(probe bool) {
	if probe {
		b.state = BreakerClosed
		slog.Info("breaker closed after successful probe", "name", b.name)
	}
	b.failures = 0
}

// State reports the breaker's current state. An open breaker whose reset
// timeout has elapsed shows as half-open even though the transition happens
// on the next [Execute].
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.resetTimeout {
		return BreakerHalfOpen
	}
	return b.state
}
