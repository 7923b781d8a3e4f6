package resilience

import (
	"errors"
	"testing"
	"time"
)

var errSynth = errors.New("synthesis failed")

func failingBreaker(t *testing.T, resetTimeout time.Duration) *Breaker {
	t.Helper()
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 3, ResetTimeout: resetTimeout})
	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return errSynth }); !errors.Is(err, errSynth) {
			t.Fatalf("attempt %d: err = %v, want %v", i, err, errSynth)
		}
	}
	return b
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test"})
	for i := 0; i < 10; i++ {
		if err := b.Execute(func() error { return nil }); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	if got := b.State(); got != BreakerClosed {
		t.Errorf("state = %v, want closed", got)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := failingBreaker(t, time.Minute)

	if got := b.State(); got != BreakerOpen {
		t.Fatalf("state = %v, want open", got)
	}
	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("err = %v, want ErrBreakerOpen", err)
	}
	if called {
		t.Error("open breaker forwarded the call")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 3})
	for i := 0; i < 2; i++ {
		b.Execute(func() error { return errSynth })
	}
	b.Execute(func() error { return nil })
	for i := 0; i < 2; i++ {
		b.Execute(func() error { return errSynth })
	}
	if got := b.State(); got != BreakerClosed {
		t.Errorf("state = %v, want closed after interleaved success", got)
	}
}

func TestBreakerProbeSuccessCloses(t *testing.T) {
	b := failingBreaker(t, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if got := b.State(); got != BreakerHalfOpen {
		t.Fatalf("state = %v, want half-open after reset timeout", got)
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if got := b.State(); got != BreakerClosed {
		t.Errorf("state = %v, want closed after successful probe", got)
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute after close: %v", err)
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b := failingBreaker(t, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if err := b.Execute(func() error { return errSynth }); !errors.Is(err, errSynth) {
		t.Fatalf("probe err = %v, want %v", err, errSynth)
	}
	if got := b.State(); got != BreakerOpen {
		t.Errorf("state = %v, want open after failed probe", got)
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("err = %v, want ErrBreakerOpen during renewed hold", err)
	}
}

func TestBreakerAllowsOneProbeAtATime(t *testing.T) {
	b := failingBreaker(t, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("concurrent probe err = %v, want ErrBreakerOpen", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if got := b.State(); got != BreakerClosed {
		t.Errorf("state = %v, want closed", got)
	}
}
