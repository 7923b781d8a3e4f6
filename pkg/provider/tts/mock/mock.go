// Package mock provides a tts.Synthesizer for tests that emits deterministic
// PCM without any network access.
package mock

import (
	"context"
	"sync"

	"github.com/asaficontact/reflective-resonance/pkg/provider/tts"
)

// Synthesizer produces SamplesPerCall frames of silence per call, or fails
// with Err when set.
type Synthesizer struct {
	// SamplesPerCall is the number of 16-bit frames returned. Defaults to
	// 1024 when zero.
	SamplesPerCall int

	// Err, when non-nil, is returned by every call.
	Err error

	mu    sync.Mutex
	calls []Call
}

// Call records one synthesis request.
type Call struct {
	Text    string
	Profile tts.VoiceProfile
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(_ context.Context, text string, profile tts.VoiceProfile) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Text: text, Profile: profile})
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	n := s.SamplesPerCall
	if n == 0 {
		n = 1024
	}
	return make([]byte, n*2), nil
}

// Calls returns a copy of the recorded requests.
func (s *Synthesizer) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}
