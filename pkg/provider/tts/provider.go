// Package tts defines the Synthesizer interface for Text-to-Speech backends
// and the installation's fixed voice-profile catalogue.
//
// Synthesis is batch-oriented: the turn engine hands over the full reflection
// text and receives the complete PCM take, which it writes out as a WAV
// artifact before decomposition. Implementations must be safe for concurrent
// use because all six slots synthesize in parallel.
package tts

import "context"

// VoiceSettings tunes how a vendor voice renders the text.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
	Speed           float64 `json:"speed"`
}

// VoiceProfile binds a profile name the agents pick by mood to a concrete
// vendor voice and its settings.
type VoiceProfile struct {
	// Name is the profile key the models choose, e.g. "calm_soothing".
	Name string

	// VoiceID is the vendor voice identifier.
	VoiceID string

	// VoiceName is the vendor's display name for the voice.
	VoiceName string

	// Description characterizes the voice for the agent catalogue.
	Description string

	Settings VoiceSettings
}

// Synthesizer is the abstraction over any TTS backend.
type Synthesizer interface {
	// Synthesize converts text to raw PCM audio (signed 16-bit LE mono at the
	// backend's configured sample rate) using the given voice profile.
	Synthesize(ctx context.Context, text string, profile VoiceProfile) ([]byte, error)
}
