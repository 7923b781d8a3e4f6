// Package types defines the shared data structures used across all
// reflective-resonance packages.
//
// These types form the lingua franca between the turn engine, the
// decomposition worker pool, and the events orchestrator. Each package defines
// its own domain types, but cross-cutting data structures live here to avoid
// circular imports.
package types

// Message is a single entry in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the text content of the message. Assistant entries store the
	// JSON-serialized structured output so later turns see full context.
	Content string `json:"content"`
}

// Agent describes one of the six predefined language-model agents that can be
// bound to a slot. Agents are immutable once loaded.
type Agent struct {
	// ID is the stable string identity used in requests and event payloads.
	ID string `json:"id"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// Provider is the LLM backend ("openai", "anthropic", "gemini").
	Provider string `json:"provider"`

	// Model is the provider-specific model identifier.
	Model string `json:"model"`

	// Description is a short blurb shown in the agent listing.
	Description string `json:"description"`

	// Color is the hex color assigned to this agent in the installation UI.
	Color string `json:"color"`
}

// SlotAssignment binds one of the six physical slots to an agent for a single
// broadcast. Slot IDs within a request are unique.
type SlotAssignment struct {
	SlotID  int    `json:"slotId"`
	AgentID string `json:"agentId"`
}

// TurnKind identifies which of the four turns produced a result or event.
type TurnKind string

const (
	KindResponse TurnKind = "response"
	KindComment  TurnKind = "comment"
	KindReply    TurnKind = "reply"
	KindSummary  TurnKind = "summary"
)

// TurnResult is the outcome of one slot's work within one turn.
//
// Invariant: if Success is true the audio file at AudioRelPath exists, unless
// TTS failed after a successful LLM call, in which case AudioRelPath is empty
// and the textual result still counts as a success.
type TurnResult struct {
	SlotID       int
	AgentID      string
	Text         string
	VoiceProfile string

	// TargetSlotID is set for Turn-2 comments only.
	TargetSlotID int

	Success      bool
	AudioRelPath string
}

// ReceivedComment is a Turn-2 comment routed to its target slot for Turn 3.
type ReceivedComment struct {
	FromSlotID  int
	FromAgentID string
	Comment     string
}

// MaxCommentsPerTarget caps how many comments a single slot may receive.
// Excess comments are sampled uniformly without replacement.
const MaxCommentsPerTarget = 3

// SummaryTurnIndex is the sentinel turn index carried by the Turn-4 summary
// decomposition job.
const SummaryTurnIndex = -1

// DecomposeJob describes one audio decomposition unit of work. Immutable
// after submission to the worker pool.
type DecomposeJob struct {
	SessionID    string
	TurnIndex    int // 1, 2, 3, or SummaryTurnIndex
	SlotID       int
	AgentID      string
	VoiceProfile string

	// TTSBasename is the input file name without the .wav extension. Wave
	// outputs mirror it as <basename>_v3_wave<k>.wav.
	TTSBasename string

	InputPath string
	OutputDir string

	// TargetSlotID is the commented slot for Turn-2 jobs, zero otherwise.
	TargetSlotID int

	// SummaryText is carried on summary jobs so the orchestrator can include
	// it in the final event without reaching back into the engine.
	SummaryText string

	// NWaves is the number of output wave files (2 for turns, 6 for summary).
	NWaves int
}

// WaveTargets returns the physical slot each output wave addresses: the
// routing pair for two-wave jobs, all six slots for the summary, nil
// otherwise (callers fall back to the legacy full-range band).
func (j DecomposeJob) WaveTargets() []int {
	switch j.NWaves {
	case 2:
		m := SlotMeta{SlotID: j.SlotID}
		return []int{m.Wave1Target(), m.Wave2Target()}
	case 6:
		return []int{1, 2, 3, 4, 5, 6}
	default:
		return nil
	}
}

// QualityMetrics are informational measurements of a decomposition run.
type QualityMetrics struct {
	RMSE       float64 `json:"rmse"`
	NRMSE      float64 `json:"nrmse"`
	SNRdB      float64 `json:"snr_db"`
	EnvCorr    float64 `json:"env_corr"`
	DurationMS float64 `json:"duration_ms"`
}

// DecomposeResult is delivered by the worker pool for every executed job,
// whether it succeeded or not.
type DecomposeResult struct {
	Job       DecomposeJob
	Success   bool
	WavePaths []string
	Metrics   QualityMetrics
	Err       string
}

// SlotMeta is the minimal per-slot record the orchestrator needs to derive
// event payloads and wave artifact paths.
type SlotMeta struct {
	SlotID       int
	AgentID      string
	VoiceProfile string
	TTSBasename  string
}

// Wave1Target returns the physical slot addressed by the first wave file:
// the agent's own slot.
func (m SlotMeta) Wave1Target() int { return m.SlotID }

// Wave2Target returns the physical slot addressed by the second wave file:
// the next slot, wrapping 6 back to 1. This mapping is the installation's
// physical-routing contract and must not change.
func (m SlotMeta) Wave2Target() int { return m.SlotID%6 + 1 }

// Dialogue bundles one Turn-3 respondent with the Turn-2 commenters that
// targeted its slot.
type Dialogue struct {
	// DialogueID is "turn23-slot<N>" where N is the target slot.
	DialogueID string

	TargetSlotID int
	Commenters   []SlotMeta
	Respondent   SlotMeta
}
