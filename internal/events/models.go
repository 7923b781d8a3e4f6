// Package events coordinates wave-readiness tracking and the controller
// WebSocket channel. It consumes decomposition results from the worker pool,
// tracks per-session readiness, and emits the ordered event batch the
// installation controller plays back.
package events

import (
	"time"

	"github.com/asaficontact/reflective-resonance/internal/session"
	"github.com/asaficontact/reflective-resonance/pkg/types"
)

// Envelope is the common frame for every controller event.
type Envelope struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Seq       int    `json:"seq"`
	TS        string `json:"ts"`
	Payload   any    `json:"payload"`
}

func newEnvelope(eventType, sessionID string, seq int, payload any) Envelope {
	return Envelope{
		Type:      eventType,
		SessionID: sessionID,
		Seq:       seq,
		TS:        time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	}
}

// SlotWaveInfo carries both wave files of one slot, with the physical slot
// each wave addresses.
type SlotWaveInfo struct {
	SlotID            int    `json:"slotId"`
	AgentID           string `json:"agentId"`
	VoiceProfile      string `json:"voiceProfile"`
	Wave1PathAbs      string `json:"wave1PathAbs"`
	Wave1PathRel      string `json:"wave1PathRel"`
	Wave1TargetSlotID int    `json:"wave1TargetSlotId"`
	Wave2PathAbs      string `json:"wave2PathAbs"`
	Wave2PathRel      string `json:"wave2PathRel"`
	Wave2TargetSlotID int    `json:"wave2TargetSlotId"`
}

// slotWaveInfo derives the full dual-wave record for a slot's artifacts.
func slotWaveInfo(artifactsRoot, sessionID string, turnIndex int, meta types.SlotMeta) SlotWaveInfo {
	wave1Rel := session.WaveRelPath(sessionID, turnIndex, meta.TTSBasename, 1)
	wave2Rel := session.WaveRelPath(sessionID, turnIndex, meta.TTSBasename, 2)
	return SlotWaveInfo{
		SlotID:            meta.SlotID,
		AgentID:           meta.AgentID,
		VoiceProfile:      meta.VoiceProfile,
		Wave1PathAbs:      session.AbsPath(artifactsRoot, wave1Rel),
		Wave1PathRel:      wave1Rel,
		Wave1TargetSlotID: meta.Wave1Target(),
		Wave2PathAbs:      session.AbsPath(artifactsRoot, wave2Rel),
		Wave2PathRel:      wave2Rel,
		Wave2TargetSlotID: meta.Wave2Target(),
	}
}

// Turn1WavesPayload is the payload of turn1.waves.ready.
type Turn1WavesPayload struct {
	TurnIndex      int            `json:"turnIndex"`
	Status         string         `json:"status"` // "complete" or "partial"
	SlotsExpected  int            `json:"slotsExpected"`
	SlotsReady     int            `json:"slotsReady"`
	Slots          []SlotWaveInfo `json:"slots"`
	MissingSlotIDs []int          `json:"missingSlotIds"`
}

// PlayOrderItem is one step of a dialogue's sequential playback.
type PlayOrderItem struct {
	Role   string `json:"role"` // "commenter" or "respondent"
	SlotID int    `json:"slotId"`
}

// DialogueWavesPayload is the payload of dialogue.waves.ready.
type DialogueWavesPayload struct {
	DialogueID   string          `json:"dialogueId"`
	Turns        []int           `json:"turns"`
	TargetSlotID int             `json:"targetSlotId"`
	Commenters   []SlotWaveInfo  `json:"commenters"`
	Respondent   SlotWaveInfo    `json:"respondent"`
	PlayOrder    []PlayOrderItem `json:"playOrder"`
}

// UserSentimentPayload is the payload of user_sentiment.
type UserSentimentPayload struct {
	Sentiment     string `json:"sentiment"`
	Justification string `json:"justification"`
}

// SummarySlotWave addresses one of the six summary waves to a slot.
type SummarySlotWave struct {
	SlotID      int    `json:"slotId"`
	WavePathAbs string `json:"wavePathAbs"`
	WavePathRel string `json:"wavePathRel"`
}

// SummaryWaveInfo bundles the six slot-addressed summary waves.
type SummaryWaveInfo struct {
	VoiceProfile string            `json:"voiceProfile"`
	Waves        []SummarySlotWave `json:"waves"`
}

// FinalSummaryPayload is the payload of final_summary.ready, the session's
// last event.
type FinalSummaryPayload struct {
	Status   string           `json:"status"` // "complete" or "failed"
	Text     string           `json:"text"`
	WaveInfo *SummaryWaveInfo `json:"waveInfo"`
}

// HelloMessage is the optional greeting a controller sends after connecting.
type HelloMessage struct {
	Type    string `json:"type"`
	Client  string `json:"client"`
	Version string `json:"version"`
}

// HelloAck is the server's reply to a hello.
type HelloAck struct {
	Type    string `json:"type"`
	Server  string `json:"server"`
	Version string `json:"version"`
}

// NewHelloAck builds the acknowledgment with the fixed server identity.
func NewHelloAck() HelloAck {
	return HelloAck{Type: "hello.ack", Server: "reflective-resonance", Version: "0.1.0"}
}
