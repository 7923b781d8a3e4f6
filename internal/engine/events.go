package engine

import (
	"sync"

	"github.com/asaficontact/reflective-resonance/pkg/types"
)

// Event is one frame of a broadcast's streamed output. Name goes into the
// transport's event field, Data is serialized into the data field.
type Event struct {
	Name string
	Data any
}

// TurnStartPayload opens a turn.
type TurnStartPayload struct {
	TurnIndex int            `json:"turnIndex"`
	Kind      types.TurnKind `json:"kind"`
}

// TurnDonePayload closes a turn with the number of successful slots.
type TurnDonePayload struct {
	TurnIndex int `json:"turnIndex"`
	SlotCount int `json:"slotCount"`
}

// SlotStartPayload marks a slot entering a turn.
type SlotStartPayload struct {
	TurnIndex int    `json:"turnIndex"`
	SlotID    int    `json:"slotId"`
	AgentID   string `json:"agentId"`
}

// SlotDonePayload carries a slot's textual result.
type SlotDonePayload struct {
	TurnIndex    int    `json:"turnIndex"`
	SlotID       int    `json:"slotId"`
	AgentID      string `json:"agentId"`
	Text         string `json:"text"`
	VoiceProfile string `json:"voiceProfile"`

	// TargetSlotID is set for Turn-2 comments only.
	TargetSlotID int `json:"targetSlotId,omitempty"`
}

// SlotAudioPayload carries the artifacts-relative path of a slot's audio.
type SlotAudioPayload struct {
	TurnIndex int    `json:"turnIndex"`
	SlotID    int    `json:"slotId"`
	AudioPath string `json:"audioPath"`
}

// SlotErrorPayload reports a slot failure with its classified kind.
type SlotErrorPayload struct {
	TurnIndex int             `json:"turnIndex"`
	SlotID    int             `json:"slotId"`
	AgentID   string          `json:"agentId"`
	ErrorType types.ErrorKind `json:"errorType"`
	Message   string          `json:"message"`
}

// DonePayload is the stream's final frame.
type DonePayload struct {
	SessionID      string `json:"sessionId"`
	CompletedSlots int    `json:"completedSlots"`
	Turns          int    `json:"turns"`
}

func turnStart(turnIndex int, kind types.TurnKind) Event {
	return Event{Name: "turn.start", Data: TurnStartPayload{TurnIndex: turnIndex, Kind: kind}}
}

func turnDone(turnIndex, slotCount int) Event {
	return Event{Name: "turn.done", Data: TurnDonePayload{TurnIndex: turnIndex, SlotCount: slotCount}}
}

// syncEmit serializes event delivery: slots within a turn run in parallel but
// the stream writer is not concurrency-safe.
func syncEmit(emit func(Event)) func(Event) {
	var mu sync.Mutex
	return func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		emit(ev)
	}
}
