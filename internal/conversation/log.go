// Package conversation holds the per-slot append-only message histories.
//
// The log is process-wide: conversations survive individual broadcasts so
// later turns (and later sessions, until reset) see full context. The engine
// serializes access within a slot because turns run strictly in order, but
// the log itself is safe for concurrent use across slots.
package conversation

import (
	"slices"
	"sync"

	"github.com/asaficontact/reflective-resonance/pkg/types"
)

// Conversation is one slot's ordered message history, seeded with the system
// preamble on creation.
type Conversation struct {
	slotID   int
	messages []types.Message
}

// AddUser appends a user-role entry.
func (c *Conversation) AddUser(text string) {
	c.messages = append(c.messages, types.Message{Role: "user", Content: text})
}

// AddAssistant appends an assistant-role entry. Callers store the
// JSON-serialized structured output so later turns keep full context.
func (c *Conversation) AddAssistant(text string) {
	c.messages = append(c.messages, types.Message{Role: "assistant", Content: text})
}

// Messages returns a copy of the history in order.
func (c *Conversation) Messages() []types.Message {
	return slices.Clone(c.messages)
}

// Log owns all slot conversations. Construct with [NewLog]; pass it to the
// engine and surface explicitly rather than sharing a package global.
type Log struct {
	systemPrompt string

	mu    sync.Mutex
	slots map[int]*Conversation
}

// NewLog creates an empty log whose conversations are seeded with
// systemPrompt.
func NewLog(systemPrompt string) *Log {
	return &Log{
		systemPrompt: systemPrompt,
		slots:        make(map[int]*Conversation),
	}
}

// GetOrCreate returns the conversation for slotID, creating it with the
// system preamble on first use.
func (l *Log) GetOrCreate(slotID int) *Conversation {
	l.mu.Lock()
	defer l.mu.Unlock()

	conv, ok := l.slots[slotID]
	if !ok {
		conv = &Conversation{
			slotID:   slotID,
			messages: []types.Message{{Role: "system", Content: l.systemPrompt}},
		}
		l.slots[slotID] = conv
	}
	return conv
}

// ResetAll clears every active conversation and returns the cleared slot IDs
// in ascending order. Calling it again with no interleaving activity returns
// an empty slice.
func (l *Log) ResetAll() []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cleared := make([]int, 0, len(l.slots))
	for slotID := range l.slots {
		cleared = append(cleared, slotID)
	}
	slices.Sort(cleared)
	l.slots = make(map[int]*Conversation)
	return cleared
}

// ActiveSlots returns the slot IDs with a live conversation, ascending.
func (l *Log) ActiveSlots() []int {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]int, 0, len(l.slots))
	for slotID := range l.slots {
		ids = append(ids, slotID)
	}
	slices.Sort(ids)
	return ids
}
