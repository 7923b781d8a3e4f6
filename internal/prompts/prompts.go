// Package prompts renders the user-role prompt text for the four workflow
// turns and the sentiment stage. Voice profile guidance lives in the system
// preamble, and the JSON response contract is appended by the completion
// layer from each turn's derived schema; neither is repeated here.
package prompts

import (
	"fmt"
	"strings"

	"github.com/asaficontact/reflective-resonance/pkg/types"
)

// PeerResponse is one other slot's Turn-1 reflection, shown to a slot when it
// chooses which peer to comment on.
type PeerResponse struct {
	SlotID  int
	AgentID string
	Text    string
}

// CollectedResponse is one successful response from turns 1-3, gathered for
// the Turn-4 summary prompt.
type CollectedResponse struct {
	Turn    int
	SlotID  int
	AgentID string
	Text    string
}

// Turn1 renders the reflection prompt for a visitor's whispered message.
func Turn1(userMessage string) string {
	var b strings.Builder
	b.WriteString("A visitor has whispered into the water:\n\n")
	fmt.Fprintf(&b, "%q\n\n", userMessage)
	b.WriteString("Reflect its emotional essence back as your voice in the water.")
	return b.String()
}

// Turn2 renders the comment-selection prompt. The peer list arrives already
// shuffled so no slot is structurally favoured.
func Turn2(slotID int, agentID string, peers []PeerResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are slot %d (%s). The other voices reflected:\n\n", slotID, agentID)
	for _, p := range peers {
		fmt.Fprintf(&b, "- Slot %d (%s): %q\n", p.SlotID, p.AgentID, p.Text)
	}
	b.WriteString("\nChoose ONE voice whose reflection moved you and speak to it briefly.\n")
	fmt.Fprintf(&b, "You may not choose your own slot (%d).", slotID)
	return b.String()
}

// Turn3 renders the reply prompt for a slot that received comments.
func Turn3(slotID int, agentID string, originalResponse string, comments []types.ReceivedComment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are slot %d (%s). Earlier you reflected:\n\n", slotID, agentID)
	fmt.Fprintf(&b, "%q\n\nOther voices spoke to you:\n\n", originalResponse)
	for _, c := range comments {
		fmt.Fprintf(&b, "- Slot %d (%s): %q\n", c.FromSlotID, c.FromAgentID, c.Comment)
	}
	b.WriteString("\nAnswer them in one breath, letting the ripples meet.")
	return b.String()
}

// Turn4 renders the closing-summary prompt over every collected response,
// ordered by turn then slot.
func Turn4(userMessage string, responses []CollectedResponse) string {
	var b strings.Builder
	b.WriteString("The session is ending. A visitor whispered:\n\n")
	fmt.Fprintf(&b, "%q\n\nThe voices answered across the turns:\n\n", userMessage)
	for _, r := range responses {
		fmt.Fprintf(&b, "- Turn %d, slot %d (%s): %q\n", r.Turn, r.SlotID, r.AgentID, r.Text)
	}
	b.WriteString("\nGather everything that was spoken into one closing reflection before the water returns to stillness.")
	return b.String()
}

// Sentiment renders the classification prompt for the visitor's message.
func Sentiment(userMessage string) string {
	var b strings.Builder
	b.WriteString("Classify the emotional sentiment of this whispered message:\n\n")
	fmt.Fprintf(&b, "%q\n\n", userMessage)
	b.WriteString("Sentiment must be exactly one of: positive, neutral, negative.")
	return b.String()
}
