package engine

import (
	"fmt"
	"testing"

	"github.com/asaficontact/reflective-resonance/pkg/types"
)

// seedTurn1 marks slots 1..n as successful Turn-1 reflections.
func seedTurn1(st *workflowState, n int) {
	for slot := 1; slot <= n; slot++ {
		st.recordTurn1(types.TurnResult{
			SlotID: slot, AgentID: "gpt-4o", Text: fmt.Sprintf("reflection %d", slot),
			VoiceProfile: "calm_soothing", Success: true,
		})
	}
}

func TestRouteCommentsCapsAtThreePerTarget(t *testing.T) {
	st := newWorkflowState("hello water")
	seedTurn1(st, 6)
	// Five commenters converge on slot 1.
	for slot := 2; slot <= 6; slot++ {
		st.recordTurn2(types.TurnResult{
			SlotID: slot, AgentID: "gpt-4o", Text: fmt.Sprintf("comment from %d", slot),
			VoiceProfile: "calm_soothing", TargetSlotID: 1, Success: true,
		})
	}
	st.routeComments()

	comments := st.commentsFor(1)
	if len(comments) != types.MaxCommentsPerTarget {
		t.Fatalf("len(comments) = %d, want %d", len(comments), types.MaxCommentsPerTarget)
	}
	seen := make(map[int]bool)
	for _, c := range comments {
		if c.FromSlotID < 2 || c.FromSlotID > 6 {
			t.Errorf("comment from slot %d, want one of 2..6", c.FromSlotID)
		}
		if seen[c.FromSlotID] {
			t.Errorf("slot %d sampled twice", c.FromSlotID)
		}
		seen[c.FromSlotID] = true
		if want := fmt.Sprintf("comment from %d", c.FromSlotID); c.Comment != want {
			t.Errorf("comment = %q, want %q", c.Comment, want)
		}
	}

	if got := st.commentTargets(); len(got) != 1 || got[0] != 1 {
		t.Errorf("commentTargets = %v, want [1]", got)
	}
}

func TestRouteCommentsKeepsAllBelowCap(t *testing.T) {
	st := newWorkflowState("hello water")
	seedTurn1(st, 4)
	for slot := 2; slot <= 4; slot++ {
		st.recordTurn2(types.TurnResult{
			SlotID: slot, AgentID: "gpt-4o", Text: "c",
			VoiceProfile: "calm_soothing", TargetSlotID: 1, Success: true,
		})
	}
	st.routeComments()

	if got := len(st.commentsFor(1)); got != 3 {
		t.Errorf("len(comments) = %d, want all 3 retained", got)
	}
}

func TestRouteCommentsDropsTargetsWithoutTurn1(t *testing.T) {
	st := newWorkflowState("hello water")
	seedTurn1(st, 2)
	// Slot 5 never reflected; a comment routed there goes nowhere.
	st.recordTurn2(types.TurnResult{
		SlotID: 2, AgentID: "gpt-4o", Text: "c",
		VoiceProfile: "calm_soothing", TargetSlotID: 5, Success: true,
	})
	st.routeComments()

	if got := st.commentTargets(); len(got) != 0 {
		t.Errorf("commentTargets = %v, want none", got)
	}
}
