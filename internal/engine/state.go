package engine

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/asaficontact/reflective-resonance/internal/prompts"
	"github.com/asaficontact/reflective-resonance/internal/session"
	"github.com/asaficontact/reflective-resonance/pkg/types"
)

// workflowState accumulates per-turn results for one broadcast. Slots within
// a turn write concurrently; reads happen between turns, after the fan-out
// has settled.
type workflowState struct {
	userMessage string

	mu    sync.Mutex
	turn1 map[int]types.TurnResult
	turn2 []types.TurnResult
	turn3 map[int]types.TurnResult

	commentsByTarget   map[int][]types.ReceivedComment
	commentersByTarget map[int][]types.SlotMeta
}

func newWorkflowState(userMessage string) *workflowState {
	return &workflowState{
		userMessage:        userMessage,
		turn1:              make(map[int]types.TurnResult),
		turn3:              make(map[int]types.TurnResult),
		commentsByTarget:   make(map[int][]types.ReceivedComment),
		commentersByTarget: make(map[int][]types.SlotMeta),
	}
}

func (st *workflowState) recordTurn1(r types.TurnResult) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.turn1[r.SlotID] = r
}

func (st *workflowState) recordTurn2(r types.TurnResult) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.turn2 = append(st.turn2, r)
}

func (st *workflowState) recordTurn3(r types.TurnResult) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.turn3[r.SlotID] = r
}

// turn1Slots returns the slot IDs with a successful Turn-1 result, ascending.
func (st *workflowState) turn1Slots() []int {
	st.mu.Lock()
	defer st.mu.Unlock()
	ids := make([]int, 0, len(st.turn1))
	for id := range st.turn1 {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (st *workflowState) turn1Result(slotID int) (types.TurnResult, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	r, ok := st.turn1[slotID]
	return r, ok
}

// peersFor builds the shuffled peer list a slot sees in Turn 2: every other
// successful Turn-1 slot's reflection.
func (st *workflowState) peersFor(slotID int) []prompts.PeerResponse {
	st.mu.Lock()
	defer st.mu.Unlock()
	peers := make([]prompts.PeerResponse, 0, len(st.turn1))
	for id, r := range st.turn1 {
		if id == slotID {
			continue
		}
		peers = append(peers, prompts.PeerResponse{SlotID: id, AgentID: r.AgentID, Text: r.Text})
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].SlotID < peers[j].SlotID })
	rand.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
	return peers
}

// routeComments groups successful Turn-2 comments by target, keeping only
// targets that themselves reflected in Turn 1, and uniformly samples
// MaxCommentsPerTarget when a slot drew more. Commenter metadata (for the
// later dialogue payloads) follows the same sampling and is limited to
// comments with an audio artifact.
func (st *workflowState) routeComments() {
	st.mu.Lock()
	defer st.mu.Unlock()

	byTarget := make(map[int][]types.TurnResult)
	for _, r := range st.turn2 {
		if _, ok := st.turn1[r.TargetSlotID]; !ok {
			continue
		}
		byTarget[r.TargetSlotID] = append(byTarget[r.TargetSlotID], r)
	}

	for target, list := range byTarget {
		if len(list) > types.MaxCommentsPerTarget {
			idx := rand.Perm(len(list))[:types.MaxCommentsPerTarget]
			sort.Ints(idx)
			sampled := make([]types.TurnResult, 0, types.MaxCommentsPerTarget)
			for _, i := range idx {
				sampled = append(sampled, list[i])
			}
			list = sampled
		}
		for _, r := range list {
			st.commentsByTarget[target] = append(st.commentsByTarget[target], types.ReceivedComment{
				FromSlotID:  r.SlotID,
				FromAgentID: r.AgentID,
				Comment:     r.Text,
			})
			if r.AudioRelPath != "" {
				st.commentersByTarget[target] = append(st.commentersByTarget[target], types.SlotMeta{
					SlotID:       r.SlotID,
					AgentID:      r.AgentID,
					VoiceProfile: r.VoiceProfile,
					TTSBasename:  session.Turn2Basename(r.SlotID, target, r.AgentID, r.VoiceProfile),
				})
			}
		}
	}
}

// commentTargets returns the slots that received at least one routed comment,
// ascending.
func (st *workflowState) commentTargets() []int {
	st.mu.Lock()
	defer st.mu.Unlock()
	ids := make([]int, 0, len(st.commentsByTarget))
	for id := range st.commentsByTarget {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (st *workflowState) commentsFor(slotID int) []types.ReceivedComment {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.commentsByTarget[slotID]
}

// dialogues pairs each Turn-3 respondent that produced audio with its
// audio-bearing commenters, ascending by target slot.
func (st *workflowState) dialogues() []types.Dialogue {
	st.mu.Lock()
	defer st.mu.Unlock()

	targets := make([]int, 0, len(st.turn3))
	for id := range st.turn3 {
		targets = append(targets, id)
	}
	sort.Ints(targets)

	out := make([]types.Dialogue, 0, len(targets))
	for _, target := range targets {
		r := st.turn3[target]
		if r.AudioRelPath == "" {
			continue
		}
		out = append(out, types.Dialogue{
			DialogueID:   fmt.Sprintf("turn23-slot%d", target),
			TargetSlotID: target,
			Commenters:   st.commentersByTarget[target],
			Respondent: types.SlotMeta{
				SlotID:       r.SlotID,
				AgentID:      r.AgentID,
				VoiceProfile: r.VoiceProfile,
				TTSBasename:  session.Turn3Basename(r.SlotID, r.AgentID, r.VoiceProfile),
			},
		})
	}
	return out
}

// collectedResponses gathers every successful textual result from turns 1-3
// for the summary prompt, ordered by turn then slot.
func (st *workflowState) collectedResponses() []prompts.CollectedResponse {
	st.mu.Lock()
	defer st.mu.Unlock()

	var out []prompts.CollectedResponse
	for _, id := range sortedKeys(st.turn1) {
		r := st.turn1[id]
		out = append(out, prompts.CollectedResponse{Turn: 1, SlotID: r.SlotID, AgentID: r.AgentID, Text: r.Text})
	}
	turn2 := make([]types.TurnResult, len(st.turn2))
	copy(turn2, st.turn2)
	sort.Slice(turn2, func(i, j int) bool { return turn2[i].SlotID < turn2[j].SlotID })
	for _, r := range turn2 {
		out = append(out, prompts.CollectedResponse{Turn: 2, SlotID: r.SlotID, AgentID: r.AgentID, Text: r.Text})
	}
	for _, id := range sortedKeys(st.turn3) {
		r := st.turn3[id]
		out = append(out, prompts.CollectedResponse{Turn: 3, SlotID: r.SlotID, AgentID: r.AgentID, Text: r.Text})
	}
	return out
}

func (st *workflowState) turn2Count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.turn2)
}

func (st *workflowState) turn3Count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.turn3)
}

func (st *workflowState) turn1SuccessCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.turn1)
}

func sortedKeys(m map[int]types.TurnResult) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
