package events

import (
	"sort"
	"time"

	"github.com/asaficontact/reflective-resonance/pkg/types"
)

// sessionState tracks wave readiness for one broadcast. All access is guarded
// by the orchestrator mutex.
type sessionState struct {
	sessionID string

	// turn1Expected and turn2Expected hold every slot of the request;
	// turn3Expected is narrowed to the actual respondents when the text
	// workflow finishes.
	turn1Expected map[int]bool
	turn2Expected map[int]bool
	turn3Expected map[int]bool

	// ready maps carry the metadata from the completed decomposition jobs, so
	// payloads reflect what was actually written to disk.
	turn1Ready map[int]types.SlotMeta
	turn2Ready map[int]bool
	turn3Ready map[int]bool

	dialogues []types.Dialogue

	workflowComplete bool
	batchEmitted     bool
	summaryEmitted   bool

	seq   int
	timer *time.Timer
}

func newSessionState(sessionID string, slots []types.SlotMeta) *sessionState {
	st := &sessionState{
		sessionID:     sessionID,
		turn1Expected: make(map[int]bool, len(slots)),
		turn2Expected: make(map[int]bool, len(slots)),
		turn3Expected: make(map[int]bool),
		turn1Ready:    make(map[int]types.SlotMeta, len(slots)),
		turn2Ready:    make(map[int]bool, len(slots)),
		turn3Ready:    make(map[int]bool),
	}
	for _, s := range slots {
		st.turn1Expected[s.SlotID] = true
		st.turn2Expected[s.SlotID] = true
	}
	return st
}

// nextSeq hands out the strictly increasing per-session sequence, starting
// at 1.
func (st *sessionState) nextSeq() int {
	st.seq++
	return st.seq
}

// noteResult records a successful decomposition for the given turn. Unknown
// turn indexes are ignored.
func (st *sessionState) noteResult(res types.DecomposeResult) {
	job := res.Job
	switch job.TurnIndex {
	case 1:
		st.turn1Ready[job.SlotID] = types.SlotMeta{
			SlotID:       job.SlotID,
			AgentID:      job.AgentID,
			VoiceProfile: job.VoiceProfile,
			TTSBasename:  job.TTSBasename,
		}
	case 2:
		st.turn2Ready[job.SlotID] = true
	case 3:
		st.turn3Ready[job.SlotID] = true
	}
}

// allReady reports whether every expected wave of every turn has arrived and
// the text workflow itself has finished.
func (st *sessionState) allReady() bool {
	if !st.workflowComplete {
		return false
	}
	for id := range st.turn1Expected {
		if _, ok := st.turn1Ready[id]; !ok {
			return false
		}
	}
	for id := range st.turn2Expected {
		if !st.turn2Ready[id] {
			return false
		}
	}
	for id := range st.turn3Expected {
		if !st.turn3Ready[id] {
			return false
		}
	}
	return true
}

// readySlots returns the Turn-1 slot metadata sorted by slot ID.
func (st *sessionState) readySlots() []types.SlotMeta {
	out := make([]types.SlotMeta, 0, len(st.turn1Ready))
	for _, meta := range st.turn1Ready {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotID < out[j].SlotID })
	return out
}

// missingSlots returns the expected Turn-1 slots that never produced waves,
// sorted ascending.
func (st *sessionState) missingSlots() []int {
	out := []int{}
	for id := range st.turn1Expected {
		if _, ok := st.turn1Ready[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

// dialogueReady reports whether every wave the dialogue plays has arrived.
func (st *sessionState) dialogueReady(d types.Dialogue) bool {
	for _, c := range d.Commenters {
		if !st.turn2Ready[c.SlotID] {
			return false
		}
	}
	return st.turn3Ready[d.Respondent.SlotID]
}

// readyDialogues returns the complete dialogues sorted by target slot.
func (st *sessionState) readyDialogues() []types.Dialogue {
	out := make([]types.Dialogue, 0, len(st.dialogues))
	for _, d := range st.dialogues {
		if st.dialogueReady(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetSlotID < out[j].TargetSlotID })
	return out
}

// stopTimer cancels the workflow timeout if armed.
func (st *sessionState) stopTimer() {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
}
