package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/asaficontact/reflective-resonance/internal/config"
	"github.com/asaficontact/reflective-resonance/internal/observe"
	"github.com/asaficontact/reflective-resonance/internal/session"
	"github.com/asaficontact/reflective-resonance/pkg/types"
)

const sendTimeout = 5 * time.Second

// Orchestrator consumes decomposition results, tracks per-session readiness,
// and emits controller events over the single subscriber socket.
//
// Batch policy: nothing is sent while waves trickle in. Once the text
// workflow has finished and every expected wave is on disk (or the workflow
// timeout expires first), one ordered batch goes out: turn1.waves.ready
// followed by each complete dialogue.waves.ready ascending by target slot.
// user_sentiment bypasses the batch; final_summary.ready is always the
// session's last event.
type Orchestrator struct {
	cfg           config.EventsConfig
	artifactsRoot string
	logger        *slog.Logger
	metrics       *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*sessionState

	clientMu sync.Mutex
	client   *websocket.Conn

	wg sync.WaitGroup
}

// NewOrchestrator wires the orchestrator. artifactsRoot is the directory the
// absolute wave paths in payloads resolve against.
func NewOrchestrator(cfg config.EventsConfig, artifactsRoot string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:           cfg,
		artifactsRoot: artifactsRoot,
		logger:        logger,
		metrics:       observe.DefaultMetrics(),
		sessions:      make(map[string]*sessionState),
	}
}

// Consume drains the worker pool results channel until it is closed. It is
// the single consumer of that channel.
func (o *Orchestrator) Consume(results <-chan types.DecomposeResult) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for res := range results {
			o.handleResult(res)
		}
	}()
}

// Shutdown waits for the consumer to drain (the pool must be shut down
// first) and closes the subscriber socket.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	o.mu.Lock()
	for _, st := range o.sessions {
		st.stopTimer()
	}
	o.mu.Unlock()

	o.clientMu.Lock()
	if o.client != nil {
		o.client.Close(websocket.StatusNormalClosure, "server shutting down")
		o.client = nil
	}
	o.clientMu.Unlock()
	return nil
}

// BeginSession registers a broadcast and the slots whose waves are expected.
func (o *Orchestrator) BeginSession(sessionID string, slots []types.SlotMeta) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessions[sessionID] = newSessionState(sessionID, slots)
	o.logger.Info("events session registered", "session_id", sessionID, "slots", len(slots))
}

// Turn1Complete marks the reflections turn finished. Purely informational:
// the batch waits for the whole workflow.
func (o *Orchestrator) Turn1Complete(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.sessions[sessionID]
	if !ok {
		return
	}
	o.logger.Debug("turn 1 complete", "session_id", sessionID, "waves_ready", len(st.turn1Ready))
}

// Turn3Complete marks the text workflow finished, records the dialogues, and
// arms the workflow timeout. If every wave already landed the batch goes out
// immediately.
func (o *Orchestrator) Turn3Complete(sessionID string, dialogues []types.Dialogue) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.sessions[sessionID]
	if !ok {
		return
	}
	st.dialogues = dialogues
	st.turn3Expected = make(map[int]bool, len(dialogues))
	for _, d := range dialogues {
		st.turn3Expected[d.Respondent.SlotID] = true
	}
	st.workflowComplete = true

	if st.allReady() {
		o.emitBatchLocked(st)
		return
	}
	st.timer = time.AfterFunc(o.cfg.WorkflowTimeout(), func() { o.workflowTimeout(sessionID) })
}

// EmitUserSentiment sends the sentiment event immediately, outside the batch.
func (o *Orchestrator) EmitUserSentiment(sessionID, sentiment, justification string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.sessions[sessionID]
	if !ok {
		return
	}
	o.send(newEnvelope("user_sentiment", sessionID, st.nextSeq(), UserSentimentPayload{
		Sentiment:     sentiment,
		Justification: justification,
	}))
}

// SummaryFailed emits a failed final_summary.ready for sessions whose summary
// never reached the decomposition stage. The batch is flushed first so the
// summary event stays last.
func (o *Orchestrator) SummaryFailed(sessionID, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.sessions[sessionID]
	if !ok || st.summaryEmitted {
		return
	}
	o.emitSummaryLocked(st, FinalSummaryPayload{Status: "failed", Text: text})
}

func (o *Orchestrator) handleResult(res types.DecomposeResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.sessions[res.Job.SessionID]
	if !ok {
		o.logger.Warn("decomposition result for unknown session", "session_id", res.Job.SessionID)
		return
	}

	if res.Job.TurnIndex == types.SummaryTurnIndex {
		o.handleSummaryResultLocked(st, res)
		return
	}

	if !res.Success {
		o.logger.Warn("decomposition failed",
			"session_id", res.Job.SessionID, "turn", res.Job.TurnIndex,
			"slot_id", res.Job.SlotID, "err", res.Err)
		return
	}
	if st.batchEmitted {
		return
	}

	st.noteResult(res)
	o.logger.Debug("wave ready",
		"session_id", res.Job.SessionID, "turn", res.Job.TurnIndex,
		"slot_id", res.Job.SlotID, "snr_db", res.Metrics.SNRdB)

	if st.allReady() {
		st.stopTimer()
		o.emitBatchLocked(st)
	}
}

func (o *Orchestrator) handleSummaryResultLocked(st *sessionState, res types.DecomposeResult) {
	if st.summaryEmitted {
		return
	}
	if !res.Success {
		o.logger.Warn("summary decomposition failed", "session_id", st.sessionID, "err", res.Err)
		o.emitSummaryLocked(st, FinalSummaryPayload{Status: "failed", Text: res.Job.SummaryText})
		return
	}

	targets := res.Job.WaveTargets()
	waves := make([]SummarySlotWave, 0, len(targets))
	for i, slotID := range targets {
		rel := session.WaveRelPath(st.sessionID, types.SummaryTurnIndex, res.Job.TTSBasename, i+1)
		waves = append(waves, SummarySlotWave{
			SlotID:      slotID,
			WavePathAbs: session.AbsPath(o.artifactsRoot, rel),
			WavePathRel: rel,
		})
	}
	o.emitSummaryLocked(st, FinalSummaryPayload{
		Status: "complete",
		Text:   res.Job.SummaryText,
		WaveInfo: &SummaryWaveInfo{
			VoiceProfile: res.Job.VoiceProfile,
			Waves:        waves,
		},
	})
}

// emitSummaryLocked flushes the batch if still pending, then sends the final
// summary event and retires the session state.
func (o *Orchestrator) emitSummaryLocked(st *sessionState, payload FinalSummaryPayload) {
	if !st.batchEmitted && st.workflowComplete {
		o.emitBatchLocked(st)
	}
	st.stopTimer()
	st.summaryEmitted = true
	o.send(newEnvelope("final_summary.ready", st.sessionID, st.nextSeq(), payload))
}

func (o *Orchestrator) workflowTimeout(sessionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	st, ok := o.sessions[sessionID]
	if !ok || st.batchEmitted {
		return
	}
	o.logger.Warn("workflow timeout, emitting partial batch",
		"session_id", sessionID,
		"turn1_ready", len(st.turn1Ready), "turn1_expected", len(st.turn1Expected))
	o.emitBatchLocked(st)
}

// emitBatchLocked sends the one-and-only readiness batch: turn1.waves.ready
// first, then every complete dialogue ascending by target slot.
func (o *Orchestrator) emitBatchLocked(st *sessionState) {
	if st.batchEmitted {
		return
	}
	st.batchEmitted = true
	st.stopTimer()

	missing := st.missingSlots()
	status := "complete"
	if len(missing) > 0 {
		status = "partial"
	}
	ready := st.readySlots()
	slots := make([]SlotWaveInfo, 0, len(ready))
	for _, meta := range ready {
		slots = append(slots, slotWaveInfo(o.artifactsRoot, st.sessionID, 1, meta))
	}
	o.send(newEnvelope("turn1.waves.ready", st.sessionID, st.nextSeq(), Turn1WavesPayload{
		TurnIndex:      1,
		Status:         status,
		SlotsExpected:  len(st.turn1Expected),
		SlotsReady:     len(ready),
		Slots:          slots,
		MissingSlotIDs: missing,
	}))

	for _, d := range st.readyDialogues() {
		o.send(newEnvelope("dialogue.waves.ready", st.sessionID, st.nextSeq(), o.dialoguePayload(st.sessionID, d)))
	}
	o.logger.Info("event batch emitted",
		"session_id", st.sessionID, "status", status,
		"slots_ready", len(ready), "dialogues", len(st.readyDialogues()))
}

func (o *Orchestrator) dialoguePayload(sessionID string, d types.Dialogue) DialogueWavesPayload {
	commenters := make([]SlotWaveInfo, 0, len(d.Commenters))
	playOrder := make([]PlayOrderItem, 0, len(d.Commenters)+1)
	for _, c := range d.Commenters {
		commenters = append(commenters, slotWaveInfo(o.artifactsRoot, sessionID, 2, c))
		playOrder = append(playOrder, PlayOrderItem{Role: "commenter", SlotID: c.SlotID})
	}
	playOrder = append(playOrder, PlayOrderItem{Role: "respondent", SlotID: d.Respondent.SlotID})
	return DialogueWavesPayload{
		DialogueID:   d.DialogueID,
		Turns:        []int{2, 3},
		TargetSlotID: d.TargetSlotID,
		Commenters:   commenters,
		Respondent:   slotWaveInfo(o.artifactsRoot, sessionID, 3, d.Respondent),
		PlayOrder:    playOrder,
	}
}

// send serializes one event to the subscriber. Events are dropped (and
// logged) when no controller is connected; the batch is not replayed.
func (o *Orchestrator) send(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		o.logger.Error("marshaling event", "type", env.Type, "err", err)
		return
	}

	o.clientMu.Lock()
	defer o.clientMu.Unlock()
	if o.client == nil {
		o.metrics.RecordEvent(context.Background(), env.Type, true)
		o.logger.Debug("no controller connected, dropping event", "type", env.Type, "seq", env.Seq)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := o.client.Write(ctx, websocket.MessageText, data); err != nil {
		o.metrics.RecordEvent(ctx, env.Type, true)
		o.logger.Warn("writing event to controller", "type", env.Type, "err", err)
		o.client.CloseNow()
		o.client = nil
		return
	}
	o.metrics.RecordEvent(ctx, env.Type, false)
}
