// Package engine runs the four-turn broadcast workflow: six slots reflect a
// visitor's whispered message, comment on each other, reply to the comments,
// and optionally close with a summary. Turns execute strictly in order with
// per-slot fan-out inside each turn.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/asaficontact/reflective-resonance/internal/agents"
	"github.com/asaficontact/reflective-resonance/internal/config"
	"github.com/asaficontact/reflective-resonance/internal/conversation"
	"github.com/asaficontact/reflective-resonance/internal/observe"
	"github.com/asaficontact/reflective-resonance/internal/prompts"
	"github.com/asaficontact/reflective-resonance/internal/resilience"
	"github.com/asaficontact/reflective-resonance/internal/sentiment"
	"github.com/asaficontact/reflective-resonance/internal/session"
	"github.com/asaficontact/reflective-resonance/pkg/audio"
	"github.com/asaficontact/reflective-resonance/pkg/provider/llm"
	"github.com/asaficontact/reflective-resonance/pkg/provider/tts"
	"github.com/asaficontact/reflective-resonance/pkg/types"
)

// sentimentGrace is how long the engine waits after Turn 1 for the parallel
// sentiment task before moving on.
const sentimentGrace = time.Second

// SpokenResponse is the structured output of turns 1, 3, and 4.
type SpokenResponse struct {
	// Text is the spoken reflection, kept short by the system preamble.
	Text string `json:"text"`

	// VoiceProfile names one of the six installation voices.
	VoiceProfile string `json:"voice_profile"`
}

// CommentSelection is the structured output of Turn 2.
type CommentSelection struct {
	TargetSlotID int    `json:"targetSlotId"`
	Comment      string `json:"comment"`
	VoiceProfile string `json:"voice_profile"`
}

// Request is a validated broadcast request.
type Request struct {
	Message string                 `json:"message"`
	Slots   []types.SlotAssignment `json:"slots"`
}

// ProviderSource resolves (provider, model) pairs to LLM clients.
type ProviderSource interface {
	Get(providerName, model string) (llm.Provider, error)
}

// Submitter enqueues decomposition jobs without blocking.
type Submitter interface {
	Submit(job types.DecomposeJob) bool
}

// Notifier is the engine's message-passing edge to the events orchestrator.
type Notifier interface {
	BeginSession(sessionID string, slots []types.SlotMeta)
	Turn1Complete(sessionID string)
	Turn3Complete(sessionID string, dialogues []types.Dialogue)
	EmitUserSentiment(sessionID, sentiment, justification string)
	SummaryFailed(sessionID, text string)
}

// SentimentAnalyzer classifies the visitor message; nil disables the stage.
type SentimentAnalyzer interface {
	Analyze(ctx context.Context, userMessage string) (*sentiment.Result, error)
}

// Deps are the engine's collaborators. Pool and Sentiment may be nil when the
// corresponding stage is disabled.
type Deps struct {
	Config        *config.Config
	Store         *session.Store
	Conversations *conversation.Log
	Agents        *agents.Registry
	Providers     ProviderSource
	TTS           tts.Synthesizer
	Pool          Submitter
	Events        Notifier
	Sentiment     SentimentAnalyzer
	Metrics       *observe.Metrics
	Logger        *slog.Logger
}

// Engine executes broadcast workflows. Safe for concurrent Run calls; all
// per-broadcast state lives in the workflow, not the engine.
type Engine struct {
	cfg        *config.Config
	store      *session.Store
	convs      *conversation.Log
	agents     *agents.Registry
	llms       ProviderSource
	tts        tts.Synthesizer
	ttsBreaker *resilience.Breaker
	pool       Submitter
	events     Notifier
	sentiment  SentimentAnalyzer
	metrics    *observe.Metrics
	logger     *slog.Logger
	ttsRate    int
}

// New wires an engine from its collaborators.
func New(d Deps) *Engine {
	rate, err := config.ParsePCMRate(d.Config.TTS.OutputFormat)
	if err != nil {
		// Validated at load time; keep a sane rate if constructed by hand.
		rate = 24000
	}
	metrics := d.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Engine{
		cfg:    d.Config,
		store:  d.Store,
		convs:  d.Conversations,
		agents: d.Agents,
		llms:   d.Providers,
		tts:    d.TTS,
		ttsBreaker: resilience.NewBreaker(resilience.BreakerConfig{Name: "tts"}),
		pool:      d.Pool,
		events:    d.Events,
		sentiment: d.Sentiment,
		metrics:   metrics,
		logger:    d.Logger,
		ttsRate:   rate,
	}
}

// Run executes one broadcast, streaming events through emit. The context
// bounds the underlying provider calls; callers that must survive a client
// disconnect pass a detached context.
func (e *Engine) Run(ctx context.Context, req Request, emit func(Event)) error {
	sess, err := e.store.New()
	if err != nil {
		return fmt.Errorf("engine: allocating session: %w", err)
	}
	emit = syncEmit(emit)

	metas := make([]types.SlotMeta, len(req.Slots))
	for i, s := range req.Slots {
		metas[i] = types.SlotMeta{SlotID: s.SlotID, AgentID: s.AgentID}
	}
	e.events.BeginSession(sess.ID, metas)
	e.logger.Info("broadcast started", "session_id", sess.ID, "slots", len(req.Slots))
	e.metrics.BroadcastsStarted.Add(ctx, 1)
	e.metrics.ActiveBroadcasts.Add(ctx, 1)
	defer e.metrics.ActiveBroadcasts.Add(context.WithoutCancel(ctx), -1)

	st := newWorkflowState(req.Message)
	sentimentDone := e.startSentiment(ctx, sess.ID, req.Message)

	e.timedTurn(ctx, 1, func() { e.runTurn1(ctx, sess, req, st, emit) })
	e.events.Turn1Complete(sess.ID)

	if sentimentDone != nil {
		select {
		case <-sentimentDone:
		case <-time.After(sentimentGrace):
		}
	}

	e.timedTurn(ctx, 2, func() { e.runTurn2(ctx, sess, st, emit) })
	st.routeComments()
	e.timedTurn(ctx, 3, func() { e.runTurn3(ctx, sess, st, emit) })
	e.events.Turn3Complete(sess.ID, st.dialogues())

	turns := 3
	if e.cfg.Summary.Enabled {
		var ok bool
		e.timedTurn(ctx, 4, func() { ok = e.runTurn4(ctx, sess, st, emit) })
		if ok {
			turns = 4
		}
	}

	if err := sess.WriteManifest(); err != nil {
		e.logger.Warn("manifest write failed", "session_id", sess.ID, "error", err)
	}
	emit(Event{Name: "done", Data: DonePayload{
		SessionID:      sess.ID,
		CompletedSlots: st.turn1SuccessCount(),
		Turns:          turns,
	}})
	e.logger.Info("broadcast finished",
		"session_id", sess.ID, "completed_slots", st.turn1SuccessCount(), "turns", turns)
	return nil
}

// startSentiment launches the parallel classification. The returned channel
// closes when the stage settles; nil means the stage is disabled.
func (e *Engine) startSentiment(ctx context.Context, sessionID, message string) <-chan struct{} {
	if e.sentiment == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, err := e.sentiment.Analyze(ctx, message)
		if err != nil {
			e.logger.Debug("sentiment stage failed", "session_id", sessionID, "error", err)
			return
		}
		if res == nil {
			return
		}
		e.events.EmitUserSentiment(sessionID, res.Sentiment, res.Justification)
	}()
	return done
}

func (e *Engine) runTurn1(ctx context.Context, sess *session.Session, req Request, st *workflowState, emit func(Event)) {
	emit(turnStart(1, types.KindResponse))
	var g errgroup.Group
	for _, slot := range req.Slots {
		g.Go(func() error {
			e.turn1Slot(ctx, sess, st, slot, emit)
			return nil
		})
	}
	g.Wait()
	emit(turnDone(1, st.turn1SuccessCount()))
}

func (e *Engine) turn1Slot(ctx context.Context, sess *session.Session, st *workflowState, slot types.SlotAssignment, emit func(Event)) {
	emit(Event{Name: "slot.start", Data: SlotStartPayload{TurnIndex: 1, SlotID: slot.SlotID, AgentID: slot.AgentID}})

	conv := e.convs.GetOrCreate(slot.SlotID)
	conv.AddUser(prompts.Turn1(st.userMessage))

	res, raw, err := e.completeSpoken(ctx, slot.AgentID, conv.Messages())
	if err != nil {
		e.slotError(emit, 1, slot.SlotID, slot.AgentID, err)
		return
	}
	conv.AddAssistant(raw)

	profile := tts.ProfileOrFallback(res.VoiceProfile, e.cfg.TTS.FallbackProfile)
	emit(Event{Name: "slot.done", Data: SlotDonePayload{
		TurnIndex: 1, SlotID: slot.SlotID, AgentID: slot.AgentID,
		Text: res.Text, VoiceProfile: profile.Name,
	}})

	result := types.TurnResult{
		SlotID:       slot.SlotID,
		AgentID:      slot.AgentID,
		Text:         res.Text,
		VoiceProfile: profile.Name,
		Success:      true,
	}

	abs, rel := sess.Turn1AudioPath(slot.SlotID, slot.AgentID, profile.Name)
	if err := e.synthesize(ctx, res.Text, profile, abs); err != nil {
		e.ttsError(emit, 1, slot.SlotID, slot.AgentID, err)
		st.recordTurn1(result)
		return
	}
	result.AudioRelPath = rel
	st.recordTurn1(result)
	e.metrics.RecordSlotResult(ctx, 1, "ok")

	sess.AddTurn1Entry(session.ManifestEntry{
		SlotID: slot.SlotID, AgentID: slot.AgentID, VoiceProfile: profile.Name,
		Text: res.Text, AudioPath: rel,
	})
	emit(Event{Name: "slot.audio", Data: SlotAudioPayload{TurnIndex: 1, SlotID: slot.SlotID, AudioPath: rel}})

	e.submitDecompose(sess, types.DecomposeJob{
		SessionID:    sess.ID,
		TurnIndex:    1,
		SlotID:       slot.SlotID,
		AgentID:      slot.AgentID,
		VoiceProfile: profile.Name,
		TTSBasename:  session.Turn1Basename(slot.SlotID, slot.AgentID, profile.Name),
		InputPath:    abs,
		OutputDir:    sess.WavesDir(1),
		NWaves:       2,
	})
}

func (e *Engine) runTurn2(ctx context.Context, sess *session.Session, st *workflowState, emit func(Event)) {
	emit(turnStart(2, types.KindComment))
	participants := st.turn1Slots()
	var g errgroup.Group
	for _, slotID := range participants {
		g.Go(func() error {
			e.turn2Slot(ctx, sess, st, slotID, emit)
			return nil
		})
	}
	g.Wait()
	emit(turnDone(2, st.turn2Count()))
}

func (e *Engine) turn2Slot(ctx context.Context, sess *session.Session, st *workflowState, slotID int, emit func(Event)) {
	r1, _ := st.turn1Result(slotID)
	agentID := r1.AgentID

	emit(Event{Name: "slot.start", Data: SlotStartPayload{TurnIndex: 2, SlotID: slotID, AgentID: agentID}})

	conv := e.convs.GetOrCreate(slotID)
	conv.AddUser(prompts.Turn2(slotID, agentID, st.peersFor(slotID)))

	res, raw, err := e.completeComment(ctx, agentID, conv.Messages())
	if err != nil {
		e.slotError(emit, 2, slotID, agentID, err)
		return
	}
	if res.TargetSlotID < 1 || res.TargetSlotID > 6 || res.TargetSlotID == slotID {
		e.slotError(emit, 2, slotID, agentID,
			fmt.Errorf("model chose invalid target slot %d", res.TargetSlotID))
		return
	}
	conv.AddAssistant(raw)

	profile := tts.ProfileOrFallback(res.VoiceProfile, e.cfg.TTS.FallbackProfile)
	emit(Event{Name: "slot.done", Data: SlotDonePayload{
		TurnIndex: 2, SlotID: slotID, AgentID: agentID,
		Text: res.Comment, VoiceProfile: profile.Name, TargetSlotID: res.TargetSlotID,
	}})

	result := types.TurnResult{
		SlotID:       slotID,
		AgentID:      agentID,
		Text:         res.Comment,
		VoiceProfile: profile.Name,
		TargetSlotID: res.TargetSlotID,
		Success:      true,
	}

	abs, rel := sess.Turn2AudioPath(slotID, res.TargetSlotID, agentID, profile.Name)
	if err := e.synthesize(ctx, res.Comment, profile, abs); err != nil {
		e.ttsError(emit, 2, slotID, agentID, err)
		st.recordTurn2(result)
		return
	}
	result.AudioRelPath = rel
	st.recordTurn2(result)
	e.metrics.RecordSlotResult(ctx, 2, "ok")

	sess.AddTurn2Entry(session.ManifestEntry{
		SlotID: slotID, AgentID: agentID, VoiceProfile: profile.Name,
		Text: res.Comment, AudioPath: rel, TargetSlotID: res.TargetSlotID,
	})
	emit(Event{Name: "slot.audio", Data: SlotAudioPayload{TurnIndex: 2, SlotID: slotID, AudioPath: rel}})

	e.submitDecompose(sess, types.DecomposeJob{
		SessionID:    sess.ID,
		TurnIndex:    2,
		SlotID:       slotID,
		AgentID:      agentID,
		VoiceProfile: profile.Name,
		TTSBasename:  session.Turn2Basename(slotID, res.TargetSlotID, agentID, profile.Name),
		InputPath:    abs,
		OutputDir:    sess.WavesDir(2),
		TargetSlotID: res.TargetSlotID,
		NWaves:       2,
	})
}

func (e *Engine) runTurn3(ctx context.Context, sess *session.Session, st *workflowState, emit func(Event)) {
	emit(turnStart(3, types.KindReply))
	targets := st.commentTargets()
	var g errgroup.Group
	for _, slotID := range targets {
		g.Go(func() error {
			e.turn3Slot(ctx, sess, st, slotID, emit)
			return nil
		})
	}
	g.Wait()
	emit(turnDone(3, st.turn3Count()))
}

func (e *Engine) turn3Slot(ctx context.Context, sess *session.Session, st *workflowState, slotID int, emit func(Event)) {
	r1, _ := st.turn1Result(slotID)
	agentID := r1.AgentID

	emit(Event{Name: "slot.start", Data: SlotStartPayload{TurnIndex: 3, SlotID: slotID, AgentID: agentID}})

	conv := e.convs.GetOrCreate(slotID)
	conv.AddUser(prompts.Turn3(slotID, agentID, r1.Text, st.commentsFor(slotID)))

	res, raw, err := e.completeSpoken(ctx, agentID, conv.Messages())
	if err != nil {
		e.slotError(emit, 3, slotID, agentID, err)
		return
	}
	conv.AddAssistant(raw)

	profile := tts.ProfileOrFallback(res.VoiceProfile, e.cfg.TTS.FallbackProfile)
	emit(Event{Name: "slot.done", Data: SlotDonePayload{
		TurnIndex: 3, SlotID: slotID, AgentID: agentID,
		Text: res.Text, VoiceProfile: profile.Name,
	}})

	result := types.TurnResult{
		SlotID:       slotID,
		AgentID:      agentID,
		Text:         res.Text,
		VoiceProfile: profile.Name,
		Success:      true,
	}

	abs, rel := sess.Turn3AudioPath(slotID, agentID, profile.Name)
	if err := e.synthesize(ctx, res.Text, profile, abs); err != nil {
		e.ttsError(emit, 3, slotID, agentID, err)
		st.recordTurn3(result)
		return
	}
	result.AudioRelPath = rel
	st.recordTurn3(result)
	e.metrics.RecordSlotResult(ctx, 3, "ok")

	sess.AddTurn3Entry(session.ManifestEntry{
		SlotID: slotID, AgentID: agentID, VoiceProfile: profile.Name,
		Text: res.Text, AudioPath: rel,
	})
	emit(Event{Name: "slot.audio", Data: SlotAudioPayload{TurnIndex: 3, SlotID: slotID, AudioPath: rel}})

	e.submitDecompose(sess, types.DecomposeJob{
		SessionID:    sess.ID,
		TurnIndex:    3,
		SlotID:       slotID,
		AgentID:      agentID,
		VoiceProfile: profile.Name,
		TTSBasename:  session.Turn3Basename(slotID, agentID, profile.Name),
		InputPath:    abs,
		OutputDir:    sess.WavesDir(3),
		NWaves:       2,
	})
}

// runTurn4 produces the closing summary in a fresh conversation. Reports
// whether the summary fully succeeded.
func (e *Engine) runTurn4(ctx context.Context, sess *session.Session, st *workflowState, emit func(Event)) bool {
	emit(turnStart(4, types.KindSummary))
	ok := e.summarize(ctx, sess, st, emit)
	count := 0
	if ok {
		count = 1
	}
	emit(turnDone(4, count))
	return ok
}

func (e *Engine) summarize(ctx context.Context, sess *session.Session, st *workflowState, emit func(Event)) bool {
	agentID := e.cfg.Summary.Model
	emit(Event{Name: "slot.start", Data: SlotStartPayload{TurnIndex: 4, SlotID: 0, AgentID: agentID}})

	providerName, model, err := e.agents.Route(agentID)
	if err != nil {
		// Summary models outside the agent registry run on OpenAI directly.
		providerName, model = "openai", agentID
	}
	p, err := e.llms.Get(providerName, model)
	if err != nil {
		e.slotError(emit, 4, 0, agentID, err)
		e.events.SummaryFailed(sess.ID, "")
		return false
	}

	messages := []types.Message{
		{Role: "system", Content: e.cfg.LLM.DefaultSystemPrompt},
		{Role: "user", Content: prompts.Turn4(st.userMessage, st.collectedResponses())},
	}
	res, _, err := completeStructured[SpokenResponse](ctx, e, p, agentID, messages,
		e.cfg.Summary.Temperature, e.cfg.Summary.MaxTokens, e.cfg.Summary.Timeout())
	if err != nil {
		e.slotError(emit, 4, 0, agentID, err)
		e.events.SummaryFailed(sess.ID, "")
		return false
	}

	profile := tts.ProfileOrFallback(res.VoiceProfile, e.cfg.TTS.FallbackProfile)
	emit(Event{Name: "slot.done", Data: SlotDonePayload{
		TurnIndex: 4, SlotID: 0, AgentID: agentID,
		Text: res.Text, VoiceProfile: profile.Name,
	}})

	abs, rel := sess.SummaryAudioPath(profile.Name)
	if err := e.synthesize(ctx, res.Text, profile, abs); err != nil {
		e.ttsError(emit, 4, 0, agentID, err)
		e.events.SummaryFailed(sess.ID, res.Text)
		return false
	}

	e.metrics.RecordSlotResult(ctx, 4, "ok")
	sess.SetSummaryEntry(session.ManifestEntry{
		SlotID: 0, AgentID: agentID, VoiceProfile: profile.Name,
		Text: res.Text, AudioPath: rel,
	})
	emit(Event{Name: "slot.audio", Data: SlotAudioPayload{TurnIndex: 4, SlotID: 0, AudioPath: rel}})

	e.submitDecompose(sess, types.DecomposeJob{
		SessionID:    sess.ID,
		TurnIndex:    types.SummaryTurnIndex,
		SlotID:       -1,
		AgentID:      agentID,
		VoiceProfile: profile.Name,
		TTSBasename:  session.SummaryBasename(profile.Name),
		InputPath:    abs,
		OutputDir:    sess.WavesDir(types.SummaryTurnIndex),
		SummaryText:  res.Text,
		NWaves:       6,
	})
	return true
}

// completeSpoken runs a structured spoken-response call for an agent.
func (e *Engine) completeSpoken(ctx context.Context, agentID string, messages []types.Message) (*SpokenResponse, string, error) {
	p, err := e.providerFor(agentID)
	if err != nil {
		return nil, "", err
	}
	return completeStructured[SpokenResponse](ctx, e, p, agentID, messages,
		e.cfg.LLM.Temperature, e.cfg.LLM.MaxTokens, e.cfg.LLM.Timeout())
}

// completeComment runs a structured comment-selection call for an agent.
func (e *Engine) completeComment(ctx context.Context, agentID string, messages []types.Message) (*CommentSelection, string, error) {
	p, err := e.providerFor(agentID)
	if err != nil {
		return nil, "", err
	}
	return completeStructured[CommentSelection](ctx, e, p, agentID, messages,
		e.cfg.LLM.Temperature, e.cfg.LLM.MaxTokens, e.cfg.LLM.Timeout())
}

func (e *Engine) providerFor(agentID string) (llm.Provider, error) {
	providerName, model, err := e.agents.Route(agentID)
	if err != nil {
		return nil, err
	}
	return e.llms.Get(providerName, model)
}

// completeStructured issues one structured completion with per-call timeout
// and transient-failure retries.
func completeStructured[T any](ctx context.Context, e *Engine, p llm.Provider, name string, messages []types.Message, temperature float64, maxTokens int, timeout time.Duration) (*T, string, error) {
	req := llm.CompletionRequest{
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	var (
		out *T
		raw string
	)
	err := resilience.Retry(ctx, resilience.RetryConfig{Name: name, Attempts: e.cfg.LLM.Retries}, func() error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		start := time.Now()
		var callErr error
		out, raw, callErr = llm.CompleteStructured[T](callCtx, p, req)
		e.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
		return callErr
	})
	if err != nil {
		return nil, "", err
	}
	return out, raw, nil
}

// synthesize runs TTS behind the vendor circuit breaker and writes the take
// as a mono WAV.
func (e *Engine) synthesize(ctx context.Context, text string, profile tts.VoiceProfile, absPath string) error {
	var pcm []byte
	err := e.ttsBreaker.Execute(func() error {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.TTS.Timeout())
		defer cancel()
		start := time.Now()
		var callErr error
		pcm, callErr = e.tts.Synthesize(callCtx, text, profile)
		e.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
		return callErr
	})
	if err != nil {
		return err
	}
	return audio.WriteWAV(absPath, pcm, e.ttsRate)
}

func (e *Engine) submitDecompose(sess *session.Session, job types.DecomposeJob) {
	if e.pool == nil {
		return
	}
	if !e.pool.Submit(job) {
		e.logger.Warn("decomposition queue full, dropping job",
			"session_id", job.SessionID, "turn", job.TurnIndex, "slot_id", job.SlotID)
	}
}

// timedTurn records a turn's wall-clock duration around fn.
func (e *Engine) timedTurn(ctx context.Context, turn int, fn func()) {
	start := time.Now()
	fn()
	e.metrics.RecordTurnDuration(ctx, turn, time.Since(start))
}

func (e *Engine) slotError(emit func(Event), turnIndex, slotID int, agentID string, err error) {
	kind := types.Classify(err)
	e.logger.Warn("slot failed",
		"turn", turnIndex, "slot_id", slotID, "agent_id", agentID,
		"kind", string(kind), "error", err)
	e.metrics.RecordSlotResult(context.Background(), turnIndex, string(kind))
	emit(Event{Name: "slot.error", Data: SlotErrorPayload{
		TurnIndex: turnIndex, SlotID: slotID, AgentID: agentID,
		ErrorType: kind, Message: err.Error(),
	}})
}

// ttsError reports a synthesis failure; the textual result stays valid.
func (e *Engine) ttsError(emit func(Event), turnIndex, slotID int, agentID string, err error) {
	e.logger.Warn("tts failed",
		"turn", turnIndex, "slot_id", slotID, "agent_id", agentID, "error", err)
	e.metrics.RecordSlotResult(context.Background(), turnIndex, string(types.ErrKindTTS))
	emit(Event{Name: "slot.error", Data: SlotErrorPayload{
		TurnIndex: turnIndex, SlotID: slotID, AgentID: agentID,
		ErrorType: types.ErrKindTTS, Message: err.Error(),
	}})
}
