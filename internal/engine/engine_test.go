package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/asaficontact/reflective-resonance/internal/agents"
	"github.com/asaficontact/reflective-resonance/internal/config"
	"github.com/asaficontact/reflective-resonance/internal/conversation"
	"github.com/asaficontact/reflective-resonance/internal/sentiment"
	"github.com/asaficontact/reflective-resonance/internal/session"
	"github.com/asaficontact/reflective-resonance/pkg/provider/llm"
	llmmock "github.com/asaficontact/reflective-resonance/pkg/provider/llm/mock"
	ttsmock "github.com/asaficontact/reflective-resonance/pkg/provider/tts/mock"
	"github.com/asaficontact/reflective-resonance/pkg/types"
)

// fakeProviders routes (provider, model) pairs to scripted mocks.
type fakeProviders struct {
	byKey map[string]llm.Provider
}

func (f *fakeProviders) Get(providerName, model string) (llm.Provider, error) {
	p, ok := f.byKey[providerName+"/"+model]
	if !ok {
		return nil, fmt.Errorf("no mock for %s/%s", providerName, model)
	}
	return p, nil
}

// fakeSubmitter records submitted jobs.
type fakeSubmitter struct {
	mu   sync.Mutex
	jobs []types.DecomposeJob
}

func (f *fakeSubmitter) Submit(job types.DecomposeJob) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return true
}

func (f *fakeSubmitter) byTurn(turnIndex int) []types.DecomposeJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.DecomposeJob
	for _, j := range f.jobs {
		if j.TurnIndex == turnIndex {
			out = append(out, j)
		}
	}
	return out
}

// fakeNotifier records every orchestrator notification.
type fakeNotifier struct {
	mu             sync.Mutex
	began          []string
	turn1Done      []string
	dialogues      []types.Dialogue
	turn3Done      bool
	sentiments     []string
	summaryFailed  []string
	beganSlotCount int
}

func (f *fakeNotifier) BeginSession(sessionID string, slots []types.SlotMeta) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.began = append(f.began, sessionID)
	f.beganSlotCount = len(slots)
}

func (f *fakeNotifier) Turn1Complete(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turn1Done = append(f.turn1Done, sessionID)
}

func (f *fakeNotifier) Turn3Complete(sessionID string, dialogues []types.Dialogue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turn3Done = true
	f.dialogues = dialogues
}

func (f *fakeNotifier) EmitUserSentiment(sessionID, s, j string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentiments = append(f.sentiments, s)
}

func (f *fakeNotifier) SummaryFailed(sessionID, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaryFailed = append(f.summaryFailed, text)
}

// fakeSentiment returns a fixed classification.
type fakeSentiment struct{ result *sentiment.Result }

func (f *fakeSentiment) Analyze(context.Context, string) (*sentiment.Result, error) {
	return f.result, nil
}

func spoken(text, voice string) llmmock.Response {
	return llmmock.Response{Content: fmt.Sprintf(`{"text": %q, "voice_profile": %q}`, text, voice)}
}

func comment(target int, text, voice string) llmmock.Response {
	return llmmock.Response{Content: fmt.Sprintf(
		`{"targetSlotId": %d, "comment": %q, "voice_profile": %q}`, target, text, voice)}
}

type testRig struct {
	engine   *Engine
	cfg      *config.Config
	pool     *fakeSubmitter
	notifier *fakeNotifier
	tts      *ttsmock.Synthesizer
	root     string
}

func newRig(t *testing.T, providers map[string]llm.Provider) *testRig {
	t.Helper()
	cfg := config.Default()
	cfg.ArtifactsDir = t.TempDir()
	cfg.Sentiment.Enabled = true
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rig := &testRig{
		cfg:      cfg,
		pool:     &fakeSubmitter{},
		notifier: &fakeNotifier{},
		tts:      &ttsmock.Synthesizer{},
		root:     cfg.ArtifactsDir,
	}
	rig.engine = New(Deps{
		Config:        cfg,
		Store:         session.NewStore(cfg.ArtifactsDir, logger),
		Conversations: conversation.NewLog(cfg.LLM.DefaultSystemPrompt),
		Agents:        agents.NewRegistry(),
		Providers:     &fakeProviders{byKey: providers},
		TTS:           rig.tts,
		Pool:          rig.pool,
		Events:        rig.notifier,
		Sentiment:     &fakeSentiment{result: &sentiment.Result{Sentiment: "positive", Justification: "x"}},
		Logger:        logger,
	})
	return rig
}

func collectEvents() (func(Event), *[]Event) {
	var events []Event
	return func(ev Event) { events = append(events, ev) }, &events
}

func eventNames(events []Event) []string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Name
	}
	return names
}

func indexOf(events []Event, name string) int {
	for i, ev := range events {
		if ev.Name == name {
			return i
		}
	}
	return -1
}

func TestRunTwoSlotHappyPath(t *testing.T) {
	// Slot 1 and slot 2 comment on each other, both reply, then a summary.
	providers := map[string]llm.Provider{
		"anthropic/claude-sonnet-4-20250514": llmmock.New(
			spoken("still water listens", "calm_soothing"),
			comment(2, "your ripple reached me", "calm_soothing"),
			spoken("the ripples meet", "calm_soothing"),
		),
		"gemini/gemini-2.0-flash": llmmock.New(
			spoken("light dances on the surface", "energetic_upbeat"),
			comment(1, "your stillness steadies me", "energetic_upbeat"),
			spoken("we settle together", "energetic_upbeat"),
		),
		"openai/gpt-4o": llmmock.New(
			spoken("the water carries all of it", "warm_professional"),
		),
	}
	rig := newRig(t, providers)

	emit, events := collectEvents()
	req := Request{
		Message: "i miss the sea",
		Slots: []types.SlotAssignment{
			{SlotID: 1, AgentID: "claude-sonnet-4-5"},
			{SlotID: 2, AgentID: "gemini-3"},
		},
	}
	if err := rig.engine.Run(context.Background(), req, emit); err != nil {
		t.Fatalf("Run: %v", err)
	}

	evs := *events
	last := evs[len(evs)-1]
	if last.Name != "done" {
		t.Fatalf("last event = %s, want done", last.Name)
	}
	done := last.Data.(DonePayload)
	if done.CompletedSlots != 2 || done.Turns != 4 {
		t.Errorf("done = %+v", done)
	}

	// Turn ordering: each turn.done precedes the next turn.start.
	names := eventNames(evs)
	order := []string{"turn.start", "turn.done"}
	count := 0
	for _, n := range names {
		if n == order[count%2] {
			count++
		} else if n == "turn.start" || n == "turn.done" {
			t.Fatalf("unbalanced turn events: %v", names)
		}
	}
	if count != 8 {
		t.Errorf("saw %d turn boundaries, want 8 (4 turns)", count)
	}

	// Decomposition jobs: two per turn for turns 1-3, one summary with 6 waves.
	for turn := 1; turn <= 3; turn++ {
		if jobs := rig.pool.byTurn(turn); len(jobs) != 2 {
			t.Errorf("turn %d jobs = %d, want 2", turn, len(jobs))
		}
	}
	summaryJobs := rig.pool.byTurn(types.SummaryTurnIndex)
	if len(summaryJobs) != 1 {
		t.Fatalf("summary jobs = %d, want 1", len(summaryJobs))
	}
	sj := summaryJobs[0]
	if sj.NWaves != 6 || sj.SlotID != -1 || sj.SummaryText != "the water carries all of it" {
		t.Errorf("summary job = %+v", sj)
	}

	// Orchestrator notifications.
	n := rig.notifier
	if len(n.began) != 1 || n.beganSlotCount != 2 || !n.turn3Done {
		t.Errorf("notifier = %+v", n)
	}
	if len(n.dialogues) != 2 {
		t.Fatalf("dialogues = %d, want 2", len(n.dialogues))
	}
	if n.dialogues[0].TargetSlotID != 1 || n.dialogues[1].TargetSlotID != 2 {
		t.Errorf("dialogue targets = %d, %d", n.dialogues[0].TargetSlotID, n.dialogues[1].TargetSlotID)
	}
	d := n.dialogues[1]
	if d.DialogueID != "turn23-slot2" || len(d.Commenters) != 1 || d.Commenters[0].SlotID != 1 {
		t.Errorf("dialogue = %+v", d)
	}
	if len(n.sentiments) != 1 || n.sentiments[0] != "positive" {
		t.Errorf("sentiments = %v", n.sentiments)
	}

	// Artifacts on disk: turn-1 audio and the manifest.
	sid := done.SessionID
	wav := filepath.Join(rig.root, "tts", "sessions", sid, "turn_1", "slot-1_claude-sonnet-4-5_calm_soothing.wav")
	if _, err := os.Stat(wav); err != nil {
		t.Errorf("turn-1 audio missing: %v", err)
	}
	manifest := filepath.Join(rig.root, "tts", "sessions", sid, "session.json")
	if _, err := os.Stat(manifest); err != nil {
		t.Errorf("manifest missing: %v", err)
	}
}

func TestFailedSlotExcludedFromLaterTurns(t *testing.T) {
	providers := map[string]llm.Provider{
		"anthropic/claude-sonnet-4-20250514": llmmock.New(
			llmmock.Response{Err: errors.New("model exploded")},
		),
		"gemini/gemini-2.0-flash": llmmock.New(
			spoken("alone on the water", "calm_soothing"),
			comment(1, "where did you go", "calm_soothing"),
		),
		"openai/gpt-4o": llmmock.New(spoken("quiet end", "calm_soothing")),
	}
	rig := newRig(t, providers)
	rig.cfg.Summary.Enabled = false

	emit, events := collectEvents()
	req := Request{
		Message: "hello",
		Slots: []types.SlotAssignment{
			{SlotID: 1, AgentID: "claude-sonnet-4-5"},
			{SlotID: 2, AgentID: "gemini-3"},
		},
	}
	if err := rig.engine.Run(context.Background(), req, emit); err != nil {
		t.Fatalf("Run: %v", err)
	}
	evs := *events

	errIdx := indexOf(evs, "slot.error")
	if errIdx < 0 {
		t.Fatal("no slot.error emitted")
	}
	pe := evs[errIdx].Data.(SlotErrorPayload)
	if pe.SlotID != 1 || pe.TurnIndex != 1 || pe.ErrorType != types.ErrKindServer {
		t.Errorf("slot.error = %+v", pe)
	}

	done := evs[len(evs)-1].Data.(DonePayload)
	if done.CompletedSlots != 1 || done.Turns != 3 {
		t.Errorf("done = %+v", done)
	}

	// Slot 1 must not appear in turn 2; slot 2 comments at slot 1, but the
	// target failed Turn 1 so no dialogue forms.
	if jobs := rig.pool.byTurn(2); len(jobs) != 1 || jobs[0].SlotID != 2 {
		t.Errorf("turn 2 jobs = %+v", jobs)
	}
	if jobs := rig.pool.byTurn(3); len(jobs) != 0 {
		t.Errorf("turn 3 jobs = %+v", jobs)
	}
	if len(rig.notifier.dialogues) != 0 {
		t.Errorf("dialogues = %+v", rig.notifier.dialogues)
	}
}

func TestTTSFailureKeepsTextualSuccess(t *testing.T) {
	providers := map[string]llm.Provider{
		"anthropic/claude-sonnet-4-20250514": llmmock.New(
			spoken("a whisper remains", "calm_soothing"),
			comment(2, "unused", "calm_soothing"),
		),
		"openai/gpt-4o": llmmock.New(spoken("summary text", "calm_soothing")),
	}
	rig := newRig(t, providers)
	rig.tts.Err = errors.New("vendor unavailable")

	emit, events := collectEvents()
	req := Request{
		Message: "hello",
		Slots:   []types.SlotAssignment{{SlotID: 1, AgentID: "claude-sonnet-4-5"}},
	}
	if err := rig.engine.Run(context.Background(), req, emit); err != nil {
		t.Fatalf("Run: %v", err)
	}
	evs := *events

	// slot.done precedes the tts slot.error; the slot still counts.
	doneIdx := indexOf(evs, "slot.done")
	errIdx := indexOf(evs, "slot.error")
	if doneIdx < 0 || errIdx < 0 || errIdx < doneIdx {
		t.Fatalf("event order = %v", eventNames(evs))
	}
	if pe := evs[errIdx].Data.(SlotErrorPayload); pe.ErrorType != types.ErrKindTTS {
		t.Errorf("error type = %s, want tts_error", pe.ErrorType)
	}
	final := evs[len(evs)-1].Data.(DonePayload)
	if final.CompletedSlots != 1 {
		t.Errorf("completedSlots = %d, want 1", final.CompletedSlots)
	}
	if final.Turns != 3 {
		t.Errorf("turns = %d, want 3 after summary tts failure", final.Turns)
	}

	// No audio, no decomposition.
	if len(rig.pool.jobs) != 0 {
		t.Errorf("jobs = %+v, want none", rig.pool.jobs)
	}
	// Summary text generation succeeded before synthesis failed; the failed
	// final summary carries the text.
	if len(rig.notifier.summaryFailed) != 1 || rig.notifier.summaryFailed[0] != "summary text" {
		t.Errorf("summaryFailed = %v", rig.notifier.summaryFailed)
	}
}

func TestInvalidCommentTargetRejected(t *testing.T) {
	providers := map[string]llm.Provider{
		"anthropic/claude-sonnet-4-20250514": llmmock.New(
			spoken("first", "calm_soothing"),
			comment(1, "talking to myself", "calm_soothing"),
		),
		"gemini/gemini-2.0-flash": llmmock.New(
			spoken("second", "calm_soothing"),
			comment(7, "off the grid", "calm_soothing"),
		),
	}
	rig := newRig(t, providers)
	rig.cfg.Summary.Enabled = false

	emit, events := collectEvents()
	req := Request{
		Message: "hello",
		Slots: []types.SlotAssignment{
			{SlotID: 1, AgentID: "claude-sonnet-4-5"},
			{SlotID: 2, AgentID: "gemini-3"},
		},
	}
	if err := rig.engine.Run(context.Background(), req, emit); err != nil {
		t.Fatalf("Run: %v", err)
	}

	errCount := 0
	for _, ev := range *events {
		if ev.Name != "slot.error" {
			continue
		}
		pe := ev.Data.(SlotErrorPayload)
		if pe.TurnIndex != 2 || pe.ErrorType != types.ErrKindServer {
			t.Errorf("slot.error = %+v", pe)
		}
		errCount++
	}
	if errCount != 2 {
		t.Errorf("slot.error count = %d, want 2 (self target and out of range)", errCount)
	}
	if jobs := rig.pool.byTurn(2); len(jobs) != 0 {
		t.Errorf("turn 2 jobs = %+v, want none", jobs)
	}
}

func TestUnknownVoiceProfileFallsBack(t *testing.T) {
	providers := map[string]llm.Provider{
		"anthropic/claude-sonnet-4-20250514": llmmock.New(
			spoken("text", "sonorous_depth"),
			comment(2, "unused", "friendly_casual"),
		),
	}
	rig := newRig(t, providers)
	rig.cfg.Summary.Enabled = false

	emit, events := collectEvents()
	req := Request{
		Message: "hello",
		Slots:   []types.SlotAssignment{{SlotID: 1, AgentID: "claude-sonnet-4-5"}},
	}
	if err := rig.engine.Run(context.Background(), req, emit); err != nil {
		t.Fatalf("Run: %v", err)
	}

	idx := indexOf(*events, "slot.done")
	if idx < 0 {
		t.Fatal("no slot.done")
	}
	pd := (*events)[idx].Data.(SlotDonePayload)
	if pd.VoiceProfile != "friendly_casual" {
		t.Errorf("voice profile = %q, want the fallback", pd.VoiceProfile)
	}
	if jobs := rig.pool.byTurn(1); len(jobs) != 1 || jobs[0].TTSBasename != "slot-1_claude-sonnet-4-5_friendly_casual" {
		t.Errorf("turn 1 jobs = %+v", jobs)
	}
}
