package session

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func TestNewCreatesTurnDirectories(t *testing.T) {
	store := newTestStore(t)
	sess, err := store.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if sess.ID == "" {
		t.Error("session ID is empty")
	}
	for _, sub := range []string{"turn_1", "turn_2", "turn_3", "summary"} {
		info, err := os.Stat(filepath.Join(sess.RootDir, sub))
		if err != nil || !info.IsDir() {
			t.Errorf("missing session subdirectory %s: %v", sub, err)
		}
	}
}

func TestAudioPathPairs(t *testing.T) {
	store := newTestStore(t)
	sess, err := store.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	abs, rel := sess.Turn1AudioPath(4, "gpt-5.1", "calm_soothing")
	wantRel := "tts/sessions/" + sess.ID + "/turn_1/slot-4_gpt-5.1_calm_soothing.wav"
	if rel != wantRel {
		t.Errorf("relative path = %q, want %q", rel, wantRel)
	}
	if abs != sess.Abs(rel) {
		t.Errorf("absolute path %q does not resolve from relative %q", abs, rel)
	}
	if !strings.HasPrefix(abs, store.Root()) {
		t.Errorf("absolute path %q escapes artifacts root %q", abs, store.Root())
	}

	_, rel = sess.SummaryAudioPath("warm_professional")
	if rel != "tts/sessions/"+sess.ID+"/summary/summary_warm_professional.wav" {
		t.Errorf("summary relative path = %q", rel)
	}
}

func TestWaveOutputPaths(t *testing.T) {
	got := WaveOutputPaths("slot-1_gpt-4o_friendly_casual", "/out", 2)
	if len(got) != 2 {
		t.Fatalf("got %d paths, want 2", len(got))
	}
	if filepath.Base(got[0]) != "slot-1_gpt-4o_friendly_casual_v3_wave1.wav" {
		t.Errorf("first wave = %q", got[0])
	}
	if filepath.Base(got[1]) != "slot-1_gpt-4o_friendly_casual_v3_wave2.wav" {
		t.Errorf("second wave = %q", got[1])
	}
}

func TestWriteManifestOnce(t *testing.T) {
	store := newTestStore(t)
	sess, err := store.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sess.AddTurn1Entry(ManifestEntry{
		SlotID:       1,
		AgentID:      "gpt-4o",
		VoiceProfile: "friendly_casual",
		Text:         "a ripple answers",
		AudioPath:    "tts/sessions/" + sess.ID + "/turn_1/slot-1_gpt-4o_friendly_casual.wav",
	})
	sess.AddTurn2Entry(ManifestEntry{SlotID: 2, AgentID: "gemini-3", TargetSlotID: 1})
	sess.SetSummaryEntry(ManifestEntry{SlotID: 0, AgentID: "gpt-4o", VoiceProfile: "calm_soothing"})

	if err := sess.WriteManifest(); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(sess.RootDir, "session.json"))
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshaling manifest: %v", err)
	}
	if m.SessionID != sess.ID {
		t.Errorf("manifest sessionId = %q, want %q", m.SessionID, sess.ID)
	}
	if len(m.Turn1) != 1 || m.Turn1[0].Text != "a ripple answers" {
		t.Errorf("turn1 entries = %+v", m.Turn1)
	}
	if m.Summary == nil || m.Summary.VoiceProfile != "calm_soothing" {
		t.Errorf("summary entry = %+v", m.Summary)
	}

	// Later entries must not reach disk after the first write.
	sess.AddTurn3Entry(ManifestEntry{SlotID: 3})
	if err := sess.WriteManifest(); err != nil {
		t.Fatalf("second WriteManifest: %v", err)
	}
	data2, err := os.ReadFile(filepath.Join(sess.RootDir, "session.json"))
	if err != nil {
		t.Fatalf("re-reading manifest: %v", err)
	}
	if string(data2) != string(data) {
		t.Error("manifest changed on second write")
	}
}

func TestSTTSessionArtifacts(t *testing.T) {
	store := newTestStore(t)
	stt, err := store.NewSTT()
	if err != nil {
		t.Fatalf("NewSTT: %v", err)
	}

	if _, err := stt.SaveInput([]byte{0x1a, 0x45}, "webm"); err != nil {
		t.Fatalf("SaveInput: %v", err)
	}
	if err := stt.WriteTranscript(json.RawMessage(`{"text":"hello water"}`), "hello water"); err != nil {
		t.Fatalf("WriteTranscript: %v", err)
	}
	if err := stt.WriteMetadata(STTMetadata{MimeType: "audio/webm", DurationMS: 1200, SizeBytes: 2}); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	for _, name := range []string{"input.webm", "transcript.json", "transcript.txt", "metadata.json"} {
		if _, err := os.Stat(filepath.Join(stt.Dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	var meta STTMetadata
	data, _ := os.ReadFile(filepath.Join(stt.Dir, "metadata.json"))
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatalf("unmarshaling metadata: %v", err)
	}
	if meta.SessionID != stt.ID || meta.MimeType != "audio/webm" {
		t.Errorf("metadata = %+v", meta)
	}

	if stt.TranscriptRelPath() != "stt/sessions/"+stt.ID+"/transcript.txt" {
		t.Errorf("transcript rel path = %q", stt.TranscriptRelPath())
	}
}
