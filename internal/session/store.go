package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/asaficontact/reflective-resonance/pkg/types"
)

// Store creates sessions beneath a single artifacts root. The root is the
// directory served by the audio endpoint, so every relative path a session
// hands out is also a valid URL suffix.
type Store struct {
	root   string
	logger *slog.Logger
}

// NewStore returns a store rooted at dir. The directory is created lazily by
// the first session.
func NewStore(dir string, logger *slog.Logger) *Store {
	return &Store{root: dir, logger: logger}
}

// Root returns the artifacts root directory.
func (s *Store) Root() string {
	return s.root
}

// New allocates a broadcast session: a fresh UUID plus the four per-turn TTS
// directories.
func (s *Store) New() (*Session, error) {
	id := uuid.NewString()
	dir := filepath.Join(s.root, "tts", "sessions", id)
	for _, sub := range []string{"turn_1", "turn_2", "turn_3", "summary"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating session directory: %w", err)
		}
	}
	return &Session{
		ID:        id,
		RootDir:   dir,
		CreatedAt: time.Now().UTC(),
		store:     s,
		manifest: Manifest{
			SessionID: id,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// Session is one broadcast's audio workspace. Audio paths come in pairs: the
// absolute path for writing and the artifacts-relative path for events and
// URL retrieval.
type Session struct {
	ID        string
	RootDir   string
	CreatedAt time.Time

	store *Store

	mu       sync.Mutex
	manifest Manifest
	written  bool
}

// Abs resolves an artifacts-relative path for this session's store.
func (s *Session) Abs(relPath string) string {
	return AbsPath(s.store.root, relPath)
}

// Turn1AudioPath returns (absolute, relative) paths for a Turn-1 reflection.
func (s *Session) Turn1AudioPath(slotID int, agentID, voiceProfile string) (string, string) {
	rel := TTSRelPath(s.ID, 1, Turn1Basename(slotID, agentID, voiceProfile))
	return s.Abs(rel), rel
}

// Turn2AudioPath returns (absolute, relative) paths for a Turn-2 comment.
func (s *Session) Turn2AudioPath(slotID, targetSlotID int, agentID, voiceProfile string) (string, string) {
	rel := TTSRelPath(s.ID, 2, Turn2Basename(slotID, targetSlotID, agentID, voiceProfile))
	return s.Abs(rel), rel
}

// Turn3AudioPath returns (absolute, relative) paths for a Turn-3 reply.
func (s *Session) Turn3AudioPath(slotID int, agentID, voiceProfile string) (string, string) {
	rel := TTSRelPath(s.ID, 3, Turn3Basename(slotID, agentID, voiceProfile))
	return s.Abs(rel), rel
}

// SummaryAudioPath returns (absolute, relative) paths for the Turn-4 summary.
func (s *Session) SummaryAudioPath(voiceProfile string) (string, string) {
	rel := TTSRelPath(s.ID, types.SummaryTurnIndex, SummaryBasename(voiceProfile))
	return s.Abs(rel), rel
}

// WavesDir returns the absolute wave output directory for a turn.
func (s *Session) WavesDir(turnIndex int) string {
	return AbsPath(s.store.root, WavesRelDir(s.ID, turnIndex))
}

// WaveOutputPaths returns the n absolute wave file paths a decomposition of
// basename will produce under dir.
func WaveOutputPaths(basename, dir string, n int) []string {
	paths := make([]string, n)
	for k := 1; k <= n; k++ {
		paths[k-1] = filepath.Join(dir, WaveBasename(basename, k)+".wav")
	}
	return paths
}

// Manifest is the session's audio inventory, accumulated in memory and
// flushed once at workflow end.
type Manifest struct {
	SessionID string          `json:"sessionId"`
	CreatedAt string          `json:"createdAt"`
	Turn1     []ManifestEntry `json:"turn1"`
	Turn2     []ManifestEntry `json:"turn2"`
	Turn3     []ManifestEntry `json:"turn3"`
	Summary   *ManifestEntry  `json:"summary,omitempty"`
}

// ManifestEntry records one synthesized artifact.
type ManifestEntry struct {
	SlotID       int    `json:"slotId"`
	AgentID      string `json:"agentId"`
	VoiceProfile string `json:"voiceProfile"`
	Text         string `json:"text"`
	AudioPath    string `json:"audioPath"`
	TargetSlotID int    `json:"targetSlotId,omitempty"`
}

// AddTurn1Entry records a Turn-1 artifact in the manifest.
func (s *Session) AddTurn1Entry(e ManifestEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest.Turn1 = append(s.manifest.Turn1, e)
}

// AddTurn2Entry records a Turn-2 artifact in the manifest.
func (s *Session) AddTurn2Entry(e ManifestEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest.Turn2 = append(s.manifest.Turn2, e)
}

// AddTurn3Entry records a Turn-3 artifact in the manifest.
func (s *Session) AddTurn3Entry(e ManifestEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest.Turn3 = append(s.manifest.Turn3, e)
}

// SetSummaryEntry records the Turn-4 summary artifact.
func (s *Session) SetSummaryEntry(e ManifestEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest.Summary = &e
}

// WriteManifest flushes session.json into the session directory. It writes at
// most once; repeated calls are no-ops. A write failure is logged and
// returned but callers treat it as non-fatal.
func (s *Session) WriteManifest() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.written {
		return nil
	}
	s.written = true

	data, err := json.MarshalIndent(s.manifest, "", "  ")
	if err != nil {
		s.store.logger.Error("marshaling session manifest", "session_id", s.ID, "error", err)
		return err
	}
	path := filepath.Join(s.RootDir, "session.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		s.store.logger.Error("writing session manifest", "session_id", s.ID, "error", err)
		return err
	}
	s.store.logger.Info("session manifest written", "session_id", s.ID, "path", path)
	return nil
}
