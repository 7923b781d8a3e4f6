package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// STTSession holds one transcription request's artifacts:
// input.<ext>, transcript.json, transcript.txt, metadata.json.
type STTSession struct {
	ID        string
	Dir       string
	CreatedAt time.Time

	store *Store
}

// NewSTT allocates an STT session under stt/sessions/<uuid>.
func (s *Store) NewSTT() (*STTSession, error) {
	id := uuid.NewString()
	dir := filepath.Join(s.root, "stt", "sessions", id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating stt session directory: %w", err)
	}
	return &STTSession{ID: id, Dir: dir, CreatedAt: time.Now().UTC(), store: s}, nil
}

// InputRelPath is the artifacts-relative path of the uploaded audio.
func (s *STTSession) InputRelPath(ext string) string {
	return fmt.Sprintf("stt/sessions/%s/input.%s", s.ID, ext)
}

// TranscriptRelPath is the artifacts-relative path of the plain-text
// transcript, returned in the API response.
func (s *STTSession) TranscriptRelPath() string {
	return fmt.Sprintf("stt/sessions/%s/transcript.txt", s.ID)
}

// SaveInput writes the uploaded audio bytes as input.<ext> and returns the
// absolute path.
func (s *STTSession) SaveInput(audio []byte, ext string) (string, error) {
	path := filepath.Join(s.Dir, "input."+ext)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", fmt.Errorf("saving stt input: %w", err)
	}
	return path, nil
}

// WriteTranscript stores the raw vendor response as transcript.json and the
// extracted text as transcript.txt.
func (s *STTSession) WriteTranscript(raw json.RawMessage, plainText string) error {
	if err := os.WriteFile(filepath.Join(s.Dir, "transcript.json"), raw, 0o644); err != nil {
		return fmt.Errorf("writing transcript.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir, "transcript.txt"), []byte(plainText), 0o644); err != nil {
		return fmt.Errorf("writing transcript.txt: %w", err)
	}
	return nil
}

// STTMetadata describes the uploaded audio for metadata.json.
type STTMetadata struct {
	SessionID  string `json:"sessionId"`
	CreatedAt  string `json:"createdAt"`
	MimeType   string `json:"mimeType"`
	DurationMS int64  `json:"durationMs"`
	SizeBytes  int64  `json:"sizeBytes"`
	UserAgent  string `json:"userAgent,omitempty"`
}

// WriteMetadata stores metadata.json alongside the transcript.
func (s *STTSession) WriteMetadata(meta STTMetadata) error {
	meta.SessionID = s.ID
	meta.CreatedAt = s.CreatedAt.Format(time.RFC3339)
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling stt metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir, "metadata.json"), data, 0o644); err != nil {
		return fmt.Errorf("writing metadata.json: %w", err)
	}
	return nil
}
