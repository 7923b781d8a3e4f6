package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/asaficontact/reflective-resonance/internal/session"
	"github.com/asaficontact/reflective-resonance/pkg/audio"
	"github.com/asaficontact/reflective-resonance/pkg/provider/stt"
	"github.com/asaficontact/reflective-resonance/pkg/provider/stt/elevenlabs"
)

// maxUploadBytes caps STT uploads at 25 MB, matching the vendor limit.
const maxUploadBytes = 25 << 20

// sttResponse is the POST /v1/stt response body. Paths are relative to the
// artifacts root so they can be fetched back through /v1/audio/.
type sttResponse struct {
	STTSessionID   string          `json:"stt_session_id"`
	Transcript     string          `json:"transcript"`
	AudioPath      string          `json:"audio_path"`
	TranscriptPath string          `json:"transcript_path"`
	DurationMS     int64           `json:"duration_ms"`
	MimeType       string          `json:"mime_type"`
	Words          json.RawMessage `json:"words,omitempty"`
	LanguageCode   string          `json:"language_code,omitempty"`
}

// handleSTT accepts a multipart recording, transcribes it through the
// configured vendor, and persists all artifacts under the STT session
// directory.
func (s *Server) handleSTT(w http.ResponseWriter, r *http.Request) {
	if s.stt == nil {
		writeError(w, http.StatusServiceUnavailable, "speech-to-text is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "audio file exceeds 25 MB limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload: "+err.Error())
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "uploaded file is empty")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	ext := uploadExt(header.Filename, mimeType)
	languageCode := r.FormValue("language_code")

	start := time.Now()
	transcript, err := s.stt.Transcribe(r.Context(), stt.Request{
		Audio:        data,
		Filename:     "input." + ext,
		LanguageCode: languageCode,
	})
	s.metrics.STTDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		var apiErr *elevenlabs.APIError
		if errors.As(err, &apiErr) {
			s.logger.Error("stt vendor error", "status", apiErr.StatusCode)
			writeError(w, http.StatusBadGateway, "speech-to-text vendor error")
			return
		}
		s.logger.Error("stt transcription failed", "err", err)
		writeError(w, http.StatusBadGateway, "speech-to-text request failed")
		return
	}

	text := strings.TrimSpace(transcript.Text)
	if text == "" {
		writeError(w, http.StatusUnprocessableEntity, "no speech detected in recording")
		return
	}

	sess, err := s.store.NewSTT()
	if err != nil {
		s.logger.Error("creating stt session", "err", err)
		writeError(w, http.StatusInternalServerError, "persisting transcription artifacts")
		return
	}
	if _, err := sess.SaveInput(data, ext); err != nil {
		s.logger.Error("saving stt input", "session", sess.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "persisting transcription artifacts")
		return
	}
	if err := sess.WriteTranscript(transcript.Raw, text); err != nil {
		s.logger.Error("saving transcript", "session", sess.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "persisting transcription artifacts")
		return
	}

	durationMS := wavDurationMS(data, ext)
	if err := sess.WriteMetadata(session.STTMetadata{
		MimeType:   mimeType,
		DurationMS: durationMS,
		SizeBytes:  int64(len(data)),
		UserAgent:  r.UserAgent(),
	}); err != nil {
		s.logger.Warn("saving stt metadata", "session", sess.ID, "err", err)
	}

	resp := sttResponse{
		STTSessionID:   sess.ID,
		Transcript:     text,
		AudioPath:      sess.InputRelPath(ext),
		TranscriptPath: sess.TranscriptRelPath(),
		DurationMS:     durationMS,
		MimeType:       mimeType,
		Words:          vendorWords(transcript.Raw),
		LanguageCode:   transcript.LanguageCode,
	}
	s.logger.Info("stt transcription complete",
		"session", sess.ID, "bytes", len(data), "chars", len(text))
	writeJSON(w, http.StatusOK, resp)
}

// uploadExt picks a file extension for the stored input, preferring the
// uploaded filename and falling back to the MIME type.
func uploadExt(filename, mimeType string) string {
	if ext := strings.TrimPrefix(filepath.Ext(filename), "."); ext != "" {
		return strings.ToLower(ext)
	}
	base := mimeType
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		base = parsed
	}
	switch base {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/webm", "video/webm":
		return "webm"
	case "audio/ogg":
		return "ogg"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	default:
		return "bin"
	}
}

// wavDurationMS derives the recording duration for WAV uploads. Compressed
// containers would need a demuxer; for those we report 0 and let the client
// keep its own timer.
func wavDurationMS(data []byte, ext string) int64 {
	if ext != "wav" {
		return 0
	}
	pcm, rate, channels, err := audio.DecodeWAV(data)
	if err != nil || rate <= 0 || channels <= 0 {
		return 0
	}
	samples := len(pcm) / (2 * channels)
	return int64(samples) * 1000 / int64(rate)
}

// vendorWords extracts the word-level timing array from the raw vendor
// response when present.
func vendorWords(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var probe struct {
		Words json.RawMessage `json:"words"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil
	}
	if string(probe.Words) == "null" {
		return nil
	}
	return probe.Words
}
