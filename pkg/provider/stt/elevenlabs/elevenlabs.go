// Package elevenlabs provides an ElevenLabs Scribe v1 backed stt.Transcriber.
//
// API reference: https://elevenlabs.io/docs/api-reference/speech-to-text/convert
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/asaficontact/reflective-resonance/pkg/provider/stt"
)

const (
	sttEndpoint   = "https://api.elevenlabs.io/v1/speech-to-text"
	scribeModelID = "scribe_v1"
)

// APIError carries the vendor status code so the request surface can map it
// onto its own responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("elevenlabs: scribe API error %d: %s", e.StatusCode, e.Body)
}

// Option is a functional option for configuring the Transcriber.
type Option func(*Transcriber)

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transcriber) {
		t.httpClient = c
	}
}

// WithEndpoint overrides the API endpoint, mainly for tests.
func WithEndpoint(url string) Option {
	return func(t *Transcriber) {
		t.endpoint = url
	}
}

// Transcriber implements stt.Transcriber backed by ElevenLabs Scribe v1.
type Transcriber struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// New creates a Transcriber. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	t := &Transcriber{
		apiKey:     apiKey,
		endpoint:   sttEndpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// scribeResponse is the subset of the Scribe response we decode; the full
// body is preserved as Raw.
type scribeResponse struct {
	Text         string `json:"text"`
	LanguageCode string `json:"language_code"`
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (*stt.Transcript, error) {
	if len(req.Audio) == 0 {
		return nil, errors.New("elevenlabs: audio must not be empty")
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", req.Filename)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: building form: %w", err)
	}
	if _, err := part.Write(req.Audio); err != nil {
		return nil, fmt.Errorf("elevenlabs: building form: %w", err)
	}
	if err := w.WriteField("model_id", scribeModelID); err != nil {
		return nil, fmt.Errorf("elevenlabs: building form: %w", err)
	}
	if req.LanguageCode != "" {
		if err := w.WriteField("language_code", req.LanguageCode); err != nil {
			return nil, fmt.Errorf("elevenlabs: building form: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("elevenlabs: building form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: building request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", t.apiKey)
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: transcribe: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var decoded scribeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("elevenlabs: decoding response: %w", err)
	}

	return &stt.Transcript{
		Text:         decoded.Text,
		LanguageCode: decoded.LanguageCode,
		Raw:          raw,
	}, nil
}
