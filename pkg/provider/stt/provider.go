// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// Transcription is batch: the request surface saves the uploaded recording,
// hands it over whole, and receives the final transcript. Word-level timing
// stays inside the raw vendor response, which callers persist verbatim.
package stt

import (
	"context"
	"encoding/json"
)

// Transcript is the decoded result of a transcription.
type Transcript struct {
	// Text is the plain transcript.
	Text string

	// LanguageCode is the detected (or requested) language, e.g. "en".
	LanguageCode string

	// Raw is the full vendor response for archival.
	Raw json.RawMessage
}

// Request describes one transcription.
type Request struct {
	// Audio is the complete uploaded recording.
	Audio []byte

	// Filename hints the container format to the vendor (e.g. "input.webm").
	Filename string

	// LanguageCode optionally pins the language; empty means auto-detect.
	LanguageCode string
}

// Transcriber is the abstraction over any STT backend.
type Transcriber interface {
	// Transcribe converts the recording to text. Implementations must respect
	// ctx cancellation and return vendor failures as errors.
	Transcribe(ctx context.Context, req Request) (*Transcript, error)
}
