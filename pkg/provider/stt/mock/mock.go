// Package mock provides a canned stt.Transcriber for tests.
package mock

import (
	"context"
	"encoding/json"

	"github.com/asaficontact/reflective-resonance/pkg/provider/stt"
)

// Transcriber returns Text for every request, or Err when set.
type Transcriber struct {
	Text string
	Err  error
}

// Transcribe implements stt.Transcriber.
func (t *Transcriber) Transcribe(_ context.Context, _ stt.Request) (*stt.Transcript, error) {
	if t.Err != nil {
		return nil, t.Err
	}
	raw, _ := json.Marshal(map[string]string{"text": t.Text, "language_code": "en"})
	return &stt.Transcript{Text: t.Text, LanguageCode: "en", Raw: raw}, nil
}
