package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/asaficontact/reflective-resonance/pkg/types"
)

type scriptedProvider struct {
	content string
	err     error
	got     CompletionRequest
}

func (p *scriptedProvider) Complete(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	p.got = req
	if p.err != nil {
		return nil, p.err
	}
	return &CompletionResponse{Content: p.content}, nil
}

type reflection struct {
	Text         string `json:"text"`
	VoiceProfile string `json:"voice_profile"`
}

func req() CompletionRequest {
	return CompletionRequest{Messages: []types.Message{{Role: "user", Content: "speak"}}}
}

func TestCompleteStructuredPlainJSON(t *testing.T) {
	p := &scriptedProvider{content: `{"text": "a ripple", "voice_profile": "calm_soothing"}`}
	got, raw, err := CompleteStructured[reflection](context.Background(), p, req())
	if err != nil {
		t.Fatalf("CompleteStructured: %v", err)
	}
	if got.Text != "a ripple" || got.VoiceProfile != "calm_soothing" {
		t.Errorf("decoded = %+v", got)
	}
	if !strings.HasPrefix(raw, "{") {
		t.Errorf("raw = %q, want the JSON payload", raw)
	}
}

func TestCompleteStructuredStripsFence(t *testing.T) {
	p := &scriptedProvider{content: "```json\n{\"text\": \"deep water\", \"voice_profile\": \"warm_professional\"}\n```"}
	got, _, err := CompleteStructured[reflection](context.Background(), p, req())
	if err != nil {
		t.Fatalf("CompleteStructured: %v", err)
	}
	if got.Text != "deep water" {
		t.Errorf("decoded = %+v", got)
	}
}

func TestCompleteStructuredRepairsTrailingComma(t *testing.T) {
	p := &scriptedProvider{content: `{"text": "still", "voice_profile": "calm_soothing",}`}
	got, _, err := CompleteStructured[reflection](context.Background(), p, req())
	if err != nil {
		t.Fatalf("CompleteStructured should repair malformed JSON: %v", err)
	}
	if got.VoiceProfile != "calm_soothing" {
		t.Errorf("decoded = %+v", got)
	}
}

func TestCompleteStructuredPropagatesProviderError(t *testing.T) {
	wantErr := errors.New("connection refused")
	p := &scriptedProvider{err: wantErr}
	if _, _, err := CompleteStructured[reflection](context.Background(), p, req()); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"a":1}`, `{"a":1}`},
		{"fence with tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fence without tag", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}\n", `{"a":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractJSON(tc.in); got != tc.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCompleteStructuredSendsResponseSchema(t *testing.T) {
	p := &scriptedProvider{content: `{"text": "a ripple", "voice_profile": "calm_soothing"}`}
	r := req()
	if _, _, err := CompleteStructured[reflection](context.Background(), p, r); err != nil {
		t.Fatalf("CompleteStructured: %v", err)
	}

	sent := p.got.Messages[len(p.got.Messages)-1].Content
	for _, want := range []string{"matching this schema", `"text"`, `"voice_profile"`} {
		if !strings.Contains(sent, want) {
			t.Errorf("outgoing message missing %q:\n%s", want, sent)
		}
	}
	// The caller's messages stay clean; only the outgoing copy carries the
	// contract.
	if r.Messages[0].Content != "speak" {
		t.Errorf("caller message mutated: %q", r.Messages[0].Content)
	}
}

func TestSchemaForDescribesFields(t *testing.T) {
	s := MustSchemaFor[reflection]()
	text, err := SchemaJSON(s)
	if err != nil {
		t.Fatalf("SchemaJSON: %v", err)
	}
	for _, want := range []string{`"text"`, `"voice_profile"`} {
		if !strings.Contains(text, want) {
			t.Errorf("schema %s missing %s", text, want)
		}
	}
}
