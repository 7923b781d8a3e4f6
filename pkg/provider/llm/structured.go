package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonrepair"

	"github.com/asaficontact/reflective-resonance/pkg/types"
)

// CompleteStructured appends a response-format instruction derived from T's
// JSON Schema to the request, performs the completion, and decodes the reply
// into T. Models occasionally wrap JSON in markdown fences or emit slightly
// malformed output; the fence is stripped and syntax errors go through a
// repair pass before the decode is retried.
//
// The second return value is the canonical JSON the value decoded from, which
// callers store in the conversation log so later turns see exactly what the
// model committed to.
func CompleteStructured[T any](ctx context.Context, p Provider, req CompletionRequest) (*T, string, error) {
	schema, err := responseSchema[T]()
	if err != nil {
		return nil, "", err
	}
	req.Messages = withResponseSchema(req.Messages, schema)

	resp, err := p.Complete(ctx, req)
	if err != nil {
		return nil, "", err
	}

	raw := ExtractJSON(resp.Content)
	var v T
	if err := unmarshalRepaired([]byte(raw), &v); err != nil {
		return nil, "", fmt.Errorf("llm: decoding structured response %q: %w", resp.Content, err)
	}
	return &v, raw, nil
}

// responseSchemas caches the rendered schema per response type.
var responseSchemas sync.Map // reflect.Type → string

// responseSchema renders T's derived JSON Schema for the format instruction.
func responseSchema[T any]() (string, error) {
	key := reflect.TypeFor[T]()
	if cached, ok := responseSchemas.Load(key); ok {
		return cached.(string), nil
	}
	s, err := SchemaFor[T]()
	if err != nil {
		return "", err
	}
	text, err := SchemaJSON(s)
	if err != nil {
		return "", err
	}
	responseSchemas.Store(key, text)
	return text, nil
}

// withResponseSchema appends the shape contract to the last message. The
// caller's slice is left untouched so the conversation log keeps the clean
// prompt text.
func withResponseSchema(messages []types.Message, schema string) []types.Message {
	if len(messages) == 0 {
		return messages
	}
	out := make([]types.Message, len(messages))
	copy(out, messages)
	out[len(out)-1].Content += "\n\nRespond with a single JSON object matching this schema:\n" + schema
	return out
}

// ExtractJSON strips a markdown code fence (``` or ```json) around a JSON
// payload, returning the inner text. Input without a fence passes through
// trimmed.
func ExtractJSON(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		// Language tag on the fence line.
		s = s[nl+1:]
	}
	if end := strings.LastIndex(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}

// unmarshalRepaired is json.Unmarshal with a jsonrepair retry on syntax
// errors.
func unmarshalRepaired(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, repairErr := jsonrepair.JSONRepair(string(data))
		if repairErr != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}
