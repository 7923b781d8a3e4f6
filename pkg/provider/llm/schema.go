package llm

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// SchemaFor derives a JSON Schema from a Go struct type. The schema text is
// appended to prompts so models know the exact response shape expected of
// them.
func SchemaFor[T any]() (*jsonschema.Schema, error) {
	s, err := jsonschema.For[T](&jsonschema.ForOptions{})
	if err != nil {
		return nil, fmt.Errorf("llm: deriving schema: %w", err)
	}
	return s, nil
}

// MustSchemaFor is SchemaFor for package-level schema descriptors whose types
// are known at compile time.
func MustSchemaFor[T any]() *jsonschema.Schema {
	s, err := SchemaFor[T]()
	if err != nil {
		panic(err)
	}
	return s
}

// SchemaJSON renders a schema as compact JSON for embedding in a prompt.
func SchemaJSON(s *jsonschema.Schema) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("llm: marshaling schema: %w", err)
	}
	return string(data), nil
}
