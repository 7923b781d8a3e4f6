// Package agents holds the fixed registry of the six language-model agents
// that can be bound to installation slots.
package agents

import (
	"fmt"

	"github.com/asaficontact/reflective-resonance/pkg/types"
)

// route maps an agent ID to the backend provider name and the
// provider-specific model identifier used for its completions.
type route struct {
	provider string
	model    string
}

// modelRoutes is the agent → backend model mapping. The agent IDs are stable
// public identity; the model identifiers may move forward as vendors release
// new versions.
var modelRoutes = map[string]route{
	"claude-sonnet-4-5": {"anthropic", "claude-sonnet-4-20250514"},
	"claude-opus-4-5":   {"anthropic", "claude-opus-4-20250514"},
	"gpt-5.2":           {"openai", "gpt-4.1"},
	"gpt-5.1":           {"openai", "gpt-4o"},
	"gpt-4o":            {"openai", "gpt-4o"},
	"gemini-3":          {"gemini", "gemini-2.0-flash"},
}

// predefined is the display listing served by GET /v1/agents, in the order
// clients expect.
var predefined = []types.Agent{
	{
		ID:          "claude-sonnet-4-5",
		Name:        "Claude Sonnet 4.5",
		Provider:    "anthropic",
		Description: "Anthropic's fast, capable model",
		Color:       "#7c3aed",
	},
	{
		ID:          "claude-opus-4-5",
		Name:        "Claude Opus 4.5",
		Provider:    "anthropic",
		Description: "Anthropic's most capable model",
		Color:       "#a855f7",
	},
	{
		ID:          "gpt-5.2",
		Name:        "GPT 5.2",
		Provider:    "openai",
		Description: "Latest GPT-4 series model",
		Color:       "#10b981",
	},
	{
		ID:          "gpt-5.1",
		Name:        "GPT 5.1",
		Provider:    "openai",
		Description: "Advanced GPT-4o model",
		Color:       "#06b6d4",
	},
	{
		ID:          "gpt-4o",
		Name:        "GPT 4o",
		Provider:    "openai",
		Description: "OpenAI's multimodal flagship",
		Color:       "#0ea5e9",
	},
	{
		ID:          "gemini-3",
		Name:        "Gemini 3",
		Provider:    "google",
		Description: "Google's fast Gemini model",
		Color:       "#f59e0b",
	},
}

// Registry is the immutable agent catalogue. The zero value is not usable;
// construct with [NewRegistry].
type Registry struct {
	list []types.Agent
	byID map[string]types.Agent
}

// NewRegistry returns the registry of the six predefined agents.
func NewRegistry() *Registry {
	byID := make(map[string]types.Agent, len(predefined))
	for _, a := range predefined {
		byID[a.ID] = a
	}
	return &Registry{list: predefined, byID: byID}
}

// List returns all agents in display order. The returned slice must not be
// mutated.
func (r *Registry) List() []types.Agent {
	return r.list
}

// Get looks up an agent by its stable ID.
func (r *Registry) Get(id string) (types.Agent, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// Route resolves an agent ID to the backend provider and model used for its
// LLM calls.
func (r *Registry) Route(id string) (provider, model string, err error) {
	rt, ok := modelRoutes[id]
	if !ok {
		return "", "", fmt.Errorf("agents: unknown agent %q", id)
	}
	return rt.provider, rt.model, nil
}
