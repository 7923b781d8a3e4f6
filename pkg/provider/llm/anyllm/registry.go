package anyllm

import (
	"fmt"
	"sync"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/asaficontact/reflective-resonance/pkg/provider/llm"
)

// Registry constructs and caches one Provider per (backend, model) pair so
// six agents talking to three vendors share three HTTP clients.
//
// Safe for concurrent use.
type Registry struct {
	keys map[string]string

	mu      sync.Mutex
	clients map[string]llm.Provider
}

// NewRegistry creates a registry. keys maps a backend name ("openai",
// "anthropic", "gemini") to its API key; backends without an entry fall back
// to their standard environment variables.
func NewRegistry(keys map[string]string) *Registry {
	return &Registry{
		keys:    keys,
		clients: make(map[string]llm.Provider),
	}
}

// Get returns the cached provider for the (backend, model) pair, creating it
// on first use.
func (r *Registry) Get(providerName, model string) (llm.Provider, error) {
	cacheKey := providerName + "/" + model

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.clients[cacheKey]; ok {
		return p, nil
	}

	var opts []anyllmlib.Option
	if key := r.keys[providerName]; key != "" {
		opts = append(opts, anyllmlib.WithAPIKey(key))
	}
	p, err := New(providerName, model, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: registry: %w", err)
	}
	r.clients[cacheKey] = p
	return p, nil
}
