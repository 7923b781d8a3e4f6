// Package mock provides a scripted llm.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/asaficontact/reflective-resonance/pkg/provider/llm"
)

// Provider returns scripted responses in order, then repeats the last one.
// An entry with a non-nil Err fails that call instead.
type Provider struct {
	mu       sync.Mutex
	script   []Response
	position int

	// Requests records every request received, in order.
	Requests []llm.CompletionRequest
}

// Response is one scripted turn.
type Response struct {
	Content string
	Err     error
}

// New creates a mock provider with the given script. An empty script makes
// every call return an empty completion.
func New(script ...Response) *Provider {
	return &Provider{script: script}
}

// Complete implements llm.Provider.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Requests = append(p.Requests, req)

	if len(p.script) == 0 {
		return &llm.CompletionResponse{}, nil
	}
	r := p.script[min(p.position, len(p.script)-1)]
	p.position++
	if r.Err != nil {
		return nil, r.Err
	}
	return &llm.CompletionResponse{Content: r.Content}, nil
}
