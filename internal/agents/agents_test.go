package agents

import "testing"

func TestRegistryListsSixAgents(t *testing.T) {
	reg := NewRegistry()
	if got := len(reg.List()); got != 6 {
		t.Fatalf("len(List()) = %d, want 6", got)
	}
	for _, a := range reg.List() {
		if a.ID == "" || a.Name == "" || a.Provider == "" || a.Color == "" {
			t.Errorf("agent %+v has empty display fields", a)
		}
	}
}

func TestRegistryGet(t *testing.T) {
	reg := NewRegistry()
	a, ok := reg.Get("gpt-4o")
	if !ok {
		t.Fatal("gpt-4o should exist")
	}
	if a.Name != "GPT 4o" {
		t.Errorf("name = %q, want GPT 4o", a.Name)
	}
	if _, ok := reg.Get("nonexistent"); ok {
		t.Error("unknown agent should not resolve")
	}
}

func TestRegistryRoute(t *testing.T) {
	reg := NewRegistry()
	tests := []struct {
		agentID      string
		wantProvider string
		wantModel    string
	}{
		{"claude-sonnet-4-5", "anthropic", "claude-sonnet-4-20250514"},
		{"gpt-5.1", "openai", "gpt-4o"},
		{"gemini-3", "gemini", "gemini-2.0-flash"},
	}
	for _, tt := range tests {
		t.Run(tt.agentID, func(t *testing.T) {
			provider, model, err := reg.Route(tt.agentID)
			if err != nil {
				t.Fatalf("Route(%q): %v", tt.agentID, err)
			}
			if provider != tt.wantProvider || model != tt.wantModel {
				t.Errorf("Route(%q) = (%q, %q), want (%q, %q)",
					tt.agentID, provider, model, tt.wantProvider, tt.wantModel)
			}
		})
	}
	if _, _, err := reg.Route("bogus"); err == nil {
		t.Error("unknown agent should fail to route")
	}
}

func TestEveryAgentHasARoute(t *testing.T) {
	reg := NewRegistry()
	for _, a := range reg.List() {
		if _, _, err := reg.Route(a.ID); err != nil {
			t.Errorf("agent %q has no model route: %v", a.ID, err)
		}
	}
}
