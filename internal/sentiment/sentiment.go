// Package sentiment classifies the visitor's whispered message with a fast
// model in parallel with Turn 1. A failure here never disturbs the workflow;
// the controller simply receives no sentiment event.
package sentiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/asaficontact/reflective-resonance/internal/config"
	"github.com/asaficontact/reflective-resonance/internal/prompts"
	"github.com/asaficontact/reflective-resonance/pkg/provider/llm"
	"github.com/asaficontact/reflective-resonance/pkg/types"
)

// Result is the structured classification.
type Result struct {
	// Sentiment is "positive", "neutral", or "negative".
	Sentiment string `json:"sentiment"`

	// Justification is a brief explanation, at most a couple of sentences.
	Justification string `json:"justification"`
}

// Analyzer runs the classification against a dedicated provider.
type Analyzer struct {
	provider llm.Provider
	cfg      config.SentimentConfig
	logger   *slog.Logger
}

// NewAnalyzer wires the classifier. provider should already be routed to
// cfg.Model.
func NewAnalyzer(provider llm.Provider, cfg config.SentimentConfig, logger *slog.Logger) *Analyzer {
	return &Analyzer{provider: provider, cfg: cfg, logger: logger}
}

// Analyze classifies userMessage. Returns (nil, nil) when the stage is
// disabled. Errors carry the cause but callers are expected to log and move
// on rather than fail the workflow.
func (a *Analyzer) Analyze(ctx context.Context, userMessage string) (*Result, error) {
	if !a.cfg.Enabled {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout())
	defer cancel()

	req := llm.CompletionRequest{
		Messages: []types.Message{
			{Role: "user", Content: prompts.Sentiment(userMessage)},
		},
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	}
	res, _, err := llm.CompleteStructured[Result](ctx, a.provider, req)
	if err != nil {
		return nil, fmt.Errorf("sentiment: %w", err)
	}
	if !validSentiment(res.Sentiment) {
		return nil, fmt.Errorf("sentiment: model returned %q", res.Sentiment)
	}

	a.logger.Info("sentiment classified",
		"sentiment", res.Sentiment, "justification", truncate(res.Justification, 50))
	return res, nil
}

func validSentiment(s string) bool {
	switch s {
	case "positive", "neutral", "negative":
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
