// Package app wires all backend subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in dependency order — HTTP surface first, then the
// decomposition pool, then the events orchestrator (which must outlive the
// pool to drain its results).
//
// For testing, inject doubles via functional options (WithSynthesizer,
// WithTranscriber, etc.). When an option is not provided, New creates real
// vendor-backed implementations from the config and credentials.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/asaficontact/reflective-resonance/internal/agents"
	"github.com/asaficontact/reflective-resonance/internal/config"
	"github.com/asaficontact/reflective-resonance/internal/conversation"
	"github.com/asaficontact/reflective-resonance/internal/engine"
	"github.com/asaficontact/reflective-resonance/internal/events"
	"github.com/asaficontact/reflective-resonance/internal/health"
	"github.com/asaficontact/reflective-resonance/internal/sentiment"
	"github.com/asaficontact/reflective-resonance/internal/server"
	"github.com/asaficontact/reflective-resonance/internal/session"
	"github.com/asaficontact/reflective-resonance/internal/waves"
	"github.com/asaficontact/reflective-resonance/pkg/provider/llm/anyllm"
	"github.com/asaficontact/reflective-resonance/pkg/provider/stt"
	sttelevenlabs "github.com/asaficontact/reflective-resonance/pkg/provider/stt/elevenlabs"
	"github.com/asaficontact/reflective-resonance/pkg/provider/tts"
	ttselevenlabs "github.com/asaficontact/reflective-resonance/pkg/provider/tts/elevenlabs"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	store        *session.Store
	convs        *conversation.Log
	registry     *agents.Registry
	llms         engine.ProviderSource
	synth        tts.Synthesizer
	transcriber  stt.Transcriber
	pool         *waves.Pool
	orchestrator *events.Orchestrator
	engine       *engine.Engine
	srv          *server.Server

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSynthesizer injects a TTS backend instead of the vendor client.
func WithSynthesizer(s tts.Synthesizer) Option {
	return func(a *App) { a.synth = s }
}

// WithTranscriber injects an STT backend instead of the vendor client.
func WithTranscriber(t stt.Transcriber) Option {
	return func(a *App) { a.transcriber = t }
}

// WithProviderSource injects an LLM provider source instead of the any-llm
// registry.
func WithProviderSource(p engine.ProviderSource) Option {
	return func(a *App) { a.llms = p }
}

// New wires the application. creds supplies vendor API keys; subsystems whose
// key is absent and which were not injected are disabled (STT) or fail
// construction (TTS, which the workflow cannot run without).
func New(cfg *config.Config, creds config.Credentials, logger *slog.Logger, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	for _, o := range opts {
		o(a)
	}

	if err := os.MkdirAll(cfg.ArtifactsDir, 0o755); err != nil {
		return nil, fmt.Errorf("app: creating artifacts dir: %w", err)
	}

	a.store = session.NewStore(cfg.ArtifactsDir, logger)
	a.convs = conversation.NewLog(cfg.LLM.DefaultSystemPrompt)
	a.registry = agents.NewRegistry()

	if a.llms == nil {
		a.llms = anyllm.NewRegistry(map[string]string{
			"openai":    creds.OpenAIAPIKey,
			"anthropic": creds.AnthropicAPIKey,
			"gemini":    creds.GoogleAPIKey,
		})
	}

	if a.synth == nil {
		if creds.ElevenLabsAPIKey == "" {
			return nil, fmt.Errorf("app: ELEVENLABS_API_KEY is required for speech synthesis")
		}
		s, err := ttselevenlabs.New(creds.ElevenLabsAPIKey,
			ttselevenlabs.WithModel(cfg.TTS.Model),
			ttselevenlabs.WithOutputFormat(cfg.TTS.OutputFormat),
		)
		if err != nil {
			return nil, fmt.Errorf("app: creating tts client: %w", err)
		}
		a.synth = s
	}

	if a.transcriber == nil && creds.ElevenLabsAPIKey != "" {
		t, err := sttelevenlabs.New(creds.ElevenLabsAPIKey)
		if err != nil {
			return nil, fmt.Errorf("app: creating stt client: %w", err)
		}
		a.transcriber = t
	}
	if a.transcriber == nil {
		logger.Warn("speech-to-text disabled: no vendor key configured")
	}

	a.orchestrator = events.NewOrchestrator(cfg.Events, cfg.ArtifactsDir, logger)

	engineDeps := engine.Deps{
		Config:        cfg,
		Store:         a.store,
		Conversations: a.convs,
		Agents:        a.registry,
		Providers:     a.llms,
		TTS:           a.synth,
		Events:        a.orchestrator,
		Logger:        logger,
	}

	if cfg.Waves.Enabled {
		a.pool = waves.NewPool(cfg.Waves.MaxWorkers, cfg.Waves.QueueMaxSize,
			cfg.Waves.JobTimeout(), logger)
		a.orchestrator.Consume(a.pool.Results())
		engineDeps.Pool = a.pool
	} else {
		logger.Info("wave decomposition disabled")
	}

	if cfg.Sentiment.Enabled {
		provider, err := a.llms.Get("openai", cfg.Sentiment.Model)
		if err != nil {
			return nil, fmt.Errorf("app: creating sentiment provider: %w", err)
		}
		engineDeps.Sentiment = sentiment.NewAnalyzer(provider, cfg.Sentiment, logger)
	}

	a.engine = engine.New(engineDeps)

	a.srv = server.New(server.Deps{
		Config:        cfg,
		Logger:        logger,
		Registry:      a.registry,
		Runner:        a.engine,
		Conversations: a.convs,
		Store:         a.store,
		Transcriber:   a.transcriber,
		EventsHandler: a.orchestrator.Handler(),
		Health:        health.New(a.healthCheckers()...),
	})

	return a, nil
}

// healthCheckers lists the readiness probes for /v1/ready.
func (a *App) healthCheckers() []health.Checker {
	return []health.Checker{
		{
			Name: "artifacts",
			Check: func(_ context.Context) error {
				info, err := os.Stat(a.cfg.ArtifactsDir)
				if err != nil {
					return err
				}
				if !info.IsDir() {
					return fmt.Errorf("%s is not a directory", a.cfg.ArtifactsDir)
				}
				return nil
			},
		},
	}
}

// Handler exposes the HTTP surface, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.srv.Handler()
}

// Run serves HTTP until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown tears down subsystems in dependency order: HTTP first so no new
// broadcasts start, then the decomposition pool so its queue drains, then the
// events orchestrator which consumes the pool's results.
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down")

		if err := a.srv.Shutdown(ctx); err != nil {
			a.logger.Warn("http shutdown error", "err", err)
			firstErr = err
		}
		if a.pool != nil {
			if err := a.pool.Shutdown(ctx); err != nil {
				a.logger.Warn("pool shutdown error", "err", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		if err := a.orchestrator.Shutdown(ctx); err != nil {
			a.logger.Warn("events shutdown error", "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}

		a.logger.Info("shutdown complete")
	})
	return firstErr
}
