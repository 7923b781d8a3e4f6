// Command resonance is the backend server of the Whispering Water
// installation: it runs the four-turn broadcast pipeline, decomposes the
// spoken responses into playable waves, and feeds the fountain controller
// over its event channel.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/asaficontact/reflective-resonance/internal/app"
	"github.com/asaficontact/reflective-resonance/internal/config"
	"github.com/asaficontact/reflective-resonance/internal/observe"
)

// version is stamped by the build; the default marks development binaries.
var version = "0.1.0-dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resonance: %v\n", err)
		return 1
	}
	creds := config.LoadCredentials(os.LookupEnv)

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("resonance starting",
		"version", version,
		"config", *configPath,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg, creds, logger)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	printStartupSummary(cfg, creds)
	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// newLogger builds the process-wide text logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// printStartupSummary logs which optional subsystems are active so a
// misconfigured deployment is visible at a glance.
func printStartupSummary(cfg *config.Config, creds config.Credentials) {
	keyState := func(k string) string {
		if k == "" {
			return "missing"
		}
		return "set"
	}
	slog.Info("subsystems",
		"waves", cfg.Waves.Enabled,
		"events_ws", cfg.Events.WSEnabled,
		"sentiment", cfg.Sentiment.Enabled,
		"summary", cfg.Summary.Enabled,
		"artifacts_dir", cfg.ArtifactsDir,
	)
	slog.Info("credentials",
		"openai", keyState(creds.OpenAIAPIKey),
		"anthropic", keyState(creds.AnthropicAPIKey),
		"google", keyState(creds.GoogleAPIKey),
		"elevenlabs", keyState(creds.ElevenLabsAPIKey),
	)
}
