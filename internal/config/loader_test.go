package config

import (
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("Default() should validate, got: %v", err)
	}
}

func TestLoadFromReaderOverlaysDefaults(t *testing.T) {
	yaml := `
server:
  port: 9100
  log_level: debug
waves:
  max_workers: 4
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("log_level = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Waves.MaxWorkers != 4 {
		t.Errorf("max_workers = %d, want 4", cfg.Waves.MaxWorkers)
	}
	// Untouched fields keep their defaults.
	if cfg.LLM.Retries != 3 {
		t.Errorf("retries = %d, want default 3", cfg.LLM.Retries)
	}
	if cfg.TTS.OutputFormat != "pcm_24000" {
		t.Errorf("output_format = %q, want default pcm_24000", cfg.TTS.OutputFormat)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader("serverr:\n  port: 1\n")); err == nil {
		t.Error("expected error for unknown top-level field")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"RR_PORT":                      "9200",
		"RR_LOG_LEVEL":                 "WARN",
		"RR_CORS_ORIGINS":              "https://a.example, https://b.example",
		"RR_WAVES_JOB_TIMEOUT_S":       "0.5",
		"RR_SUMMARY_ENABLED":           "false",
		"RR_EVENTS_WORKFLOW_TIMEOUT_S": "90",
		"RR_MAX_TOKENS":                "not-a-number", // ignored
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	ApplyEnv(cfg, lookup)

	if cfg.Server.Port != 9200 {
		t.Errorf("port = %d, want 9200", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != LogWarn {
		t.Errorf("log_level = %q, want warn", cfg.Server.LogLevel)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors_origins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Waves.JobTimeoutS != 0.5 {
		t.Errorf("job_timeout_s = %g, want 0.5", cfg.Waves.JobTimeoutS)
	}
	if cfg.Summary.Enabled {
		t.Error("summary should be disabled")
	}
	if cfg.Events.WorkflowTimeoutS != 90 {
		t.Errorf("workflow_timeout_s = %g, want 90", cfg.Events.WorkflowTimeoutS)
	}
	if cfg.LLM.MaxTokens != 200 {
		t.Errorf("malformed RR_MAX_TOKENS should be ignored, got %d", cfg.LLM.MaxTokens)
	}
}

func TestValidateJoinsAllFailures(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	cfg.LLM.Temperature = 5
	cfg.TTS.OutputFormat = "mp3_44100"
	cfg.Waves.MaxWorkers = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation failure")
	}
	msg := err.Error()
	for _, want := range []string{"server.port", "llm.temperature", "tts.output_format", "waves.max_workers"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestLoadCredentialsPrefixWins(t *testing.T) {
	env := map[string]string{
		"RR_ELEVENLABS_API_KEY": "prefixed",
		"ELEVENLABS_API_KEY":    "standard",
		"OPENAI_API_KEY":        "openai-std",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	creds := LoadCredentials(lookup)
	if creds.ElevenLabsAPIKey != "prefixed" {
		t.Errorf("ElevenLabsAPIKey = %q, want prefixed", creds.ElevenLabsAPIKey)
	}
	if creds.OpenAIAPIKey != "openai-std" {
		t.Errorf("OpenAIAPIKey = %q, want openai-std", creds.OpenAIAPIKey)
	}
}

func TestParsePCMRate(t *testing.T) {
	tests := []struct {
		format  string
		want    int
		wantErr bool
	}{
		{"pcm_24000", 24000, false},
		{"pcm_16000", 16000, false},
		{"mp3_44100", 0, true},
		{"pcm_", 0, true},
		{"pcm_-1", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			got, err := ParsePCMRate(tt.format)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePCMRate(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePCMRate(%q) = %d, want %d", tt.format, got, tt.want)
			}
		})
	}
}
