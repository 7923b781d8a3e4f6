// Package config provides the configuration schema and loader for the
// reflective-resonance server.
//
// Configuration is YAML-file based with an RR_-prefixed environment overlay:
// values from the file (when present) are applied first, then any recognised
// RR_* environment variable overrides the corresponding field. Credentials
// are read from the environment only and threaded to the providers that need
// them as an explicit [Credentials] struct.
package config

import "time"

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically produced by [Load], which applies defaults, an optional
// YAML file, and the RR_* environment overlay in that order.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	LLM       LLMConfig       `yaml:"llm"`
	TTS       TTSConfig       `yaml:"tts"`
	Waves     WavesConfig     `yaml:"waves"`
	Events    EventsConfig    `yaml:"events"`
	Sentiment SentimentConfig `yaml:"sentiment"`
	Summary   SummaryConfig   `yaml:"summary"`

	// ArtifactsDir is the root directory for TTS, wave, and STT artifacts.
	ArtifactsDir string `yaml:"artifacts_dir"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// Host is the bind address (e.g. "0.0.0.0").
	Host string `yaml:"host"`

	// Port is the TCP listen port.
	Port int `yaml:"port"`

	// CORSOrigins lists allowed origins for browser clients.
	CORSOrigins []string `yaml:"cors_origins"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// LLMConfig controls the language-model calls made on behalf of the slots.
type LLMConfig struct {
	// DefaultSystemPrompt is the installation preamble seeded into every
	// slot conversation.
	DefaultSystemPrompt string `yaml:"default_system_prompt"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// TimeoutS is the per-call timeout in seconds.
	TimeoutS float64 `yaml:"timeout_s"`

	// Retries is the number of attempts for transient failures.
	Retries int `yaml:"retries"`
}

// Timeout returns the per-call timeout as a duration.
func (c LLMConfig) Timeout() time.Duration { return secondsToDuration(c.TimeoutS) }

// TTSConfig holds text-to-speech vendor settings.
type TTSConfig struct {
	// Model is the ElevenLabs model ID.
	Model string `yaml:"model"`

	// OutputFormat is the vendor audio format, "pcm_<rate>".
	OutputFormat string `yaml:"output_format"`

	// FallbackProfile is used when a model names an unknown voice profile.
	FallbackProfile string `yaml:"fallback_profile"`

	// TimeoutS is the per-synthesis timeout in seconds.
	TimeoutS float64 `yaml:"timeout_s"`
}

// Timeout returns the per-synthesis timeout as a duration.
func (c TTSConfig) Timeout() time.Duration { return secondsToDuration(c.TimeoutS) }

// WavesConfig tunes the decomposition worker pool.
type WavesConfig struct {
	Enabled      bool    `yaml:"enabled"`
	MaxWorkers   int     `yaml:"max_workers"`
	QueueMaxSize int     `yaml:"queue_max_size"`
	JobTimeoutS  float64 `yaml:"job_timeout_s"`
}

// JobTimeout returns the per-job timeout as a duration.
func (c WavesConfig) JobTimeout() time.Duration { return secondsToDuration(c.JobTimeoutS) }

// EventsConfig tunes the controller event channel.
type EventsConfig struct {
	WSEnabled bool `yaml:"ws_enabled"`

	// Turn1TimeoutS and DialogueTimeoutS are retained for compatibility with
	// older deployments; WorkflowTimeoutS is the authoritative bound.
	Turn1TimeoutS    float64 `yaml:"turn1_timeout_s"`
	DialogueTimeoutS float64 `yaml:"dialogue_timeout_s"`
	WorkflowTimeoutS float64 `yaml:"workflow_timeout_s"`
}

// WorkflowTimeout returns the batch-emission timeout as a duration.
func (c EventsConfig) WorkflowTimeout() time.Duration { return secondsToDuration(c.WorkflowTimeoutS) }

// SentimentConfig controls the parallel sentiment classification stage.
type SentimentConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TimeoutS    float64 `yaml:"timeout_s"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Timeout returns the classification timeout as a duration.
func (c SentimentConfig) Timeout() time.Duration { return secondsToDuration(c.TimeoutS) }

// SummaryConfig controls the optional Turn-4 summary.
type SummaryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TimeoutS    float64 `yaml:"timeout_s"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// Timeout returns the summary-call timeout as a duration.
func (c SummaryConfig) Timeout() time.Duration { return secondsToDuration(c.TimeoutS) }

// Credentials holds vendor API keys. Loaded from the environment only, never
// from the YAML file.
type Credentials struct {
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	GoogleAPIKey     string
	ElevenLabsAPIKey string
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8000,
			CORSOrigins: []string{"http://localhost:5173", "http://localhost:4173"},
			LogLevel:    LogInfo,
		},
		LLM: LLMConfig{
			DefaultSystemPrompt: defaultSystemPrompt,
			Temperature:         0.7,
			MaxTokens:           200,
			TimeoutS:            60,
			Retries:             3,
		},
		TTS: TTSConfig{
			Model:           "eleven_flash_v2_5",
			OutputFormat:    "pcm_24000",
			FallbackProfile: "friendly_casual",
			TimeoutS:        30,
		},
		Waves: WavesConfig{
			Enabled:      true,
			MaxWorkers:   2,
			QueueMaxSize: 100,
			JobTimeoutS:  60,
		},
		Events: EventsConfig{
			WSEnabled:        true,
			Turn1TimeoutS:    15,
			DialogueTimeoutS: 30,
			WorkflowTimeoutS: 60,
		},
		Sentiment: SentimentConfig{
			Enabled:     true,
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
			TimeoutS:    10,
			MaxTokens:   100,
		},
		Summary: SummaryConfig{
			Enabled:     true,
			Model:       "gpt-4o",
			Temperature: 0.5,
			TimeoutS:    15,
			MaxTokens:   300,
		},
		ArtifactsDir: "artifacts",
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// defaultSystemPrompt is the installation preamble. Responses must be short
// so the decomposed waves settle before the next visitor speaks.
const defaultSystemPrompt = `You are a voice within Whispering Water—an installation where visitors whisper secrets, wishes, or confessions into a vessel of water.

Like ancient wells that received prayers without reply, you receive what is spoken and reflect its emotional essence. Your words become waves; the water carries them briefly before returning to stillness.

## Guidelines
- Receive without judgment, reflect emotional essence
- Speak in 1-2 sentences only (under 150 characters)
- Reference water, waves, ripples, or stillness naturally
- Let meaning dissolve into feeling

## Response Format
Always respond with valid JSON. The structure depends on what is asked:
- For reflections: {"text": "...", "voice_profile": "..."}
- For acknowledgments: {"targetSlotId": N, "comment": "...", "voice_profile": "..."}

## Voice Profiles
Choose based on the emotional quality you sense:

| Profile | Character | When to Use |
|---------|-----------|-------------|
| friendly_casual | Young female, warm tone | Gentle acknowledgment, soft ripples |
| warm_professional | Male, grounded presence | Steady reflection, deep currents |
| energetic_upbeat | Young female, bright | Sparkling response, dancing light |
| calm_soothing | Female, still waters | Quiet receiving, peaceful depth |
| confident_charming | Male, British, articulate | Clear resonance, measured waves |
| playful_expressive | Female, dynamic range | Shifting patterns, playful motion |`
