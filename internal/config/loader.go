package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the common prefix for all recognised environment variables.
const EnvPrefix = "RR_"

// Load builds the effective configuration: defaults, then the YAML file at
// path (skipped when path is empty or the file does not exist), then the
// RR_* environment overlay, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Optional file; env-only deployments are fine.
		case err != nil:
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		default:
			defer f.Close()
			if err := decodeYAML(f, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %q: %w", path, err)
			}
		}
	}

	ApplyEnv(cfg, os.LookupEnv)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the defaults and validates
// the result. Useful in tests where configs are constructed from string
// literals. The environment overlay is not applied.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays cfg with values from lookup (normally os.LookupEnv).
// Unset variables leave the corresponding field untouched; malformed numeric
// or boolean values are ignored so a typo cannot take the server down.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(EnvPrefix + key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(EnvPrefix + key); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(EnvPrefix + key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("HOST", &cfg.Server.Host)
	integer("PORT", &cfg.Server.Port)
	if v, ok := lookup(EnvPrefix + "CORS_ORIGINS"); ok {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.CORSOrigins = origins
	}
	if v, ok := lookup(EnvPrefix + "LOG_LEVEL"); ok {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(v))
	}

	str("DEFAULT_SYSTEM_PROMPT", &cfg.LLM.DefaultSystemPrompt)
	float("TEMPERATURE", &cfg.LLM.Temperature)
	integer("MAX_TOKENS", &cfg.LLM.MaxTokens)
	float("TIMEOUT_S", &cfg.LLM.TimeoutS)
	integer("RETRIES", &cfg.LLM.Retries)

	str("TTS_MODEL", &cfg.TTS.Model)
	str("TTS_OUTPUT_FORMAT", &cfg.TTS.OutputFormat)
	str("TTS_FALLBACK_PROFILE", &cfg.TTS.FallbackProfile)
	float("TTS_TIMEOUT_S", &cfg.TTS.TimeoutS)

	boolean("WAVES_ENABLED", &cfg.Waves.Enabled)
	integer("WAVES_MAX_WORKERS", &cfg.Waves.MaxWorkers)
	integer("WAVES_QUEUE_MAX_SIZE", &cfg.Waves.QueueMaxSize)
	float("WAVES_JOB_TIMEOUT_S", &cfg.Waves.JobTimeoutS)

	boolean("EVENTS_WS_ENABLED", &cfg.Events.WSEnabled)
	float("EVENTS_TURN1_TIMEOUT_S", &cfg.Events.Turn1TimeoutS)
	float("EVENTS_DIALOGUE_TIMEOUT_S", &cfg.Events.DialogueTimeoutS)
	float("EVENTS_WORKFLOW_TIMEOUT_S", &cfg.Events.WorkflowTimeoutS)

	boolean("SENTIMENT_ENABLED", &cfg.Sentiment.Enabled)
	str("SENTIMENT_MODEL", &cfg.Sentiment.Model)
	float("SENTIMENT_TEMPERATURE", &cfg.Sentiment.Temperature)
	float("SENTIMENT_TIMEOUT_S", &cfg.Sentiment.TimeoutS)
	integer("SENTIMENT_MAX_TOKENS", &cfg.Sentiment.MaxTokens)

	boolean("SUMMARY_ENABLED", &cfg.Summary.Enabled)
	str("SUMMARY_MODEL", &cfg.Summary.Model)
	float("SUMMARY_TEMPERATURE", &cfg.Summary.Temperature)
	float("SUMMARY_TIMEOUT_S", &cfg.Summary.TimeoutS)
	integer("SUMMARY_MAX_TOKENS", &cfg.Summary.MaxTokens)

	str("ARTIFACTS_DIR", &cfg.ArtifactsDir)
}

// LoadCredentials reads vendor API keys from the environment. RR_-prefixed
// variables take precedence over the vendors' conventional names.
func LoadCredentials(lookup func(string) (string, bool)) Credentials {
	get := func(prefixed, standard string) string {
		if v, ok := lookup(EnvPrefix + prefixed); ok && v != "" {
			return v
		}
		v, _ := lookup(standard)
		return v
	}
	return Credentials{
		OpenAIAPIKey:     get("OPENAI_API_KEY", "OPENAI_API_KEY"),
		AnthropicAPIKey:  get("ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"),
		GoogleAPIKey:     get("GOOGLE_API_KEY", "GOOGLE_API_KEY"),
		ElevenLabsAPIKey: get("ELEVENLABS_API_KEY", "ELEVENLABS_API_KEY"),
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range [1, 65535]", cfg.Server.Port))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0, 2]", cfg.LLM.Temperature))
	}
	if cfg.LLM.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("llm.max_tokens must be positive, got %d", cfg.LLM.MaxTokens))
	}
	if cfg.LLM.TimeoutS <= 0 {
		errs = append(errs, fmt.Errorf("llm.timeout_s must be positive, got %g", cfg.LLM.TimeoutS))
	}
	if cfg.LLM.Retries < 0 {
		errs = append(errs, fmt.Errorf("llm.retries must not be negative, got %d", cfg.LLM.Retries))
	}

	if _, err := ParsePCMRate(cfg.TTS.OutputFormat); err != nil {
		errs = append(errs, fmt.Errorf("tts.output_format: %w", err))
	}
	if cfg.TTS.TimeoutS <= 0 {
		errs = append(errs, fmt.Errorf("tts.timeout_s must be positive, got %g", cfg.TTS.TimeoutS))
	}

	if cfg.Waves.Enabled {
		if cfg.Waves.MaxWorkers <= 0 {
			errs = append(errs, fmt.Errorf("waves.max_workers must be positive, got %d", cfg.Waves.MaxWorkers))
		}
		if cfg.Waves.QueueMaxSize <= 0 {
			errs = append(errs, fmt.Errorf("waves.queue_max_size must be positive, got %d", cfg.Waves.QueueMaxSize))
		}
		if cfg.Waves.JobTimeoutS <= 0 {
			errs = append(errs, fmt.Errorf("waves.job_timeout_s must be positive, got %g", cfg.Waves.JobTimeoutS))
		}
	}

	if cfg.Events.WSEnabled && cfg.Events.WorkflowTimeoutS <= 0 {
		errs = append(errs, fmt.Errorf("events.workflow_timeout_s must be positive, got %g", cfg.Events.WorkflowTimeoutS))
	}

	if cfg.Sentiment.Enabled && cfg.Sentiment.Model == "" {
		errs = append(errs, errors.New("sentiment.model is required when sentiment is enabled"))
	}
	if cfg.Summary.Enabled && cfg.Summary.Model == "" {
		errs = append(errs, errors.New("summary.model is required when summary is enabled"))
	}

	if cfg.ArtifactsDir == "" {
		errs = append(errs, errors.New("artifacts_dir must not be empty"))
	}

	return errors.Join(errs...)
}

// ParsePCMRate extracts the sample rate from a vendor output format of the
// form "pcm_<rate>", e.g. "pcm_24000" → 24000.
func ParsePCMRate(format string) (int, error) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("format %q does not match pcm_<rate>", format)
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("format %q has an invalid sample rate", format)
	}
	return rate, nil
}
