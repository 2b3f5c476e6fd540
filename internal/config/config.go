package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all ClassCast environment variables.
const EnvPrefix = "CLASSCAST_"

// Config holds all application configuration. Secrets (API keys, the token
// signing secret) are loaded exclusively from environment variables and never
// appear in the config file.
type Config struct {
	Addr                  string `yaml:"addr"`
	DBPath                string `yaml:"db_path"`
	NotesModel            string `yaml:"notes_model"`
	TranscribeModel       string `yaml:"transcribe_model"`
	TranscribeLanguage    string `yaml:"transcribe_language"`
	AudioSampleRate       int    `yaml:"audio_sample_rate"`
	PollTimeLimit         string `yaml:"poll_time_limit"`
	QuizTimeLimit         string `yaml:"quiz_time_limit"`
	ArchiveFolderID       string `yaml:"archive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`

	// Secrets come from env vars only, never serialized to YAML.
	JWTSecret       string `yaml:"-"`
	DeepgramAPIKey  string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	GeminiAPIKey    string `yaml:"-"`
}

func defaults() Config {
	return Config{
		Addr:                  ":8080",
		DBPath:                "data/classcast.db",
		NotesModel:            "gemini/gemini-2.5-flash",
		TranscribeModel:       "nova-2",
		TranscribeLanguage:    "en-US",
		AudioSampleRate:       48000,
		PollTimeLimit:         "60s",
		QuizTimeLimit:         "30s",
		GoogleCredentialsFile: "./service-account.json",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedPollTimeLimit returns PollTimeLimit as a time.Duration, falling back
// to 60s if the value is invalid.
func (c *Config) ParsedPollTimeLimit() time.Duration {
	d, err := time.ParseDuration(c.PollTimeLimit)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// ParsedQuizTimeLimit returns QuizTimeLimit as a time.Duration, falling back
// to 30s if the value is invalid.
func (c *Config) ParsedQuizTimeLimit() time.Duration {
	d, err := time.ParseDuration(c.QuizTimeLimit)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// APIKeyFor returns the configured secret for a text-generation provider name.
func (c *Config) APIKeyFor(provider string) string {
	switch provider {
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return ""
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "NOTES_MODEL"); v != "" {
		cfg.NotesModel = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIBE_MODEL"); v != "" {
		cfg.TranscribeModel = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIBE_LANGUAGE"); v != "" {
		cfg.TranscribeLanguage = v
	}
	if v := os.Getenv(EnvPrefix + "AUDIO_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.AudioSampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "POLL_TIME_LIMIT"); v != "" {
		cfg.PollTimeLimit = v
	}
	if v := os.Getenv(EnvPrefix + "QUIZ_TIME_LIMIT"); v != "" {
		cfg.QuizTimeLimit = v
	}
	if v := os.Getenv(EnvPrefix + "ARCHIVE_FOLDER_ID"); v != "" {
		cfg.ArchiveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.JWTSecret = os.Getenv(EnvPrefix + "JWT_SECRET")
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.JWTSecret == "" {
		warnings = append(warnings, "Token signing secret not configured, all connections will be rejected. Set "+EnvPrefix+"JWT_SECRET.")
	}
	if cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured, live transcription is disabled. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}
	if provider, _, err := splitModel(cfg.NotesModel); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid notes_model %q, note generation is disabled.", cfg.NotesModel))
	} else if cfg.APIKeyFor(provider) == "" {
		warnings = append(warnings, fmt.Sprintf("No API key configured for provider %q, note generation is disabled. Set %s%s_API_KEY.", provider, EnvPrefix, strings.ToUpper(provider)))
	}
	if _, err := time.ParseDuration(cfg.PollTimeLimit); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid poll_time_limit %q, using default 60s.", cfg.PollTimeLimit))
	}
	if _, err := time.ParseDuration(cfg.QuizTimeLimit); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid quiz_time_limit %q, using default 30s.", cfg.QuizTimeLimit))
	}

	return warnings
}

func splitModel(model string) (provider, name string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model %q", model)
	}
	return parts[0], parts[1], nil
}
