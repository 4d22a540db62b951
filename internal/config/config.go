package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Transcription backends.
const (
	ProviderOpenAI     = "openai"
	ProviderGoogle     = "google"
	ProviderWhisperCpp = "whispercpp"
)

type Config struct {
	HTTPAddr     string        `env:"HTTP_ADDR"`
	Port         string        `env:"PORT"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"90s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	CORSOrigins    []string `env:"CORS_ORIGINS" envSeparator:","`
	MetricsEnabled bool     `env:"METRICS_ENABLED" envDefault:"true"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`

	Provider string `env:"STT_PROVIDER" envDefault:"openai"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"whisper-1"`

	GoogleAPIKey       string `env:"GOOGLE_API_KEY"`
	GoogleLanguageCode string `env:"GOOGLE_LANGUAGE_CODE" envDefault:"en-US"`

	WhisperCppModelPath string `env:"WHISPERCPP_MODEL_PATH"`
	WhisperCppLanguage  string `env:"WHISPERCPP_LANGUAGE" envDefault:"en"`
	WhisperCppThreads   uint   `env:"WHISPERCPP_THREADS" envDefault:"0"`

	TranscribeTimeout     time.Duration `env:"TRANSCRIBE_TIMEOUT" envDefault:"60s"`
	TranscribeMaxAttempts int           `env:"TRANSCRIBE_MAX_ATTEMPTS" envDefault:"1"`
	TranscribeBackoff     time.Duration `env:"TRANSCRIBE_RETRY_BACKOFF" envDefault:"500ms"`

	TempDir        string `env:"TEMP_DIR"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"26214400"`

	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" envDefault:"transcribe-api"`
	MQTTTopic     string `env:"MQTT_TOPIC" envDefault:"transcribe/events"`
	MQTTUsername  string `env:"MQTT_USERNAME"`
	MQTTPassword  string `env:"MQTT_PASSWORD"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	HTTPAddr string
	LogLevel string
	Provider string
	TempDir  string
}

const defaultHTTPAddr = ":8000"

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// PORT predates HTTP_ADDR and only applies when HTTP_ADDR is unset.
	if cfg.HTTPAddr == "" {
		if cfg.Port != "" {
			cfg.HTTPAddr = ":" + cfg.Port
		} else {
			cfg.HTTPAddr = defaultHTTPAddr
		}
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.Provider != "" {
		cfg.Provider = overrides.Provider
	}
	if overrides.TempDir != "" {
		cfg.TempDir = overrides.TempDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that env parsing cannot.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderGoogle, ProviderWhisperCpp:
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q (want openai, google or whispercpp)", c.Provider)
	}
	if c.TranscribeTimeout <= 0 {
		return fmt.Errorf("TRANSCRIBE_TIMEOUT must be positive, got %s", c.TranscribeTimeout)
	}
	if c.TranscribeMaxAttempts < 1 {
		return fmt.Errorf("TRANSCRIBE_MAX_ATTEMPTS must be >= 1, got %d", c.TranscribeMaxAttempts)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.Provider == ProviderWhisperCpp && c.WhisperCppModelPath == "" {
		return fmt.Errorf("WHISPERCPP_MODEL_PATH is required when STT_PROVIDER=whispercpp")
	}
	return nil
}

// APIKey returns the credential for the configured hosted provider.
// The offline recognizer needs none and reports the model path instead.
func (c *Config) APIKey() string {
	switch c.Provider {
	case ProviderGoogle:
		return c.GoogleAPIKey
	case ProviderWhisperCpp:
		return c.WhisperCppModelPath
	default:
		return c.OpenAIAPIKey
	}
}

// HasCredential reports whether the provider has something to authenticate
// with. Google falls back to application default credentials when
// GOOGLE_API_KEY is unset, and provider construction fails without them.
func (c *Config) HasCredential() bool {
	if c.Provider == ProviderGoogle {
		return true
	}
	return c.APIKey() != ""
}

// APIKeyEnv names the environment variable holding APIKey's value.
func (c *Config) APIKeyEnv() string {
	switch c.Provider {
	case ProviderGoogle:
		return "GOOGLE_API_KEY"
	case ProviderWhisperCpp:
		return "WHISPERCPP_MODEL_PATH"
	default:
		return "OPENAI_API_KEY"
	}
}
