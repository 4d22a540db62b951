package transcribe

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/snarg/transcribe-api/internal/config"
)

// Provider is the interface for speech-to-text backends.
type Provider interface {
	// Transcribe reads the audio file at audioPath and returns its transcript.
	// Failures should be *ProviderError so callers can pick a status code.
	Transcribe(ctx context.Context, audioPath string) (*Response, error)
	Name() string  // "openai", "google", "whispercpp"
	Model() string // model identifier for logs and status
	Close() error
}

// Response is the common transcription result from any provider.
type Response struct {
	Text     string
	Language string
	Duration float64 // audio duration in seconds, 0 if unknown
}

// New builds the provider selected by cfg.Provider. The caller owns the
// returned provider and must Close it.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			log.Warn().Msg("OPENAI_API_KEY is not set; transcription requests will fail authentication")
		}
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.TranscribeTimeout,
		}), nil
	case config.ProviderGoogle:
		return NewGoogleProvider(ctx, GoogleConfig{
			APIKey:       cfg.GoogleAPIKey,
			LanguageCode: cfg.GoogleLanguageCode,
		})
	case config.ProviderWhisperCpp:
		return NewWhisperCppProvider(WhisperCppConfig{
			ModelPath: cfg.WhisperCppModelPath,
			Language:  cfg.WhisperCppLanguage,
			Threads:   cfg.WhisperCppThreads,
		}, log)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
