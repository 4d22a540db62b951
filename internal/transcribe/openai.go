package transcribe

import (
	"context"
	"errors"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the hosted Whisper backend. BaseURL may point at
// any OpenAI-compatible /v1 endpoint (Groq, speaches, a local whisper server).
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIProvider calls the OpenAI audio transcription API.
// Implements the Provider interface.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a client once at startup; it is safe for
// concurrent use by every request.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(oc),
		model:  model,
	}
}

// Name returns the provider name.
func (o *OpenAIProvider) Name() string { return "openai" }

// Model returns the configured model identifier.
func (o *OpenAIProvider) Model() string { return o.model }

// Close releases nothing; the HTTP client has no persistent state to drop.
func (o *OpenAIProvider) Close() error { return nil }

// Transcribe uploads the file at audioPath. The SDK opens the file itself and
// derives the multipart filename (and so the format) from its extension.
func (o *OpenAIProvider) Transcribe(ctx context.Context, audioPath string) (*Response, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return nil, newProviderError(o.Name(), classifyOpenAI(err), err)
	}

	return &Response{
		Text:     resp.Text,
		Language: resp.Language,
		Duration: resp.Duration,
	}, nil
}

func classifyOpenAI(err error) Kind {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return KindFromStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return KindFromStatus(reqErr.HTTPStatusCode)
	}
	return transportKind(err)
}
