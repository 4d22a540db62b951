//go:build whispercpp

package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog"
)

// WhisperCppProvider runs recognition in-process with whisper.cpp.
// Implements the Provider interface.
type WhisperCppProvider struct {
	model whisper.Model
	cfg   WhisperCppConfig
	log   zerolog.Logger
}

// NewWhisperCppProvider loads the ggml model once at startup.
func NewWhisperCppProvider(cfg WhisperCppConfig, log zerolog.Logger) (Provider, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("whisper.cpp model path not configured")
	}
	model, err := whisper.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model: %w", err)
	}
	log = log.With().Str("provider", "whispercpp").Logger()
	log.Info().Str("model", cfg.ModelPath).Bool("multilingual", model.IsMultilingual()).Msg("whisper.cpp model loaded")
	return &WhisperCppProvider{model: model, cfg: cfg, log: log}, nil
}

// Name returns the provider name.
func (w *WhisperCppProvider) Name() string { return "whispercpp" }

// Model returns the model file name.
func (w *WhisperCppProvider) Model() string { return filepath.Base(w.cfg.ModelPath) }

// Close releases the model.
func (w *WhisperCppProvider) Close() error { return w.model.Close() }

// Transcribe decodes the file to PCM and runs a fresh whisper context over it.
// Processing itself cannot be interrupted; ctx is checked before and after.
func (w *WhisperCppProvider) Transcribe(ctx context.Context, audioPath string) (*Response, error) {
	samples, err := DecodePCM(ctx, audioPath)
	if err != nil {
		return nil, newProviderError(w.Name(), KindAudio, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, newProviderError(w.Name(), KindTimeout, err)
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return nil, newProviderError(w.Name(), KindInternal, fmt.Errorf("create whisper context: %w", err))
	}
	if w.cfg.Language != "" {
		if err := wctx.SetLanguage(w.cfg.Language); err != nil {
			w.log.Warn().Err(err).Str("language", w.cfg.Language).Msg("failed to set language")
		}
	}
	if w.cfg.Threads > 0 {
		wctx.SetThreads(w.cfg.Threads)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, newProviderError(w.Name(), KindInternal, fmt.Errorf("whisper process: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return nil, newProviderError(w.Name(), KindTimeout, err)
	}

	var text strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, newProviderError(w.Name(), KindInternal, fmt.Errorf("read segment: %w", err))
		}
		text.WriteString(segment.Text)
	}

	return &Response{
		Text:     strings.TrimSpace(text.String()),
		Language: wctx.Language(),
		Duration: float64(len(samples)) / TargetSampleRate,
	}, nil
}
