//go:build !whispercpp

package transcribe

import "github.com/rs/zerolog"

// NewWhisperCppProvider always fails in builds without the whispercpp tag.
func NewWhisperCppProvider(cfg WhisperCppConfig, log zerolog.Logger) (Provider, error) {
	return nil, ErrOfflineUnavailable
}
