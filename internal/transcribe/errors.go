package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
)

// Kind classifies a provider failure.
type Kind string

const (
	KindNetwork     Kind = "network"
	KindAuth        Kind = "auth"
	KindRateLimit   Kind = "rate_limit"
	KindUnavailable Kind = "unavailable"
	KindTimeout     Kind = "timeout"
	KindAudio       Kind = "audio"
	KindInternal    Kind = "internal"
	KindUnknown     Kind = "unknown"
)

// Retryable reports whether another attempt could plausibly succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindRateLimit, KindUnavailable:
		return true
	}
	return false
}

// ErrUnrecognizedAudio is returned when a provider answers but finds no speech.
var ErrUnrecognizedAudio = errors.New("could not understand audio")

// ProviderError is a classified failure from a transcription backend.
type ProviderError struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, classifying unwrapped transport errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return transportKind(err)
}

// KindFromStatus maps an HTTP status from a provider API to a Kind.
func KindFromStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code == http.StatusRequestTimeout, code == http.StatusGatewayTimeout:
		return KindTimeout
	case code == http.StatusBadRequest, code == http.StatusRequestEntityTooLarge,
		code == http.StatusUnsupportedMediaType, code == http.StatusUnprocessableEntity:
		return KindAudio
	case code >= 500:
		return KindUnavailable
	}
	return KindUnknown
}

// transportKind classifies errors that never reached the provider's API.
func transportKind(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return KindInternal
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return KindUnknown
}

func newProviderError(provider string, kind Kind, err error) *ProviderError {
	return &ProviderError{Kind: kind, Provider: provider, Err: err}
}
