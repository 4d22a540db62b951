package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"
	"github.com/snarg/transcribe-api/internal/audio"
	"github.com/snarg/transcribe-api/internal/metrics"
	"github.com/snarg/transcribe-api/internal/storage"
	"github.com/snarg/transcribe-api/internal/transcribe"
)

// Dispatcher sends a stored audio file to a transcription backend.
type Dispatcher interface {
	Dispatch(ctx context.Context, audioPath string) transcribe.Result
}

type TranscribeResponse struct {
	Transcription string `json:"transcription"`
}

type TranscribeHandler struct {
	normalizer *audio.Normalizer
	store      *storage.TempStore
	dispatcher Dispatcher
}

func NewTranscribeHandler(normalizer *audio.Normalizer, store *storage.TempStore, dispatcher Dispatcher) *TranscribeHandler {
	return &TranscribeHandler{
		normalizer: normalizer,
		store:      store,
		dispatcher: dispatcher,
	}
}

// ServeHTTP runs one request through normalize, store, dispatch. The temp
// file is released on every path out of the handler.
func (h *TranscribeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r).With().Str("handler", "transcribe").Logger()

	upload, err := h.normalizer.Normalize(r)
	if err != nil {
		if ie, ok := audio.AsInputError(err); ok {
			metrics.InputRejectionsTotal.WithLabelValues(ie.Kind).Inc()
			log.Info().Err(err).Str("reason", ie.Kind).Msg("rejected transcription request")
			status := http.StatusBadRequest
			if errors.Is(err, audio.ErrTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			WriteError(w, status, ie.Message)
			return
		}
		metrics.InputRejectionsTotal.WithLabelValues("unreadable_body").Inc()
		log.Warn().Err(err).Msg("failed to read request body")
		WriteError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	log.Debug().
		Str("source", upload.Source.String()).
		Str("filename", upload.Filename).
		Str("format", upload.Format).
		Int("bytes", len(upload.Data)).
		Msg("audio received")

	var res transcribe.Result
	ctx := log.WithContext(r.Context())
	err = h.store.With(upload.Data, upload.Format, func(path string) error {
		res = h.dispatcher.Dispatch(ctx, path)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to store audio")
		WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if res.OK {
		WriteJSON(w, http.StatusOK, TranscribeResponse{Transcription: res.Text})
		return
	}

	status := statusForKind(res.Kind)
	if status == http.StatusInternalServerError {
		WriteError(w, status, "internal server error")
		return
	}
	WriteErrorKind(w, status, res.Message, string(res.Kind))
}

// statusForKind maps a provider failure to an HTTP status. Provider failures
// are never reported as 200.
func statusForKind(k transcribe.Kind) int {
	switch k {
	case transcribe.KindRateLimit, transcribe.KindUnavailable:
		return http.StatusServiceUnavailable
	case transcribe.KindTimeout:
		return http.StatusGatewayTimeout
	case transcribe.KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}
