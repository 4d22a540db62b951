package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/transcribe-api/internal/audio"
	"github.com/snarg/transcribe-api/internal/config"
	"github.com/snarg/transcribe-api/internal/metrics"
	"github.com/snarg/transcribe-api/internal/storage"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// ServerOptions holds the components a Server routes to.
type ServerOptions struct {
	Config     *config.Config
	Store      *storage.TempStore
	Dispatcher Dispatcher
	Provider   string
	Model      string
	Events     ConnChecker // nil when MQTT is not configured
	Version    string
	StartTime  time.Time
	Log        zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	return &Server{
		http: &http.Server{
			Addr:         opts.Config.HTTPAddr,
			Handler:      NewRouter(opts),
			ReadTimeout:  opts.Config.ReadTimeout,
			WriteTimeout: opts.Config.WriteTimeout,
			IdleTimeout:  opts.Config.IdleTimeout,
		},
		log: opts.Log,
	}
}

// NewRouter builds the HTTP handler tree without binding a listener.
func NewRouter(opts ServerOptions) http.Handler {
	cfg := opts.Config
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(CORSWithOrigins(cfg.CORSOrigins))
	if cfg.MetricsEnabled {
		r.Use(metrics.InstrumentHandler)
	}

	status := NewStatusHandler(opts.Provider, opts.Model, cfg.HasCredential(), opts.Events, opts.Version, opts.StartTime)
	r.Get("/", status.ServeHTTP)

	transcribe := NewTranscribeHandler(
		audio.NewNormalizer(cfg.MaxUploadBytes, opts.Log),
		opts.Store,
		opts.Dispatcher,
	)
	r.Post("/transcribe", transcribe.ServeHTTP)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
