package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/snarg/transcribe-api/internal/api"
	"github.com/snarg/transcribe-api/internal/config"
	"github.com/snarg/transcribe-api/internal/metrics"
	"github.com/snarg/transcribe-api/internal/mqttclient"
	"github.com/snarg/transcribe-api/internal/storage"
	"github.com/snarg/transcribe-api/internal/transcribe"
)

var version = "dev"

// Leftover temp files older than staleTempAge are swept every sweepInterval.
const (
	staleTempAge  = time.Hour
	sweepInterval = 15 * time.Minute
)

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default .env)")
	flag.StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR/PORT)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.Provider, "provider", "", "openai, google or whispercpp (overrides STT_PROVIDER)")
	flag.StringVar(&overrides.TempDir, "temp-dir", "", "directory for request audio files (overrides TEMP_DIR)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	// Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().
		Str("version", version).
		Str("provider", cfg.Provider).
		Msg("transcribe-api starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Temp storage
	store, err := storage.NewTempStore(cfg.TempDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to prepare temp directory")
	}
	defer store.Close()

	janitor := storage.NewJanitor(store, staleTempAge, sweepInterval, log)
	janitor.Start()
	defer janitor.Stop()

	// Provider
	provLog := log.With().Str("component", "provider").Logger()
	provider, err := transcribe.New(ctx, cfg, provLog)
	if err != nil {
		log.Fatal().Err(err).Str("provider", cfg.Provider).Msg("failed to initialize transcription provider")
	}
	defer provider.Close()
	log.Info().
		Str("provider", provider.Name()).
		Str("model", provider.Model()).
		Bool("credential_configured", cfg.HasCredential()).
		Msg("transcription provider ready")

	// MQTT (optional)
	var events *mqttclient.Client
	var publisher transcribe.EventPublisher
	var conn api.ConnChecker
	if cfg.MQTTBrokerURL != "" {
		mqttLog := log.With().Str("component", "mqtt").Logger()
		events, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topic:     cfg.MQTTTopic,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       mqttLog,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer events.Close()
		publisher = events
		conn = events
	}

	dispatcher := transcribe.NewDispatcher(transcribe.DispatcherOptions{
		Provider:    provider,
		Timeout:     cfg.TranscribeTimeout,
		MaxAttempts: cfg.TranscribeMaxAttempts,
		Backoff:     cfg.TranscribeBackoff,
		Publisher:   publisher,
		Log:         log,
	})

	if cfg.MetricsEnabled {
		prometheus.MustRegister(metrics.NewCollector(store, provider.Name(), provider.Model()))
	}

	// HTTP Server
	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(api.ServerOptions{
		Config:     cfg,
		Store:      store,
		Dispatcher: dispatcher,
		Provider:   provider.Name(),
		Model:      provider.Model(),
		Events:     conn,
		Version:    version,
		StartTime:  startTime,
		Log:        httpLog,
	})

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server error")
		}
	}

	// Graceful shutdown lets in-flight transcriptions finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.TranscribeTimeout+10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("transcribe-api stopped")
}
