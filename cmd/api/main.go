package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"imageloop/internal/gallery"
	"imageloop/internal/http/handlers"
	httpapi "imageloop/internal/http/httpapi"
	"imageloop/internal/imagegen"
	"imageloop/internal/infra"
	"imageloop/internal/journal"
	"imageloop/internal/providers/genai"
	"imageloop/internal/providers/image"
	"imageloop/internal/scheduler"
	"imageloop/internal/storage"
)

func main() {
	envFile := pflag.String("env-file", ".env", "optional dotenv file loaded before reading the environment")
	port := pflag.String("port", "", "listen port (overrides PORT)")
	journalPath := pflag.String("journal", "", "journal file to watch (overrides JOURNAL_PATH)")
	pflag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *journalPath != "" {
		cfg.JournalPath = *journalPath
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogLevel)

	client, err := genai.NewClient(genai.Options{
		APIKey:      cfg.GeminiAPIKey,
		BaseURL:     cfg.GeminiBaseURL,
		Model:       cfg.GeminiImageModel,
		ImagenModel: cfg.ImagenModel,
		HTTPClient:  &http.Client{Timeout: cfg.ProviderTimeout},
		Logger:      &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure genai client")
	}
	if !cfg.HasCredential() {
		logger.Warn().Msg("api: GEMINI_API_KEY missing; generation requests will fail until it is set")
	}

	orchestrator := imagegen.NewOrchestrator(
		image.NewGeminiGenerator(client, cfg.ReferenceMaxDimension),
		image.NewImagenGenerator(client),
		&logger,
	)

	previews := gallery.New(gallery.DefaultCapacity)
	sinks := []scheduler.Sink{previews}
	if cfg.OutputDir != "" {
		store, err := storage.NewFileStore(cfg.OutputDir, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: failed to prepare output directory")
		}
		sinks = append(sinks, store)
		logger.Info().Str("dir", store.BasePath()).Msg("api: writing generated images to disk")
	}

	mode, err := imagegen.ParseProviderMode(cfg.ProviderMode)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: invalid provider mode")
	}
	controller, err := scheduler.NewController(orchestrator, scheduler.Options{
		Interval:        cfg.ScheduleInterval(),
		SkipIfUnchanged: cfg.SkipIfUnchanged,
		ProviderMode:    mode,
		AttemptTimeout:  cfg.ProviderTimeout * 2,
		Sinks:           sinks,
		Logger:          &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure scheduler")
	}

	if cfg.JournalPath != "" {
		watcher, err := journal.NewWatcher(cfg.JournalPath, journal.DefaultDebounce, controller.UpdateJournal, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: failed to watch journal")
		}
		watcher.Start()
		defer watcher.Stop()
		logger.Info().Str("path", cfg.JournalPath).Msg("api: watching journal")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ScheduleAutoStart {
		controller.Start()
	}
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("api: scheduler stopped with error")
		}
	}()

	app := handlers.NewApp(cfg, logger, orchestrator, controller, previews)
	router := httpapi.NewRouter(app, httpapi.Options{
		RateLimitPerMinute: cfg.RateLimitPerMin,
		AllowedOrigins:     cfg.CORSAllowedOrigins,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("api: listening on %s", server.Addr())
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api: http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("api: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	select {
	case <-schedulerDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("api: scheduler did not stop in time")
	}
	logger.Info().Msg("api: stopped")
}
