package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"fundamentallm-backend/internal/api"
	"fundamentallm-backend/internal/config"
	"fundamentallm-backend/internal/events"
	"fundamentallm-backend/internal/handlers"
	"fundamentallm-backend/internal/llm"
	"fundamentallm-backend/internal/logging"
	"fundamentallm-backend/internal/metrics"
	"fundamentallm-backend/internal/services"
	"fundamentallm-backend/internal/store"
	"fundamentallm-backend/internal/store/cache"
	"fundamentallm-backend/internal/store/memory"
	"fundamentallm-backend/internal/store/postgres"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	log.Info().Str("port", cfg.HTTPPort).Str("store", cfg.Store.Driver).Msg("Starting FundamentaLLM backend")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Metrics
	shutdownMetrics, err := metrics.InitMeterProvider(ctx, cfg.Metrics.OTLPEndpoint, cfg.Metrics.Interval)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			log.Warn().Err(err).Msg("metrics shutdown failed")
		}
	}()
	instruments, err := metrics.New(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create metric instruments: %w", err)
	}

	// 3. Storage
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// 4. Language model and events
	provider, err := llm.NewOpenAIProvider(llm.ProviderConfig{
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		ChatModel:  cfg.LLM.ChatModel,
		TitleModel: cfg.LLM.TitleModel,
		Timeout:    cfg.LLM.Timeout,
	})
	if err != nil {
		return err
	}
	log.Info().Str("base_url", cfg.LLM.BaseURL).Str("model", cfg.LLM.ChatModel).Msg("Language model provider initialized.")

	var publisher events.Publisher = events.Noop{}
	if cfg.NATS.URL != "" {
		natsPub, err := events.ConnectNATS(cfg.NATS.URL)
		if err != nil {
			return err
		}
		publisher = natsPub
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("event publisher close failed")
		}
	}()

	// 5. Services, handlers and router
	conversationService := services.NewConversationService(st, provider, publisher, instruments)
	router := api.NewRouter(api.RouterDependencies{
		ConversationHandler: handlers.NewConversationHandlers(conversationService),
		HealthHandler:       handlers.NewHealthHandler(st, publisher),
		AllowedOrigins:      cfg.CORSAllowedOrigins,
		RequestTimeout:      cfg.RequestTimeout,
	})

	// 6. Configure and Start HTTP Server
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("could not listen on %s: %w", cfg.HTTPPort, err)
		}
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received, initiating graceful shutdown...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server graceful shutdown failed: %w", err)
	}

	log.Info().Msg("Server shutdown complete.")
	return nil
}

// openStore builds the configured store, optionally wrapped in the cache.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	var st store.Store
	closers := []func(){}

	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		log.Warn().Msg("Using in-memory store; conversations are lost on restart.")
		st = memory.New()
	default:
		if cfg.Store.RunMigrations {
			migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := postgres.RunMigrations(migrateCtx, cfg.Store.DatabaseURL)
			cancel()
			if err != nil {
				return nil, nil, err
			}
			log.Info().Msg("Database migrations applied.")
		}

		dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err := postgres.NewPool(dbCtx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to connect to database: %w", err)
		}
		closers = append(closers, pool.Close)
		st = postgres.NewPostgresStore(pool)
		log.Info().Msg("Database connection pool established and pinged successfully.")
	}

	if cfg.Cache.Enabled {
		cached, err := cache.New(st, cfg.Cache.MaxCostBytes, cfg.Cache.TTL)
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, err
		}
		closers = append(closers, cached.Close)
		st = cached
		log.Info().Int64("max_cost_bytes", cfg.Cache.MaxCostBytes).Msg("Conversation cache enabled.")
	}

	return st, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}
