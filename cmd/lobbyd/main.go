package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/fishbowl/internal/config"
	"github.com/mcdev12/fishbowl/internal/gateway"
	"github.com/mcdev12/fishbowl/internal/lobby"
	"github.com/mcdev12/fishbowl/internal/results"
	"github.com/mcdev12/fishbowl/internal/store"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Info().
		Str("backend", cfg.StoreBackend).
		Str("port", cfg.Port).
		Msg("starting lobbyd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, cleanup, err := setupStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up store")
	}
	defer cleanup()

	// Lobby core
	membership := lobby.NewMembershipTracker(st)
	gate := lobby.NewSubmissionGate(st)
	lifecycle := lobby.NewSessionLifecycle(st, membership, gate)
	reader := results.NewReader(st)

	// Abandoned-session sweeper
	reaper := lobby.NewReaper(st, clockwork.NewRealClock(), lobby.ReaperConfig{Interval: cfg.ReapInterval})
	if err := reaper.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start reaper")
	}

	// Gateway
	gatewayService := gateway.NewService(gateway.DefaultConfig(), lifecycle, membership, gate, reader)

	mux := http.NewServeMux()
	gatewayService.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	handler := c.Handler(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      h2c.NewHandler(handler, &http2.Server{}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := reaper.Stop(); err != nil {
		log.Error().Err(err).Msg("reaper shutdown failed")
	}
	cancel()

	log.Info().Msg("lobbyd shutdown complete")
}

func setupStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendNATS:
		kv, err := store.NewNATSKV(ctx, store.NATSKVConfig{
			URL:           cfg.NATSURL,
			Bucket:        cfg.NATSBucket,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		return kv, func() {
			if err := kv.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close NATS connection")
			}
		}, nil
	default:
		return store.NewMemory(), func() {}, nil
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
