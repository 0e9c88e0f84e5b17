package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"muppetd/internal/api"
	"muppetd/internal/config"
	"muppetd/internal/keycache"
	"muppetd/internal/memoryidx"
	"muppetd/internal/metrics"
	"muppetd/internal/search"
	"muppetd/internal/storage"
	"muppetd/internal/vault"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setupLogger(cfg.Log.Level)
	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("listen_addr", cfg.ListenAddr).
		Msg("starting muppetd")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		log.Fatal().Err(err).Msg("failed to create data directory")
	}

	store, err := storage.Open(ctx, cfg.DatabasePath(), storage.Options{MaxConns: cfg.DB.MaxConns})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}
	defer store.Close()

	keys := keycache.New(store)
	if err := keys.Load(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to load api key cache")
	}

	// The vault is unlocked once per run. Any failure here is fatal: the
	// application cannot run with a non-functional secret store.
	salt, err := vault.LoadOrCreateSalt(cfg.SaltPath())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load vault salt")
	}
	deriver := vault.Argon2Deriver{
		Time:      cfg.KDF.Time,
		MemoryKiB: cfg.KDF.MemoryKiB,
		Threads:   cfg.KDF.Threads,
	}
	key, err := deriver.DeriveKey([]byte(cfg.VaultPassword), salt)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to derive vault key")
	}
	v, err := vault.Open(cfg.SnapshotPath(), key)
	vault.Zero(key)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to unlock vault")
	}
	defer v.Close()
	log.Info().Int("secrets", len(v.Names())).Msg("vault unlocked")

	httpClient := &http.Client{Timeout: cfg.HTTP.ClientTimeout}
	searchClient := search.New(search.Config{
		BaseURL:     cfg.Exa.BaseURL,
		HTTPClient:  httpClient,
		MaxRetries:  cfg.HTTP.MaxRetries,
		BackoffBase: cfg.HTTP.BackoffBase,
	})
	memoryClient := memoryidx.New(memoryidx.Config{
		BaseURL:     cfg.Mem.BaseURL,
		APIKey:      cfg.Mem.APIKey,
		HTTPClient:  httpClient,
		MaxRetries:  cfg.HTTP.MaxRetries,
		BackoffBase: cfg.HTTP.BackoffBase,
	})

	srv := api.New(api.Config{
		Store:   store,
		Keys:    keys,
		Vault:   v,
		Search:  searchClient,
		Memory:  memoryClient,
		Logger:  log.Logger,
		Metrics: metrics.Global(),
	})

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle(cfg.MetricsPath, promhttp.Handler())
	srv.Register(mux)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("runtime error")
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
	}

	log.Info().Msg("stopped")
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
