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

	"github.com/mcclellann/loanLedger/pkg/cache"
	"github.com/mcclellann/loanLedger/pkg/ledger"
	"github.com/mcclellann/loanLedger/pkg/store"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := loadConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := zerolog.New(os.Stdout).Level(cfg.LogLevel).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
	logger.Info().Msg("server exited")
}

// run serves until ctx is cancelled or the listener fails. Everything it
// opens is closed before it returns.
func run(ctx context.Context, cfg Config, logger zerolog.Logger) error {
	// Initialize SQLite Store
	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize SQLite store %s: %w", cfg.DBPath, err)
	}
	defer sqliteStore.Close()
	logger.Info().Str("db", cfg.DBPath).Msg("database connection established and schema initialized")

	ledgerCache, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeCache()
	if cfg.RedisAddr != "" {
		logger.Info().Str("redis", cfg.RedisAddr).Msg("using redis ledger cache")
	}

	server := NewServer(sqliteStore, logger, ledger.WithCache(ledgerCache))

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      server.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during server shutdown")
	}
	return nil
}

// openCache picks Redis when an address is configured and an in-process
// cache otherwise. A Redis server that does not answer a ping is an error.
func openCache(ctx context.Context, cfg Config) (cache.LedgerCache, func() error, error) {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryCache(cfg.CacheTTL), func() error { return nil }, nil
	}

	rc := cache.NewRedisCache(cfg.RedisAddr, cfg.CacheTTL)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		rc.Close()
		return nil, nil, fmt.Errorf("redis %s unreachable: %w", cfg.RedisAddr, err)
	}
	return rc, rc.Close, nil
}
