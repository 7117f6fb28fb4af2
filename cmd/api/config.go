package main

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const envPrefix = "LOANLEDGER_"

type Config struct {
	Addr            string
	DBPath          string
	RedisAddr       string // empty selects the in-process cache
	CacheTTL        time.Duration
	LogLevel        zerolog.Level
	ShutdownTimeout time.Duration
}

// loadConfig parses command-line flags. Each flag defaults to the matching
// LOANLEDGER_* environment variable when that is set.
func loadConfig(args []string, getenv func(string) string) (Config, error) {
	env := func(name, def string) string {
		if v := getenv(envPrefix + name); v != "" {
			return v
		}
		return def
	}

	fs := flag.NewFlagSet("loanledger", flag.ContinueOnError)
	addr := fs.String("addr", env("ADDR", ":8080"), "HTTP listen address")
	dbPath := fs.String("db", env("DB", "loanledger.db"), "SQLite database file")
	redisAddr := fs.String("redis-addr", env("REDIS_ADDR", ""), "Redis address for the ledger cache (optional)")
	cacheTTL := fs.String("cache-ttl", env("CACHE_TTL", "10m"), "ledger cache entry lifetime")
	logLevel := fs.String("log-level", env("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	shutdown := fs.String("shutdown-timeout", env("SHUTDOWN_TIMEOUT", "10s"), "graceful shutdown period")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Addr:      *addr,
		DBPath:    *dbPath,
		RedisAddr: *redisAddr,
	}
	var err error
	if cfg.CacheTTL, err = time.ParseDuration(*cacheTTL); err != nil {
		return Config{}, fmt.Errorf("invalid cache-ttl: %w", err)
	}
	if cfg.ShutdownTimeout, err = time.ParseDuration(*shutdown); err != nil {
		return Config{}, fmt.Errorf("invalid shutdown-timeout: %w", err)
	}
	if cfg.LogLevel, err = zerolog.ParseLevel(*logLevel); err != nil {
		return Config{}, fmt.Errorf("invalid log-level: %w", err)
	}
	if cfg.Addr == "" {
		return Config{}, errors.New("addr must not be empty")
	}
	if cfg.DBPath == "" {
		return Config{}, errors.New("db must not be empty")
	}
	if cfg.CacheTTL < 0 {
		return Config{}, errors.New("cache-ttl must not be negative")
	}
	return cfg, nil
}
