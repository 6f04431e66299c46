// courierd runs the delivery engine as one process: the worker pool,
// the cron scheduler, and the admin HTTP API. Configuration comes from
// the environment, with an optional .env file for development.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"

	"github.com/waveline/courier"
	"github.com/waveline/courier/api"
	"github.com/waveline/courier/engine"
	"github.com/waveline/courier/store"
	"github.com/waveline/courier/store/memory"
	"github.com/waveline/courier/store/postgres"
	"github.com/waveline/courier/store/redis"
)

type config struct {
	Addr            string        `env:"COURIER_ADDR" envDefault:":8080"`
	Store           string        `env:"COURIER_STORE" envDefault:"memory"`
	PostgresDSN     string        `env:"COURIER_POSTGRES_DSN"`
	RedisAddr       string        `env:"COURIER_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword   string        `env:"COURIER_REDIS_PASSWORD"`
	RedisDB         int           `env:"COURIER_REDIS_DB" envDefault:"0"`
	Concurrency     int           `env:"COURIER_CONCURRENCY" envDefault:"10"`
	PollInterval    time.Duration `env:"COURIER_POLL_INTERVAL" envDefault:"1s"`
	ShutdownTimeout time.Duration `env:"COURIER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	LogLevel        string        `env:"COURIER_LOG_LEVEL" envDefault:"info"`
	Migrate         bool          `env:"COURIER_MIGRATE" envDefault:"true"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("courierd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// A .env file is optional; deployments set the environment directly.
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.Migrate {
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate store: %w", err)
		}
	}

	c, err := courier.New(
		courier.WithStore(st),
		courier.WithLogger(logger),
		courier.WithConcurrency(cfg.Concurrency),
		courier.WithPollInterval(cfg.PollInterval),
		courier.WithShutdownTimeout(cfg.ShutdownTimeout),
	)
	if err != nil {
		return fmt.Errorf("configure courier: %w", err)
	}

	eng, err := engine.Build(c)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	if err := engine.RegisterMaintenance(ctx, eng, engine.DefaultMaintenanceConfig()); err != nil {
		return fmt.Errorf("register maintenance: %w", err)
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.New(eng, api.WithLogger(logger)).Handler(),
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("admin api listening", slog.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errc:
		return fmt.Errorf("admin api: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin api shutdown", slog.String("error", err.Error()))
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stop engine: %w", err)
	}

	logger.Info("courierd stopped")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// openStore selects the backend named by COURIER_STORE.
func openStore(ctx context.Context, cfg config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store {
	case "memory":
		return memory.New(), nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("COURIER_POSTGRES_DSN is required for the postgres store")
		}
		return postgres.New(ctx, cfg.PostgresDSN, postgres.WithLogger(logger))
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return redis.New(client, redis.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown store %q (want memory, postgres, or redis)", cfg.Store)
	}
}
