package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"prepcost/internal/config"
	"prepcost/internal/costing"
	"prepcost/internal/db"
	"prepcost/internal/db/mock"
	applog "prepcost/internal/log"
	"prepcost/internal/server"
)

type serverLifecycle interface {
	Start() error
	Stop() error
}

var (
	loadConfigFunc      = config.Load
	setLogLevelFunc     = applog.SetLevel
	setLogFormatFunc    = applog.SetFormat
	newMockDatabaseFunc = mock.New
	configureDatabase   = db.Configure
	newServerFunc       = func(cfg server.Config) (serverLifecycle, error) {
		return server.New(cfg)
	}
	subscribeShutdownSig = func() (<-chan os.Signal, func()) {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)
		return ch, func() { signal.Stop(ch) }
	}
)

func main() {
	_ = godotenv.Load()
	os.Exit(run(context.Background()))
}

func run(ctx context.Context) int {
	cfg, err := loadConfigFunc()
	if err != nil {
		applog.Error(ctx, "failed to load configuration", "error", err)
		return 1
	}

	if err := setLogLevelFunc(cfg.Logging.Level); err != nil {
		applog.Error(ctx, "invalid log level", "level", cfg.Logging.Level, "error", err)
		return 1
	}
	if cfg.Logging.Format != "" {
		if err := setLogFormatFunc(cfg.Logging.Format); err != nil {
			applog.Error(ctx, "invalid log format", "format", cfg.Logging.Format, "error", err)
			return 1
		}
	}

	database, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		applog.Error(ctx, "database unavailable", "error", err)
		return 1
	}

	srv, err := newServerFunc(server.Config{
		Addr:     cfg.Server.Addr,
		Database: database,
		Costing: costing.Options{
			MaxAttempts:  cfg.Costing.MaxAttempts,
			RetryBackoff: cfg.Costing.RetryBackoff,
			Concurrency:  cfg.Costing.Concurrency,
			PrepTimeout:  cfg.Costing.PrepTimeout,
		},
		ReconcileInterval: cfg.Costing.ReconcileInterval,
		Events:            eventsConfig(cfg),
	})
	if err != nil {
		applog.Error(ctx, "failed to build server", "error", err)
		return 1
	}

	sigCh, unsubscribe := subscribeShutdownSig()
	defer unsubscribe()

	errCh := make(chan error, 1)
	go func() {
		applog.Info(ctx, "starting http server", "addr", cfg.Server.Addr)
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Error(ctx, "server encountered an error", "error", err)
			return 1
		}
		return 0
	case sig := <-sigCh:
		applog.Info(ctx, "shutting down http server", "signal", sig.String())
	}

	if err := srv.Stop(); err != nil {
		applog.Error(ctx, "graceful shutdown failed", "error", err)
		return 1
	}
	return 0
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.UseMock || cfg.URL == "" {
		applog.Info(ctx, "using in-memory mock database")
		return newMockDatabaseFunc(ctx)
	}
	return configureDatabase(cfg)
}

func eventsConfig(cfg config.Config) server.EventsConfig {
	if cfg.Database.UseMock || cfg.Database.URL == "" {
		return server.EventsConfig{Channel: cfg.Events.Channel}
	}
	return server.EventsConfig{
		Enabled:     cfg.Events.Enabled,
		DatabaseURL: cfg.Database.URL,
		Channel:     cfg.Events.Channel,
	}
}
