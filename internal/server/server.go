package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"prepcost/internal/costing"
	"prepcost/internal/events"
	"prepcost/internal/handlers"
	applog "prepcost/internal/log"
)

// Config captures the runtime configuration for the HTTP server.
type Config struct {
	Addr              string
	Database          *gorm.DB
	Costing           costing.Options
	ReconcileInterval time.Duration
	Events            EventsConfig
}

// EventsConfig enables the PostgreSQL cost-change listener.
type EventsConfig struct {
	Enabled     bool
	DatabaseURL string
	Channel     string
}

// Server wraps an http.Server together with the background workers that
// keep prep costs current.
type Server struct {
	config     Config
	httpServer *http.Server
	service    *costing.Service
	metrics    *costing.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a new Server using the provided configuration.
func New(cfg Config) (*Server, error) {
	applog.Debug(context.Background(), "initializing server",
		"addr", cfg.Addr,
		"reconcileInterval", cfg.ReconcileInterval.String(),
		"eventsEnabled", cfg.Events.Enabled,
	)

	if cfg.Database == nil {
		return nil, errors.New("server: database is required")
	}

	metrics := costing.NewMetrics()
	store := costing.NewStore(cfg.Database, costing.NewGuard(metrics))
	scheduler := costing.NewScheduler(store, metrics, cfg.Costing)
	service := costing.NewService(store, scheduler)

	handlers.Configure(service)
	applog.Debug(context.Background(), "handler dependencies configured")

	handler := requestID(accessLog(newRouter(metrics)))
	applog.Debug(context.Background(), "http handler chain prepared")

	return &Server{
		config:  cfg,
		service: service,
		metrics: metrics,
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Start launches the background workers and serves HTTP traffic until Stop.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.startWorkers(ctx)

	applog.Debug(ctx, "server starting listener", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) startWorkers(ctx context.Context) {
	scheduler := s.service.Scheduler()

	if s.config.ReconcileInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			applog.Info(ctx, "reconcile loop started", "interval", s.config.ReconcileInterval.String())
			scheduler.ReconcileEvery(ctx, s.config.ReconcileInterval)
		}()
	}

	url := strings.TrimSpace(s.config.Events.DatabaseURL)
	postgres := url != "" && !strings.HasPrefix(url, "sqlite://") && !strings.HasPrefix(url, "file:")
	if postgres {
		if err := events.EnsureTrigger(ctx, url, s.config.Events.Channel); err != nil {
			applog.Warn(ctx, "could not install cost change trigger; out-of-band cost writes rely on reconcile -all", "error", err)
		}
	}

	if s.config.Events.Enabled {
		if !postgres {
			applog.Warn(ctx, "cost change events need a PostgreSQL database; listener disabled")
			return
		}
		listener := events.NewListener(events.Config{
			URL:            url,
			Channel:        s.config.Events.Channel,
			InstallTrigger: true,
		}, func(ctx context.Context, ingredientID uint) error {
			_, err := scheduler.IngredientCostChanged(ctx, ingredientID)
			return err
		})
		listener.OnReconnect(func(ctx context.Context) {
			if _, err := scheduler.Reconcile(ctx, false); err != nil {
				applog.Error(ctx, "reconcile after reconnect failed", "error", err)
			}
		})

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := listener.Run(ctx); err != nil {
				applog.Error(ctx, "cost change listener stopped", "error", err)
			}
		}()
	}
}

// Stop gracefully shuts down the HTTP server and the background workers.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	applog.Debug(ctx, "server initiating graceful shutdown")

	err := s.httpServer.Shutdown(ctx)
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return err
}

// Handler exposes the configured HTTP handler, enabling integration tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Service exposes the costing engine the server is wired to.
func (s *Server) Service() *costing.Service {
	return s.service
}
