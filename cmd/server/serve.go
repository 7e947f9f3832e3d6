package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	appautomation "github.com/pricecycle/backend/internal/application/automation"
	"github.com/pricecycle/backend/internal/domain/shared"
	"github.com/pricecycle/backend/internal/infrastructure/auth"
	"github.com/pricecycle/backend/internal/infrastructure/config"
	"github.com/pricecycle/backend/internal/infrastructure/ecommerce"
	"github.com/pricecycle/backend/internal/infrastructure/event"
	"github.com/pricecycle/backend/internal/infrastructure/logger"
	"github.com/pricecycle/backend/internal/infrastructure/storage"
	"github.com/pricecycle/backend/internal/infrastructure/telemetry"
	"github.com/pricecycle/backend/internal/interfaces/http/handler"
	"github.com/pricecycle/backend/internal/interfaces/http/middleware"
	"github.com/pricecycle/backend/internal/interfaces/http/router"
)

const meterName = "pricecycle"

func runServe(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logCfg := &logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output}
	bootLog, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, bootLog)
	if err != nil {
		return fmt.Errorf("init log exporter: %w", err)
	}
	log := bootLog
	if lp.IsEnabled() {
		if log, err = logger.New(logCfg, lp.ZapCore(logger.ParseLevel(cfg.Log.Level))); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
	}
	defer logger.Sync(log)

	log.Info("Starting pricecycle",
		zap.String("version", version),
		zap.String("env", cfg.App.Env),
		zap.String("platform_mode", cfg.Platform.Mode),
		zap.String("store", cfg.Store.Driver),
	)

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracer provider: %w", err)
	}
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		return fmt.Errorf("init meter provider: %w", err)
	}
	defer shutdownTelemetry(log, cfg.HTTP.ShutdownTimeout, tp, mp, lp)

	metrics, err := telemetry.NewAutomationMetrics(mp.Meter(meterName))
	if err != nil {
		return fmt.Errorf("init automation metrics: %w", err)
	}

	backend, err := openStateStore(cfg, log)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer func() {
		if cerr := backend.Close(); cerr != nil {
			log.Warn("Failed to close state store", zap.Error(cerr))
		}
	}()

	archive, err := storage.NewRunArchive(ctx, cfg.Archive, log)
	if err != nil {
		return fmt.Errorf("init run archive: %w", err)
	}

	platform, err := ecommerce.NewCatalogPlatform(cfg.Platform, cfg.Automation.EmulatedBatchGap, log, metrics)
	if err != nil {
		return fmt.Errorf("init platform: %w", err)
	}

	bus := event.NewInMemoryEventBus(log)
	hub := event.NewHub(log)
	bus.Subscribe(hub)
	bus.Subscribe(metrics)
	bus.Subscribe(&event.HandlerFunc{Fn: func(ctx context.Context, e shared.DomainEvent) error {
		logger.Enrich(ctx, log).Debug("Automation event", zap.String("type", e.EventType()), zap.Stringer("id", e.EventID()))
		return nil
	}})
	if err := bus.Start(ctx); err != nil {
		return fmt.Errorf("start event bus: %w", err)
	}

	svc := appautomation.NewService(platform, backend.store, appautomation.OptionsFromConfig(cfg.Automation),
		appautomation.WithLogger(log),
		appautomation.WithEventPublisher(bus),
		appautomation.WithRunArchive(archive),
		appautomation.WithMetrics(metrics),
	)
	if cfg.Automation.ResumeOnBoot {
		if err := svc.Resume(ctx); err != nil {
			log.Error("Failed to resume persisted run", zap.Error(err))
		}
	}

	var tokens *auth.TokenService
	if cfg.HTTP.AuthEnabled {
		if tokens, err = auth.NewTokenService(cfg.HTTP); err != nil {
			return fmt.Errorf("init token service: %w", err)
		}
	}

	middleware.SetupValidator()
	events := handler.NewEventStreamHandler(hub,
		handler.WithStreamLogger(log),
		handler.WithSnapshot(func(ctx context.Context) any { return svc.Status(ctx) }),
	)
	var meter metric.Meter
	if mp.IsEnabled() {
		meter = mp.Meter(meterName)
	}
	engine := router.NewEngine(router.EngineConfig{
		HTTP:           cfg.HTTP,
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: tp.IsEnabled(),
		Meter:          meter,
		Tokens:         tokens,
		Logger:         log,
		Context:        ctx,
	}, router.Handlers{
		Automation:  handler.NewAutomationHandler(svc),
		Diagnostics: handler.NewDiagnosticsHandler(svc),
		Events:      events,
		System:      handler.NewSystemHandler(cfg.App.Name, version, svc.Platform(), backend.checks),
	})

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		// Streams block Shutdown until they return, so end them first.
		events.Close()
		err := srv.Shutdown(shutdownCtx)
		return errors.Join(err, svc.Close(shutdownCtx), bus.Stop(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		return err
	}
	log.Info("Server exited")
	return nil
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

func shutdownTelemetry(log *zap.Logger, timeout time.Duration, providers ...shutdowner) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, p := range providers {
		if err := p.Shutdown(ctx); err != nil {
			log.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}
}
