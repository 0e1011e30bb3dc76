package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arungoks/tankerapp/internal/application/billing"
	"github.com/arungoks/tankerapp/internal/domain/tanker"
	"github.com/arungoks/tankerapp/internal/infrastructure/cache"
	"github.com/arungoks/tankerapp/internal/infrastructure/config"
	"github.com/arungoks/tankerapp/internal/infrastructure/event"
	"github.com/arungoks/tankerapp/internal/infrastructure/export"
	"github.com/arungoks/tankerapp/internal/infrastructure/logger"
	"github.com/arungoks/tankerapp/internal/infrastructure/persistence"
	"github.com/arungoks/tankerapp/internal/infrastructure/scheduler"
	"github.com/arungoks/tankerapp/internal/infrastructure/storage"
	"github.com/arungoks/tankerapp/internal/infrastructure/telemetry"
	"github.com/arungoks/tankerapp/internal/interfaces/http/handler"
	"github.com/arungoks/tankerapp/internal/interfaces/http/middleware"
	"github.com/arungoks/tankerapp/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting tanker billing server",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("store", cfg.Database.Driver),
		zap.String("version", version),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry providers are no-ops when telemetry is disabled
	tracingCfg, metricsCfg := telemetry.FromConfig(cfg.Telemetry)
	tracerProvider, err := telemetry.NewTracerProvider(ctx, tracingCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, metricsCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	var billingMetrics *telemetry.BillingMetrics
	if meterProvider.IsEnabled() {
		if billingMetrics, err = telemetry.NewBillingMetrics(meterProvider.Meter("tankerapp/billing"), log); err != nil {
			log.Warn("Billing metrics disabled", zap.Error(err))
			billingMetrics = nil
		}
	}

	// Redis backs the cycle-close lock and cross-instance change notifications
	caches := cache.NewFactory(cfg.Redis, cache.WithLogger(log), cache.WithInMemoryFallback(true))
	locker, err := caches.CreateLocker(ctx)
	if err != nil {
		log.Fatal("Failed to create cycle lock", zap.Error(err))
	}

	store, dbMetrics := openStore(ctx, cfg, caches, meterProvider, log)

	// Domain events feed the audit log and the billing counters
	bus := event.NewInMemoryEventBus(log)
	audit := event.NewAuditLogHandler(log)
	bus.Subscribe(audit, audit.EventTypes()...)
	if billingMetrics != nil {
		bus.Subscribe(billingMetrics, billingMetrics.EventTypes()...)
	}
	if err := bus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}

	svc := newBillingService(ctx, cfg, store, locker, bus, billingMetrics, log)

	roster := billing.NewRosterService(store, tanker.RosterLayout{
		Floors:           cfg.Billing.Floors,
		UnitsPerFloor:    cfg.Billing.UnitsPerFloor,
		DefaultOccupancy: cfg.Billing.DefaultOccupancy,
	}, bus, log)
	if cfg.Billing.SeedOnStart {
		n, err := roster.Seed(ctx)
		if err != nil {
			log.Fatal("Failed to seed apartment roster", zap.Error(err))
		}
		log.Info("Apartment roster seeded", zap.Int("added", n))
	}
	if err := svc.Start(ctx); err != nil {
		log.Fatal("Failed to start billing service", zap.Error(err))
	}
	calendar := billing.NewCalendarService(store, svc)

	var trigger *scheduler.CycleCloseTrigger
	if cfg.Scheduler.Enabled {
		trigger, err = scheduler.NewCycleCloseTrigger(scheduler.CycleCloseTriggerConfig{
			Schedule:      cfg.Scheduler.CycleCloseCron,
			CheckInterval: cfg.Scheduler.CheckInterval,
			JobTimeout:    cfg.Scheduler.JobTimeout,
			Location:      cfg.Billing.Location(),
		}, svc, log)
		if err != nil {
			log.Fatal("Invalid cycle close schedule", zap.Error(err))
		}
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start cycle close trigger", zap.Error(err))
		}
	}

	// Setup validation
	middleware.SetupValidator()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware order:
	// request id, recovery and logging first so every later failure is
	// logged with its id, then tracing, metrics and the protective layers.
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: tracingCfg.ServiceName,
		Enabled:     tracerProvider.IsEnabled(),
	}))
	engine.Use(middleware.SpanEnricher())
	engine.Use(middleware.HTTPMetrics(meterProvider))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{middleware.RequestIDHeader, middleware.TraceIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	var rateLimiter *middleware.RateLimiter
	if cfg.HTTP.RateLimit > 0 {
		rateLimiter = middleware.NewRateLimiter(cfg.HTTP.RateLimit, time.Minute)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled", zap.Int("requests_per_minute", cfg.HTTP.RateLimit))
	}
	engine.NoRoute(middleware.NoRoute())

	var routerOpts []router.RouterOption
	if cfg.HTTP.RequestTimeout > 0 {
		routerOpts = append(routerOpts, router.WithMiddleware(middleware.Timeout(cfg.HTTP.RequestTimeout)))
	}

	streams := handler.NewStreamHandler(svc,
		handler.WithSSELogger(log),
		handler.WithSSEHeartbeat(cfg.HTTP.SSEHeartbeat),
		handler.WithSSEMaxClients(cfg.HTTP.SSEMaxClients),
	)
	r := router.NewRouter(engine, routerOpts...)
	r.Register(
		handler.NewSystemHandler(svc, cfg.App.Name, version),
		handler.NewBillingHandler(svc, calendar),
		handler.NewApartmentHandler(calendar, svc, roster),
		handler.NewTankerHandler(calendar, svc),
		streams,
	)
	r.Setup()
	log.Info("Routes registered", zap.Strings("routes", r.Routes()))

	// WriteTimeout stays 0 unless configured: it would cut SSE streams
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Open streams never finish on their own; end them before Shutdown waits
	streams.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if trigger != nil {
		if err := trigger.Stop(shutdownCtx); err != nil {
			log.Warn("Cycle close trigger did not stop cleanly", zap.Error(err))
		}
	}
	if rateLimiter != nil {
		rateLimiter.Stop()
	}
	svc.Close()
	if err := bus.Stop(shutdownCtx); err != nil {
		log.Warn("Event bus did not stop cleanly", zap.Error(err))
	}
	if dbMetrics != nil {
		dbMetrics.Stop()
	}
	if err := store.Close(); err != nil {
		log.Error("Error closing store", zap.Error(err))
	}
	if err := caches.Close(); err != nil {
		log.Warn("Error closing redis client", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Error shutting down metrics", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Error shutting down tracing", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// openStore opens the store selected by the database driver. SQL stores get
// query tracing, query metrics and Redis change notifications when enabled.
func openStore(
	ctx context.Context,
	cfg *config.Config,
	caches *cache.Factory,
	meterProvider *telemetry.MeterProvider,
	log *zap.Logger,
) (tanker.Store, *telemetry.DBMetrics) {
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Database.SlowThreshold))
	opts := persistence.OpenOptions{
		Logger:   log,
		Database: []persistence.DatabaseOption{persistence.WithGormLogger(gormLog)},
	}

	if cfg.Database.Driver != config.DriverMemory {
		notifier, err := caches.CreateChangeNotifier(ctx)
		switch {
		case err != nil:
			log.Warn("Store change notifications disabled", zap.Error(err))
		case notifier != nil:
			opts.Notifier = notifier
		}
	}

	var dbMetrics *telemetry.DBMetrics
	opts.Setup = func(db *gorm.DB) error {
		tracing := telemetry.DefaultDBTracingConfig()
		tracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
		tracing.DBSystem = telemetry.DBSystemFor(cfg.Database.Driver)
		if cfg.Database.SlowThreshold > 0 {
			tracing.SlowQueryThresh = cfg.Database.SlowThreshold
		}
		if err := telemetry.NewDBTracingPlugin(tracing, log).RegisterOtelGorm(db); err != nil {
			return err
		}

		if !meterProvider.IsEnabled() {
			return nil
		}
		m, err := telemetry.NewDBMetrics(meterProvider.Meter("tankerapp/db"), telemetry.DefaultDBMetricsConfig(), log)
		if err != nil {
			return err
		}
		if err := m.RegisterCallbacks(db); err != nil {
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		m.StartPoolStatsCollection(ctx, sqlDB)
		dbMetrics = m
		return nil
	}

	store, err := persistence.Open(ctx, &cfg.Database, opts)
	if err != nil {
		log.Fatal("Failed to open store", zap.Error(err))
	}
	return store, dbMetrics
}

func newBillingService(
	ctx context.Context,
	cfg *config.Config,
	store tanker.Store,
	locker cache.Locker,
	bus *event.InMemoryEventBus,
	metrics *telemetry.BillingMetrics,
	log *zap.Logger,
) *billing.BillingService {
	opts := []billing.ServiceOption{
		billing.WithPublisher(bus),
		billing.WithMetrics(metrics),
		billing.WithLocation(cfg.Billing.Location()),
	}
	if cfg.Archive.Enabled {
		archive, err := storage.NewS3ArchiveStore(ctx, &cfg.Archive, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create cycle archive", zap.Error(err))
		}
		if err := archive.EnsureBucket(ctx); err != nil {
			log.Warn("Cycle archive bucket check failed", zap.String("bucket", archive.Bucket()), zap.Error(err))
		}
		opts = append(opts, billing.WithCycleArchive(archive, export.CSVRenderer{}))
	}

	return billing.NewBillingService(store,
		billing.NewSnapshotAggregator(store, log, billing.WithAggregatorMetrics(metrics)),
		billing.NewMutationGateway(store, bus, metrics, log),
		billing.NewCycleArchiver(store, locker, log),
		log,
		opts...,
	)
}
