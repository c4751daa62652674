package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	appcommission "github.com/erp/salesync/internal/application/commission"
	appreplication "github.com/erp/salesync/internal/application/replication"
	"github.com/erp/salesync/internal/infrastructure/config"
	"github.com/erp/salesync/internal/infrastructure/event"
	"github.com/erp/salesync/internal/infrastructure/gateway"
	"github.com/erp/salesync/internal/infrastructure/lock"
	"github.com/erp/salesync/internal/infrastructure/logger"
	"github.com/erp/salesync/internal/infrastructure/persistence"
	"github.com/erp/salesync/internal/infrastructure/scheduler"
	"github.com/erp/salesync/internal/infrastructure/telemetry"
	"github.com/erp/salesync/internal/interfaces/http/handler"
	"github.com/erp/salesync/internal/interfaces/http/middleware"
	"github.com/erp/salesync/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting salesync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("version", version),
		zap.String("port", cfg.App.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SampleRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Database
	db, err := persistence.NewDatabase(&cfg.Database,
		persistence.WithGormLogger(logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))),
		persistence.WithTracing(tp.IsEnabled()),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Database.Driver == config.DriverSQLite {
		if err := persistence.AutoMigrate(db.DB); err != nil {
			log.Fatal("Failed to create sqlite schema", zap.Error(err))
		}
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatal("Failed to get underlying sql.DB", zap.Error(err))
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	metrics := telemetry.NewReplicationMetrics(
		telemetry.WithRuntimeMetrics(),
		telemetry.WithDBStats(sqlDB, cfg.Database.DBName),
	)

	// Repositories
	identities := persistence.NewGormIdentityMap(db.DB)
	records := persistence.NewGormRecordStore(db.DB)
	params := persistence.NewGormConfigParameters(db.DB)

	// Replication
	locker, closeLocker, err := lock.New(ctx, cfg.Sync, cfg.Redis,
		lock.WithLogger(log),
		lock.WithInMemoryFallback(!cfg.IsProduction()),
	)
	if err != nil {
		log.Fatal("Failed to initialize entity locks", zap.Error(err))
	}
	defer func() {
		if err := closeLocker(); err != nil {
			log.Error("Error closing lock backend", zap.Error(err))
		}
	}()

	dialer := gateway.NewDialer(
		gateway.WithTimeout(cfg.Sync.RPCTimeout),
		gateway.WithRateLimit(cfg.Sync.RatePerSecond, cfg.Sync.Burst),
		gateway.WithObserver(metrics),
		gateway.WithLogger(log),
	)
	engine := appreplication.NewEngine(params, dialer, identities, records, locker,
		appreplication.WithLogger(log),
		appreplication.WithMetrics(metrics),
		appreplication.WithTracer(tp.Tracer("salesync/replication")),
		appreplication.WithRetryPolicy(appreplication.RetryPolicy{
			InitialInterval: cfg.Sync.RetryInitialInterval,
			MaxElapsedTime:  cfg.Sync.RetryMaxElapsed,
			MaxRetries:      cfg.Sync.RetryMaxAttempts,
		}),
	)
	settings := appreplication.NewSettingsService(params, log)

	// Commission
	eventBus := event.NewInMemoryEventBus(log)
	commissions := appcommission.NewService(appcommission.Dependencies{
		Records:   persistence.NewGormCommissionRecordRepository(db.DB),
		Rules:     persistence.NewGormCommissionRuleRepository(db.DB),
		Years:     persistence.NewGormFiscalYearRepository(db.DB),
		Ledger:    persistence.NewGormActivityLedger(db.DB),
		Payouts:   persistence.NewGormPayoutIssuer(db.DB),
		Items:     persistence.NewGormServiceItemCatalog(db.DB),
		Partners:  persistence.NewGormPartnerDirectory(db.DB),
		Publisher: eventBus,
	}, cfg.Commission.PayoutProductName, log)
	eventBus.Subscribe(appcommission.NewActivityHandler(commissions, log))
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		_ = eventBus.Stop(context.Background())
	}()

	var recompute *scheduler.RecomputeScheduler
	if cfg.Commission.RecomputeInterval > 0 {
		recompute = scheduler.NewRecomputeScheduler(cfg.Commission.RecomputeInterval, commissions, log,
			scheduler.WithLocker(locker),
		)
		if err := recompute.Start(ctx); err != nil {
			log.Fatal("Failed to start recompute scheduler", zap.Error(err))
		}
	}

	// HTTP
	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimit, int(cfg.HTTP.RateLimit)+1)
	}
	tracingCfg := middleware.DefaultTracingConfig()
	tracingCfg.ServiceName = cfg.Telemetry.ServiceName
	tracingCfg.Enabled = tp.IsEnabled()

	health := handler.NewHealthHandler(map[string]handler.Pinger{"database": sqlDB})

	ginEngine := router.NewEngine(router.MiddlewareConfig{
		Logger:      log,
		Tracing:     tracingCfg,
		RateLimiter: limiter,
	})
	router.NewRouter(ginEngine,
		router.WithHealth(health),
		router.WithMetrics(metrics.Handler()),
	).
		Register(handler.NewReplicationHandler(engine, records, identities)).
		Register(handler.NewSettingsHandler(settings)).
		Register(handler.NewCommissionHandler(commissions)).
		Setup()

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      ginEngine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if recompute != nil {
		if err := recompute.Stop(shutdownCtx); err != nil {
			log.Error("Recompute scheduler did not stop cleanly", zap.Error(err))
		}
	}

	log.Info("Server exited gracefully")
}
