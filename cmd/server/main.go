package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	accountingapp "github.com/fleetrent/backend/internal/application/accounting"
	billingapp "github.com/fleetrent/backend/internal/application/billing"
	fleetapp "github.com/fleetrent/backend/internal/application/fleet"
	reconciliationapp "github.com/fleetrent/backend/internal/application/reconciliation"
	rentalapp "github.com/fleetrent/backend/internal/application/rental"
	"github.com/fleetrent/backend/internal/domain/ledger"
	"github.com/fleetrent/backend/internal/domain/shared"
	"github.com/fleetrent/backend/internal/infrastructure/cache"
	"github.com/fleetrent/backend/internal/infrastructure/config"
	"github.com/fleetrent/backend/internal/infrastructure/logger"
	"github.com/fleetrent/backend/internal/infrastructure/persistence"
	"github.com/fleetrent/backend/internal/infrastructure/scheduler"
	"github.com/fleetrent/backend/internal/infrastructure/telemetry"
	"github.com/fleetrent/backend/internal/interfaces/http/handler"
	"github.com/fleetrent/backend/internal/interfaces/http/middleware"
	"github.com/fleetrent/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Fleet Rental Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize tracing
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Initialize metrics
	meterProvider, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Initialize continuous profiling
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
		ProfileCPU:        true,
		ProfileAllocSpace: true,
		ProfileInuseSpace: true,
		ProfileGoroutines: true,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Query tracing (otelgorm) on the shared connection
	if cfg.Telemetry.DBTraceEnabled {
		dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		}, log)
		if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
			log.Fatal("Failed to register database tracing", zap.Error(err))
		}
	}

	// Connection pool and query duration metrics
	if meterProvider.IsEnabled() {
		dbMetrics, err := telemetry.NewDBMetrics(meterProvider.Meter("db"), telemetry.DefaultDBMetricsConfig(), log)
		if err != nil {
			log.Fatal("Failed to initialize database metrics", zap.Error(err))
		}
		if sqlDB, err := db.DB.DB(); err == nil {
			dbMetrics.SetSQLDB(sqlDB)
		}
		if err := db.DB.Use(telemetry.NewDBMetricsPlugin(dbMetrics, log)); err != nil {
			log.Fatal("Failed to register database metrics plugin", zap.Error(err))
		}
		dbMetrics.StartPoolStatsCollection(context.Background())
		defer dbMetrics.Stop()
	}

	// Business metrics (posting counters, conflict counters, fleet gauges)
	var businessMetrics *telemetry.BusinessMetrics
	if meterProvider.IsEnabled() {
		businessMetrics, err = telemetry.NewBusinessMetrics(telemetry.BusinessMetricsConfig{
			Meter:         meterProvider.Meter("business"),
			Logger:        log,
			FleetProvider: telemetry.NewGormFleetMetricsProvider(db.DB),
		})
		if err != nil {
			log.Fatal("Failed to initialize business metrics", zap.Error(err))
		}
		businessMetrics.StartPeriodicCollection(context.Background(), 5*time.Minute)
		defer businessMetrics.Stop()
	}

	// Initialize repositories
	accountRepo := persistence.NewGormAccountRepository(db.DB)
	entryRepo := persistence.NewGormEntryRepository(db.DB)
	vehicleRepo := persistence.NewGormVehicleRepository(db.DB)
	rentalRepo := persistence.NewGormRentalRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)
	reconciliationRunRepo := persistence.NewGormReconciliationRunRepository(db.DB)

	// Posting policy: the fixed event-to-accounts mapping every ledger
	// write goes through
	postingPolicy := ledger.NewPostingPolicy()

	// Transaction scope: one business operation is one unit of work sharing
	// a database transaction and its advisory locks
	txScope := persistence.NewGormTransactionScope(db.DB, cfg.Locking.AcquireTimeout)

	// Initialize application services
	poster := accountingapp.NewPoster(accountRepo, entryRepo, postingPolicy, log,
		accountingapp.WithBusinessMetrics(businessMetrics))
	accountService := accountingapp.NewAccountService(accountRepo, entryRepo, log)
	journalService := accountingapp.NewJournalService(entryRepo, poster, log)
	vehicleService := fleetapp.NewVehicleService(vehicleRepo, log,
		fleetapp.WithBusinessMetrics(businessMetrics))
	rentalService := rentalapp.NewService(txScope, poster, rentalRepo, vehicleRepo, invoiceRepo, log,
		rentalapp.WithBusinessMetrics(businessMetrics))
	paymentService := billingapp.NewPaymentService(txScope, poster, invoiceRepo, log,
		billingapp.WithBusinessMetrics(businessMetrics))
	reconciliationEngine := reconciliationapp.NewEngine(
		rentalRepo, invoiceRepo, accountRepo, entryRepo, postingPolicy, log,
		reconciliationapp.WithRunAudit(reconciliationRunRepo),
		reconciliationapp.WithBusinessMetrics(businessMetrics),
		reconciliationapp.WithPageSize(cfg.Reconciliation.PageSize),
	)

	// Shared redis client for the request cache and the scheduler's
	// single-runner election. Optional: without it the request cache falls
	// back per config and the scheduler runs without election.
	var redisClient *redis.Client
	var distLocker *redislock.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + strconv.Itoa(cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Warn("Redis unreachable, continuing without it", zap.Error(err))
			_ = redisClient.Close()
			redisClient = nil
		} else {
			distLocker = redislock.New(redisClient)
		}
		cancel()
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing redis client", zap.Error(err))
			}
		}
	}()

	// Idempotent request cache backend
	var requestCache shared.RequestCache
	switch cfg.Idempotency.Backend {
	case "redis":
		if redisClient != nil {
			requestCache = cache.NewRedisRequestCacheWithClient(redisClient, "", cfg.Idempotency.TTL)
		} else {
			log.Warn("Redis request cache configured but redis is unavailable, using in-memory cache")
			requestCache = cache.NewInMemoryRequestCache(cfg.Idempotency.TTL)
		}
	case "memory":
		requestCache = cache.NewInMemoryRequestCache(cfg.Idempotency.TTL)
	default:
		requestCache = persistence.NewGormRequestCache(db.DB, cfg.Idempotency.TTL)
	}

	// Scheduled reconciliation audit
	if cfg.Reconciliation.Enabled {
		reconciliationScheduler := scheduler.NewReconciliationScheduler(
			reconciliationEngine, distLocker, log,
			scheduler.ReconciliationSchedulerConfig{
				Enabled:    true,
				Interval:   cfg.Reconciliation.Interval,
				LockTTL:    cfg.Reconciliation.LockTTL,
				RunTimeout: cfg.Reconciliation.LockTTL,
			},
		)
		if err := reconciliationScheduler.Start(context.Background()); err != nil {
			log.Fatal("Failed to start reconciliation scheduler", zap.Error(err))
		}
		defer func() {
			if err := reconciliationScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping reconciliation scheduler", zap.Error(err))
			}
		}()
		log.Info("Reconciliation scheduler started",
			zap.Duration("interval", cfg.Reconciliation.Interval),
			zap.Bool("distributed_lock", distLocker != nil),
		)
	}

	// Expired idempotency records accumulate only in the database backend;
	// redis expires keys natively and the in-memory cache sweeps itself.
	if cfg.Idempotency.Enabled && cfg.Idempotency.Backend == "database" {
		janitor := scheduler.NewRequestCacheJanitor(requestCache, log,
			scheduler.RequestCacheJanitorConfig{
				Enabled:      true,
				Interval:     cfg.Idempotency.JanitorInterval,
				SweepTimeout: time.Minute,
			},
		)
		if err := janitor.Start(context.Background()); err != nil {
			log.Fatal("Failed to start request cache janitor", zap.Error(err))
		}
		defer func() {
			if err := janitor.Stop(context.Background()); err != nil {
				log.Error("Error stopping request cache janitor", zap.Error(err))
			}
		}()
	}

	// Initialize HTTP handlers
	accountHandler := handler.NewAccountHandler(accountService)
	journalHandler := handler.NewJournalHandler(journalService)
	vehicleHandler := handler.NewVehicleHandler(vehicleService)
	rentalHandler := handler.NewRentalHandler(rentalService)
	invoiceHandler := handler.NewInvoiceHandler(paymentService)
	reconciliationHandler := handler.NewReconciliationHandler(reconciliationEngine)
	systemHandler := handler.NewSystemHandler()

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Tracing - otelgin spans (if enabled)
	// 5. Metrics - HTTP request metrics (if enabled)
	// 6. Profiling - Pyroscope labels (if enabled)
	// 7. Security - Add security headers
	// 8. CORS - Handle cross-origin requests
	// 9. BodyLimit - Limit request body size
	// 10. RateLimit - Apply rate limiting (if enabled)
	// 11. Idempotency - At-most-once mutation guard (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	if cfg.Telemetry.Enabled {
		engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     true,
		}))
		engine.Use(middleware.SpanErrorMarker())
	}
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		ServiceName:   cfg.Telemetry.ServiceName,
		Enabled:       cfg.Telemetry.Enabled,
	}))
	if cfg.Profiling.Enabled {
		engine.Use(middleware.Profiling())
	}
	engine.Use(middleware.Secure())

	// Configure CORS from config
	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Body size limit
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Rate limiting (if enabled)
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Request-level idempotency (if enabled). Reads and keyless requests
	// pass through, so this applies engine-wide.
	if cfg.Idempotency.Enabled {
		engine.Use(middleware.Idempotency(middleware.IdempotencyOptions{
			Cache:   requestCache,
			Logger:  log,
			Metrics: businessMetrics,
		}))
		log.Info("Request idempotency enabled",
			zap.String("backend", cfg.Idempotency.Backend),
			zap.Duration("ttl", cfg.Idempotency.TTL),
		)
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, redisClient))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	// Ledger domain (chart of accounts, journal entries, trial balance)
	ledgerRoutes := router.NewDomainGroup("ledger", "")
	ledgerRoutes.POST("/accounts", accountHandler.Create)
	ledgerRoutes.GET("/accounts", accountHandler.List)
	ledgerRoutes.GET("/accounts/:code", accountHandler.GetByCode)
	ledgerRoutes.PUT("/accounts/:code/name", accountHandler.Rename)
	ledgerRoutes.POST("/accounts/:code/deactivate", accountHandler.Deactivate)
	ledgerRoutes.POST("/accounts/:code/activate", accountHandler.Activate)
	ledgerRoutes.DELETE("/accounts/:code", accountHandler.Delete)
	ledgerRoutes.GET("/accounts/:code/balance", accountHandler.GetBalance)
	ledgerRoutes.GET("/ledger/entries", journalHandler.List)
	ledgerRoutes.GET("/ledger/entries/:id", journalHandler.GetByID)
	ledgerRoutes.GET("/ledger/entries/reference/:reference", journalHandler.GetByReference)
	ledgerRoutes.POST("/ledger/reversals", journalHandler.Reverse)
	ledgerRoutes.GET("/ledger/trial-balance", accountHandler.TrialBalance)

	// Fleet domain (vehicle registry and lifecycle)
	fleetRoutes := router.NewDomainGroup("fleet", "")
	fleetRoutes.POST("/vehicles", vehicleHandler.Register)
	fleetRoutes.GET("/vehicles", vehicleHandler.List)
	fleetRoutes.GET("/vehicles/:id", vehicleHandler.GetByID)
	fleetRoutes.GET("/vehicles/plate/:plate_number", vehicleHandler.GetByPlate)
	fleetRoutes.PUT("/vehicles/:id/daily-rate", vehicleHandler.ChangeDailyRate)
	fleetRoutes.POST("/vehicles/:id/maintenance", vehicleHandler.SendToMaintenance)
	fleetRoutes.POST("/vehicles/:id/return-from-maintenance", vehicleHandler.ReturnFromMaintenance)
	fleetRoutes.POST("/vehicles/:id/retire", vehicleHandler.Retire)

	// Rental domain (reservation lifecycle)
	rentalRoutes := router.NewDomainGroup("rental", "")
	rentalRoutes.POST("/rentals", rentalHandler.Reserve)
	rentalRoutes.GET("/rentals", rentalHandler.List)
	rentalRoutes.GET("/rentals/:id", rentalHandler.GetByID)
	rentalRoutes.GET("/rentals/number/:rental_number", rentalHandler.GetByNumber)
	rentalRoutes.POST("/rentals/:id/activate", rentalHandler.Activate)
	rentalRoutes.POST("/rentals/:id/complete", rentalHandler.Complete)
	rentalRoutes.POST("/rentals/:id/cancel", rentalHandler.Cancel)

	// Billing domain (invoices, payments)
	billingRoutes := router.NewDomainGroup("billing", "")
	billingRoutes.GET("/invoices", invoiceHandler.List)
	billingRoutes.GET("/invoices/:id", invoiceHandler.GetByID)
	billingRoutes.GET("/invoices/number/:invoice_number", invoiceHandler.GetByNumber)
	billingRoutes.POST("/invoices/:id/payments", invoiceHandler.CapturePayment)
	billingRoutes.POST("/invoices/:id/void", invoiceHandler.Void)

	// Reconciliation domain (audit runs, equation check)
	reconciliationRoutes := router.NewDomainGroup("reconciliation", "/reconciliation")
	reconciliationRoutes.POST("/runs", reconciliationHandler.Run)
	reconciliationRoutes.GET("/runs", reconciliationHandler.History)
	reconciliationRoutes.GET("/operational-vs-ledger", reconciliationHandler.VerifyOperational)
	reconciliationRoutes.GET("/equation", reconciliationHandler.VerifyEquation)

	// System routes (public health/info endpoints)
	systemRoutes := router.NewDomainGroup("system", "/system")
	systemRoutes.GET("/info", systemHandler.GetSystemInfo)
	systemRoutes.GET("/ping", systemHandler.Ping)

	r.Register(ledgerRoutes).
		Register(fleetRoutes).
		Register(rentalRoutes).
		Register(billingRoutes).
		Register(reconciliationRoutes).
		Register(systemRoutes)

	// Setup routes
	r.Setup()

	// Also keep a simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints. Redis is
// optional infrastructure, so its state is reported but never fails the check.
func healthHandler(db *persistence.Database, redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}

		redisStatus := "disabled"
		if redisClient != nil {
			redisStatus = "ok"
			if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
				redisStatus = "error"
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
			"redis":    redisStatus,
		})
	}
}
