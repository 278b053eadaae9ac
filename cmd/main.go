package main

import (
	"context"
	"strconv"
	"time"

	"contract-service/internal/engine"
	"contract-service/internal/handler"
	"contract-service/internal/middleware"
	"contract-service/internal/scheduler"
	"contract-service/pkg/config"
	"contract-service/pkg/database"
	"contract-service/pkg/jwtutil"
	"contract-service/pkg/logger"
	"contract-service/pkg/notifier"
	"contract-service/pkg/smsgateway"
	"contract-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting contract service...", zap.String("environment", cfg.Server.Env))

	// Initialize JWT utilities
	jwtutil.Initialize(&cfg.JWT)
	log.Info("JWT utilities initialized")

	// Initialize Prometheus metrics
	prometheus.InitMetrics(cfg)
	log.Info("Prometheus metrics initialized")

	// Initialize database and run migrations
	if err := database.Initialize(database.DBConfig{
		DSN:             cfg.DB.GetDSN(),
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		LogLevel:        cfg.DB.LogLevel,
	}); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established and migrations completed",
		zap.String("db_host", cfg.DB.Host),
		zap.String("db_name", cfg.DB.DBName))

	// Wire the engine with its collaborators. The log-backed notifier and
	// SMS gateway are swapped for real transports in production deployments.
	notify := notifier.NewLogNotifier(log)
	sms := smsgateway.NewLogGateway(log)
	eng := engine.New(database.GetDB(), notify, sms, engine.Options{
		CodeTTL:             cfg.Signing.CodeTTL,
		SessionTTL:          cfg.Signing.SessionTTL,
		MaxCodeSendsPerHour: cfg.Signing.MaxCodeSendsPerHour,
		MaxVerifyAttempts:   cfg.Signing.MaxVerifyAttempts,
	}, log)
	handler.Init(eng)

	// Start the daily sweeps
	if cfg.Scheduler.Enabled {
		sched := scheduler.New(database.GetDB(), eng, notify, log, scheduler.Config{
			ExpirySweepAt:     cfg.Scheduler.ExpirySweepAt,
			ReminderSweepAt:   cfg.Scheduler.ReminderSweepAt,
			ReminderGraceDays: cfg.Scheduler.ReminderGraceDays,
		})
		sched.Start(context.Background())
		log.Info("Scheduler started",
			zap.String("expiry_sweep_at", cfg.Scheduler.ExpirySweepAt),
			zap.String("reminder_sweep_at", cfg.Scheduler.ReminderSweepAt))
	}

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)

	// Request logging middleware
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			// Process request
			err := next(c)

			// Calculate duration
			duration := time.Since(start).Seconds()
			status := c.Response().Status

			// Log request details
			log := logger.FromContext(c)
			log.Info("HTTP Request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", status),
				zap.Float64("duration_s", duration),
				zap.String("ip", c.RealIP()),
			)

			prometheus.HttpRequestsTotal.WithLabelValues(
				c.Request().Method,
				c.Request().URL.Path,
				strconv.Itoa(status),
			).Inc()

			prometheus.HttpRequestDuration.WithLabelValues(
				c.Request().Method,
				c.Request().URL.Path,
				strconv.Itoa(status),
			).Observe(duration)

			return err
		}
	})

	// Routes
	// Public routes that don't require authentication
	e.GET("/", handler.Hello)
	e.GET("/health", handler.Hello)

	// Prometheus metrics endpoint
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Party-facing signing endpoints: parties are identified by the signing
	// session itself, not by a company JWT
	sign := e.Group("/sign/contracts/:id/parties/:partyID")
	sign.POST("/request-code", handler.RequestCode)
	sign.POST("/verify", handler.VerifyCode)
	sign.POST("/handwritten", handler.RecordHandwritten)
	sign.POST("/digital", handler.RecordDigital)

	// API routes that require authentication
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware)

	// Contract endpoints with company context requirement
	contracts := api.Group("/contracts")
	contracts.Use(middleware.RequireCompanyContext)

	contracts.POST("", handler.CreateContract)
	contracts.GET("", handler.ListContracts)
	contracts.GET("/:id", handler.GetContract)
	contracts.PUT("/:id", handler.UpdateContract)
	contracts.DELETE("/:id", handler.DeleteContract)
	contracts.POST("/:id/parties", handler.AddParty)
	contracts.POST("/:id/send", handler.SendContract)
	contracts.POST("/:id/terminate", handler.TerminateContract)
	contracts.POST("/:id/cancel", handler.CancelContract)
	contracts.POST("/:id/approvals", handler.DefineApprovals)
	contracts.GET("/:id/history", handler.GetContractHistory)

	approvals := api.Group("/approvals")
	approvals.Use(middleware.RequireCompanyContext)
	approvals.POST("/:id/approve", handler.ApproveStep)
	approvals.POST("/:id/reject", handler.RejectStep)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
