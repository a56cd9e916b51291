package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"horamed/internal/config"
	"horamed/internal/domain/reminder"
	"horamed/internal/infra/queue"
	"horamed/internal/infra/ratelimit"
	"horamed/internal/infra/store"
	"horamed/internal/router"

	"github.com/hibiken/asynq"
)

// queueEnqueuer adapts the asynq client to the reminder.Enqueuer interface.
type queueEnqueuer struct {
	client   *asynq.Client
	maxRetry int
}

func (q *queueEnqueuer) EnqueueDeliverReminder(req *reminder.ReminderRequest) error {
	return queue.EnqueueDeliverReminder(q.client, req, q.maxRetry)
}

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded", "port", cfg.Server.Port, "mode", cfg.Server.Mode)

	// ==========================================
	// Dependency Injection (Manual Wiring)
	// ==========================================

	// Supabase stores
	sbClient, err := store.NewClient(cfg.Supabase.URL, cfg.Supabase.ServiceKey)
	if err != nil {
		slog.Error("failed to initialize supabase client", "error", err)
		os.Exit(1)
	}
	fallbackStore := store.NewFallbackStore(sbClient)
	metricsStore := store.NewMetricsStore(sbClient)
	auditLogger := store.NewAuditLogger(sbClient)
	slog.Info("supabase stores initialized")

	// Metrics recorder (webhook receipts write through it)
	recorder := reminder.NewRecorder(metricsStore, cfg.Delivery.MetricsBuffer)
	defer recorder.Close()

	// Asynq client (for enqueuing delivery tasks)
	asynqClient := queue.NewClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	defer asynqClient.Close()
	slog.Info("asynq client initialized", "redis", cfg.Redis.Address)

	// Per-user rate limiter
	userLimiter := ratelimit.NewRedisUserLimiter(
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.UserRateLimit.MaxPerHour,
	)
	defer userLimiter.Close()
	slog.Info("user rate limiter initialized", "max_per_hour", cfg.UserRateLimit.MaxPerHour)

	// Enqueuer adapter
	enqueuer := &queueEnqueuer{
		client:   asynqClient,
		maxRetry: cfg.Queue.MaxRetry,
	}

	// Service
	reminderService := reminder.NewService(fallbackStore, metricsStore, recorder, enqueuer, userLimiter, auditLogger)

	// Handler
	reminderHandler := reminder.NewHandler(reminderService)

	// Router
	r := router.New(cfg, reminderHandler)

	// ==========================================
	// HTTP Server with Graceful Shutdown
	// ==========================================

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}
