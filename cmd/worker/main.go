package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"horamed/internal/config"
	"horamed/internal/domain/reminder"
	"horamed/internal/infra/channel"
	"horamed/internal/infra/dedupe"
	"horamed/internal/infra/mirror"
	"horamed/internal/infra/queue"
	"horamed/internal/infra/store"

	"github.com/hibiken/asynq"
)

// queueEnqueuer adapts the asynq client to the reminder.Enqueuer interface.
// Used by the dose scanner to dispatch delivery tasks.
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

	slog.Info("worker configuration loaded")

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
	doseStore := store.NewDoseStore(sbClient)
	prefStore := store.NewPreferenceStore(sbClient)
	auditLogger := store.NewAuditLogger(sbClient)
	slog.Info("supabase stores initialized")

	// Local durable mirror
	localMirror, err := mirror.NewSQLiteMirror(cfg.Mirror.Path)
	if err != nil {
		slog.Error("failed to initialize local mirror", "error", err, "path", cfg.Mirror.Path)
		os.Exit(1)
	}
	defer localMirror.Close()
	slog.Info("local mirror initialized", "path", cfg.Mirror.Path)

	// Channel adapters, in delivery priority order
	pushProvider := channel.NewPushProvider(cfg.Channels.Push.BaseURL, cfg.Channels.Push.APIKey)
	webPushProvider := channel.NewWebPushProvider(
		prefStore,
		cfg.Channels.WebPush.Subscriber,
		cfg.Channels.WebPush.VAPIDPublicKey,
		cfg.Channels.WebPush.VAPIDPrivateKey,
		cfg.Channels.WebPush.TTLSec,
	)
	whatsAppProvider, err := channel.NewWhatsAppProvider(prefStore, cfg.Channels.WhatsApp.BaseURL, cfg.Channels.WhatsApp.MessageTemplate)
	if err != nil {
		slog.Error("failed to initialize whatsapp provider", "error", err)
		os.Exit(1)
	}

	// Metrics recorder
	recorder := reminder.NewRecorder(metricsStore, cfg.Delivery.MetricsBuffer)
	defer recorder.Close()

	// Fallback orchestrator
	orchestrator := reminder.NewOrchestrator(
		[]reminder.ChannelAdapter{pushProvider, webPushProvider, whatsAppProvider},
		fallbackStore,
		localMirror,
		recorder,
		auditLogger,
		reminder.OrchestratorConfig{
			ChannelTimeout: time.Duration(cfg.Delivery.ChannelTimeoutSec) * time.Second,
		},
	)

	// Reminder delivery worker
	reminderWorker := reminder.NewWorker(orchestrator)

	// Asynq client (for scanner dispatch)
	asynqClient := queue.NewClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	defer asynqClient.Close()

	enqueuer := &queueEnqueuer{
		client:   asynqClient,
		maxRetry: cfg.Queue.MaxRetry,
	}

	// Dispatch marker (scanner dedupe)
	marker := dedupe.NewRedisMarker(
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		time.Duration(cfg.Scanner.MarkerTTLSec)*time.Second,
	)
	defer marker.Close()

	// ==========================================
	// Startup Sync (runs exactly once)
	// ==========================================

	syncer := reminder.NewSyncer(fallbackStore, metricsStore, localMirror, orchestrator, reminder.SyncConfig{
		Retention:            time.Duration(cfg.Sync.RetentionDays) * 24 * time.Hour,
		ResubmitWindow:       time.Duration(cfg.Sync.ResubmitWindowSec) * time.Second,
		MirrorPruneThreshold: cfg.Mirror.PruneThreshold,
		MirrorKeep:           cfg.Mirror.Keep,
		BatchSize:            cfg.Sync.BatchSize,
	})

	syncCtx, syncCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	syncer.Run(syncCtx)
	syncCancel()

	// ==========================================
	// Asynq Server (task processing)
	// ==========================================

	asynqServer := queue.NewServer(
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Queue.Concurrency,
	)

	// Register task handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(reminder.TaskTypeDeliverReminder, func(ctx context.Context, task *asynq.Task) error {
		payload, err := reminder.ParseDeliverReminderPayload(task.Payload())
		if err != nil {
			return err
		}
		return reminderWorker.ProcessTask(ctx, payload)
	})

	// Start the asynq worker in a goroutine
	go func() {
		slog.Info("worker starting",
			"concurrency", cfg.Queue.Concurrency,
			"redis", cfg.Redis.Address,
		)
		if err := asynqServer.Run(mux); err != nil {
			slog.Error("worker failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// ==========================================
	// Dose Scanner + Retry Sweeper
	// ==========================================

	loopCtx, loopCancel := context.WithCancel(context.Background())
	defer loopCancel()

	scanner := reminder.NewScanner(doseStore, marker, enqueuer, reminder.ScannerConfig{
		Interval:  time.Duration(cfg.Scanner.IntervalSec) * time.Second,
		Lookahead: time.Duration(cfg.Scanner.LookaheadSec) * time.Second,
		BatchSize: cfg.Scanner.BatchSize,
	})
	go scanner.Run(loopCtx)

	sweeper := reminder.NewSweeper(fallbackStore, orchestrator, reminder.SweeperConfig{
		Interval:   time.Duration(cfg.Sweeper.IntervalSec) * time.Second,
		MaxRetries: cfg.Sweeper.MaxRetries,
		BatchSize:  cfg.Sweeper.BatchSize,
	})
	go sweeper.Run(loopCtx)

	// ==========================================
	// Graceful Shutdown
	// ==========================================

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	loopCancel() // Stop the scanner and sweeper first
	asynqServer.Shutdown()
	slog.Info("worker exited gracefully")
}
