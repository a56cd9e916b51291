package reminder

import (
	"context"
	"log/slog"
	"time"
)

// Redeliverer re-attempts delivery of a persisted fallback entry through the
// live channels only. Implemented by Orchestrator.AttemptLive.
type Redeliverer interface {
	AttemptLive(ctx context.Context, req *ReminderRequest) bool
}

// SweeperConfig holds configuration for the retry sweeper.
type SweeperConfig struct {
	// Interval is how often the sweeper scans for retryable entries.
	Interval time.Duration

	// MaxRetries bounds how many times one entry is re-attempted before it
	// is left failed permanently.
	MaxRetries int

	// BatchSize is the maximum number of entries re-attempted per cycle.
	BatchSize int
}

// Sweeper periodically re-attempts fallback entries whose live delivery
// failed. The durable store is the source of truth: an entry keeps being
// retried until a live channel succeeds or RetryCount reaches the maximum,
// after which it stays failed for audit and is only removed by retention
// pruning.
//
// Entries are claimed with a conditional status update before sending so two
// concurrent sessions sweeping the same store cannot both deliver the same
// reminder.
type Sweeper struct {
	store    FallbackStore
	delivery Redeliverer
	config   SweeperConfig
}

// NewSweeper creates a retry sweeper.
func NewSweeper(store FallbackStore, delivery Redeliverer, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Sweeper{
		store:    store,
		delivery: delivery,
		config:   cfg,
	}
}

// Run starts the sweeper loop: one pass immediately, then one per interval.
// It blocks until the context is cancelled. Should be called in a goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	slog.Info("retry sweeper started",
		"interval", s.config.Interval,
		"max_retries", s.config.MaxRetries,
		"batch_size", s.config.BatchSize,
	)

	s.Sweep(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retry sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one cycle: find retryable entries and re-attempt each
// through the live channels. Reminders whose moment has already passed are
// not retried; staleness beyond the scheduled time is unrecoverable.
func (s *Sweeper) Sweep(ctx context.Context) {
	entries, err := s.store.ListRetryable(ctx, time.Now().UTC(), s.config.MaxRetries, s.config.BatchSize)
	if err != nil {
		slog.Error("sweeper: failed to list retryable entries", "error", err)
		return
	}

	if len(entries) == 0 {
		return
	}

	slog.Info("sweeper: retrying fallback entries", "count", len(entries))

	recovered := 0
	for _, entry := range entries {
		if s.retry(ctx, entry) {
			recovered++
		}
	}

	slog.Info("sweeper: cycle complete", "recovered", recovered, "total", len(entries))
}

// retry re-attempts one entry. Returns true when a live channel delivered it.
func (s *Sweeper) retry(ctx context.Context, entry *FallbackEntry) bool {
	claimed, err := s.store.Claim(ctx, entry.ID, entry.Status)
	if err != nil {
		slog.Error("sweeper: claim failed", "entry_id", entry.ID, "error", err)
		return false
	}
	if !claimed {
		// Another session got there first.
		return false
	}

	if s.delivery.AttemptLive(ctx, entry.Request()) {
		if err := s.store.MarkSent(ctx, entry.ID); err != nil {
			slog.Error("sweeper: failed to mark entry sent", "entry_id", entry.ID, "error", err)
		}
		slog.Info("sweeper: entry delivered",
			"entry_id", entry.ID,
			"dose_id", entry.DoseID,
			"retry_count", entry.RetryCount,
		)
		return true
	}

	retryCount := entry.RetryCount + 1
	if err := s.store.MarkRetryFailed(ctx, entry.ID, retryCount, time.Now().UTC()); err != nil {
		slog.Error("sweeper: failed to record retry", "entry_id", entry.ID, "error", err)
		return false
	}

	if retryCount >= s.config.MaxRetries {
		slog.Warn("sweeper: entry exhausted retries",
			"entry_id", entry.ID,
			"dose_id", entry.DoseID,
			"retry_count", retryCount,
		)
	}
	return false
}
