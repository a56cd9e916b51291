package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DispatchMarker remembers which dose occurrences were already handed to the
// delivery queue, so the scanner does not re-dispatch the same occurrence on
// every poll. Implementations live in infra/dedupe/ (Redis).
type DispatchMarker interface {
	// MarkDispatched records the occurrence and reports whether this caller
	// was the first to do so.
	MarkDispatched(ctx context.Context, doseID string, scheduledAt time.Time) (bool, error)
}

// ScannerConfig holds configuration for the dose scanner.
type ScannerConfig struct {
	// Interval is how often the scanner polls the dose source.
	Interval time.Duration

	// Lookahead is how far ahead of now a dose counts as due soon.
	Lookahead time.Duration

	// BatchSize caps how many dose instances one poll dispatches.
	BatchSize int
}

// Scanner polls the dose source for instances due soon and enqueues a
// delivery task for each occurrence not yet dispatched.
type Scanner struct {
	doses    DoseStore
	marker   DispatchMarker
	enqueuer Enqueuer
	config   ScannerConfig
}

// NewScanner creates a dose scanner.
func NewScanner(doses DoseStore, marker DispatchMarker, enqueuer Enqueuer, cfg ScannerConfig) *Scanner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 15 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &Scanner{
		doses:    doses,
		marker:   marker,
		enqueuer: enqueuer,
		config:   cfg,
	}
}

// Run starts the polling loop. It blocks until the context is cancelled.
// Should be called in a goroutine.
func (s *Scanner) Run(ctx context.Context) {
	slog.Info("dose scanner started",
		"interval", s.config.Interval,
		"lookahead", s.config.Lookahead,
	)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("dose scanner stopped")
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

// scan performs one poll: list due doses and dispatch the new ones.
func (s *Scanner) scan(ctx context.Context) {
	now := time.Now().UTC()
	doses, err := s.doses.ListDue(ctx, now, now.Add(s.config.Lookahead), s.config.BatchSize)
	if err != nil {
		slog.Error("scanner: failed to list due doses", "error", err)
		return
	}
	if len(doses) == 0 {
		return
	}

	dispatched := 0
	for _, dose := range doses {
		first, err := s.marker.MarkDispatched(ctx, dose.ID, dose.DueAt)
		if err != nil {
			slog.Error("scanner: dispatch marker failed", "dose_id", dose.ID, "error", err)
			continue
		}
		if !first {
			continue
		}

		req := requestForDose(dose)
		if err := s.enqueuer.EnqueueDeliverReminder(req); err != nil {
			slog.Error("scanner: enqueue failed", "dose_id", dose.ID, "error", err)
			continue
		}
		dispatched++
	}

	if dispatched > 0 {
		slog.Info("scanner: reminders dispatched", "count", dispatched, "due", len(doses))
	}
}

// requestForDose builds the notification intent for a dose instance.
func requestForDose(dose *DoseInstance) *ReminderRequest {
	body := "It's time to take your medication."
	if dose.Dosage != "" {
		body = fmt.Sprintf("Take %s of %s.", dose.Dosage, dose.ItemName)
	}
	return &ReminderRequest{
		DoseID:      dose.ID,
		ItemID:      dose.ItemID,
		UserID:      dose.UserID,
		Title:       fmt.Sprintf("Medication reminder: %s", dose.ItemName),
		Body:        body,
		ScheduledAt: dose.DueAt,
	}
}
