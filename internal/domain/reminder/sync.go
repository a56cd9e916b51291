package reminder

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SyncConfig holds configuration for the startup sync pass.
type SyncConfig struct {
	// Retention is how long sent entries and metrics rows are kept.
	Retention time.Duration

	// ResubmitWindow bounds how far into the future pending entries are
	// re-submitted on startup.
	ResubmitWindow time.Duration

	// MirrorPruneThreshold triggers a mirror prune once exceeded.
	MirrorPruneThreshold int

	// MirrorKeep is how many newest mirror rows survive a prune.
	MirrorKeep int

	// BatchSize caps how many pending entries one sync pass re-submits.
	BatchSize int
}

// Syncer runs the once-per-process startup reconciliation: prune the local
// mirror, expire old sent entries and metrics rows, and re-submit pending
// fallback entries due within the resubmit window.
//
// Run is guarded by sync.Once and invoked explicitly from the process entry
// point, so repeated callers cannot re-trigger the pass.
type Syncer struct {
	store    FallbackStore
	metrics  MetricsStore
	mirror   Mirror
	delivery Redeliverer
	config   SyncConfig
	once     sync.Once
}

// NewSyncer creates a startup syncer.
func NewSyncer(store FallbackStore, metrics MetricsStore, mirror Mirror, delivery Redeliverer, cfg SyncConfig) *Syncer {
	if cfg.Retention <= 0 {
		cfg.Retention = 7 * 24 * time.Hour
	}
	if cfg.ResubmitWindow <= 0 {
		cfg.ResubmitWindow = 24 * time.Hour
	}
	if cfg.MirrorPruneThreshold <= 0 {
		cfg.MirrorPruneThreshold = 100
	}
	if cfg.MirrorKeep <= 0 {
		cfg.MirrorKeep = 50
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Syncer{
		store:    store,
		metrics:  metrics,
		mirror:   mirror,
		delivery: delivery,
		config:   cfg,
	}
}

// Run executes the sync pass exactly once per process lifetime. Subsequent
// calls are no-ops.
func (s *Syncer) Run(ctx context.Context) {
	s.once.Do(func() { s.run(ctx) })
}

func (s *Syncer) run(ctx context.Context) {
	slog.Info("startup sync started",
		"retention", s.config.Retention,
		"resubmit_window", s.config.ResubmitWindow,
	)

	s.pruneMirror(ctx)
	s.pruneDurable(ctx)
	s.resetStaleClaims(ctx)
	s.resubmitPending(ctx)

	slog.Info("startup sync complete")
}

func (s *Syncer) pruneMirror(ctx context.Context) {
	if s.mirror == nil {
		return
	}
	removed, err := s.mirror.Prune(ctx, s.config.MirrorPruneThreshold, s.config.MirrorKeep)
	if err != nil {
		slog.Error("sync: mirror prune failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("sync: mirror pruned", "removed", removed, "kept", s.config.MirrorKeep)
	}
}

func (s *Syncer) pruneDurable(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.config.Retention)

	deleted, err := s.store.DeleteSentBefore(ctx, cutoff)
	if err != nil {
		slog.Error("sync: sent entry cleanup failed", "error", err)
	} else if deleted > 0 {
		slog.Info("sync: expired sent entries removed", "count", deleted)
	}

	pruned, err := s.metrics.DeleteBefore(ctx, cutoff)
	if err != nil {
		slog.Error("sync: metrics cleanup failed", "error", err)
	} else if pruned > 0 {
		slog.Info("sync: expired metrics rows removed", "count", pruned)
	}
}

// resetStaleClaims releases entries a crashed sweeper left claimed. Ten
// minutes is far beyond any single delivery chain run.
func (s *Syncer) resetStaleClaims(ctx context.Context) {
	reset, err := s.store.ResetStaleClaims(ctx, time.Now().UTC().Add(-10*time.Minute))
	if err != nil {
		slog.Error("sync: stale claim reset failed", "error", err)
		return
	}
	if reset > 0 {
		slog.Warn("sync: stale claims released", "count", reset)
	}
}

// resubmitPending re-attempts pending entries due within the resubmit
// window. An entry is marked sent only when a live channel actually
// delivered it; falling through again leaves it pending for the sweeper.
func (s *Syncer) resubmitPending(ctx context.Context) {
	now := time.Now().UTC()
	entries, err := s.store.ListUpcomingPending(ctx, now, now.Add(s.config.ResubmitWindow), s.config.BatchSize)
	if err != nil {
		slog.Error("sync: failed to list pending entries", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	slog.Info("sync: re-submitting pending entries", "count", len(entries))

	sent := 0
	for _, entry := range entries {
		claimed, err := s.store.Claim(ctx, entry.ID, EntryPending)
		if err != nil {
			slog.Error("sync: claim failed", "entry_id", entry.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		if s.delivery.AttemptLive(ctx, entry.Request()) {
			if err := s.store.MarkSent(ctx, entry.ID); err != nil {
				slog.Error("sync: failed to mark entry sent", "entry_id", entry.ID, "error", err)
				continue
			}
			sent++
			continue
		}

		if err := s.store.Release(ctx, entry.ID, EntryPending); err != nil {
			slog.Error("sync: failed to release entry", "entry_id", entry.ID, "error", err)
		}
	}

	slog.Info("sync: resubmission complete", "sent", sent, "total", len(entries))
}
