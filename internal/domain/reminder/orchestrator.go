package reminder

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OutcomeRecorder accepts delivery outcome rows without blocking the caller.
type OutcomeRecorder interface {
	Record(outcome *DeliveryOutcome)
}

// OrchestratorConfig holds tunables for the delivery chain.
type OrchestratorConfig struct {
	// ChannelTimeout bounds each individual channel attempt so one slow
	// provider cannot stall the whole chain.
	ChannelTimeout time.Duration
}

// Orchestrator tries delivery channels in a fixed priority order and, when
// every live channel fails or does not apply, persists a durable fallback
// entry so the reminder is retried later. Adding, removing or reordering
// channels is a wiring change, not a logic change: the chain is the adapter
// slice passed to NewOrchestrator.
//
// Deliver never panics and never returns an error; the caller only learns
// whether the user will eventually be notified through some channel.
type Orchestrator struct {
	adapters []ChannelAdapter
	store    FallbackStore
	mirror   Mirror
	metrics  OutcomeRecorder
	audit    AuditLogger
	config   OrchestratorConfig
}

// NewOrchestrator creates a delivery orchestrator. Adapters are attempted in
// the order given.
func NewOrchestrator(adapters []ChannelAdapter, store FallbackStore, mirror Mirror, metrics OutcomeRecorder, audit AuditLogger, cfg OrchestratorConfig) *Orchestrator {
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = 5 * time.Second
	}
	return &Orchestrator{
		adapters: adapters,
		store:    store,
		mirror:   mirror,
		metrics:  metrics,
		audit:    audit,
		config:   cfg,
	}
}

// Deliver runs the full chain: live channels in order, then the durable
// fallback. Returns true when the user will be notified through some channel,
// including eventual retry of a persisted fallback entry.
func (o *Orchestrator) Deliver(ctx context.Context, req *ReminderRequest) bool {
	delivered, errs := o.attemptLive(ctx, req)
	if delivered {
		return true
	}
	return o.persistFallback(ctx, req, errs)
}

// AttemptLive runs only the live channels, without touching the durable
// store. The sweeper and startup sync use it to re-attempt entries that
// already exist. Returns true when a live channel succeeded.
func (o *Orchestrator) AttemptLive(ctx context.Context, req *ReminderRequest) bool {
	delivered, _ := o.attemptLive(ctx, req)
	return delivered
}

// attemptLive tries each adapter in order, short-circuiting on the first
// success. Skips (channel unavailable) record no metrics row; real failures
// do. All error text is accumulated for the fallback diagnostic payload.
func (o *Orchestrator) attemptLive(ctx context.Context, req *ReminderRequest) (bool, []string) {
	var errs []string

	for _, adapter := range o.adapters {
		name := adapter.Name()

		attemptCtx, cancel := context.WithTimeout(ctx, o.config.ChannelTimeout)
		err := adapter.Send(attemptCtx, req)
		cancel()

		if err == nil {
			o.metrics.Record(o.outcome(req, name, OutcomeSent, ""))
			if name != ChannelPush {
				o.auditDelivery(ctx, req, name)
			}
			slog.Info("reminder delivered",
				"dose_id", req.DoseID,
				"user_id", req.UserID,
				"channel", name,
			)
			return true, errs
		}

		if errors.Is(err, ErrChannelUnavailable) {
			errs = append(errs, string(name)+": "+err.Error())
			slog.Debug("channel skipped",
				"dose_id", req.DoseID,
				"channel", name,
				"reason", err,
			)
			continue
		}

		errs = append(errs, string(name)+": "+err.Error())
		o.metrics.Record(o.outcome(req, name, OutcomeFailed, err.Error()))
		slog.Warn("channel attempt failed",
			"dose_id", req.DoseID,
			"user_id", req.UserID,
			"channel", name,
			"error", err,
		)
	}

	return false, errs
}

// persistFallback records the terminal fallback outcome and durably stores a
// pending entry, deduplicated by (doseID, scheduledAt). The durable write and
// the mirror write are independent so a single backend outage does not lose
// the reminder from the device's own queue.
func (o *Orchestrator) persistFallback(ctx context.Context, req *ReminderRequest, errs []string) bool {
	detail := strings.Join(errs, "; ")
	o.metrics.Record(o.outcome(req, ChannelFallback, OutcomeFallback, detail))

	existing, err := o.store.FindPending(ctx, req.DoseID, req.ScheduledAt)
	if err != nil {
		slog.Error("fallback dedup lookup failed", "dose_id", req.DoseID, "error", err)
	}
	if existing != nil {
		slog.Info("fallback entry already pending",
			"entry_id", existing.ID,
			"dose_id", req.DoseID,
			"scheduled_at", req.ScheduledAt,
		)
		return true
	}

	entry := &FallbackEntry{
		ID:          uuid.New().String(),
		DoseID:      req.DoseID,
		UserID:      req.UserID,
		ItemID:      req.ItemID,
		Title:       req.Title,
		Body:        req.Body,
		ScheduledAt: req.ScheduledAt,
		Status:      EntryPending,
		RetryCount:  0,
	}

	stored := true
	if err := o.store.Create(ctx, entry); err != nil {
		stored = false
		slog.Error("fallback entry persist failed", "dose_id", req.DoseID, "error", err)
	}

	mirrored := true
	if o.mirror != nil {
		if err := o.mirror.Save(ctx, entry); err != nil {
			mirrored = false
			slog.Error("fallback mirror write failed", "dose_id", req.DoseID, "error", err)
		}
	} else {
		mirrored = false
	}

	o.auditDelivery(ctx, req, ChannelFallback)

	if !stored && !mirrored {
		slog.Warn("reminder lost to all channels and stores",
			"dose_id", req.DoseID,
			"user_id", req.UserID,
			"errors", detail,
		)
		return false
	}

	slog.Warn("all live channels failed, reminder fallback queued",
		"dose_id", req.DoseID,
		"user_id", req.UserID,
		"entry_id", entry.ID,
		"errors", detail,
	)
	return true
}

func (o *Orchestrator) outcome(req *ReminderRequest, channel Channel, status OutcomeStatus, detail string) *DeliveryOutcome {
	return &DeliveryOutcome{
		UserID:      req.UserID,
		DoseID:      req.DoseID,
		Channel:     channel,
		Status:      status,
		ErrorDetail: detail,
		CreatedAt:   time.Now().UTC(),
	}
}

// auditDelivery writes the compliance trail for non-primary delivery paths.
// WhatsApp deliveries get their own action tag for billing review.
func (o *Orchestrator) auditDelivery(ctx context.Context, req *ReminderRequest, channel Channel) {
	if o.audit == nil {
		return
	}
	action := "reminder_delivery"
	if channel == ChannelWhatsApp {
		action = "whatsapp_fallback"
	}
	o.audit.Log(ctx, action, "dose", req.DoseID, map[string]any{
		"user_id":      req.UserID,
		"channel":      string(channel),
		"scheduled_at": req.ScheduledAt.UTC().Format(time.RFC3339),
	})
}
