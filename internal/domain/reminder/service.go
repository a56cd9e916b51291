package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"horamed/internal/common"
)

// Enqueuer defines the contract for enqueuing delivery tasks.
// This decouples the service and scanner from the queue implementation.
type Enqueuer interface {
	EnqueueDeliverReminder(req *ReminderRequest) error
}

// Service orchestrates the reminder API flow: validate → rate limit →
// enqueue → query fallback entries and stats.
type Service struct {
	store       FallbackStore
	metrics     MetricsStore
	recorder    OutcomeRecorder
	enqueuer    Enqueuer
	rateLimiter UserRateLimiter
	audit       AuditLogger
}

// NewService creates a new reminder service.
func NewService(store FallbackStore, metrics MetricsStore, recorder OutcomeRecorder, enqueuer Enqueuer, rateLimiter UserRateLimiter, audit AuditLogger) *Service {
	return &Service{
		store:       store,
		metrics:     metrics,
		recorder:    recorder,
		enqueuer:    enqueuer,
		rateLimiter: rateLimiter,
		audit:       audit,
	}
}

// Enqueue validates a reminder request, checks the per-user rate limit, and
// hands the request to the delivery queue.
func (s *Service) Enqueue(ctx context.Context, req *ReminderRequest) (*SendResponse, error) {
	if req.ScheduledAt.IsZero() {
		return nil, common.NewValidationError("scheduled_at is required")
	}

	if s.rateLimiter != nil {
		allowed, err := s.rateLimiter.Allow(ctx, req.UserID)
		if err != nil {
			slog.Error("rate limit check failed, proceeding without limit", "user_id", req.UserID, "error", err)
			// Fail open — don't block reminders when Redis is down
		} else if !allowed {
			return nil, common.NewValidationError(fmt.Sprintf("reminder rate limit exceeded for user: %s", req.UserID))
		}
	}

	if err := s.enqueuer.EnqueueDeliverReminder(req); err != nil {
		return nil, fmt.Errorf("enqueuing reminder: %w", err)
	}

	slog.Info("reminder enqueued",
		"dose_id", req.DoseID,
		"user_id", req.UserID,
		"scheduled_at", req.ScheduledAt,
	)

	return &SendResponse{
		ID:     uuid.New().String(),
		DoseID: req.DoseID,
		Status: "queued",
	}, nil
}

// GetEntry retrieves a fallback entry by ID.
func (s *Service) GetEntry(ctx context.Context, id string) (*FallbackEntry, error) {
	entry, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching fallback entry: %w", err)
	}
	if entry == nil {
		return nil, common.NewNotFoundError("fallback entry", id)
	}
	return entry, nil
}

// ListEntries retrieves fallback entries with pagination and filtering.
func (s *Service) ListEntries(ctx context.Context, filter ListFilter) (*ListResponse, error) {
	entries, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing fallback entries: %w", err)
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	return &ListResponse{
		Entries:  entries,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// GetStats aggregates delivery outcomes for a user over the trailing window.
func (s *Service) GetStats(ctx context.Context, userID string, windowDays int) (*Stats, error) {
	if userID == "" {
		return nil, common.NewValidationError("user_id is required")
	}
	return ComputeStats(ctx, s.metrics, userID, windowDays)
}

// HandleDeliveryReceipt processes a delivery confirmation from the WhatsApp
// provider webhook. Receipts only add an outcome row; they never mutate
// fallback entries.
func (s *Service) HandleDeliveryReceipt(ctx context.Context, userID, doseID string) error {
	if doseID == "" {
		return common.NewValidationError("dose_id is required")
	}

	s.recorder.Record(&DeliveryOutcome{
		UserID:    userID,
		DoseID:    doseID,
		Channel:   ChannelWhatsApp,
		Status:    OutcomeDelivered,
		CreatedAt: time.Now().UTC(),
	})

	if s.audit != nil {
		s.audit.Log(ctx, "whatsapp_delivery_receipt", "dose", doseID, map[string]any{
			"user_id": userID,
		})
	}

	slog.Info("delivery receipt recorded", "dose_id", doseID, "user_id", userID)
	return nil
}
