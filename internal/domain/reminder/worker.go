package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Deliverer runs the full delivery chain for one reminder request.
// Implemented by Orchestrator.
type Deliverer interface {
	Deliver(ctx context.Context, req *ReminderRequest) bool
}

// Worker processes delivery tasks from the queue by handing each request to
// the orchestrator. The orchestrator absorbs every channel failure into its
// durable fallback, so a task only errors (and gets retried by asynq) when
// even the fallback stores could not hold the reminder.
type Worker struct {
	delivery Deliverer
}

// NewWorker creates a new reminder delivery worker.
func NewWorker(delivery Deliverer) *Worker {
	return &Worker{delivery: delivery}
}

// ProcessTask handles one delivery task.
func (w *Worker) ProcessTask(ctx context.Context, payload *DeliverReminderPayload) error {
	start := time.Now()
	req := &payload.Request

	if !w.delivery.Deliver(ctx, req) {
		slog.Error("reminder delivery failed on all channels and stores",
			"dose_id", req.DoseID,
			"user_id", req.UserID,
			"duration", time.Since(start),
		)
		return fmt.Errorf("delivering reminder for dose %s: all channels and stores failed", req.DoseID)
	}

	slog.Info("delivery task processed",
		"dose_id", req.DoseID,
		"user_id", req.UserID,
		"duration", time.Since(start),
	)
	return nil
}
