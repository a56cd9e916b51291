package store

import (
	"context"
	"log/slog"
	"time"

	"horamed/internal/domain/reminder"
)

const auditTable = "audit_log"

var _ reminder.AuditLogger = (*AuditLogger)(nil)

// AuditLogger appends compliance records to the audit table. Writes are
// best-effort: failures are logged and swallowed so observability can never
// affect the delivery path.
type AuditLogger struct {
	client *Client
}

// NewAuditLogger creates a Supabase-backed audit logger.
func NewAuditLogger(client *Client) *AuditLogger {
	return &AuditLogger{client: client}
}

type auditRow struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

// Log appends one audit record.
func (a *AuditLogger) Log(ctx context.Context, action, resource, resourceID string, metadata map[string]any) {
	row := auditRow{
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		Metadata:   metadata,
		CreatedAt:  ts(time.Now()),
	}

	_, _, err := a.client.sb.From(auditTable).Insert(row, false, "", "minimal", "").Execute()
	if err != nil {
		slog.Error("audit log write failed",
			"action", action,
			"resource_id", resourceID,
			"error", err,
		)
	}
}
