package reminder

import "time"

// Channel represents a reminder delivery channel.
type Channel string

const (
	ChannelPush     Channel = "push"     // native push through the device gateway
	ChannelWebPush  Channel = "webpush"  // browser web push
	ChannelWhatsApp Channel = "whatsapp" // WhatsApp message fallback
	ChannelFallback Channel = "fallback" // durable queue, retried later
)

// OutcomeStatus is the result of a single channel attempt.
type OutcomeStatus string

const (
	OutcomeSent      OutcomeStatus = "sent"
	OutcomeDelivered OutcomeStatus = "delivered"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeFallback  OutcomeStatus = "fallback"
)

// ReminderRequest describes one notification intent for a dose occurrence.
// It is constructed fresh per due dose and is never persisted by itself.
type ReminderRequest struct {
	DoseID      string    `json:"dose_id" binding:"required"`
	ItemID      string    `json:"item_id"`
	UserID      string    `json:"user_id" binding:"required"`
	Title       string    `json:"title" binding:"required"`
	Body        string    `json:"body"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
}

// DeliveryOutcome is an immutable record of one channel attempt.
// Rows are appended to the metrics store and pruned after the retention window.
type DeliveryOutcome struct {
	ID          string        `json:"id,omitempty"`
	UserID      string        `json:"user_id"`
	DoseID      string        `json:"dose_id"`
	Channel     Channel       `json:"channel"`
	Status      OutcomeStatus `json:"status"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// EntryStatus is the lifecycle status of a durable fallback entry.
type EntryStatus string

const (
	EntryPending EntryStatus = "pending"
	EntrySending EntryStatus = "sending" // claimed by a sweeper or sync pass
	EntrySent    EntryStatus = "sent"
	EntryFailed  EntryStatus = "failed"
)

// FallbackEntry is the durable record created when no live channel delivered
// a reminder. Entries are deduplicated by (DoseID, ScheduledAt) and retried
// by the sweeper until RetryCount reaches the configured maximum.
type FallbackEntry struct {
	ID          string      `json:"id"`
	DoseID      string      `json:"dose_id"`
	UserID      string      `json:"user_id"`
	ItemID      string      `json:"item_id,omitempty"`
	Title       string      `json:"title"`
	Body        string      `json:"body,omitempty"`
	ScheduledAt time.Time   `json:"scheduled_at"`
	Status      EntryStatus `json:"status"`
	RetryCount  int         `json:"retry_count"`
	LastRetryAt *time.Time  `json:"last_retry_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Request rebuilds the orchestrator input from a persisted entry.
func (e *FallbackEntry) Request() *ReminderRequest {
	return &ReminderRequest{
		DoseID:      e.DoseID,
		ItemID:      e.ItemID,
		UserID:      e.UserID,
		Title:       e.Title,
		Body:        e.Body,
		ScheduledAt: e.ScheduledAt,
	}
}

// DoseInstance is one scheduled occurrence of taking a medication.
// The dose source is owned by a collaborator; this service only reads
// instances that are due soon.
type DoseInstance struct {
	ID       string    `json:"id"`
	ItemID   string    `json:"item_id"`
	UserID   string    `json:"user_id"`
	ItemName string    `json:"item_name"`
	Dosage   string    `json:"dosage,omitempty"`
	Status   string    `json:"status"`
	DueAt    time.Time `json:"due_at"`
}

// Preferences holds a user's notification channel configuration.
type Preferences struct {
	UserID          string `json:"user_id"`
	WhatsAppEnabled bool   `json:"whatsapp_enabled"`
	PhoneNumber     string `json:"phone_number,omitempty"`
	InstanceID      string `json:"instance_id,omitempty"`
	APIToken        string `json:"api_token,omitempty"`

	// Web push subscription, absent when the browser never registered one.
	WebPushEndpoint string `json:"webpush_endpoint,omitempty"`
	WebPushAuth     string `json:"webpush_auth,omitempty"`
	WebPushP256dh   string `json:"webpush_p256dh,omitempty"`
}

// WhatsAppConfigured reports whether every credential needed for the
// WhatsApp channel is present.
func (p *Preferences) WhatsAppConfigured() bool {
	return p != nil && p.WhatsAppEnabled && p.PhoneNumber != "" && p.InstanceID != "" && p.APIToken != ""
}

// WebPushConfigured reports whether a usable web push subscription exists.
func (p *Preferences) WebPushConfigured() bool {
	return p != nil && p.WebPushEndpoint != "" && p.WebPushAuth != "" && p.WebPushP256dh != ""
}

// SendResponse is the API response payload after a reminder is enqueued.
type SendResponse struct {
	ID     string `json:"id"`
	DoseID string `json:"dose_id"`
	Status string `json:"status"`
}

// ListFilter defines pagination and filtering options for listing fallback entries.
type ListFilter struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Status   string `form:"status"`
	UserID   string `form:"user_id"`
}

// ListResponse wraps a paginated list of fallback entries.
type ListResponse struct {
	Entries  []*FallbackEntry `json:"entries"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// Stats summarizes delivery outcomes for one user over a trailing window.
type Stats struct {
	Total       int             `json:"total"`
	Sent        int             `json:"sent"`
	Delivered   int             `json:"delivered"`
	Failed      int             `json:"failed"`
	Fallback    int             `json:"fallback"`
	ByChannel   map[Channel]int `json:"by_channel"`
	SuccessRate string          `json:"success_rate"`
}
