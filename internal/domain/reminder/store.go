package reminder

import (
	"context"
	"time"
)

// FallbackStore defines the contract for persisting durable fallback entries.
// Implementations live in infra/store/ (Supabase).
type FallbackStore interface {
	// Create inserts a new fallback entry.
	Create(ctx context.Context, entry *FallbackEntry) error

	// GetByID retrieves a fallback entry by its ID.
	GetByID(ctx context.Context, id string) (*FallbackEntry, error)

	// FindPending retrieves the pending entry for the given dedup key.
	// Returns nil, nil if no pending entry exists.
	FindPending(ctx context.Context, doseID string, scheduledAt time.Time) (*FallbackEntry, error)

	// ListRetryable retrieves entries the sweeper should re-attempt:
	// status pending or failed, retry count below max, scheduled at or
	// after notBefore. Ordered oldest first, at most limit rows.
	ListRetryable(ctx context.Context, notBefore time.Time, maxRetries, limit int) ([]*FallbackEntry, error)

	// ListUpcomingPending retrieves pending entries scheduled within [from, until].
	ListUpcomingPending(ctx context.Context, from, until time.Time, limit int) ([]*FallbackEntry, error)

	// Claim transitions an entry from its expected status to sending via a
	// conditional update. Returns false when another session already took it.
	Claim(ctx context.Context, id string, expected EntryStatus) (bool, error)

	// ResetStaleClaims returns entries stuck in sending since before
	// olderThan back to pending, so a crashed claimer cannot strand them.
	ResetStaleClaims(ctx context.Context, olderThan time.Time) (int, error)

	// MarkSent marks an entry as delivered by a live channel.
	MarkSent(ctx context.Context, id string) error

	// MarkRetryFailed records one more failed retry for an entry.
	MarkRetryFailed(ctx context.Context, id string, retryCount int, lastRetryAt time.Time) error

	// Release returns a claimed entry to the given status without counting
	// a retry. Used when a claim cannot be acted on.
	Release(ctx context.Context, id string, status EntryStatus) error

	// DeleteSentBefore removes sent entries older than the cutoff and
	// returns how many were deleted.
	DeleteSentBefore(ctx context.Context, cutoff time.Time) (int, error)

	// List retrieves fallback entries with pagination and filtering.
	List(ctx context.Context, filter ListFilter) ([]*FallbackEntry, int, error)
}

// MetricsStore defines the contract for persisting delivery outcome rows.
type MetricsStore interface {
	// Append inserts one outcome row.
	Append(ctx context.Context, outcome *DeliveryOutcome) error

	// Aggregate computes per-status and per-channel counts for one user's
	// rows created at or after since.
	Aggregate(ctx context.Context, userID string, since time.Time) (*Stats, error)

	// DeleteBefore removes outcome rows older than the cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// DoseStore reads dose instances from the dose source. Status transitions
// (taken, missed, skipped) are owned by a collaborator and out of scope.
type DoseStore interface {
	// ListDue retrieves scheduled dose instances due within [from, until].
	ListDue(ctx context.Context, from, until time.Time, limit int) ([]*DoseInstance, error)
}

// PreferenceStore reads per-user notification preferences.
type PreferenceStore interface {
	// Get retrieves preferences for a user. Returns nil, nil when the user
	// never configured any.
	Get(ctx context.Context, userID string) (*Preferences, error)

	// ClearWebPushSubscription removes a user's stored web push
	// subscription. Called when the push service reports it gone, so later
	// attempts skip the channel instead of re-sending to a dead endpoint.
	ClearWebPushSubscription(ctx context.Context, userID string) error
}

// AuditLogger appends compliance/trace records. Write failures must be
// swallowed by implementations; observability never affects delivery.
type AuditLogger interface {
	Log(ctx context.Context, action, resource, resourceID string, metadata map[string]any)
}

// Mirror is the on-device bounded journal of fallback entries. It is a
// performance/availability copy, never authoritative.
type Mirror interface {
	// Save upserts an entry into the mirror.
	Save(ctx context.Context, entry *FallbackEntry) error

	// Prune keeps only the keepNewest most recent entries once the mirror
	// holds more than threshold rows. Returns how many were removed.
	Prune(ctx context.Context, threshold, keepNewest int) (int, error)

	// Count returns how many entries the mirror currently holds.
	Count(ctx context.Context) (int, error)
}
