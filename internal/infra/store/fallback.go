package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/postgrest-go"

	"horamed/internal/domain/reminder"
)

const fallbackTable = "fallback_reminders"

var _ reminder.FallbackStore = (*FallbackStore)(nil)

// FallbackStore persists durable fallback entries in Supabase.
type FallbackStore struct {
	client *Client
}

// NewFallbackStore creates a Supabase-backed fallback store.
func NewFallbackStore(client *Client) *FallbackStore {
	return &FallbackStore{client: client}
}

// fallbackRow is the internal representation for PostgREST insert/update.
type fallbackRow struct {
	ID          string  `json:"id,omitempty"`
	DoseID      string  `json:"dose_id"`
	UserID      string  `json:"user_id"`
	ItemID      *string `json:"item_id,omitempty"`
	Title       string  `json:"title"`
	Body        *string `json:"body,omitempty"`
	ScheduledAt string  `json:"scheduled_at"`
	Status      string  `json:"status"`
	RetryCount  int     `json:"retry_count"`
	LastRetryAt *string `json:"last_retry_at,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

// Create inserts a new fallback entry.
func (s *FallbackStore) Create(ctx context.Context, entry *reminder.FallbackEntry) error {
	row := fallbackRow{
		ID:          entry.ID,
		DoseID:      entry.DoseID,
		UserID:      entry.UserID,
		Title:       entry.Title,
		ScheduledAt: ts(entry.ScheduledAt),
		Status:      string(entry.Status),
		RetryCount:  entry.RetryCount,
	}
	if entry.ItemID != "" {
		row.ItemID = &entry.ItemID
	}
	if entry.Body != "" {
		row.Body = &entry.Body
	}

	data, _, err := s.client.sb.From(fallbackTable).Insert(row, false, "", "representation", "").Execute()
	if err != nil {
		return fmt.Errorf("inserting fallback entry: %w", err)
	}

	var results []fallbackRow
	if err := json.Unmarshal(data, &results); err != nil {
		return fmt.Errorf("parsing insert response: %w", err)
	}
	if len(results) > 0 {
		entry.ID = results[0].ID
		entry.CreatedAt = parseTS(results[0].CreatedAt)
		entry.UpdatedAt = parseTS(results[0].UpdatedAt)
	}

	return nil
}

// GetByID retrieves a fallback entry by its ID. Returns nil, nil when no
// entry exists, so the service can answer not-found instead of erroring.
func (s *FallbackStore) GetByID(ctx context.Context, id string) (*reminder.FallbackEntry, error) {
	data, _, err := s.client.sb.From(fallbackTable).Select("*", "exact", false).Eq("id", id).Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching fallback entry: %w", err)
	}

	var rows []fallbackRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing fallback entry: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	return rowToEntry(&rows[0]), nil
}

// FindPending retrieves the pending entry for a (doseID, scheduledAt) dedup
// key. Returns nil, nil if none exists.
func (s *FallbackStore) FindPending(ctx context.Context, doseID string, scheduledAt time.Time) (*reminder.FallbackEntry, error) {
	data, _, err := s.client.sb.From(fallbackTable).
		Select("*", "exact", false).
		Eq("dose_id", doseID).
		Eq("scheduled_at", ts(scheduledAt)).
		Eq("status", string(reminder.EntryPending)).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching pending entry: %w", err)
	}

	var rows []fallbackRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing pending entry: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	return rowToEntry(&rows[0]), nil
}

// ListRetryable retrieves entries the sweeper should re-attempt.
func (s *FallbackStore) ListRetryable(ctx context.Context, notBefore time.Time, maxRetries, limit int) ([]*reminder.FallbackEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := s.client.sb.From(fallbackTable).
		Select("*", "exact", false).
		In("status", []string{string(reminder.EntryPending), string(reminder.EntryFailed)}).
		Lt("retry_count", fmt.Sprintf("%d", maxRetries)).
		Gte("scheduled_at", ts(notBefore)).
		Order("scheduled_at", &postgrest.OrderOpts{Ascending: true}).
		Range(0, limit-1, "")

	data, _, err := query.Execute()
	if err != nil {
		return nil, fmt.Errorf("listing retryable entries: %w", err)
	}

	return parseEntries(data)
}

// ListUpcomingPending retrieves pending entries scheduled within [from, until].
func (s *FallbackStore) ListUpcomingPending(ctx context.Context, from, until time.Time, limit int) ([]*reminder.FallbackEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.client.sb.From(fallbackTable).
		Select("*", "exact", false).
		Eq("status", string(reminder.EntryPending)).
		Gte("scheduled_at", ts(from)).
		Lte("scheduled_at", ts(until)).
		Order("scheduled_at", &postgrest.OrderOpts{Ascending: true}).
		Range(0, limit-1, "")

	data, _, err := query.Execute()
	if err != nil {
		return nil, fmt.Errorf("listing upcoming pending entries: %w", err)
	}

	return parseEntries(data)
}

// Claim moves an entry from its expected status to sending. The status
// filter makes the update conditional, so exactly one of several concurrent
// sessions wins the claim.
func (s *FallbackStore) Claim(ctx context.Context, id string, expected reminder.EntryStatus) (bool, error) {
	update := map[string]any{
		"status":     string(reminder.EntrySending),
		"updated_at": ts(time.Now()),
	}

	data, _, err := s.client.sb.From(fallbackTable).
		Update(update, "representation", "").
		Eq("id", id).
		Eq("status", string(expected)).
		Execute()
	if err != nil {
		return false, fmt.Errorf("claiming fallback entry: %w", err)
	}

	var rows []fallbackRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return false, fmt.Errorf("parsing claim response: %w", err)
	}
	return len(rows) > 0, nil
}

// ResetStaleClaims returns entries stuck in sending back to pending.
func (s *FallbackStore) ResetStaleClaims(ctx context.Context, olderThan time.Time) (int, error) {
	update := map[string]any{
		"status":     string(reminder.EntryPending),
		"updated_at": ts(time.Now()),
	}

	data, _, err := s.client.sb.From(fallbackTable).
		Update(update, "representation", "").
		Eq("status", string(reminder.EntrySending)).
		Lt("updated_at", ts(olderThan)).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("resetting stale claims: %w", err)
	}

	var rows []fallbackRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("parsing reset response: %w", err)
	}
	return len(rows), nil
}

// MarkSent marks an entry as delivered by a live channel.
func (s *FallbackStore) MarkSent(ctx context.Context, id string) error {
	update := map[string]any{
		"status":     string(reminder.EntrySent),
		"updated_at": ts(time.Now()),
	}

	_, _, err := s.client.sb.From(fallbackTable).Update(update, "", "").Eq("id", id).Execute()
	if err != nil {
		return fmt.Errorf("marking entry sent: %w", err)
	}
	return nil
}

// MarkRetryFailed records one more failed retry.
func (s *FallbackStore) MarkRetryFailed(ctx context.Context, id string, retryCount int, lastRetryAt time.Time) error {
	update := map[string]any{
		"status":        string(reminder.EntryFailed),
		"retry_count":   retryCount,
		"last_retry_at": ts(lastRetryAt),
		"updated_at":    ts(time.Now()),
	}

	_, _, err := s.client.sb.From(fallbackTable).Update(update, "", "").Eq("id", id).Execute()
	if err != nil {
		return fmt.Errorf("recording failed retry: %w", err)
	}
	return nil
}

// Release returns a claimed entry to the given status without counting a retry.
func (s *FallbackStore) Release(ctx context.Context, id string, status reminder.EntryStatus) error {
	update := map[string]any{
		"status":     string(status),
		"updated_at": ts(time.Now()),
	}

	_, _, err := s.client.sb.From(fallbackTable).Update(update, "", "").Eq("id", id).Execute()
	if err != nil {
		return fmt.Errorf("releasing fallback entry: %w", err)
	}
	return nil
}

// DeleteSentBefore removes sent entries older than the cutoff.
func (s *FallbackStore) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int, error) {
	data, _, err := s.client.sb.From(fallbackTable).
		Delete("representation", "").
		Eq("status", string(reminder.EntrySent)).
		Lt("updated_at", ts(cutoff)).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("deleting expired sent entries: %w", err)
	}

	var rows []fallbackRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("parsing delete response: %w", err)
	}
	return len(rows), nil
}

// List retrieves fallback entries with pagination and filtering.
func (s *FallbackStore) List(ctx context.Context, filter reminder.ListFilter) ([]*reminder.FallbackEntry, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	offset := (filter.Page - 1) * filter.PageSize

	query := s.client.sb.From(fallbackTable).Select("*", "exact", false)

	if filter.Status != "" {
		query = query.Eq("status", filter.Status)
	}
	if filter.UserID != "" {
		query = query.Eq("user_id", filter.UserID)
	}

	query = query.Order("created_at", &postgrest.OrderOpts{Ascending: false})
	query = query.Range(offset, offset+filter.PageSize-1, "")

	data, count, err := query.Execute()
	if err != nil {
		return nil, 0, fmt.Errorf("listing fallback entries: %w", err)
	}

	entries, err := parseEntries(data)
	if err != nil {
		return nil, 0, err
	}
	return entries, int(count), nil
}

func parseEntries(data []byte) ([]*reminder.FallbackEntry, error) {
	var rows []fallbackRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing fallback entries: %w", err)
	}

	entries := make([]*reminder.FallbackEntry, len(rows))
	for i := range rows {
		entries[i] = rowToEntry(&rows[i])
	}
	return entries, nil
}

func rowToEntry(row *fallbackRow) *reminder.FallbackEntry {
	entry := &reminder.FallbackEntry{
		ID:          row.ID,
		DoseID:      row.DoseID,
		UserID:      row.UserID,
		Title:       row.Title,
		ScheduledAt: parseTS(row.ScheduledAt),
		Status:      reminder.EntryStatus(row.Status),
		RetryCount:  row.RetryCount,
		LastRetryAt: parseTSPtr(row.LastRetryAt),
		CreatedAt:   parseTS(row.CreatedAt),
		UpdatedAt:   parseTS(row.UpdatedAt),
	}
	if row.ItemID != nil {
		entry.ItemID = *row.ItemID
	}
	if row.Body != nil {
		entry.Body = *row.Body
	}
	return entry
}
