package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"horamed/internal/domain/reminder"
)

const metricsTable = "delivery_metrics"

var _ reminder.MetricsStore = (*MetricsStore)(nil)

// MetricsStore persists delivery outcome rows in Supabase.
type MetricsStore struct {
	client *Client
}

// NewMetricsStore creates a Supabase-backed metrics store.
func NewMetricsStore(client *Client) *MetricsStore {
	return &MetricsStore{client: client}
}

type metricsRow struct {
	ID          string  `json:"id,omitempty"`
	UserID      string  `json:"user_id"`
	DoseID      string  `json:"dose_id"`
	Channel     string  `json:"channel"`
	Status      string  `json:"status"`
	ErrorDetail *string `json:"error_detail,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

// Append inserts one outcome row.
func (s *MetricsStore) Append(ctx context.Context, outcome *reminder.DeliveryOutcome) error {
	row := metricsRow{
		UserID:    outcome.UserID,
		DoseID:    outcome.DoseID,
		Channel:   string(outcome.Channel),
		Status:    string(outcome.Status),
		CreatedAt: ts(outcome.CreatedAt),
	}
	if outcome.ErrorDetail != "" {
		row.ErrorDetail = &outcome.ErrorDetail
	}

	_, _, err := s.client.sb.From(metricsTable).Insert(row, false, "", "minimal", "").Execute()
	if err != nil {
		return fmt.Errorf("inserting outcome row: %w", err)
	}
	return nil
}

// Aggregate computes per-status and per-channel counts for one user's rows
// created at or after since. Counting happens client-side over the window's
// rows; the retention pruning keeps the scanned set small.
func (s *MetricsStore) Aggregate(ctx context.Context, userID string, since time.Time) (*reminder.Stats, error) {
	data, _, err := s.client.sb.From(metricsTable).
		Select("channel,status", "exact", false).
		Eq("user_id", userID).
		Gte("created_at", ts(since)).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("querying outcome rows: %w", err)
	}

	var rows []metricsRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing outcome rows: %w", err)
	}

	stats := &reminder.Stats{ByChannel: map[reminder.Channel]int{}}
	for _, row := range rows {
		stats.Total++
		stats.ByChannel[reminder.Channel(row.Channel)]++
		switch reminder.OutcomeStatus(row.Status) {
		case reminder.OutcomeSent:
			stats.Sent++
		case reminder.OutcomeDelivered:
			stats.Delivered++
		case reminder.OutcomeFailed:
			stats.Failed++
		case reminder.OutcomeFallback:
			stats.Fallback++
		}
	}

	return stats, nil
}

// DeleteBefore removes outcome rows older than the cutoff.
func (s *MetricsStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	data, _, err := s.client.sb.From(metricsTable).
		Delete("representation", "").
		Lt("created_at", ts(cutoff)).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("deleting expired outcome rows: %w", err)
	}

	var rows []metricsRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("parsing delete response: %w", err)
	}
	return len(rows), nil
}
