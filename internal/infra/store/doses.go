package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/supabase-community/postgrest-go"

	"horamed/internal/domain/reminder"
)

const doseTable = "dose_instances"

var _ reminder.DoseStore = (*DoseStore)(nil)

// DoseStore reads dose instances from the dose source table. This service
// never writes dose rows; status transitions belong to the product backend.
type DoseStore struct {
	client *Client
}

// NewDoseStore creates a Supabase-backed dose reader.
func NewDoseStore(client *Client) *DoseStore {
	return &DoseStore{client: client}
}

type doseRow struct {
	ID       string  `json:"id"`
	ItemID   string  `json:"item_id"`
	UserID   string  `json:"user_id"`
	ItemName string  `json:"item_name"`
	Dosage   *string `json:"dosage,omitempty"`
	Status   string  `json:"status"`
	DueAt    string  `json:"due_at"`
}

// ListDue retrieves scheduled dose instances due within [from, until].
func (s *DoseStore) ListDue(ctx context.Context, from, until time.Time, limit int) ([]*reminder.DoseInstance, error) {
	if limit <= 0 {
		limit = 200
	}

	query := s.client.sb.From(doseTable).
		Select("*", "exact", false).
		Eq("status", "scheduled").
		Gte("due_at", ts(from)).
		Lte("due_at", ts(until)).
		Order("due_at", &postgrest.OrderOpts{Ascending: true}).
		Range(0, limit-1, "")

	data, _, err := query.Execute()
	if err != nil {
		return nil, fmt.Errorf("listing due doses: %w", err)
	}

	var rows []doseRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing due doses: %w", err)
	}

	doses := make([]*reminder.DoseInstance, len(rows))
	for i, row := range rows {
		dose := &reminder.DoseInstance{
			ID:       row.ID,
			ItemID:   row.ItemID,
			UserID:   row.UserID,
			ItemName: row.ItemName,
			Status:   row.Status,
			DueAt:    parseTS(row.DueAt),
		}
		if row.Dosage != nil {
			dose.Dosage = *row.Dosage
		}
		doses[i] = dose
	}

	return doses, nil
}
