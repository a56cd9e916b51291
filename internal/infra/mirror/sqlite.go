package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"horamed/internal/domain/reminder"
)

var _ reminder.Mirror = (*SQLiteMirror)(nil)

// SQLiteMirror is the on-device journal of fallback entries, kept for
// offline resilience. It mirrors the durable store and is never
// authoritative; the startup sync caps its size.
type SQLiteMirror struct {
	db *sqlx.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS fallback_mirror (
	id            TEXT PRIMARY KEY,
	dose_id       TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	item_id       TEXT,
	title         TEXT NOT NULL,
	body          TEXT,
	scheduled_at  TIMESTAMP NOT NULL,
	status        TEXT NOT NULL,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	last_retry_at TIMESTAMP,
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fallback_mirror_created ON fallback_mirror(created_at);
`

// NewSQLiteMirror opens (or creates) the mirror database at dbPath and
// applies the schema. Use ":memory:" for tests.
func NewSQLiteMirror(dbPath string) (*SQLiteMirror, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening mirror db: %w", err)
	}

	// WAL keeps reads cheap while the delivery path writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying mirror schema: %w", err)
	}

	return &SQLiteMirror{db: db}, nil
}

// Close closes the underlying database connection.
func (m *SQLiteMirror) Close() error {
	return m.db.Close()
}

// Save upserts an entry into the mirror.
func (m *SQLiteMirror) Save(ctx context.Context, entry *reminder.FallbackEntry) error {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO fallback_mirror (
			id, dose_id, user_id, item_id, title, body,
			scheduled_at, status, retry_count, last_retry_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.DoseID, entry.UserID, entry.ItemID, entry.Title, entry.Body,
		entry.ScheduledAt.UTC(), entry.Status, entry.RetryCount, entry.LastRetryAt, createdAt,
	)
	if err != nil {
		return fmt.Errorf("saving mirror entry: %w", err)
	}
	return nil
}

// Prune removes everything but the keepNewest most recent entries, but only
// once the mirror holds more than threshold rows.
func (m *SQLiteMirror) Prune(ctx context.Context, threshold, keepNewest int) (int, error) {
	count, err := m.Count(ctx)
	if err != nil {
		return 0, err
	}
	if count <= threshold {
		return 0, nil
	}

	res, err := m.db.ExecContext(ctx, `
		DELETE FROM fallback_mirror
		WHERE id NOT IN (
			SELECT id FROM fallback_mirror
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)`, keepNewest)
	if err != nil {
		return 0, fmt.Errorf("pruning mirror: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading prune result: %w", err)
	}
	return int(removed), nil
}

// Count returns how many entries the mirror currently holds.
func (m *SQLiteMirror) Count(ctx context.Context) (int, error) {
	var count int
	if err := m.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM fallback_mirror"); err != nil {
		return 0, fmt.Errorf("counting mirror entries: %w", err)
	}
	return count, nil
}

// List returns the newest entries, most recent first, at most limit rows.
// Used by the device UI to show queued reminders while offline.
func (m *SQLiteMirror) List(ctx context.Context, limit int) ([]*reminder.FallbackEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := m.db.QueryxContext(ctx, `
		SELECT id, dose_id, user_id, item_id, title, body,
		       scheduled_at, status, retry_count, last_retry_at, created_at
		FROM fallback_mirror
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing mirror entries: %w", err)
	}
	defer rows.Close()

	var entries []*reminder.FallbackEntry
	for rows.Next() {
		var (
			entry       reminder.FallbackEntry
			itemID      *string
			body        *string
			lastRetryAt *time.Time
		)
		err := rows.Scan(
			&entry.ID, &entry.DoseID, &entry.UserID, &itemID, &entry.Title, &body,
			&entry.ScheduledAt, &entry.Status, &entry.RetryCount, &lastRetryAt, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning mirror entry: %w", err)
		}
		if itemID != nil {
			entry.ItemID = *itemID
		}
		if body != nil {
			entry.Body = *body
		}
		entry.LastRetryAt = lastRetryAt
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mirror entries: %w", err)
	}

	return entries, nil
}
