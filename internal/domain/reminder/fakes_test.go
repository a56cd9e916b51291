package reminder

import (
	"context"
	"sort"
	"sync"
	"time"
)

// stubAdapter is a channel adapter with a programmable Send result.
type stubAdapter struct {
	name  Channel
	send  func(ctx context.Context, req *ReminderRequest) error
	calls int
}

func (a *stubAdapter) Name() Channel { return a.name }

func (a *stubAdapter) Send(ctx context.Context, req *ReminderRequest) error {
	a.calls++
	return a.send(ctx, req)
}

// memFallbackStore is an in-memory FallbackStore.
type memFallbackStore struct {
	mu      sync.Mutex
	entries map[string]*FallbackEntry

	createErr error
}

func newMemFallbackStore() *memFallbackStore {
	return &memFallbackStore{entries: map[string]*FallbackEntry{}}
}

func (s *memFallbackStore) Create(ctx context.Context, entry *FallbackEntry) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	now := time.Now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.entries[cp.ID] = &cp
	return nil
}

func (s *memFallbackStore) GetByID(ctx context.Context, id string) (*FallbackEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

func (s *memFallbackStore) FindPending(ctx context.Context, doseID string, scheduledAt time.Time) (*FallbackEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		if entry.DoseID == doseID && entry.ScheduledAt.Equal(scheduledAt) && entry.Status == EntryPending {
			cp := *entry
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memFallbackStore) ListRetryable(ctx context.Context, notBefore time.Time, maxRetries, limit int) ([]*FallbackEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*FallbackEntry
	for _, entry := range s.entries {
		if (entry.Status == EntryPending || entry.Status == EntryFailed) &&
			entry.RetryCount < maxRetries &&
			!entry.ScheduledAt.Before(notBefore) {
			cp := *entry
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memFallbackStore) ListUpcomingPending(ctx context.Context, from, until time.Time, limit int) ([]*FallbackEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*FallbackEntry
	for _, entry := range s.entries {
		if entry.Status == EntryPending &&
			!entry.ScheduledAt.Before(from) &&
			!entry.ScheduledAt.After(until) {
			cp := *entry
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memFallbackStore) Claim(ctx context.Context, id string, expected EntryStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok || entry.Status != expected {
		return false, nil
	}
	entry.Status = EntrySending
	entry.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *memFallbackStore) ResetStaleClaims(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reset := 0
	for _, entry := range s.entries {
		if entry.Status == EntrySending && entry.UpdatedAt.Before(olderThan) {
			entry.Status = EntryPending
			reset++
		}
	}
	return reset, nil
}

func (s *memFallbackStore) MarkSent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[id]; ok {
		entry.Status = EntrySent
		entry.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *memFallbackStore) MarkRetryFailed(ctx context.Context, id string, retryCount int, lastRetryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[id]; ok {
		entry.Status = EntryFailed
		entry.RetryCount = retryCount
		entry.LastRetryAt = &lastRetryAt
		entry.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *memFallbackStore) Release(ctx context.Context, id string, status EntryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[id]; ok {
		entry.Status = status
		entry.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *memFallbackStore) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, entry := range s.entries {
		if entry.Status == EntrySent && entry.UpdatedAt.Before(cutoff) {
			delete(s.entries, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *memFallbackStore) List(ctx context.Context, filter ListFilter) ([]*FallbackEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*FallbackEntry
	for _, entry := range s.entries {
		if filter.Status != "" && string(entry.Status) != filter.Status {
			continue
		}
		if filter.UserID != "" && entry.UserID != filter.UserID {
			continue
		}
		cp := *entry
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (s *memFallbackStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *memFallbackStore) single() *FallbackEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.entries {
		cp := *entry
		return &cp
	}
	return nil
}

// memMetricsStore is an in-memory MetricsStore.
type memMetricsStore struct {
	mu   sync.Mutex
	rows []*DeliveryOutcome
}

func (s *memMetricsStore) Append(ctx context.Context, outcome *DeliveryOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *outcome
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *memMetricsStore) Aggregate(ctx context.Context, userID string, since time.Time) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &Stats{ByChannel: map[Channel]int{}}
	for _, row := range s.rows {
		if row.UserID != userID || row.CreatedAt.Before(since) {
			continue
		}
		stats.Total++
		stats.ByChannel[row.Channel]++
		switch row.Status {
		case OutcomeSent:
			stats.Sent++
		case OutcomeDelivered:
			stats.Delivered++
		case OutcomeFailed:
			stats.Failed++
		case OutcomeFallback:
			stats.Fallback++
		}
	}
	return stats, nil
}

func (s *memMetricsStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*DeliveryOutcome
	deleted := 0
	for _, row := range s.rows {
		if row.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	s.rows = kept
	return deleted, nil
}

// collectRecorder captures outcomes synchronously for assertions.
type collectRecorder struct {
	mu       sync.Mutex
	outcomes []*DeliveryOutcome
}

func (r *collectRecorder) Record(outcome *DeliveryOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *outcome
	r.outcomes = append(r.outcomes, &cp)
}

func (r *collectRecorder) byChannel(channel Channel) []*DeliveryOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*DeliveryOutcome
	for _, o := range r.outcomes {
		if o.Channel == channel {
			out = append(out, o)
		}
	}
	return out
}

// memMirror is an in-memory Mirror.
type memMirror struct {
	mu      sync.Mutex
	entries []*FallbackEntry

	pruneCalls int
	saveErr    error
}

func (m *memMirror) Save(ctx context.Context, entry *FallbackEntry) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memMirror) Prune(ctx context.Context, threshold, keepNewest int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneCalls++
	if len(m.entries) <= threshold {
		return 0, nil
	}
	removed := len(m.entries) - keepNewest
	m.entries = m.entries[removed:]
	return removed, nil
}

func (m *memMirror) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

// nopAudit swallows audit records, counting calls per action.
type nopAudit struct {
	mu      sync.Mutex
	actions map[string]int
}

func (a *nopAudit) Log(ctx context.Context, action, resource, resourceID string, metadata map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.actions == nil {
		a.actions = map[string]int{}
	}
	a.actions[action]++
}

// stubRedeliverer reports a scripted sequence of live-delivery results.
type stubRedeliverer struct {
	results []bool
	calls   int
}

func (d *stubRedeliverer) AttemptLive(ctx context.Context, req *ReminderRequest) bool {
	idx := d.calls
	d.calls++
	if idx < len(d.results) {
		return d.results[idx]
	}
	if len(d.results) == 0 {
		return false
	}
	return d.results[len(d.results)-1]
}

func testRequest(doseID string, scheduledAt time.Time) *ReminderRequest {
	return &ReminderRequest{
		DoseID:      doseID,
		ItemID:      "item-1",
		UserID:      "user-1",
		Title:       "Medication reminder: Ibuprofen",
		Body:        "Take 200mg of Ibuprofen.",
		ScheduledAt: scheduledAt,
	}
}
