package reminder

import (
	"context"
	"testing"
	"time"
)

func outcomeRow(userID string, channel Channel, status OutcomeStatus, age time.Duration) *DeliveryOutcome {
	return &DeliveryOutcome{
		UserID:    userID,
		DoseID:    "dose-1",
		Channel:   channel,
		Status:    status,
		CreatedAt: time.Now().UTC().Add(-age),
	}
}

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name     string
		rows     []*DeliveryOutcome
		wantRate string
		want     Stats
	}{
		{
			name:     "no rows",
			wantRate: "0",
		},
		{
			name: "half successful",
			rows: []*DeliveryOutcome{
				outcomeRow("user-1", ChannelPush, OutcomeFailed, time.Hour),
				outcomeRow("user-1", ChannelWebPush, OutcomeSent, time.Hour),
			},
			wantRate: "50.0",
			want:     Stats{Total: 2, Sent: 1, Failed: 1},
		},
		{
			name: "delivered receipts count as success",
			rows: []*DeliveryOutcome{
				outcomeRow("user-1", ChannelWhatsApp, OutcomeSent, time.Hour),
				outcomeRow("user-1", ChannelWhatsApp, OutcomeDelivered, time.Hour),
				outcomeRow("user-1", ChannelFallback, OutcomeFallback, time.Hour),
			},
			wantRate: "66.7",
			want:     Stats{Total: 3, Sent: 1, Delivered: 1, Fallback: 1},
		},
		{
			name: "other users excluded",
			rows: []*DeliveryOutcome{
				outcomeRow("user-1", ChannelPush, OutcomeSent, time.Hour),
				outcomeRow("user-2", ChannelPush, OutcomeFailed, time.Hour),
			},
			wantRate: "100.0",
			want:     Stats{Total: 1, Sent: 1},
		},
		{
			name: "rows outside the window excluded",
			rows: []*DeliveryOutcome{
				outcomeRow("user-1", ChannelPush, OutcomeSent, time.Hour),
				outcomeRow("user-1", ChannelPush, OutcomeFailed, 10*24*time.Hour),
			},
			wantRate: "100.0",
			want:     Stats{Total: 1, Sent: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memMetricsStore{}
			for _, row := range tt.rows {
				if err := store.Append(context.Background(), row); err != nil {
					t.Fatalf("appending row: %v", err)
				}
			}

			stats, err := ComputeStats(context.Background(), store, "user-1", 7)
			if err != nil {
				t.Fatalf("ComputeStats() error = %v", err)
			}

			if stats.SuccessRate != tt.wantRate {
				t.Errorf("success rate = %q, want %q", stats.SuccessRate, tt.wantRate)
			}
			if stats.Total != tt.want.Total {
				t.Errorf("total = %d, want %d", stats.Total, tt.want.Total)
			}
			if stats.Sent != tt.want.Sent {
				t.Errorf("sent = %d, want %d", stats.Sent, tt.want.Sent)
			}
			if stats.Delivered != tt.want.Delivered {
				t.Errorf("delivered = %d, want %d", stats.Delivered, tt.want.Delivered)
			}
			if stats.Failed != tt.want.Failed {
				t.Errorf("failed = %d, want %d", stats.Failed, tt.want.Failed)
			}
			if stats.Fallback != tt.want.Fallback {
				t.Errorf("fallback = %d, want %d", stats.Fallback, tt.want.Fallback)
			}
			if stats.ByChannel == nil {
				t.Error("by_channel map is nil, want empty map")
			}
		})
	}
}

func TestFormatSuccessRate(t *testing.T) {
	tests := []struct {
		successes, total int
		want             string
	}{
		{0, 0, "0"},
		{0, 4, "0.0"},
		{1, 2, "50.0"},
		{2, 3, "66.7"},
		{3, 3, "100.0"},
	}
	for _, tt := range tests {
		if got := formatSuccessRate(tt.successes, tt.total); got != tt.want {
			t.Errorf("formatSuccessRate(%d, %d) = %q, want %q", tt.successes, tt.total, got, tt.want)
		}
	}
}

func TestRecorderFlushesOnClose(t *testing.T) {
	store := &memMetricsStore{}
	r := NewRecorder(store, 16)

	for i := 0; i < 5; i++ {
		r.Record(outcomeRow("user-1", ChannelPush, OutcomeSent, 0))
	}
	r.Close()

	stats, err := store.Aggregate(context.Background(), "user-1", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("aggregating: %v", err)
	}
	if stats.Total != 5 {
		t.Errorf("rows written = %d, want 5", stats.Total)
	}
}

func TestRecorderDropsWhenFullInsteadOfBlocking(t *testing.T) {
	store := &memMetricsStore{}
	r := &Recorder{
		store:  store,
		buf:    make(chan *DeliveryOutcome, 1),
		closed: make(chan struct{}),
	}
	// No drain goroutine: the buffer fills after one row, further records
	// must return without blocking.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			r.Record(outcomeRow("user-1", ChannelPush, OutcomeSent, 0))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}
}

func TestRecorderDropsAfterClose(t *testing.T) {
	store := &memMetricsStore{}
	r := NewRecorder(store, 16)
	r.Close()

	// Must not panic or block.
	r.Record(outcomeRow("user-1", ChannelPush, OutcomeSent, 0))

	stats, _ := store.Aggregate(context.Background(), "user-1", time.Now().UTC().Add(-time.Minute))
	if stats.Total != 0 {
		t.Errorf("rows written after close = %d, want 0", stats.Total)
	}
}
