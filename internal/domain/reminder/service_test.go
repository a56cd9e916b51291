package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"horamed/internal/common"
)

type stubEnqueuer struct {
	reqs []*ReminderRequest
	err  error
}

func (e *stubEnqueuer) EnqueueDeliverReminder(req *ReminderRequest) error {
	if e.err != nil {
		return e.err
	}
	e.reqs = append(e.reqs, req)
	return nil
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (l *stubLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	return l.allowed, l.err
}

func TestServiceEnqueue(t *testing.T) {
	tests := []struct {
		name      string
		req       *ReminderRequest
		limiter   *stubLimiter
		wantErr   bool
		wantCalls int
	}{
		{
			name:      "valid request",
			req:       testRequest("dose-1", time.Now().UTC().Add(time.Hour)),
			limiter:   &stubLimiter{allowed: true},
			wantCalls: 1,
		},
		{
			name:    "missing scheduled_at",
			req:     &ReminderRequest{DoseID: "dose-1", UserID: "user-1", Title: "t"},
			limiter: &stubLimiter{allowed: true},
			wantErr: true,
		},
		{
			name:    "rate limited",
			req:     testRequest("dose-1", time.Now().UTC().Add(time.Hour)),
			limiter: &stubLimiter{allowed: false},
			wantErr: true,
		},
		{
			name:      "limiter outage fails open",
			req:       testRequest("dose-1", time.Now().UTC().Add(time.Hour)),
			limiter:   &stubLimiter{err: errors.New("redis down")},
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enqueuer := &stubEnqueuer{}
			svc := NewService(newMemFallbackStore(), &memMetricsStore{}, &collectRecorder{}, enqueuer, tt.limiter, &nopAudit{})

			resp, err := svc.Enqueue(context.Background(), tt.req)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Enqueue() error = nil, want error")
				}
				var valErr *common.ValidationError
				if !errors.As(err, &valErr) {
					t.Errorf("error type = %T, want *common.ValidationError", err)
				}
			} else {
				if err != nil {
					t.Fatalf("Enqueue() error = %v", err)
				}
				if resp.Status != "queued" {
					t.Errorf("response status = %q, want %q", resp.Status, "queued")
				}
				if resp.DoseID != tt.req.DoseID {
					t.Errorf("response dose id = %q, want %q", resp.DoseID, tt.req.DoseID)
				}
			}
			if len(enqueuer.reqs) != tt.wantCalls {
				t.Errorf("enqueued = %d, want %d", len(enqueuer.reqs), tt.wantCalls)
			}
		})
	}
}

func TestServiceGetEntryNotFound(t *testing.T) {
	svc := NewService(newMemFallbackStore(), &memMetricsStore{}, &collectRecorder{}, &stubEnqueuer{}, nil, &nopAudit{})

	_, err := svc.GetEntry(context.Background(), "missing")
	var nfErr *common.NotFoundError
	if !errors.As(err, &nfErr) {
		t.Errorf("error type = %T, want *common.NotFoundError", err)
	}
}

func TestServiceGetStatsRequiresUser(t *testing.T) {
	svc := NewService(newMemFallbackStore(), &memMetricsStore{}, &collectRecorder{}, &stubEnqueuer{}, nil, &nopAudit{})

	_, err := svc.GetStats(context.Background(), "", 7)
	var valErr *common.ValidationError
	if !errors.As(err, &valErr) {
		t.Errorf("error type = %T, want *common.ValidationError", err)
	}
}

func TestServiceHandleDeliveryReceipt(t *testing.T) {
	recorder := &collectRecorder{}
	audit := &nopAudit{}
	svc := NewService(newMemFallbackStore(), &memMetricsStore{}, recorder, &stubEnqueuer{}, nil, audit)

	if err := svc.HandleDeliveryReceipt(context.Background(), "user-1", "dose-1"); err != nil {
		t.Fatalf("HandleDeliveryReceipt() error = %v", err)
	}

	rows := recorder.byChannel(ChannelWhatsApp)
	if len(rows) != 1 || rows[0].Status != OutcomeDelivered {
		t.Fatalf("recorded outcomes = %+v, want one delivered whatsapp row", rows)
	}
	if audit.actions["whatsapp_delivery_receipt"] != 1 {
		t.Errorf("audit receipts = %d, want 1", audit.actions["whatsapp_delivery_receipt"])
	}

	if err := svc.HandleDeliveryReceipt(context.Background(), "user-1", ""); err == nil {
		t.Error("HandleDeliveryReceipt() with empty dose id: error = nil, want error")
	}
}
