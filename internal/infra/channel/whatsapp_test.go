package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"horamed/internal/domain/reminder"
)

type stubPrefs struct {
	prefs   *reminder.Preferences
	err     error
	cleared int
}

func (s *stubPrefs) Get(ctx context.Context, userID string) (*reminder.Preferences, error) {
	return s.prefs, s.err
}

func (s *stubPrefs) ClearWebPushSubscription(ctx context.Context, userID string) error {
	s.cleared++
	return nil
}

func configuredPrefs() *reminder.Preferences {
	return &reminder.Preferences{
		UserID:          "user-1",
		WhatsAppEnabled: true,
		PhoneNumber:     "+15550001111",
		InstanceID:      "inst-1",
		APIToken:        "token-1",
	}
}

func TestWhatsAppProviderSend(t *testing.T) {
	var payload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send" {
			t.Errorf("path = %q, want /send", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, err := NewWhatsAppProvider(&stubPrefs{prefs: configuredPrefs()}, server.URL, "")
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}

	req := &reminder.ReminderRequest{
		DoseID:      "dose-1",
		UserID:      "user-1",
		Title:       "Medication reminder: Ibuprofen",
		Body:        "Take 200mg of Ibuprofen.",
		ScheduledAt: time.Now(),
	}
	if err := p.Send(context.Background(), req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if payload["phone_number"] != "+15550001111" {
		t.Errorf("phone_number = %q", payload["phone_number"])
	}
	if payload["instance_id"] != "inst-1" || payload["api_token"] != "token-1" {
		t.Errorf("credentials = %q/%q", payload["instance_id"], payload["api_token"])
	}
	if !strings.Contains(payload["message"], "Medication reminder: Ibuprofen") {
		t.Errorf("message = %q, want title included", payload["message"])
	}
	if !strings.Contains(payload["message"], "Take 200mg of Ibuprofen.") {
		t.Errorf("message = %q, want body included", payload["message"])
	}
}

func TestWhatsAppProviderCustomTemplate(t *testing.T) {
	var payload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, err := NewWhatsAppProvider(&stubPrefs{prefs: configuredPrefs()}, server.URL, "Reminder: {{.Title}} at {{.Time}}")
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}

	req := &reminder.ReminderRequest{
		DoseID:      "dose-1",
		UserID:      "user-1",
		Title:       "Metformin",
		ScheduledAt: time.Now(),
	}
	if err := p.Send(context.Background(), req); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !strings.HasPrefix(payload["message"], "Reminder: Metformin at ") {
		t.Errorf("message = %q", payload["message"])
	}
}

func TestWhatsAppProviderSkips(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		prefs   *reminder.Preferences
	}{
		{name: "endpoint not configured", baseURL: "", prefs: configuredPrefs()},
		{name: "no preferences", baseURL: "http://127.0.0.1:1", prefs: nil},
		{
			name:    "whatsapp disabled",
			baseURL: "http://127.0.0.1:1",
			prefs:   &reminder.Preferences{UserID: "user-1", PhoneNumber: "+15550001111", InstanceID: "i", APIToken: "t"},
		},
		{
			name:    "missing token",
			baseURL: "http://127.0.0.1:1",
			prefs:   &reminder.Preferences{UserID: "user-1", WhatsAppEnabled: true, PhoneNumber: "+15550001111", InstanceID: "i"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewWhatsAppProvider(&stubPrefs{prefs: tt.prefs}, tt.baseURL, "")
			if err != nil {
				t.Fatalf("creating provider: %v", err)
			}
			err = p.Send(context.Background(), &reminder.ReminderRequest{DoseID: "dose-1", UserID: "user-1", Title: "t"})
			if !errors.Is(err, reminder.ErrChannelUnavailable) {
				t.Errorf("Send() error = %v, want ErrChannelUnavailable", err)
			}
		})
	}
}

func TestWhatsAppProviderAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "invalid token"})
	}))
	defer server.Close()

	p, err := NewWhatsAppProvider(&stubPrefs{prefs: configuredPrefs()}, server.URL, "")
	if err != nil {
		t.Fatalf("creating provider: %v", err)
	}

	err = p.Send(context.Background(), &reminder.ReminderRequest{DoseID: "dose-1", UserID: "user-1", Title: "t"})
	if err == nil {
		t.Fatal("Send() error = nil, want API error")
	}
	if errors.Is(err, reminder.ErrChannelUnavailable) {
		t.Errorf("Send() error = %v, want a non-skip failure", err)
	}
	if !strings.Contains(err.Error(), "invalid token") {
		t.Errorf("Send() error = %v, want provider message included", err)
	}
}
