package channel

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"horamed/internal/domain/reminder"
)

// webPushPrefs builds a cryptographically valid subscription pointing at the
// given endpoint, so the message encrypt step succeeds and Send reaches the
// push service.
func webPushPrefs(t *testing.T, endpoint string) *reminder.Preferences {
	t.Helper()

	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating subscription key: %v", err)
	}
	var auth [16]byte
	if _, err := rand.Read(auth[:]); err != nil {
		t.Fatalf("generating auth secret: %v", err)
	}

	return &reminder.Preferences{
		UserID:          "user-1",
		WebPushEndpoint: endpoint,
		WebPushAuth:     base64.RawURLEncoding.EncodeToString(auth[:]),
		WebPushP256dh:   base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
	}
}

func vapidKeys(t *testing.T) (private, public string) {
	t.Helper()
	private, public, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generating VAPID keys: %v", err)
	}
	return private, public
}

func TestWebPushProviderSkips(t *testing.T) {
	tests := []struct {
		name    string
		public  string
		private string
		prefs   *reminder.Preferences
	}{
		{name: "vapid keys missing", prefs: &reminder.Preferences{UserID: "user-1"}},
		{name: "no preferences", public: "pub", private: "priv", prefs: nil},
		{
			name:   "partial subscription",
			public: "pub", private: "priv",
			prefs: &reminder.Preferences{UserID: "user-1", WebPushEndpoint: "https://push.example.com/sub"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewWebPushProvider(&stubPrefs{prefs: tt.prefs}, "mailto:ops@example.com", tt.public, tt.private, 0)
			err := p.Send(context.Background(), &reminder.ReminderRequest{DoseID: "dose-1", UserID: "user-1", Title: "t"})
			if !errors.Is(err, reminder.ErrChannelUnavailable) {
				t.Errorf("Send() error = %v, want ErrChannelUnavailable", err)
			}
		})
	}
}

func TestWebPushProviderHonorsContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	private, public := vapidKeys(t)
	prefs := &stubPrefs{prefs: webPushPrefs(t, server.URL)}
	p := NewWebPushProvider(prefs, "mailto:ops@example.com", public, private, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Send(ctx, &reminder.ReminderRequest{DoseID: "dose-1", UserID: "user-1", Title: "t"})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Send() error = nil, want context deadline failure")
	}
	if elapsed > time.Second {
		t.Errorf("Send() returned after %v, want well under the stalled service's response time", elapsed)
	}
}

func TestWebPushProviderGoneClearsSubscription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	private, public := vapidKeys(t)
	prefs := &stubPrefs{prefs: webPushPrefs(t, server.URL)}
	p := NewWebPushProvider(prefs, "mailto:ops@example.com", public, private, 0)

	err := p.Send(context.Background(), &reminder.ReminderRequest{DoseID: "dose-1", UserID: "user-1", Title: "t"})
	// An expired subscription is a skip, not a hard failure: no channel is
	// available for this user until the client re-registers.
	if !errors.Is(err, reminder.ErrChannelUnavailable) {
		t.Errorf("Send() error = %v, want ErrChannelUnavailable", err)
	}
	if prefs.cleared != 1 {
		t.Errorf("subscription clears = %d, want 1", prefs.cleared)
	}
}

func TestWebPushProviderPrefsErrorIsFailure(t *testing.T) {
	p := NewWebPushProvider(&stubPrefs{err: errors.New("backend unreachable")}, "mailto:ops@example.com", "pub", "priv", 0)
	err := p.Send(context.Background(), &reminder.ReminderRequest{DoseID: "dose-1", UserID: "user-1", Title: "t"})
	if err == nil {
		t.Fatal("Send() error = nil, want failure")
	}
	if errors.Is(err, reminder.ErrChannelUnavailable) {
		t.Errorf("Send() error = %v, want a non-skip failure", err)
	}
}
