package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"horamed/internal/domain/reminder"
)

var _ reminder.ChannelAdapter = (*WebPushProvider)(nil)

// WebPushProvider delivers browser notifications over the Web Push protocol
// using the user's stored subscription and the service's VAPID key pair.
type WebPushProvider struct {
	prefs           reminder.PreferenceStore
	subscriber      string
	vapidPublicKey  string
	vapidPrivateKey string
	ttl             int
}

// NewWebPushProvider creates a new web push provider.
func NewWebPushProvider(prefs reminder.PreferenceStore, subscriber, vapidPublicKey, vapidPrivateKey string, ttlSeconds int) *WebPushProvider {
	if ttlSeconds <= 0 {
		ttlSeconds = 60
	}
	return &WebPushProvider{
		prefs:           prefs,
		subscriber:      subscriber,
		vapidPublicKey:  vapidPublicKey,
		vapidPrivateKey: vapidPrivateKey,
		ttl:             ttlSeconds,
	}
}

// Name returns the web push channel identifier.
func (p *WebPushProvider) Name() reminder.Channel {
	return reminder.ChannelWebPush
}

// Send pushes the reminder to the user's registered browser subscription.
func (p *WebPushProvider) Send(ctx context.Context, req *reminder.ReminderRequest) error {
	if p.vapidPublicKey == "" || p.vapidPrivateKey == "" {
		return fmt.Errorf("%w: VAPID keys not configured", reminder.ErrChannelUnavailable)
	}

	prefs, err := p.prefs.Get(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("fetching preferences: %w", err)
	}
	if !prefs.WebPushConfigured() {
		return fmt.Errorf("%w: no web push subscription", reminder.ErrChannelUnavailable)
	}

	message, err := json.Marshal(map[string]string{
		"title":   req.Title,
		"body":    req.Body,
		"dose_id": req.DoseID,
		"item_id": req.ItemID,
	})
	if err != nil {
		return fmt.Errorf("marshaling push message: %w", err)
	}

	sub := &webpush.Subscription{
		Endpoint: prefs.WebPushEndpoint,
		Keys: webpush.Keys{
			Auth:   prefs.WebPushAuth,
			P256dh: prefs.WebPushP256dh,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, message, sub, &webpush.Options{
		Subscriber:      p.subscriber,
		VAPIDPublicKey:  p.vapidPublicKey,
		VAPIDPrivateKey: p.vapidPrivateKey,
		TTL:             p.ttl,
	})
	if err != nil {
		return fmt.Errorf("sending web push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		// Subscription expired; drop it so the client must re-register and
		// later attempts skip the channel instead of hard-failing.
		if err := p.prefs.ClearWebPushSubscription(ctx, req.UserID); err != nil {
			slog.Error("failed to clear expired web push subscription", "user_id", req.UserID, "error", err)
		} else {
			slog.Warn("web push subscription gone, cleared", "user_id", req.UserID)
		}
		return fmt.Errorf("%w: web push subscription expired", reminder.ErrChannelUnavailable)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("web push rejected: status %d", resp.StatusCode)
	}

	return nil
}
