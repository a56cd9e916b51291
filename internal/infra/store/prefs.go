package store

import (
	"context"
	"encoding/json"
	"fmt"

	"horamed/internal/domain/reminder"
)

const prefsTable = "notification_preferences"

var _ reminder.PreferenceStore = (*PreferenceStore)(nil)

// PreferenceStore reads per-user notification preferences from Supabase.
type PreferenceStore struct {
	client *Client
}

// NewPreferenceStore creates a Supabase-backed preference reader.
func NewPreferenceStore(client *Client) *PreferenceStore {
	return &PreferenceStore{client: client}
}

type prefsRow struct {
	UserID          string  `json:"user_id"`
	WhatsAppEnabled bool    `json:"whatsapp_enabled"`
	PhoneNumber     *string `json:"phone_number,omitempty"`
	InstanceID      *string `json:"instance_id,omitempty"`
	APIToken        *string `json:"api_token,omitempty"`
	WebPushEndpoint *string `json:"webpush_endpoint,omitempty"`
	WebPushAuth     *string `json:"webpush_auth,omitempty"`
	WebPushP256dh   *string `json:"webpush_p256dh,omitempty"`
}

// Get retrieves preferences for a user. Returns nil, nil when the user never
// configured any.
func (s *PreferenceStore) Get(ctx context.Context, userID string) (*reminder.Preferences, error) {
	data, _, err := s.client.sb.From(prefsTable).
		Select("*", "exact", false).
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("fetching preferences: %w", err)
	}

	var rows []prefsRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parsing preferences: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	prefs := &reminder.Preferences{
		UserID:          row.UserID,
		WhatsAppEnabled: row.WhatsAppEnabled,
	}
	if row.PhoneNumber != nil {
		prefs.PhoneNumber = *row.PhoneNumber
	}
	if row.InstanceID != nil {
		prefs.InstanceID = *row.InstanceID
	}
	if row.APIToken != nil {
		prefs.APIToken = *row.APIToken
	}
	if row.WebPushEndpoint != nil {
		prefs.WebPushEndpoint = *row.WebPushEndpoint
	}
	if row.WebPushAuth != nil {
		prefs.WebPushAuth = *row.WebPushAuth
	}
	if row.WebPushP256dh != nil {
		prefs.WebPushP256dh = *row.WebPushP256dh
	}

	return prefs, nil
}

// ClearWebPushSubscription removes a user's stored web push subscription.
// Invoked when the push service reports the subscription gone (410).
func (s *PreferenceStore) ClearWebPushSubscription(ctx context.Context, userID string) error {
	update := map[string]any{
		"webpush_endpoint": nil,
		"webpush_auth":     nil,
		"webpush_p256dh":   nil,
	}

	_, _, err := s.client.sb.From(prefsTable).
		Update(update, "minimal", "").
		Eq("user_id", userID).
		Execute()
	if err != nil {
		return fmt.Errorf("clearing web push subscription: %w", err)
	}
	return nil
}
