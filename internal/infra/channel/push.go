package channel

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"horamed/internal/domain/reminder"
)

var _ reminder.ChannelAdapter = (*PushProvider)(nil)

// PushProvider schedules native device notifications through the push
// gateway that fronts the mobile app shells.
type PushProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewPushProvider creates a new push gateway provider.
func NewPushProvider(baseURL, apiKey string) *PushProvider {
	return &PushProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the native push channel identifier.
func (p *PushProvider) Name() reminder.Channel {
	return reminder.ChannelPush
}

// Send schedules a native notification at the reminder's due time.
func (p *PushProvider) Send(ctx context.Context, req *reminder.ReminderRequest) error {
	if p.baseURL == "" || p.apiKey == "" {
		return fmt.Errorf("%w: push gateway not configured", reminder.ErrChannelUnavailable)
	}

	payload := map[string]any{
		"id":      NotificationID(req.DoseID),
		"user_id": req.UserID,
		"title":   req.Title,
		"body":    req.Body,
		"fire_at": req.ScheduledAt.UTC().Format(time.RFC3339),
		"extra": map[string]string{
			"dose_id": req.DoseID,
			"item_id": req.ItemID,
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling push payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/schedule", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &errResp)

		msg := errResp.Message
		if msg == "" {
			msg = fmt.Sprintf("push gateway error: status %d", resp.StatusCode)
		}
		return fmt.Errorf("push: %s", msg)
	}

	return nil
}

// NotificationID derives a stable small integer from a dose ID so that
// rescheduling the same dose replaces the OS notification instead of
// duplicating it. Digits are extracted from the ID and truncated to eight;
// IDs without digits get a random identifier.
func NotificationID(doseID string) int {
	var digits []byte
	for i := 0; i < len(doseID) && len(digits) < 8; i++ {
		if doseID[i] >= '0' && doseID[i] <= '9' {
			digits = append(digits, doseID[i])
		}
	}

	if len(digits) == 0 {
		var buf [4]byte
		_, _ = rand.Read(buf[:])
		return int(binary.BigEndian.Uint32(buf[:]) % 100_000_000)
	}

	n, _ := strconv.Atoi(string(digits))
	return n
}
