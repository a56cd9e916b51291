package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/template"
	"time"

	"horamed/internal/domain/reminder"
)

var _ reminder.ChannelAdapter = (*WhatsAppProvider)(nil)

// defaultMessageTemplate renders the outbound WhatsApp text. Overridable per
// deployment through config so operators can localize the copy.
const defaultMessageTemplate = `{{.Title}}

{{.Body}}
Scheduled for {{.Time}}.`

// WhatsAppProvider sends reminder messages through a WhatsApp HTTP API.
// Credentials are per-user: the instance ID and API token stored in the
// user's notification preferences select the provider account to use.
type WhatsAppProvider struct {
	prefs      reminder.PreferenceStore
	baseURL    string
	tmpl       *template.Template
	httpClient *http.Client
}

// NewWhatsAppProvider creates a new WhatsApp provider. messageTemplate may be
// empty to use the default copy.
func NewWhatsAppProvider(prefs reminder.PreferenceStore, baseURL, messageTemplate string) (*WhatsAppProvider, error) {
	if messageTemplate == "" {
		messageTemplate = defaultMessageTemplate
	}
	tmpl, err := template.New("whatsapp").Parse(messageTemplate)
	if err != nil {
		return nil, fmt.Errorf("parsing whatsapp message template: %w", err)
	}

	return &WhatsAppProvider{
		prefs:      prefs,
		baseURL:    baseURL,
		tmpl:       tmpl,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Name returns the WhatsApp channel identifier.
func (p *WhatsAppProvider) Name() reminder.Channel {
	return reminder.ChannelWhatsApp
}

// Send delivers the reminder as a WhatsApp message. Attempted only when the
// user's preferences carry the enabled flag, destination number, instance ID
// and API token.
func (p *WhatsAppProvider) Send(ctx context.Context, req *reminder.ReminderRequest) error {
	if p.baseURL == "" {
		return fmt.Errorf("%w: whatsapp endpoint not configured", reminder.ErrChannelUnavailable)
	}

	prefs, err := p.prefs.Get(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("fetching preferences: %w", err)
	}
	if !prefs.WhatsAppConfigured() {
		return fmt.Errorf("%w: whatsapp not configured for user", reminder.ErrChannelUnavailable)
	}

	message, err := p.renderMessage(req)
	if err != nil {
		return fmt.Errorf("rendering whatsapp message: %w", err)
	}

	payload := map[string]string{
		"phone_number": prefs.PhoneNumber,
		"message":      message,
		"instance_id":  prefs.InstanceID,
		"api_token":    prefs.APIToken,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling whatsapp payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/send", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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
			msg = fmt.Sprintf("whatsapp API error: status %d", resp.StatusCode)
		}
		return fmt.Errorf("whatsapp: %s", msg)
	}

	return nil
}

func (p *WhatsAppProvider) renderMessage(req *reminder.ReminderRequest) (string, error) {
	var buf bytes.Buffer
	err := p.tmpl.Execute(&buf, map[string]string{
		"Title": req.Title,
		"Body":  req.Body,
		"Time":  req.ScheduledAt.Local().Format("15:04"),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
