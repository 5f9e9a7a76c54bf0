package channel

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadflow_backend/internal/campaigns/domain"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/phone"

	"github.com/google/uuid"
)

// WhatsAppProvider delivers campaign messages through a gowa-style WhatsApp
// gateway.
type WhatsAppProvider struct {
	baseURL  string
	apiKey   string
	deviceID string
	http     *http.Client
}

type gowaRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type gowaResponse struct {
	MessageID string `json:"message_id"`
}

// NewWhatsAppProvider creates the WhatsApp gateway client, or nil when no
// gateway is configured.
func NewWhatsAppProvider(cfg config.WhatsAppConfig) *WhatsAppProvider {
	if cfg.GetWhatsAppURL() == "" {
		return nil
	}
	return &WhatsAppProvider{
		baseURL:  strings.TrimRight(cfg.GetWhatsAppURL(), "/"),
		apiKey:   cfg.GetWhatsAppKey(),
		deviceID: cfg.GetWhatsAppDeviceID(),
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *WhatsAppProvider) Channel() domain.Channel {
	return domain.ChannelWhatsApp
}

func (p *WhatsAppProvider) Validate(r domain.Recipient) error {
	if !phone.IsValid(r.Phone) {
		return NewSendError("invalid_number", "recipient has no valid phone number", false)
	}
	return nil
}

func (p *WhatsAppProvider) Send(ctx context.Context, msg Message) (string, error) {
	normalized := strings.TrimPrefix(phone.NormalizeE164(msg.To), "+")

	body, err := json.Marshal(gowaRequest{Phone: normalized, Message: msg.Body})
	if err != nil {
		return "", fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/send/message", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(p.apiKey))
	}
	if p.deviceID != "" {
		req.Header.Set("X-Device-Id", p.deviceID)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return "", Classify(fmt.Errorf("whatsapp request failed: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return "", classifyStatus(resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed gowaResponse
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.MessageID != "" {
		return parsed.MessageID, nil
	}
	return "wa-" + uuid.NewString(), nil
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
