package channel

import (
	"bytes"
	"context"
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

// SMSProvider delivers campaign messages through an HTTP SMS gateway.
type SMSProvider struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type smsRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type smsResponse struct {
	MessageID string `json:"messageId"`
}

// NewSMSProvider creates the SMS gateway client, or nil when no gateway is
// configured.
func NewSMSProvider(cfg config.SMSConfig) *SMSProvider {
	if cfg.GetSMSGatewayURL() == "" {
		return nil
	}
	return &SMSProvider{
		baseURL: strings.TrimRight(cfg.GetSMSGatewayURL(), "/"),
		apiKey:  cfg.GetSMSGatewayKey(),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *SMSProvider) Channel() domain.Channel {
	return domain.ChannelSMS
}

func (p *SMSProvider) Validate(r domain.Recipient) error {
	if !phone.IsValid(r.Phone) {
		return NewSendError("invalid_number", "recipient has no valid phone number", false)
	}
	return nil
}

func (p *SMSProvider) Send(ctx context.Context, msg Message) (string, error) {
	body, err := json.Marshal(smsRequest{To: msg.To, Message: msg.Body})
	if err != nil {
		return "", fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return "", Classify(fmt.Errorf("sms request failed: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return "", classifyStatus(resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed smsResponse
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.MessageID != "" {
		return parsed.MessageID, nil
	}
	// Gateway accepted but returned no id; generate one so the recipient
	// row still carries a unique correlation key.
	return "sms-" + uuid.NewString(), nil
}
