// Package channel provides the pluggable delivery channel providers used by
// the campaign dispatcher.
package channel

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"leadflow_backend/internal/campaigns/domain"
)

// Message is one rendered outbound message.
type Message struct {
	// To is the destination address: an email address or an E.164 phone
	// number depending on the channel.
	To      string
	Subject string
	Body    string
}

// Provider sends messages over one channel.
type Provider interface {
	// Channel identifies which campaign channel this provider serves.
	Channel() domain.Channel
	// Validate checks the recipient has a usable address for this channel.
	Validate(r domain.Recipient) error
	// Send delivers the message and returns the provider's message id,
	// used later to match delivery webhooks back to the recipient.
	Send(ctx context.Context, msg Message) (string, error)
}

// Registry resolves a provider per channel.
type Registry struct {
	providers map[domain.Channel]Provider
}

// NewRegistry builds a registry from the configured providers. Nil entries
// (unconfigured channels) are skipped.
func NewRegistry(providers ...Provider) *Registry {
	reg := &Registry{providers: make(map[domain.Channel]Provider)}
	for _, p := range providers {
		if p != nil {
			reg.providers[p.Channel()] = p
		}
	}
	return reg
}

// For returns the provider for a channel.
func (r *Registry) For(ch domain.Channel) (Provider, error) {
	p, ok := r.providers[ch]
	if !ok {
		return nil, fmt.Errorf("no provider configured for channel %q", ch)
	}
	return p, nil
}

// multiPreference is the channel order tried for multi-channel campaigns.
var multiPreference = []domain.Channel{domain.ChannelWhatsApp, domain.ChannelSMS, domain.ChannelEmail}

// ForRecipient picks the provider for one recipient of a multi-channel
// campaign: the first configured provider, in preference order, whose
// validation accepts the recipient's contact details.
func (r *Registry) ForRecipient(rec domain.Recipient) (Provider, error) {
	for _, ch := range multiPreference {
		p, ok := r.providers[ch]
		if !ok {
			continue
		}
		if err := p.Validate(rec); err == nil {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no configured channel can reach this recipient")
}

// Channels lists the channels with a configured provider.
func (r *Registry) Channels() []domain.Channel {
	channels := make([]domain.Channel, 0, len(r.providers))
	for _, ch := range multiPreference {
		if _, ok := r.providers[ch]; ok {
			channels = append(channels, ch)
		}
	}
	return channels
}

// ValidateTemplate checks the body template parses, so a broken template is
// rejected at campaign creation instead of failing mid-dispatch.
func ValidateTemplate(body string) error {
	_, err := template.New("body").Option("missingkey=zero").Parse(body)
	if err != nil {
		return fmt.Errorf("parse body template: %w", err)
	}
	return nil
}

// RenderBody expands the campaign's body template with the recipient's
// variables plus the built-in name/email/phone fields.
func RenderBody(c domain.Campaign, r domain.Recipient) (string, error) {
	tmpl, err := template.New("body").Option("missingkey=zero").Parse(c.BodyTemplate)
	if err != nil {
		return "", fmt.Errorf("parse body template: %w", err)
	}

	data := make(map[string]any, len(r.Variables)+3)
	for k, v := range r.Variables {
		data[k] = v
	}
	data["name"] = r.Name
	data["email"] = r.Email
	data["phone"] = r.Phone

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render body template: %w", err)
	}
	return buf.String(), nil
}
