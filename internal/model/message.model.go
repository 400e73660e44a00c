package model

import (
	"errors"
	"time"
)

// MessageStatus is the lifecycle state of an outbound message.
type MessageStatus string

const (
	MessageStatusQueued    MessageStatus = "QUEUED"
	MessageStatusSending   MessageStatus = "SENDING"
	MessageStatusSent      MessageStatus = "SENT"
	MessageStatusDelivered MessageStatus = "DELIVERED"
	MessageStatusFailed    MessageStatus = "FAILED"
	MessageStatusCancelled MessageStatus = "CANCELLED"
)

// IsTerminal reports whether no further dispatch will ever happen without
// an explicit retry.
func (s MessageStatus) IsTerminal() bool {
	return s == MessageStatusSent || s == MessageStatusDelivered ||
		s == MessageStatusFailed || s == MessageStatusCancelled
}

type Channel string

const (
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelSMS      Channel = "SMS"
	ChannelEmail    Channel = "EMAIL"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelWhatsApp, ChannelSMS, ChannelEmail:
		return true
	}
	return false
}

const DefaultMaxAttempts = 5

type Message struct {
	ID                int64         `json:"id"`
	OrgID             string        `json:"org_id"`
	DossierID         *int64        `json:"dossier_id,omitempty"`
	Channel           Channel       `json:"channel"`
	To                string        `json:"to"`
	TemplateCode      string        `json:"template_code,omitempty"`
	Subject           string        `json:"subject,omitempty"`
	Payload           Payload       `json:"payload"`
	Status            MessageStatus `json:"status"`
	ProviderMessageID string        `json:"provider_message_id,omitempty"`
	IdempotencyKey    string        `json:"idempotency_key"`
	AttemptCount      int           `json:"attempt_count"`
	MaxAttempts       int           `json:"max_attempts"`
	ErrorCode         string        `json:"error_code,omitempty"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	NextEligibleAt    *time.Time    `json:"next_eligible_at,omitempty"`
	SentAt            *time.Time    `json:"sent_at,omitempty"`
	DeliveredAt       *time.Time    `json:"delivered_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// IsTemplated reports whether the message carries a pre-approved template
// and therefore bypasses the WhatsApp session-window gate.
func (m *Message) IsTemplated() bool { return m.TemplateCode != "" }

// MessageCreateRequest is the input for creating an outbound message.
type MessageCreateRequest struct {
	OrgID          string
	DossierID      *int64
	Channel        Channel
	To             string
	TemplateCode   string
	Subject        string
	Payload        Payload
	IdempotencyKey string
	MaxAttempts    int // 0 means DefaultMaxAttempts
}

func (p MessageCreateRequest) Validate() error {
	if p.OrgID == "" {
		return errors.New("org id is required")
	}
	if !p.Channel.Valid() {
		return errors.New("channel must be one of WHATSAPP, SMS, EMAIL")
	}
	if p.To == "" {
		return errors.New("to is required")
	}
	if p.MaxAttempts < 0 {
		return errors.New("max_attempts must not be negative")
	}
	return p.Payload.ValidateFor(p.Channel)
}

// MessageFilter controls dossier listing queries.
type MessageFilter struct {
	OrgID     string
	DossierID *int64
	Statuses  []MessageStatus
	Limit     int // default 50
	Offset    int
	SortBy    string // created_at (default) or updated_at
	Desc      bool
}
