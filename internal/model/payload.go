package model

import "errors"

// Payload is the channel-specific message body. Exactly one variant must be
// set and it must match the message channel. Template variables stay as a
// string-keyed map inside the variant.
type Payload struct {
	WhatsApp *WhatsAppPayload `json:"whatsapp,omitempty"`
	SMS      *SMSPayload      `json:"sms,omitempty"`
	Email    *EmailPayload    `json:"email,omitempty"`
}

type WhatsAppPayload struct {
	Body      string            `json:"body,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

type SMSPayload struct {
	Body string `json:"body"`
}

type EmailPayload struct {
	Body      string            `json:"body,omitempty"`
	HTMLBody  string            `json:"html_body,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

var (
	ErrPayloadMissing  = errors.New("payload is required")
	ErrPayloadMismatch = errors.New("payload variant does not match channel")
)

func (p Payload) ValidateFor(ch Channel) error {
	set := 0
	if p.WhatsApp != nil {
		set++
	}
	if p.SMS != nil {
		set++
	}
	if p.Email != nil {
		set++
	}
	if set == 0 {
		return ErrPayloadMissing
	}
	if set > 1 {
		return ErrPayloadMismatch
	}

	switch ch {
	case ChannelWhatsApp:
		if p.WhatsApp == nil {
			return ErrPayloadMismatch
		}
	case ChannelSMS:
		if p.SMS == nil {
			return ErrPayloadMismatch
		}
		if p.SMS.Body == "" {
			return errors.New("sms body is required")
		}
	case ChannelEmail:
		if p.Email == nil {
			return ErrPayloadMismatch
		}
	}
	return nil
}
