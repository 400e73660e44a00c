package fixtures

import (
	"fmt"
	"time"

	"github.com/lamallamadel/outbound-gateway/internal/model"
)

const (
	TestOrgA = "org-a"
	TestOrgB = "org-b"
)

func NewWhatsAppCreateRequest(orgID, to, key string) model.MessageCreateRequest {
	return model.MessageCreateRequest{
		OrgID:          orgID,
		Channel:        model.ChannelWhatsApp,
		To:             to,
		IdempotencyKey: key,
		Payload: model.Payload{
			WhatsApp: &model.WhatsAppPayload{Body: "Hello from the gateway"},
		},
	}
}

func NewWhatsAppTemplateCreateRequest(orgID, to, templateCode, key string) model.MessageCreateRequest {
	req := NewWhatsAppCreateRequest(orgID, to, key)
	req.TemplateCode = templateCode
	req.Payload = model.Payload{
		WhatsApp: &model.WhatsAppPayload{
			Variables: map[string]string{"name": "Alex"},
		},
	}
	return req
}

func NewSMSCreateRequest(orgID, to, key string) model.MessageCreateRequest {
	return model.MessageCreateRequest{
		OrgID:          orgID,
		Channel:        model.ChannelSMS,
		To:             to,
		IdempotencyKey: key,
		Payload: model.Payload{
			SMS: &model.SMSPayload{Body: "Your appointment is confirmed"},
		},
	}
}

func NewEmailCreateRequest(orgID, to, key string) model.MessageCreateRequest {
	return model.MessageCreateRequest{
		OrgID:          orgID,
		Channel:        model.ChannelEmail,
		To:             to,
		Subject:        "Appointment confirmation",
		IdempotencyKey: key,
		Payload: model.Payload{
			Email: &model.EmailPayload{Body: "Your appointment is confirmed"},
		},
	}
}

func NewQueuedMessage(orgID, to string, maxAttempts int) *model.Message {
	return &model.Message{
		OrgID:          orgID,
		Channel:        model.ChannelWhatsApp,
		To:             to,
		Status:         model.MessageStatusQueued,
		IdempotencyKey: fmt.Sprintf("fixture-%d", time.Now().UnixNano()),
		MaxAttempts:    maxAttempts,
		Payload: model.Payload{
			WhatsApp: &model.WhatsAppPayload{Body: "Hello"},
		},
	}
}

var ValidPhoneNumbers = []string{
	"+14155550100",
	"+447700900123",
	"+33612345678",
	"+4915112345678",
}

var InvalidPhoneNumbers = []string{
	"",
	"14155550100",
	"not-a-number",
}
