package repository

import (
	"encoding/json"
	"time"

	"github.com/lamallamadel/outbound-gateway/internal/model"
)

type MessageEntity struct {
	ID                int64      `db:"id"                  gorm:"primaryKey;autoIncrement;column:id"`
	OrgID             string     `db:"org_id"              gorm:"column:org_id;not null;index;uniqueIndex:uk_outbound_idempotency,priority:1"`
	DossierID         *int64     `db:"dossier_id"          gorm:"column:dossier_id;index"`
	Channel           string     `db:"channel"             gorm:"column:channel;not null"`
	ToRecipient       string     `db:"to_recipient"        gorm:"column:to_recipient;not null"`
	TemplateCode      string     `db:"template_code"       gorm:"column:template_code"`
	Subject           string     `db:"subject"             gorm:"column:subject"`
	PayloadJSON       string     `db:"payload_json"        gorm:"column:payload_json"`
	Status            string     `db:"status"              gorm:"column:status;not null;index"`
	ProviderMessageID string     `db:"provider_message_id" gorm:"column:provider_message_id"`
	IdempotencyKey    string     `db:"idempotency_key"     gorm:"column:idempotency_key;not null;uniqueIndex:uk_outbound_idempotency,priority:2"`
	AttemptCount      int        `db:"attempt_count"       gorm:"column:attempt_count;not null;default:0"`
	MaxAttempts       int        `db:"max_attempts"        gorm:"column:max_attempts;not null;default:5"`
	ErrorCode         string     `db:"error_code"          gorm:"column:error_code"`
	ErrorMessage      string     `db:"error_message"       gorm:"column:error_message"`
	NextEligibleAt    *time.Time `db:"next_eligible_at"    gorm:"column:next_eligible_at"`
	SentAt            *time.Time `db:"sent_at"             gorm:"column:sent_at"`
	DeliveredAt       *time.Time `db:"delivered_at"        gorm:"column:delivered_at"`
	CreatedAt         time.Time  `db:"created_at"          gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `db:"updated_at"          gorm:"column:updated_at;autoUpdateTime"`

	Attempts []*AttemptEntity `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
}

func (MessageEntity) TableName() string {
	return "outbound_messages"
}

func toMessageEntity(m *model.Message) *MessageEntity {
	if m == nil {
		return nil
	}
	payload, _ := json.Marshal(m.Payload)
	return &MessageEntity{
		ID:                m.ID,
		OrgID:             m.OrgID,
		DossierID:         m.DossierID,
		Channel:           string(m.Channel),
		ToRecipient:       m.To,
		TemplateCode:      m.TemplateCode,
		Subject:           m.Subject,
		PayloadJSON:       string(payload),
		Status:            string(m.Status),
		ProviderMessageID: m.ProviderMessageID,
		IdempotencyKey:    m.IdempotencyKey,
		AttemptCount:      m.AttemptCount,
		MaxAttempts:       m.MaxAttempts,
		ErrorCode:         m.ErrorCode,
		ErrorMessage:      m.ErrorMessage,
		NextEligibleAt:    m.NextEligibleAt,
		SentAt:            m.SentAt,
		DeliveredAt:       m.DeliveredAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toMessageModel(e *MessageEntity) *model.Message {
	if e == nil {
		return nil
	}
	var payload model.Payload
	if e.PayloadJSON != "" {
		_ = json.Unmarshal([]byte(e.PayloadJSON), &payload)
	}
	return &model.Message{
		ID:                e.ID,
		OrgID:             e.OrgID,
		DossierID:         e.DossierID,
		Channel:           model.Channel(e.Channel),
		To:                e.ToRecipient,
		TemplateCode:      e.TemplateCode,
		Subject:           e.Subject,
		Payload:           payload,
		Status:            model.MessageStatus(e.Status),
		ProviderMessageID: e.ProviderMessageID,
		IdempotencyKey:    e.IdempotencyKey,
		AttemptCount:      e.AttemptCount,
		MaxAttempts:       e.MaxAttempts,
		ErrorCode:         e.ErrorCode,
		ErrorMessage:      e.ErrorMessage,
		NextEligibleAt:    e.NextEligibleAt,
		SentAt:            e.SentAt,
		DeliveredAt:       e.DeliveredAt,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func toMessageModels(entities []*MessageEntity) []*model.Message {
	models := make([]*model.Message, len(entities))
	for i, e := range entities {
		models[i] = toMessageModel(e)
	}
	return models
}
