package repository

import (
	"time"

	"github.com/lamallamadel/outbound-gateway/internal/model"
)

type SessionWindowEntity struct {
	ID                    int64      `db:"id"                       gorm:"primaryKey;autoIncrement;column:id"`
	OrgID                 string     `db:"org_id"                   gorm:"column:org_id;not null;uniqueIndex:uk_session_phone,priority:1"`
	PhoneNumber           string     `db:"phone_number"             gorm:"column:phone_number;not null;uniqueIndex:uk_session_phone,priority:2"`
	WindowOpensAt         time.Time  `db:"window_opens_at"          gorm:"column:window_opens_at;not null"`
	WindowExpiresAt       time.Time  `db:"window_expires_at"        gorm:"column:window_expires_at;not null;index"`
	LastInboundMessageAt  time.Time  `db:"last_inbound_message_at"  gorm:"column:last_inbound_message_at;not null"`
	LastOutboundMessageAt *time.Time `db:"last_outbound_message_at" gorm:"column:last_outbound_message_at"`
	CreatedAt             time.Time  `db:"created_at"               gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time  `db:"updated_at"               gorm:"column:updated_at;autoUpdateTime"`
}

func (SessionWindowEntity) TableName() string {
	return "whatsapp_session_windows"
}

func toSessionWindowModel(e *SessionWindowEntity) *model.SessionWindow {
	if e == nil {
		return nil
	}
	return &model.SessionWindow{
		ID:                    e.ID,
		OrgID:                 e.OrgID,
		PhoneNumber:           e.PhoneNumber,
		WindowOpensAt:         e.WindowOpensAt,
		WindowExpiresAt:       e.WindowExpiresAt,
		LastInboundMessageAt:  e.LastInboundMessageAt,
		LastOutboundMessageAt: e.LastOutboundMessageAt,
		CreatedAt:             e.CreatedAt,
		UpdatedAt:             e.UpdatedAt,
	}
}

func toSessionWindowModels(entities []*SessionWindowEntity) []*model.SessionWindow {
	models := make([]*model.SessionWindow, len(entities))
	for i, e := range entities {
		models[i] = toSessionWindowModel(e)
	}
	return models
}
