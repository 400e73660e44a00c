package repository

import (
	"time"

	"github.com/lamallamadel/outbound-gateway/internal/model"
)

type AttemptEntity struct {
	ID              int64      `db:"id"               gorm:"primaryKey;autoIncrement;column:id"`
	OrgID           string     `db:"org_id"           gorm:"column:org_id;not null;index"`
	MessageID       int64      `db:"message_id"       gorm:"column:message_id;not null;index"`
	AttemptNo       int        `db:"attempt_no"       gorm:"column:attempt_no;not null"`
	Status          string     `db:"status"           gorm:"column:status;not null;index"`
	ProviderCode    string     `db:"provider_code"    gorm:"column:provider_code"`
	ProviderMessage string     `db:"provider_message" gorm:"column:provider_message"`
	NextRetryAt     *time.Time `db:"next_retry_at"    gorm:"column:next_retry_at"`
	StartedAt       time.Time  `db:"started_at"       gorm:"column:started_at;autoCreateTime"`
	CompletedAt     *time.Time `db:"completed_at"     gorm:"column:completed_at"`
}

func (AttemptEntity) TableName() string {
	return "outbound_attempts"
}

func toAttemptEntity(a *model.Attempt) *AttemptEntity {
	if a == nil {
		return nil
	}
	return &AttemptEntity{
		ID:              a.ID,
		OrgID:           a.OrgID,
		MessageID:       a.MessageID,
		AttemptNo:       a.AttemptNo,
		Status:          string(a.Status),
		ProviderCode:    a.ProviderCode,
		ProviderMessage: a.ProviderMessage,
		NextRetryAt:     a.NextRetryAt,
		StartedAt:       a.StartedAt,
		CompletedAt:     a.CompletedAt,
	}
}

func toAttemptModel(e *AttemptEntity) *model.Attempt {
	if e == nil {
		return nil
	}
	return &model.Attempt{
		ID:              e.ID,
		OrgID:           e.OrgID,
		MessageID:       e.MessageID,
		AttemptNo:       e.AttemptNo,
		Status:          model.AttemptStatus(e.Status),
		ProviderCode:    e.ProviderCode,
		ProviderMessage: e.ProviderMessage,
		NextRetryAt:     e.NextRetryAt,
		StartedAt:       e.StartedAt,
		CompletedAt:     e.CompletedAt,
	}
}

func toAttemptModels(entities []*AttemptEntity) []*model.Attempt {
	models := make([]*model.Attempt, len(entities))
	for i, e := range entities {
		models[i] = toAttemptModel(e)
	}
	return models
}
