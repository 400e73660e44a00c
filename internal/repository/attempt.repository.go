package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lamallamadel/outbound-gateway/internal/model"
	"github.com/lamallamadel/outbound-gateway/pkg/pg"
	"gorm.io/gorm"
)

type AttemptRepository struct {
	*pg.DB
}

func NewAttemptRepository(db *pg.DB) *AttemptRepository {
	return &AttemptRepository{
		db,
	}
}

func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) (*model.Attempt, error) {
	entity := toAttemptEntity(a)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toAttemptModel(entity), nil
}

// MarkSuccess closes a TRYING attempt.
func (r *AttemptRepository) MarkSuccess(ctx context.Context, id int64, providerCode, providerMsg string) error {
	now := time.Now()
	return r.Write(ctx).Model(&AttemptEntity{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":           string(model.AttemptStatusSuccess),
		"provider_code":    providerCode,
		"provider_message": providerMsg,
		"completed_at":     now,
	}).Error
}

// MarkFailed closes a TRYING attempt with the failure detail; nextRetryAt is
// only set while another attempt remains.
func (r *AttemptRepository) MarkFailed(ctx context.Context, id int64, providerCode, providerMsg string, nextRetryAt *time.Time) error {
	now := time.Now()
	return r.Write(ctx).Model(&AttemptEntity{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":           string(model.AttemptStatusFailed),
		"provider_code":    providerCode,
		"provider_message": providerMsg,
		"next_retry_at":    nextRetryAt,
		"completed_at":     now,
	}).Error
}

func (r *AttemptRepository) ListByMessage(ctx context.Context, messageID int64) ([]*model.Attempt, error) {
	var entities []*AttemptEntity
	err := r.Read(ctx).
		Where("message_id = ?", messageID).
		Order("attempt_no ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toAttemptModels(entities), nil
}

func (r *AttemptRepository) LatestByMessage(ctx context.Context, messageID int64) (*model.Attempt, error) {
	var entity AttemptEntity
	err := r.Read(ctx).
		Where("message_id = ?", messageID).
		Order("attempt_no DESC").
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toAttemptModel(&entity), nil
}

type errorCodeCount struct {
	ProviderCode string `gorm:"column:provider_code"`
	Total        int64  `gorm:"column:total"`
}

// CountFailuresByCode groups failed attempts since the cutoff by provider
// error code, most frequent first.
func (r *AttemptRepository) CountFailuresByCode(ctx context.Context, since time.Time) (map[string]int64, error) {
	var rows []errorCodeCount
	err := r.Read(ctx).Model(&AttemptEntity{}).
		Select("provider_code, COUNT(*) AS total").
		Where("status = ? AND started_at >= ? AND provider_code <> ''", model.AttemptStatusFailed, since).
		Group("provider_code").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.ProviderCode] = row.Total
	}
	return counts, nil
}

func (r *AttemptRepository) CountFailedSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.Read(ctx).Model(&AttemptEntity{}).
		Where("status = ? AND started_at >= ?", model.AttemptStatusFailed, since).
		Count(&n).Error
	return n, err
}
