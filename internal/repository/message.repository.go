package repository

import (
	"context"
	"errors"
	"time"

	"github.com/lamallamadel/outbound-gateway/internal/model"
	"github.com/lamallamadel/outbound-gateway/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a message does not exist in the caller's org.
	ErrNotFound = errors.New("message not found")
	// ErrNotRetryable is returned when retry is requested for a message that
	// is not in terminal FAILED state.
	ErrNotRetryable = errors.New("message is not in FAILED state")
)

type MessageRepository struct {
	*pg.DB
}

func NewMessageRepository(db *pg.DB) *MessageRepository {
	return &MessageRepository{
		db,
	}
}

// Create inserts the message, letting the (org_id, idempotency_key) unique
// index arbitrate creation races. On a key conflict nothing is inserted and
// the existing winner row is returned with created=false.
func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) (*model.Message, bool, error) {
	entity := toMessageEntity(msg)

	res := r.Write(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "org_id"}, {Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(entity)
	if res.Error != nil {
		return nil, false, res.Error
	}

	if res.RowsAffected == 0 {
		existing, err := r.GetByIdempotencyKey(ctx, msg.OrgID, msg.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	return toMessageModel(entity), true, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, orgID string, id int64) (*model.Message, error) {
	var entity MessageEntity
	err := r.Read(ctx).Where("id = ? AND org_id = ?", id, orgID).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toMessageModel(&entity), nil
}

func (r *MessageRepository) GetByIdempotencyKey(ctx context.Context, orgID, key string) (*model.Message, error) {
	var entity MessageEntity
	err := r.Write(ctx).Where("org_id = ? AND idempotency_key = ?", orgID, key).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toMessageModel(&entity), nil
}

// ListByDossier returns every message of a dossier, oldest first.
func (r *MessageRepository) ListByDossier(ctx context.Context, orgID string, dossierID int64) ([]*model.Message, error) {
	var entities []*MessageEntity
	err := r.Read(ctx).
		Where("org_id = ? AND dossier_id = ?", orgID, dossierID).
		Order("created_at ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toMessageModels(entities), nil
}

func (r *MessageRepository) List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error) {
	q := r.Read(ctx).Model(&MessageEntity{}).Where("org_id = ?", f.OrgID)

	if f.DossierID != nil {
		q = q.Where("dossier_id = ?", *f.DossierID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at"
	if f.SortBy == "updated_at" {
		order = "updated_at"
	}
	if f.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*MessageEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toMessageModels(entities), total, nil
}

// FindPending is the dispatch pull query: QUEUED messages whose backoff
// window has elapsed and that still have attempts left, oldest first.
func (r *MessageRepository) FindPending(ctx context.Context, now time.Time, limit int) ([]*model.Message, error) {
	var entities []*MessageEntity
	err := r.Write(ctx).
		Where("status = ?", model.MessageStatusQueued).
		Where("next_eligible_at IS NULL OR next_eligible_at <= ?", now).
		Where("attempt_count < max_attempts").
		Order("created_at ASC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toMessageModels(entities), nil
}

// ClaimForSending performs the atomic QUEUED -> SENDING transition. Exactly
// one of any number of competing workers observes claimed=true; a message
// cancelled or already claimed since the pull simply yields false.
func (r *MessageRepository) ClaimForSending(ctx context.Context, id int64) (bool, error) {
	res := r.Write(ctx).Model(&MessageEntity{}).
		Where("id = ? AND status = ?", id, model.MessageStatusQueued).
		Updates(map[string]interface{}{
			"status":     string(model.MessageStatusSending),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkSent finalizes a successful dispatch. delivered marks synchronous
// provider confirmation.
func (r *MessageRepository) MarkSent(ctx context.Context, id int64, providerMessageID string, delivered bool, at time.Time) error {
	status := model.MessageStatusSent
	updates := map[string]interface{}{
		"status":              string(status),
		"provider_message_id": providerMessageID,
		"attempt_count":       gorm.Expr("attempt_count + 1"),
		"error_code":          "",
		"error_message":       "",
		"next_eligible_at":    nil,
		"sent_at":             at,
		"updated_at":          at,
	}
	if delivered {
		status = model.MessageStatusDelivered
		updates["status"] = string(status)
		updates["delivered_at"] = at
	}
	return r.Write(ctx).Model(&MessageEntity{}).Where("id = ?", id).Updates(updates).Error
}

// MarkFailedRetry records a failed attempt that still has retries left: the
// message returns to QUEUED with its backoff deadline and visible error
// fields.
func (r *MessageRepository) MarkFailedRetry(ctx context.Context, id int64, errCode, errMsg string, nextEligibleAt time.Time) error {
	return r.Write(ctx).Model(&MessageEntity{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":           string(model.MessageStatusQueued),
		"attempt_count":    gorm.Expr("attempt_count + 1"),
		"error_code":       errCode,
		"error_message":    errMsg,
		"next_eligible_at": nextEligibleAt,
		"updated_at":       time.Now(),
	}).Error
}

// MarkFailedTerminal records the last failed attempt; error fields stay for
// operator inspection and the manual retry path.
func (r *MessageRepository) MarkFailedTerminal(ctx context.Context, id int64, errCode, errMsg string) error {
	return r.Write(ctx).Model(&MessageEntity{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":           string(model.MessageStatusFailed),
		"attempt_count":    gorm.Expr("attempt_count + 1"),
		"error_code":       errCode,
		"error_message":    errMsg,
		"next_eligible_at": nil,
		"updated_at":       time.Now(),
	}).Error
}

// Retry re-queues a terminally FAILED message with a fresh attempt budget.
// The status guard makes the reset race-free and rejects anything not FAILED.
func (r *MessageRepository) Retry(ctx context.Context, orgID string, id int64) (*model.Message, error) {
	res := r.Write(ctx).Model(&MessageEntity{}).
		Where("id = ? AND org_id = ? AND status = ?", id, orgID, model.MessageStatusFailed).
		Updates(map[string]interface{}{
			"status":           string(model.MessageStatusQueued),
			"attempt_count":    0,
			"error_code":       "",
			"error_message":    "",
			"next_eligible_at": nil,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, orgID, id); err != nil {
			return nil, err
		}
		return nil, ErrNotRetryable
	}
	return r.GetByID(ctx, orgID, id)
}

// Cancel moves a message out of QUEUED before pickup; a message already
// claimed or finished is left untouched.
func (r *MessageRepository) Cancel(ctx context.Context, orgID string, id int64) (bool, error) {
	res := r.Write(ctx).Model(&MessageEntity{}).
		Where("id = ? AND org_id = ? AND status = ?", id, orgID, model.MessageStatusQueued).
		Updates(map[string]interface{}{
			"status":     string(model.MessageStatusCancelled),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RecoverStale re-queues messages stuck in SENDING, e.g. after a worker
// crash between claim and outcome.
func (r *MessageRepository) RecoverStale(ctx context.Context, before time.Time) (int64, error) {
	res := r.Write(ctx).Model(&MessageEntity{}).
		Where("status = ? AND updated_at < ?", model.MessageStatusSending, before).
		Updates(map[string]interface{}{
			"status":     string(model.MessageStatusQueued),
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

// FindRetryQueue lists QUEUED WhatsApp messages that already failed at least
// once, for the diagnostics surface.
func (r *MessageRepository) FindRetryQueue(ctx context.Context, limit int) ([]*model.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	var entities []*MessageEntity
	err := r.Read(ctx).
		Where("status = ? AND channel = ? AND attempt_count > 0", model.MessageStatusQueued, model.ChannelWhatsApp).
		Order("created_at ASC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toMessageModels(entities), nil
}

func (r *MessageRepository) CountByStatus(ctx context.Context, status model.MessageStatus) (int64, error) {
	var n int64
	err := r.Read(ctx).Model(&MessageEntity{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

func (r *MessageRepository) CountByChannelSince(ctx context.Context, channel model.Channel, since time.Time) (int64, error) {
	var n int64
	err := r.Read(ctx).Model(&MessageEntity{}).
		Where("channel = ? AND created_at >= ?", channel, since).
		Count(&n).Error
	return n, err
}

// FindRecentByTemplateAndPhone backs the dry-run near-duplicate heuristic.
func (r *MessageRepository) FindRecentByTemplateAndPhone(ctx context.Context, orgID, templateCode, phone string, since time.Time) ([]*model.Message, error) {
	var entities []*MessageEntity
	err := r.Read(ctx).
		Where("org_id = ? AND template_code = ? AND to_recipient = ? AND created_at >= ?", orgID, templateCode, phone, since).
		Order("created_at DESC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toMessageModels(entities), nil
}
