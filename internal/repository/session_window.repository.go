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

type SessionWindowRepository struct {
	*pg.DB
}

func NewSessionWindowRepository(db *pg.DB) *SessionWindowRepository {
	return &SessionWindowRepository{
		db,
	}
}

func (r *SessionWindowRepository) Get(ctx context.Context, orgID, phone string) (*model.SessionWindow, error) {
	var entity SessionWindowEntity
	err := r.Read(ctx).Where("org_id = ? AND phone_number = ?", orgID, phone).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toSessionWindowModel(&entity), nil
}

// UpsertInbound opens or refreshes the window for a customer-originated
// message: one row per (org, phone), superseded in place.
func (r *SessionWindowRepository) UpsertInbound(ctx context.Context, orgID, phone string, at time.Time) (*model.SessionWindow, error) {
	entity := &SessionWindowEntity{
		OrgID:                orgID,
		PhoneNumber:          phone,
		WindowOpensAt:        at,
		WindowExpiresAt:      at.Add(model.SessionWindowDuration),
		LastInboundMessageAt: at,
	}
	err := r.Write(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "org_id"}, {Name: "phone_number"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"window_opens_at":         at,
			"window_expires_at":       at.Add(model.SessionWindowDuration),
			"last_inbound_message_at": at,
			"updated_at":              time.Now(),
		}),
	}).Create(entity).Error
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, orgID, phone)
}

// TouchOutbound records business-originated traffic. It never extends the
// window; a missing row is a no-op since outbound traffic cannot open one.
func (r *SessionWindowRepository) TouchOutbound(ctx context.Context, orgID, phone string, at time.Time) error {
	return r.Write(ctx).Model(&SessionWindowEntity{}).
		Where("org_id = ? AND phone_number = ?", orgID, phone).
		Updates(map[string]interface{}{
			"last_outbound_message_at": at,
			"updated_at":               time.Now(),
		}).Error
}

// ListRecent returns windows ordered by expiry, newest first.
func (r *SessionWindowRepository) ListRecent(ctx context.Context, limit int) ([]*model.SessionWindow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var entities []*SessionWindowEntity
	err := r.Read(ctx).
		Order("window_expires_at DESC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toSessionWindowModels(entities), nil
}
