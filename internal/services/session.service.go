package services

import (
	"context"
	"time"

	"github.com/lamallamadel/outbound-gateway/internal/model"
)

type SessionWindowRepository interface {
	Get(ctx context.Context, orgID, phone string) (*model.SessionWindow, error)
	UpsertInbound(ctx context.Context, orgID, phone string, at time.Time) (*model.SessionWindow, error)
	TouchOutbound(ctx context.Context, orgID, phone string, at time.Time) error
	ListRecent(ctx context.Context, limit int) ([]*model.SessionWindow, error)
}

// SessionService tracks the WhatsApp 24-hour customer-service window per
// (org, phone number). Only customer-originated traffic opens or extends a
// window; business-originated sends are recorded but never extend it.
type SessionService struct {
	windows SessionWindowRepository
	clock   func() time.Time
}

func NewSessionService(windows SessionWindowRepository) *SessionService {
	return &SessionService{
		windows: windows,
		clock:   time.Now,
	}
}

// RecordInbound opens or refreshes the window for a customer message.
func (s *SessionService) RecordInbound(ctx context.Context, orgID, phone string, at time.Time) (*model.SessionWindow, error) {
	if at.IsZero() {
		at = s.clock()
	}
	return s.windows.UpsertInbound(ctx, orgID, phone, at)
}

// RecordOutbound notes a business send against an existing window.
func (s *SessionService) RecordOutbound(ctx context.Context, orgID, phone string) error {
	return s.windows.TouchOutbound(ctx, orgID, phone, s.clock())
}

// IsWithinWindow reports whether a free-form send to phone is currently
// admitted. No window row at all means no inbound was ever seen.
func (s *SessionService) IsWithinWindow(ctx context.Context, orgID, phone string) (bool, error) {
	w, err := s.windows.Get(ctx, orgID, phone)
	if err != nil {
		return false, err
	}
	if w == nil {
		return false, nil
	}
	return w.WithinWindowAt(s.clock()), nil
}

// WindowExpiry returns the current window expiry, or nil when no window
// exists for the phone.
func (s *SessionService) WindowExpiry(ctx context.Context, orgID, phone string) (*time.Time, error) {
	w, err := s.windows.Get(ctx, orgID, phone)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, nil
	}
	t := w.WindowExpiresAt
	return &t, nil
}
