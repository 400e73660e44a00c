package services

import (
	"context"
	"testing"
	"time"

	"github.com/lamallamadel/outbound-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSessionWindowRepository struct {
	mock.Mock
}

func (m *MockSessionWindowRepository) Get(ctx context.Context, orgID, phone string) (*model.SessionWindow, error) {
	args := m.Called(ctx, orgID, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SessionWindow), args.Error(1)
}

func (m *MockSessionWindowRepository) UpsertInbound(ctx context.Context, orgID, phone string, at time.Time) (*model.SessionWindow, error) {
	args := m.Called(ctx, orgID, phone, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SessionWindow), args.Error(1)
}

func (m *MockSessionWindowRepository) TouchOutbound(ctx context.Context, orgID, phone string, at time.Time) error {
	args := m.Called(ctx, orgID, phone, at)
	return args.Error(0)
}

func (m *MockSessionWindowRepository) ListRecent(ctx context.Context, limit int) ([]*model.SessionWindow, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.SessionWindow), args.Error(1)
}

func TestSessionService_IsWithinWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("open window admits", func(t *testing.T) {
		windows := new(MockSessionWindowRepository)
		service := NewSessionService(windows)

		windows.On("Get", ctx, "org-a", "+15550001111").Return(&model.SessionWindow{
			WindowExpiresAt: now.Add(time.Hour),
		}, nil)

		ok, err := service.IsWithinWindow(ctx, "org-a", "+15550001111")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("expired window rejects", func(t *testing.T) {
		windows := new(MockSessionWindowRepository)
		service := NewSessionService(windows)

		windows.On("Get", ctx, "org-a", "+15550001111").Return(&model.SessionWindow{
			WindowExpiresAt: now.Add(-time.Minute),
		}, nil)

		ok, err := service.IsWithinWindow(ctx, "org-a", "+15550001111")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("no inbound ever seen rejects", func(t *testing.T) {
		windows := new(MockSessionWindowRepository)
		service := NewSessionService(windows)

		windows.On("Get", ctx, "org-a", "+15550002222").Return(nil, nil)

		ok, err := service.IsWithinWindow(ctx, "org-a", "+15550002222")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestSessionService_RecordInbound(t *testing.T) {
	ctx := context.Background()

	t.Run("zero timestamp defaults to now", func(t *testing.T) {
		windows := new(MockSessionWindowRepository)
		service := NewSessionService(windows)

		windows.On("UpsertInbound", ctx, "org-a", "+15550001111", mock.MatchedBy(func(at time.Time) bool {
			return time.Since(at) < time.Second
		})).Return(&model.SessionWindow{}, nil)

		_, err := service.RecordInbound(ctx, "org-a", "+15550001111", time.Time{})
		require.NoError(t, err)
		windows.AssertExpectations(t)
	})

	t.Run("explicit timestamp is passed through", func(t *testing.T) {
		windows := new(MockSessionWindowRepository)
		service := NewSessionService(windows)

		at := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
		windows.On("UpsertInbound", ctx, "org-a", "+15550001111", at).
			Return(&model.SessionWindow{WindowExpiresAt: at.Add(model.SessionWindowDuration)}, nil)

		w, err := service.RecordInbound(ctx, "org-a", "+15550001111", at)
		require.NoError(t, err)
		assert.Equal(t, at.Add(model.SessionWindowDuration), w.WindowExpiresAt)
	})
}

func TestSessionService_WindowExpiry(t *testing.T) {
	ctx := context.Background()

	windows := new(MockSessionWindowRepository)
	service := NewSessionService(windows)

	expires := time.Now().Add(3 * time.Hour)
	windows.On("Get", ctx, "org-a", "+15550001111").
		Return(&model.SessionWindow{WindowExpiresAt: expires}, nil)
	windows.On("Get", ctx, "org-a", "+15550002222").Return(nil, nil)

	got, err := service.WindowExpiry(ctx, "org-a", "+15550001111")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, expires, *got)

	none, err := service.WindowExpiry(ctx, "org-a", "+15550002222")
	require.NoError(t, err)
	assert.Nil(t, none)
}
