package services

import (
	"context"
	"testing"

	"github.com/lamallamadel/outbound-gateway/internal/model"
	"github.com/lamallamadel/outbound-gateway/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Create(ctx context.Context, msg *model.Message) (*model.Message, bool, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*model.Message), args.Bool(1), args.Error(2)
}

func (m *MockMessageRepository) GetByID(ctx context.Context, orgID string, id int64) (*model.Message, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MockMessageRepository) ListByDossier(ctx context.Context, orgID string, dossierID int64) ([]*model.Message, error) {
	args := m.Called(ctx, orgID, dossierID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Message), args.Error(1)
}

func (m *MockMessageRepository) List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Message), args.Get(1).(int64), args.Error(2)
}

func (m *MockMessageRepository) Retry(ctx context.Context, orgID string, id int64) (*model.Message, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MockMessageRepository) Cancel(ctx context.Context, orgID string, id int64) (bool, error) {
	args := m.Called(ctx, orgID, id)
	return args.Bool(0), args.Error(1)
}

type MockAttemptReader struct {
	mock.Mock
}

func (m *MockAttemptReader) ListByMessage(ctx context.Context, messageID int64) ([]*model.Attempt, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Attempt), args.Error(1)
}

func whatsappRequest(key string) model.MessageCreateRequest {
	return model.MessageCreateRequest{
		OrgID:          "org-a",
		Channel:        model.ChannelWhatsApp,
		To:             "+15550001111",
		Payload:        model.Payload{WhatsApp: &model.WhatsAppPayload{Body: "hello"}},
		IdempotencyKey: key,
	}
}

func TestMessageService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("generates a key when caller supplies none", func(t *testing.T) {
		msgRepo := new(MockMessageRepository)
		service := NewMessageService(msgRepo, new(MockAttemptReader), 0)

		msgRepo.On("Create", ctx, mock.MatchedBy(func(m *model.Message) bool {
			return m.IdempotencyKey != "" && m.MaxAttempts == model.DefaultMaxAttempts
		})).Return(&model.Message{ID: 1, Status: model.MessageStatusQueued}, true, nil)

		res, err := service.Create(ctx, whatsappRequest(""))
		require.NoError(t, err)
		assert.True(t, res.Created)

		msgRepo.AssertExpectations(t)
	})

	t.Run("propagates dedup hits", func(t *testing.T) {
		msgRepo := new(MockMessageRepository)
		service := NewMessageService(msgRepo, new(MockAttemptReader), 3)

		msgRepo.On("Create", ctx, mock.Anything).
			Return(&model.Message{ID: 42, Status: model.MessageStatusSent}, false, nil)

		res, err := service.Create(ctx, whatsappRequest("key-1"))
		require.NoError(t, err)
		assert.False(t, res.Created)
		assert.Equal(t, int64(42), res.Message.ID)
	})

	t.Run("rejects invalid channel", func(t *testing.T) {
		service := NewMessageService(new(MockMessageRepository), new(MockAttemptReader), 3)

		req := whatsappRequest("key-1")
		req.Channel = "FAX"

		res, err := service.Create(ctx, req)
		assert.Error(t, err)
		assert.Nil(t, res)
	})

	t.Run("rejects mismatched payload", func(t *testing.T) {
		service := NewMessageService(new(MockMessageRepository), new(MockAttemptReader), 3)

		req := whatsappRequest("key-1")
		req.Payload = model.Payload{SMS: &model.SMSPayload{Body: "hello"}}

		res, err := service.Create(ctx, req)
		assert.ErrorIs(t, err, model.ErrPayloadMismatch)
		assert.Nil(t, res)
	})

	t.Run("rejects phone without country prefix", func(t *testing.T) {
		service := NewMessageService(new(MockMessageRepository), new(MockAttemptReader), 3)

		req := whatsappRequest("key-1")
		req.To = "0655512345"

		res, err := service.Create(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidRecipient)
		assert.Nil(t, res)
	})
}

func TestMessageService_Retry(t *testing.T) {
	ctx := context.Background()

	t.Run("maps not-retryable", func(t *testing.T) {
		msgRepo := new(MockMessageRepository)
		service := NewMessageService(msgRepo, new(MockAttemptReader), 3)

		msgRepo.On("Retry", ctx, "org-a", int64(1)).Return(nil, repository.ErrNotRetryable)

		_, err := service.Retry(ctx, "org-a", 1)
		assert.ErrorIs(t, err, ErrNotRetryable)
	})

	t.Run("maps not-found", func(t *testing.T) {
		msgRepo := new(MockMessageRepository)
		service := NewMessageService(msgRepo, new(MockAttemptReader), 3)

		msgRepo.On("Retry", ctx, "org-a", int64(2)).Return(nil, repository.ErrNotFound)

		_, err := service.Retry(ctx, "org-a", 2)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("returns the re-queued message", func(t *testing.T) {
		msgRepo := new(MockMessageRepository)
		service := NewMessageService(msgRepo, new(MockAttemptReader), 3)

		msgRepo.On("Retry", ctx, "org-a", int64(3)).
			Return(&model.Message{ID: 3, Status: model.MessageStatusQueued}, nil)

		msg, err := service.Retry(ctx, "org-a", 3)
		require.NoError(t, err)
		assert.Equal(t, model.MessageStatusQueued, msg.Status)
	})
}

func TestMessageService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("cancelled before pickup", func(t *testing.T) {
		msgRepo := new(MockMessageRepository)
		service := NewMessageService(msgRepo, new(MockAttemptReader), 3)

		msgRepo.On("Cancel", ctx, "org-a", int64(1)).Return(true, nil)
		msgRepo.On("GetByID", ctx, "org-a", int64(1)).
			Return(&model.Message{ID: 1, Status: model.MessageStatusCancelled}, nil)

		msg, err := service.Cancel(ctx, "org-a", 1)
		require.NoError(t, err)
		assert.Equal(t, model.MessageStatusCancelled, msg.Status)
	})

	t.Run("already claimed", func(t *testing.T) {
		msgRepo := new(MockMessageRepository)
		service := NewMessageService(msgRepo, new(MockAttemptReader), 3)

		msgRepo.On("Cancel", ctx, "org-a", int64(2)).Return(false, nil)
		msgRepo.On("GetByID", ctx, "org-a", int64(2)).
			Return(&model.Message{ID: 2, Status: model.MessageStatusSending}, nil)

		_, err := service.Cancel(ctx, "org-a", 2)
		assert.ErrorIs(t, err, ErrNotCancellable)
	})
}

func TestMessageService_GetWithAttempts(t *testing.T) {
	ctx := context.Background()

	msgRepo := new(MockMessageRepository)
	attemptRepo := new(MockAttemptReader)
	service := NewMessageService(msgRepo, attemptRepo, 3)

	msgRepo.On("GetByID", ctx, "org-a", int64(1)).
		Return(&model.Message{ID: 1, AttemptCount: 2}, nil)
	attemptRepo.On("ListByMessage", ctx, int64(1)).
		Return([]*model.Attempt{{AttemptNo: 1}, {AttemptNo: 2}}, nil)

	msg, attempts, err := service.GetWithAttempts(ctx, "org-a", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.ID)
	assert.Len(t, attempts, 2)
}
