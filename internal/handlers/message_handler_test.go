package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/lamallamadel/outbound-gateway/internal/model"
	"github.com/lamallamadel/outbound-gateway/internal/services"
	xhttp "github.com/lamallamadel/outbound-gateway/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type MockMessageService struct {
	mock.Mock
}

func (m *MockMessageService) Create(ctx context.Context, p model.MessageCreateRequest) (*services.CreateResult, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.CreateResult), args.Error(1)
}

func (m *MockMessageService) GetWithAttempts(ctx context.Context, orgID string, id int64) (*model.Message, []*model.Attempt, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	var attempts []*model.Attempt
	if args.Get(1) != nil {
		attempts = args.Get(1).([]*model.Attempt)
	}
	return args.Get(0).(*model.Message), attempts, args.Error(2)
}

func (m *MockMessageService) ListByDossier(ctx context.Context, orgID string, dossierID int64) ([]*model.Message, error) {
	args := m.Called(ctx, orgID, dossierID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Message), args.Error(1)
}

func (m *MockMessageService) List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Message), args.Get(1).(int64), args.Error(2)
}

func (m *MockMessageService) Retry(ctx context.Context, orgID string, id int64) (*model.Message, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *MockMessageService) Cancel(ctx context.Context, orgID string, id int64) (*model.Message, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	ctx.Request.Header.Set(HeaderOrgID, "org-a")
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func TestMessageHandler_CreateMessage(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		bodyBytes, _ := json.Marshal(createMessageRequest{
			Channel:        model.ChannelWhatsApp,
			To:             "+15550001111",
			Payload:        model.Payload{WhatsApp: &model.WhatsAppPayload{Body: "hello"}},
			IdempotencyKey: "key-1",
		})

		svc.On("Create", mock.Anything, mock.MatchedBy(func(p model.MessageCreateRequest) bool {
			return p.OrgID == "org-a" && p.IdempotencyKey == "key-1" && p.Channel == model.ChannelWhatsApp
		})).Return(&services.CreateResult{
			Message: &model.Message{ID: 123, Status: model.MessageStatusQueued},
			Created: true,
		}, nil)

		ctx := setupTestContext("POST", "/api/v1/messages", bodyBytes)
		handler.CreateMessage(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())

		var response model.Message
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
		assert.Equal(t, int64(123), response.ID)

		svc.AssertExpectations(t)
	})

	t.Run("idempotency header wins over body", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		bodyBytes, _ := json.Marshal(createMessageRequest{
			Channel:        model.ChannelSMS,
			To:             "+15550001111",
			Payload:        model.Payload{SMS: &model.SMSPayload{Body: "hi"}},
			IdempotencyKey: "body-key",
		})

		svc.On("Create", mock.Anything, mock.MatchedBy(func(p model.MessageCreateRequest) bool {
			return p.IdempotencyKey == "header-key"
		})).Return(&services.CreateResult{Message: &model.Message{ID: 1}, Created: true}, nil)

		ctx := setupTestContext("POST", "/api/v1/messages", bodyBytes)
		ctx.Request.Header.Set(HeaderIdempotencyKey, "header-key")
		handler.CreateMessage(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("dedup hit still answers 201 with the original resource", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		bodyBytes, _ := json.Marshal(createMessageRequest{
			Channel:        model.ChannelSMS,
			To:             "+15550001111",
			Payload:        model.Payload{SMS: &model.SMSPayload{Body: "hi"}},
			IdempotencyKey: "key-1",
		})

		svc.On("Create", mock.Anything, mock.Anything).Return(&services.CreateResult{
			Message: &model.Message{ID: 77, Status: model.MessageStatusSent},
			Created: false,
		}, nil)

		ctx := setupTestContext("POST", "/api/v1/messages", bodyBytes)
		handler.CreateMessage(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())

		var response model.Message
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
		assert.Equal(t, int64(77), response.ID)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		ctx := setupTestContext("POST", "/api/v1/messages", []byte("invalid json"))
		handler.CreateMessage(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())

		var response map[string]string
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
		assert.Contains(t, response["error"], "invalid JSON")
	})

	t.Run("missing org header rejected by middleware", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		ctx := setupTestContext("POST", "/api/v1/messages", []byte("{}"))
		ctx.Request.Header.Del(HeaderOrgID)
		RequireOrg(handler.CreateMessage)(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestMessageHandler_GetMessage(t *testing.T) {
	t.Run("found with attempts", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		svc.On("GetWithAttempts", mock.Anything, "org-a", int64(5)).Return(
			&model.Message{ID: 5, Status: model.MessageStatusFailed},
			[]*model.Attempt{{AttemptNo: 1}, {AttemptNo: 2}},
			nil,
		)

		ctx := setupTestContext("GET", "/api/v1/messages/5", nil)
		ctx.SetUserValue("id", "5")
		handler.GetMessage(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var response messageResponse
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
		assert.Len(t, response.Attempts, 2)
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		svc.On("GetWithAttempts", mock.Anything, "org-a", int64(6)).
			Return(nil, nil, services.ErrNotFound)

		ctx := setupTestContext("GET", "/api/v1/messages/6", nil)
		ctx.SetUserValue("id", "6")
		handler.GetMessage(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})

	t.Run("invalid id", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		ctx := setupTestContext("GET", "/api/v1/messages/abc", nil)
		ctx.SetUserValue("id", "abc")
		handler.GetMessage(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

func TestMessageHandler_ListMessages(t *testing.T) {
	t.Run("flat dossier listing", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		svc.On("ListByDossier", mock.Anything, "org-a", int64(7)).Return([]*model.Message{
			{ID: 1}, {ID: 2},
		}, nil)

		ctx := setupTestContext("GET", "/api/v1/messages?dossier_id=7", nil)
		handler.ListMessages(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var items []*model.Message
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &items))
		assert.Len(t, items, 2)
	})

	t.Run("paginated listing", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		svc.On("List", mock.Anything, mock.MatchedBy(func(f model.MessageFilter) bool {
			return f.OrgID == "org-a" && f.DossierID != nil && *f.DossierID == 7 &&
				f.Limit == 10 && f.Offset == 20 && f.Desc
		})).Return([]*model.Message{{ID: 21}}, int64(31), nil)

		ctx := setupTestContext("GET", "/api/v1/messages?dossier_id=7&page=2&size=10&sort=created_at&direction=desc", nil)
		handler.ListMessages(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var response pagedResponse
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
		assert.Equal(t, int64(31), response.Total)
		assert.Equal(t, 2, response.Page)
		assert.Len(t, response.Items, 1)
	})

	t.Run("missing dossier_id", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		ctx := setupTestContext("GET", "/api/v1/messages", nil)
		handler.ListMessages(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

func TestMessageHandler_RetryMessage(t *testing.T) {
	t.Run("re-queued", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		svc.On("Retry", mock.Anything, "org-a", int64(9)).
			Return(&model.Message{ID: 9, Status: model.MessageStatusQueued}, nil)

		ctx := setupTestContext("POST", "/api/v1/messages/9/retry", nil)
		ctx.SetUserValue("id", "9")
		handler.RetryMessage(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
	})

	t.Run("not in FAILED state", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		svc.On("Retry", mock.Anything, "org-a", int64(9)).
			Return(nil, services.ErrNotRetryable)

		ctx := setupTestContext("POST", "/api/v1/messages/9/retry", nil)
		ctx.SetUserValue("id", "9")
		handler.RetryMessage(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("unknown message", func(t *testing.T) {
		svc := new(MockMessageService)
		handler := NewMessageHandler(svc)

		svc.On("Retry", mock.Anything, "org-a", int64(9)).
			Return(nil, services.ErrNotFound)

		ctx := setupTestContext("POST", "/api/v1/messages/9/retry", nil)
		ctx.SetUserValue("id", "9")
		handler.RetryMessage(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})
}

type MockSessionRecorder struct {
	mock.Mock
}

func (m *MockSessionRecorder) RecordInbound(ctx context.Context, orgID, phone string, at time.Time) (*model.SessionWindow, error) {
	args := m.Called(ctx, orgID, phone, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SessionWindow), args.Error(1)
}

func TestWebhookHandler_InboundMessage(t *testing.T) {
	t.Run("opens a window", func(t *testing.T) {
		sessions := new(MockSessionRecorder)
		handler := NewWebhookHandler(sessions)

		at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
		bodyBytes, _ := json.Marshal(inboundWebhookRequest{From: "+15550001111", ReceivedAt: &at})

		sessions.On("RecordInbound", mock.Anything, "org-a", "+15550001111", at).
			Return(&model.SessionWindow{WindowExpiresAt: at.Add(model.SessionWindowDuration)}, nil)

		ctx := setupTestContext("POST", "/api/v1/webhooks/inbound", bodyBytes)
		handler.InboundMessage(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		sessions.AssertExpectations(t)
	})

	t.Run("missing phone", func(t *testing.T) {
		sessions := new(MockSessionRecorder)
		handler := NewWebhookHandler(sessions)

		ctx := setupTestContext("POST", "/api/v1/webhooks/inbound", []byte("{}"))
		handler.InboundMessage(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

func TestRequireAdminToken(t *testing.T) {
	protected := RequireAdminToken("secret")(func(ctx *xhttp.RequestCtx) {
		writeJSON(ctx, 200, map[string]string{"ok": "true"})
	})

	t.Run("valid token", func(t *testing.T) {
		ctx := setupTestContext("GET", "/api/v1/admin/whatsapp/sessions", nil)
		ctx.Request.Header.Set(HeaderAdminToken, "secret")
		protected(ctx)
		assert.Equal(t, 200, ctx.Response.StatusCode())
	})

	t.Run("wrong token", func(t *testing.T) {
		ctx := setupTestContext("GET", "/api/v1/admin/whatsapp/sessions", nil)
		ctx.Request.Header.Set(HeaderAdminToken, "nope")
		protected(ctx)
		assert.Equal(t, 401, ctx.Response.StatusCode())
	})

	t.Run("unconfigured token rejects everything", func(t *testing.T) {
		open := RequireAdminToken("")(func(ctx *xhttp.RequestCtx) {})
		ctx := setupTestContext("GET", "/api/v1/admin/whatsapp/sessions", nil)
		open(ctx)
		assert.Equal(t, 401, ctx.Response.StatusCode())
	})
}
