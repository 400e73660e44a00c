package handlers

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	"github.com/lamallamadel/outbound-gateway/internal/model"
	xhttp "github.com/lamallamadel/outbound-gateway/pkg/http"
)

type SessionRecorder interface {
	RecordInbound(ctx context.Context, orgID, phone string, at time.Time) (*model.SessionWindow, error)
}

// WebhookHandler receives customer-originated traffic notifications from the
// ingestion pipeline and keeps the session windows current.
type WebhookHandler struct {
	sessions SessionRecorder
}

func NewWebhookHandler(sessions SessionRecorder) *WebhookHandler {
	return &WebhookHandler{
		sessions: sessions,
	}
}

func RegisterWebhookRoutes(e *router.Group, h *WebhookHandler) {
	e.POST("/webhooks/inbound", RequireOrg(h.InboundMessage))
}

type inboundWebhookRequest struct {
	From       string     `json:"from"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
}

func (h *WebhookHandler) InboundMessage(ctx *xhttp.RequestCtx) {
	var req inboundWebhookRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	if req.From == "" {
		writeError(ctx, 400, "from is required")
		return
	}

	at := time.Time{}
	if req.ReceivedAt != nil {
		at = *req.ReceivedAt
	}

	w, err := h.sessions.RecordInbound(ctx, orgID(ctx), req.From, at)
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, w)
}
