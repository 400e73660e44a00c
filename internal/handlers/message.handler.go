package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/fasthttp/router"
	"github.com/lamallamadel/outbound-gateway/internal/model"
	"github.com/lamallamadel/outbound-gateway/internal/services"
	xhttp "github.com/lamallamadel/outbound-gateway/pkg/http"
)

type MessageService interface {
	Create(ctx context.Context, p model.MessageCreateRequest) (*services.CreateResult, error)
	GetWithAttempts(ctx context.Context, orgID string, id int64) (*model.Message, []*model.Attempt, error)
	ListByDossier(ctx context.Context, orgID string, dossierID int64) ([]*model.Message, error)
	List(ctx context.Context, f model.MessageFilter) ([]*model.Message, int64, error)
	Retry(ctx context.Context, orgID string, id int64) (*model.Message, error)
	Cancel(ctx context.Context, orgID string, id int64) (*model.Message, error)
}

type MessageHandler struct {
	svc MessageService
}

func NewMessageHandler(messageService MessageService) *MessageHandler {
	return &MessageHandler{
		svc: messageService,
	}
}

func RegisterMessageRoutes(e *router.Group, h *MessageHandler) {
	e.POST("/messages", RequireOrg(h.CreateMessage))
	e.GET("/messages", RequireOrg(h.ListMessages))
	e.GET("/messages/{id}", RequireOrg(h.GetMessage))
	e.POST("/messages/{id}/retry", RequireOrg(h.RetryMessage))
	e.POST("/messages/{id}/cancel", RequireOrg(h.CancelMessage))
}

type createMessageRequest struct {
	DossierID      *int64        `json:"dossier_id,omitempty"`
	Channel        model.Channel `json:"channel"`
	To             string        `json:"to"`
	TemplateCode   string        `json:"template_code,omitempty"`
	Subject        string        `json:"subject,omitempty"`
	Payload        model.Payload `json:"payload"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	MaxAttempts    int           `json:"max_attempts,omitempty"`
}

type messageResponse struct {
	*model.Message
	Attempts []*model.Attempt `json:"attempts,omitempty"`
}

type pagedResponse struct {
	Items []*model.Message `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *MessageHandler) CreateMessage(ctx *xhttp.RequestCtx) {
	var req createMessageRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}

	key := req.IdempotencyKey
	if v := header(ctx, HeaderIdempotencyKey); v != "" {
		key = v
	}

	res, err := h.svc.Create(ctx, model.MessageCreateRequest{
		OrgID:          orgID(ctx),
		DossierID:      req.DossierID,
		Channel:        req.Channel,
		To:             req.To,
		TemplateCode:   req.TemplateCode,
		Subject:        req.Subject,
		Payload:        req.Payload,
		IdempotencyKey: key,
		MaxAttempts:    req.MaxAttempts,
	})
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}

	// Replays land on the same resource and get the same 201.
	writeJSON(ctx, 201, res.Message)
}

func (h *MessageHandler) GetMessage(ctx *xhttp.RequestCtx) {
	id, ok := pathID(ctx)
	if !ok {
		writeError(ctx, 400, "invalid message id")
		return
	}

	msg, attempts, err := h.svc.GetWithAttempts(ctx, orgID(ctx), id)
	if errors.Is(err, services.ErrNotFound) {
		writeError(ctx, 404, err.Error())
		return
	}
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, messageResponse{Message: msg, Attempts: attempts})
}

func (h *MessageHandler) ListMessages(ctx *xhttp.RequestCtx) {
	org := orgID(ctx)

	dossierRaw := query(ctx, "dossier_id")
	if dossierRaw == "" {
		writeError(ctx, 400, "dossier_id is required")
		return
	}
	dossierID, err := strconv.ParseInt(dossierRaw, 10, 64)
	if err != nil {
		writeError(ctx, 400, "invalid dossier_id")
		return
	}

	// Without paging parameters the listing is the flat dossier thread.
	if query(ctx, "page") == "" && query(ctx, "size") == "" {
		items, err := h.svc.ListByDossier(ctx, org, dossierID)
		if err != nil {
			writeError(ctx, 500, err.Error())
			return
		}
		writeJSON(ctx, 200, items)
		return
	}

	page := queryInt(ctx, "page", 0)
	if page < 0 {
		page = 0
	}
	size := queryInt(ctx, "size", 20)
	if size <= 0 || size > 200 {
		size = 20
	}

	f := model.MessageFilter{
		OrgID:     org,
		DossierID: &dossierID,
		SortBy:    query(ctx, "sort"),
		Desc:      strings.EqualFold(query(ctx, "direction"), "desc"),
		Limit:     size,
		Offset:    page * size,
	}
	if v := query(ctx, "status"); v != "" {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part != "" {
				f.Statuses = append(f.Statuses, model.MessageStatus(part))
			}
		}
	}

	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, pagedResponse{Items: items, Total: total, Page: page, Size: size})
}

func (h *MessageHandler) RetryMessage(ctx *xhttp.RequestCtx) {
	id, ok := pathID(ctx)
	if !ok {
		writeError(ctx, 400, "invalid message id")
		return
	}

	msg, err := h.svc.Retry(ctx, orgID(ctx), id)
	switch {
	case errors.Is(err, services.ErrNotFound):
		writeError(ctx, 404, err.Error())
		return
	case errors.Is(err, services.ErrNotRetryable):
		writeError(ctx, 400, err.Error())
		return
	case err != nil:
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, msg)
}

func (h *MessageHandler) CancelMessage(ctx *xhttp.RequestCtx) {
	id, ok := pathID(ctx)
	if !ok {
		writeError(ctx, 400, "invalid message id")
		return
	}

	msg, err := h.svc.Cancel(ctx, orgID(ctx), id)
	switch {
	case errors.Is(err, services.ErrNotFound):
		writeError(ctx, 404, err.Error())
		return
	case errors.Is(err, services.ErrNotCancellable):
		writeError(ctx, 400, err.Error())
		return
	case err != nil:
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, msg)
}
