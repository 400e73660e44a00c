package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/lamallamadel/outbound-gateway/internal/services"
	xhttp "github.com/lamallamadel/outbound-gateway/pkg/http"
)

type DiagnosticsService interface {
	Sessions(ctx context.Context, activeOnly bool, limit int) (*services.SessionDiagnostics, error)
	RetryQueue(ctx context.Context, limit int) ([]*services.RetryQueueEntry, error)
	ErrorPatterns(ctx context.Context, hours int) (*services.ErrorPatternReport, error)
	DryRunSend(ctx context.Context, req services.DryRunRequest) (*services.DryRunResult, error)
}

type DiagnosticsHandler struct {
	svc DiagnosticsService
}

func NewDiagnosticsHandler(svc DiagnosticsService) *DiagnosticsHandler {
	return &DiagnosticsHandler{
		svc: svc,
	}
}

func RegisterDiagnosticsRoutes(e *router.Group, h *DiagnosticsHandler, adminToken string) {
	admin := RequireAdminToken(adminToken)
	e.GET("/admin/whatsapp/sessions", admin(h.Sessions))
	e.GET("/admin/whatsapp/retry-queue", admin(h.RetryQueue))
	e.GET("/admin/whatsapp/error-patterns", admin(h.ErrorPatterns))
	e.POST("/admin/whatsapp/dry-run-send", admin(RequireOrg(h.DryRunSend)))
}

func (h *DiagnosticsHandler) Sessions(ctx *xhttp.RequestCtx) {
	activeOnly := query(ctx, "active_only") == "true"
	limit := queryInt(ctx, "limit", 100)

	out, err := h.svc.Sessions(ctx, activeOnly, limit)
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, out)
}

func (h *DiagnosticsHandler) RetryQueue(ctx *xhttp.RequestCtx) {
	limit := queryInt(ctx, "limit", 100)

	entries, err := h.svc.RetryQueue(ctx, limit)
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, entries)
}

func (h *DiagnosticsHandler) ErrorPatterns(ctx *xhttp.RequestCtx) {
	hours := queryInt(ctx, "hours", 24)

	report, err := h.svc.ErrorPatterns(ctx, hours)
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, report)
}

func (h *DiagnosticsHandler) DryRunSend(ctx *xhttp.RequestCtx) {
	var req services.DryRunRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, 400, "invalid JSON: "+err.Error())
		return
	}
	if req.To == "" {
		writeError(ctx, 400, "to is required")
		return
	}
	req.OrgID = orgID(ctx)

	res, err := h.svc.DryRunSend(ctx, req)
	if err != nil {
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, res)
}
