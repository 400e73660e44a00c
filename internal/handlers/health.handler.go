package handlers

import (
	"github.com/fasthttp/router"
	xhttp "github.com/lamallamadel/outbound-gateway/pkg/http"
)

type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	writeJSON(ctx, 200, map[string]string{"status": "healthy"})
}
