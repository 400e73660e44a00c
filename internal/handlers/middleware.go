package handlers

import (
	"crypto/subtle"

	xhttp "github.com/lamallamadel/outbound-gateway/pkg/http"
)

// RequireOrg rejects requests that arrived without a tenant header.
func RequireOrg(next xhttp.RequestHandler) xhttp.RequestHandler {
	return func(ctx *xhttp.RequestCtx) {
		if orgID(ctx) == "" {
			writeError(ctx, 400, "missing "+HeaderOrgID+" header")
			return
		}
		next(ctx)
	}
}

// RequireAdminToken guards the diagnostics surface with a shared token.
func RequireAdminToken(token string) func(next xhttp.RequestHandler) xhttp.RequestHandler {
	return func(next xhttp.RequestHandler) xhttp.RequestHandler {
		return func(ctx *xhttp.RequestCtx) {
			got := header(ctx, HeaderAdminToken)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(ctx, 401, "invalid admin token")
				return
			}
			next(ctx)
		}
	}
}
