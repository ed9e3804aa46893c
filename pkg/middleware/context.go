package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/trellis/pkg/context"
)

const (
	// HeaderTenantID carries the tenant when authentication is disabled
	HeaderTenantID = "X-Tenant-ID"
	// HeaderUserID carries the user when authentication is disabled
	HeaderUserID = "X-User-ID"
)

// Context seeds the request context with a request id and route.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := req.Context()
			ctx = appctx.SetRequestID(ctx, requestID)
			ctx = appctx.SetRoute(ctx, c.Path())

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}

// HeaderIdentity trusts tenant and user headers. Only mounted when authentication is disabled.
func HeaderIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := req.Context()
			ctx = appctx.SetTenantID(ctx, req.Header.Get(HeaderTenantID))
			ctx = appctx.SetUserID(ctx, req.Header.Get(HeaderUserID))
			ctx = appctx.SetRoles(ctx, []string{AdminRole})
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
