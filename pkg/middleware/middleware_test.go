package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appctx "github.com/Ramsey-B/trellis/pkg/context"
)

type stubVerifier struct {
	claims *UserClaims
	err    error
}

func (v stubVerifier) Verify(context.Context, string) (*UserClaims, error) {
	return v.claims, v.err
}

type identity struct {
	TenantID  string   `json:"tenant_id"`
	UserID    string   `json:"user_id"`
	Roles     []string `json:"roles"`
	RequestID string   `json:"request_id"`
}

func newTestEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = Error(zapadapter.NewZapEctoLogger(zap.NewNop(), nil))
	e.Use(Context())
	g := e.Group("/api", mw...)
	g.GET("/whoami", func(c echo.Context) error {
		ctx := c.Request().Context()
		return c.JSON(http.StatusOK, identity{
			TenantID:  appctx.GetTenantID(ctx),
			UserID:    appctx.GetUserID(ctx),
			Roles:     appctx.GetRoles(ctx),
			RequestID: appctx.GetRequestID(ctx),
		})
	})
	g.GET("/boom", func(c echo.Context) error {
		return errors.New("database exploded")
	})
	g.GET("/conflict", func(c echo.Context) error {
		return httperror.NewHTTPError(http.StatusConflict, "slug already in use")
	})
	return e
}

func serve(e *echo.Echo, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestAuthentication(t *testing.T) {
	claims := &UserClaims{Sub: "user-1", TenantID: "tenant-1"}
	claims.RealmAccess.Roles = []string{AdminRole}

	t.Run("valid token", func(t *testing.T) {
		e := newTestEcho(Authentication(zapadapter.NewZapEctoLogger(zap.NewNop(), nil), stubVerifier{claims: claims}), RequireAdmin(), RequireTenant())
		rec := serve(e, "/api/whoami", map[string]string{"Authorization": "Bearer abc", echo.HeaderXRequestID: "req-1"})

		require.Equal(t, http.StatusOK, rec.Code)
		got := decodeBody[identity](t, rec)
		assert.Equal(t, "tenant-1", got.TenantID)
		assert.Equal(t, "user-1", got.UserID)
		assert.Equal(t, "req-1", got.RequestID)
		assert.Equal(t, "req-1", rec.Header().Get(echo.HeaderXRequestID))
	})

	t.Run("missing bearer", func(t *testing.T) {
		e := newTestEcho(Authentication(zapadapter.NewZapEctoLogger(zap.NewNop(), nil), stubVerifier{claims: claims}))
		rec := serve(e, "/api/whoami", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		e := newTestEcho(Authentication(zapadapter.NewZapEctoLogger(zap.NewNop(), nil), stubVerifier{err: errors.New("expired")}))
		rec := serve(e, "/api/whoami", map[string]string{"Authorization": "Bearer abc"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("not an admin", func(t *testing.T) {
		viewer := &UserClaims{Sub: "user-2", TenantID: "tenant-1"}
		viewer.RealmAccess.Roles = []string{"viewer"}
		e := newTestEcho(Authentication(zapadapter.NewZapEctoLogger(zap.NewNop(), nil), stubVerifier{claims: viewer}), RequireAdmin())
		rec := serve(e, "/api/whoami", map[string]string{"Authorization": "Bearer abc"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("token without tenant", func(t *testing.T) {
		noTenant := &UserClaims{Sub: "user-3"}
		noTenant.RealmAccess.Roles = []string{AdminRole}
		e := newTestEcho(Authentication(zapadapter.NewZapEctoLogger(zap.NewNop(), nil), stubVerifier{claims: noTenant}), RequireAdmin(), RequireTenant())
		rec := serve(e, "/api/whoami", map[string]string{"Authorization": "Bearer abc"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeBody[ErrorResponse](t, rec).Error, "tenantId is required")
	})
}

func TestHeaderIdentity(t *testing.T) {
	e := newTestEcho(HeaderIdentity(), RequireAdmin(), RequireTenant())

	rec := serve(e, "/api/whoami", map[string]string{HeaderTenantID: "tenant-9", HeaderUserID: "user-9"})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[identity](t, rec)
	assert.Equal(t, "tenant-9", got.TenantID)
	assert.Equal(t, "user-9", got.UserID)
	assert.NotEmpty(t, got.RequestID, "a request id is generated when none is sent")

	rec = serve(e, "/api/whoami", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestError(t *testing.T) {
	e := newTestEcho()

	rec := serve(e, "/api/boom", map[string]string{echo.HeaderXRequestID: "req-2"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "Internal Server Error", body.Error, "internal errors are not leaked")
	assert.Equal(t, "req-2", body.RequestID)

	rec = serve(e, "/api/conflict", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Error, "slug already in use")

	rec = serve(e, "/api/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
