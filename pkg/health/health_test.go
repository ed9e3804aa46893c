package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, c *Checker, path string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	e := echo.New()
	c.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestLiveness(t *testing.T) {
	rec, body := serve(t, NewChecker("test"), "/api/v1/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusHealthy, body.Status)
}

func TestReadiness_NotReady(t *testing.T) {
	rec, body := serve(t, NewChecker("test"), "/api/v1/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, body.Checks, "startup")
}

func TestReadiness_FailingDependency(t *testing.T) {
	c := NewChecker("test")
	c.AddCheck("database", PingFunc(func(context.Context) error { return nil }))
	c.AddCheck("redis", PingFunc(func(context.Context) error { return errors.New("connection refused") }))
	c.SetReady(true)

	rec, body := serve(t, c, "/api/v1/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, StatusHealthy, body.Checks["database"].Status)
	assert.Equal(t, "connection refused", body.Checks["redis"].Message)
}

func TestHealth_AllHealthy(t *testing.T) {
	c := NewChecker("test")
	c.AddCheck("database", PingFunc(func(context.Context) error { return nil }))

	rec, body := serve(t, c, "/api/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, StatusHealthy, body.Status)
}
