package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/trellis/pkg/connectors"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/oauth"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// CallbackPath is where the frontend lands after an OAuth callback.
const CallbackPath = "/settings/connectors"

var providerErrorCode = regexp.MustCompile(`^[a-z_]{1,64}$`)

// InstallationLister lists the connector installations of a tenant
type InstallationLister interface {
	List(ctx context.Context, tenantID string) ([]models.ConnectorInstallation, error)
}

// ConnectorHandler serves the connect, disconnect and status routes of every registered connector
type ConnectorHandler struct {
	registry      *connectors.Registry
	installations InstallationLister
	frontendURL   string
	logger        ectologger.Logger
}

func NewConnectorHandler(registry *connectors.Registry, installations InstallationLister, frontendURL string, logger ectologger.Logger) *ConnectorHandler {
	return &ConnectorHandler{
		registry:      registry,
		installations: installations,
		frontendURL:   strings.TrimSuffix(frontendURL, "/"),
		logger:        logger,
	}
}

type AuthorizationURLResponse struct {
	URL string `json:"url"`
}

type DisconnectResponse struct {
	Connector    models.ConnectorType `json:"connector"`
	Disconnected bool                 `json:"disconnected"`
}

// RegisterRoutes registers the admin connector routes
func (h *ConnectorHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/connectors", h.List)
	g.GET("/:connector/oauth/url", h.AuthorizationURL)
	g.POST("/:connector/oauth/url", h.AuthorizationURL)
	g.DELETE("/:connector/disconnect", h.Disconnect)
	g.GET("/:connector/status", h.Status)
	g.POST("/:connector/connect", h.Connect)
}

// RegisterCallbackRoutes registers the provider redirect target. The browser arrives here from
// the provider without an admin token; the state parameter carries the tenant.
func (h *ConnectorHandler) RegisterCallbackRoutes(g *echo.Group) {
	g.GET("/:connector/oauth/callback", h.Callback)
}

// List handles GET /connectors
func (h *ConnectorHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	installations, err := h.installations.List(ctx, tenantID)
	if err != nil {
		return Internal(err)
	}
	if installations == nil {
		installations = []models.ConnectorInstallation{}
	}

	return SuccessResponse(c, installations)
}

// AuthorizationURL handles GET|POST /:connector/oauth/url. Query parameters (GET) or a JSON object
// body (POST) fill provider placeholders such as a Zendesk subdomain.
func (h *ConnectorHandler) AuthorizationURL(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	engine, err := h.oauthEngine(c)
	if err != nil {
		return err
	}

	params := map[string]string{}
	if c.Request().Method == http.MethodPost && c.Request().ContentLength != 0 {
		if err := bindBody(c, &params); err != nil {
			return err
		}
	} else {
		for name, values := range c.QueryParams() {
			if len(values) > 0 {
				params[name] = values[0]
			}
		}
	}

	authURL, err := engine.BuildAuthorizationURL(ctx, tenantID, params)
	if err != nil {
		if errors.Is(err, oauth.ErrMissingParam) || errors.Is(err, oauth.ErrSaveFailed) {
			return BadRequest(err.Error())
		}
		return Internal(err)
	}

	return SuccessResponse(c, AuthorizationURLResponse{URL: authURL})
}

// Callback handles GET /:connector/oauth/callback and always redirects to the frontend.
func (h *ConnectorHandler) Callback(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ConnectorHandler.Callback")
	defer span.End()

	connector := models.ConnectorType(c.Param("connector"))
	logger := h.logger.WithContext(ctx).WithField("connector", connector)

	engine, ok := h.registry.OAuth(connector)
	if !ok {
		return NotFound("unknown connector")
	}

	if providerErr := c.QueryParam("error"); providerErr != "" {
		logger.WithField("provider_error", providerErr).Warn("provider rejected authorization")
		if !providerErrorCode.MatchString(providerErr) {
			providerErr = "provider_error"
		}
		return c.Redirect(http.StatusFound, h.frontendRedirect(connector, "error", providerErr))
	}

	code, state := c.QueryParam("code"), c.QueryParam("state")
	if code == "" || state == "" {
		return c.Redirect(http.StatusFound, h.frontendRedirect(connector, "error", "invalid_request"))
	}

	result, err := engine.ExchangeCodeForToken(ctx, code, state)
	if err != nil {
		tracing.RecordError(span, err, "oauth callback failed")
		logger.WithError(err).Warn("oauth callback failed")
		return c.Redirect(http.StatusFound, h.frontendRedirect(connector, "error", callbackErrorCode(err)))
	}

	logger.WithField("tenant_id", result.TenantID).Info("oauth connector connected")
	return c.Redirect(http.StatusFound, h.frontendRedirect(connector, "status", "success"))
}

// Disconnect handles DELETE /:connector/disconnect
func (h *ConnectorHandler) Disconnect(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	connector := models.ConnectorType(c.Param("connector"))

	var disconnected bool
	if engine, ok := h.registry.OAuth(connector); ok {
		disconnected, err = engine.Disconnect(ctx, tenantID)
	} else if flow, ok := h.registry.APIKey(connector); ok {
		disconnected, err = flow.Disconnect(ctx, tenantID)
	} else {
		return NotFound("unknown connector")
	}
	if err != nil {
		return Internal(err)
	}

	return SuccessResponse(c, DisconnectResponse{Connector: connector, Disconnected: disconnected})
}

// Status handles GET /:connector/status
func (h *ConnectorHandler) Status(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	connector := models.ConnectorType(c.Param("connector"))

	var report *oauth.StatusReport
	if engine, ok := h.registry.OAuth(connector); ok {
		report, err = engine.Status(ctx, tenantID)
	} else if flow, ok := h.registry.APIKey(connector); ok {
		report, err = flow.Status(ctx, tenantID)
	} else {
		return NotFound("unknown connector")
	}
	if err != nil {
		return Internal(err)
	}

	return SuccessResponse(c, report)
}

// Connect handles POST /:connector/connect for API-key connectors
func (h *ConnectorHandler) Connect(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	flow, ok := h.registry.APIKey(models.ConnectorType(c.Param("connector")))
	if !ok {
		return NotFound("unknown api key connector")
	}

	var values map[string]string
	if err := bindBody(c, &values); err != nil {
		return err
	}
	if len(values) == 0 {
		return BadRequest("no configuration values provided")
	}

	installation, err := flow.Connect(ctx, tenantID, values)
	if err != nil {
		if errors.Is(err, connectors.ErrIncomplete) || errors.Is(err, connectors.ErrForeignKey) {
			return BadRequest(err.Error())
		}
		return Internal(err)
	}

	return SuccessResponse(c, installation)
}

func (h *ConnectorHandler) oauthEngine(c echo.Context) (*oauth.Engine, error) {
	engine, ok := h.registry.OAuth(models.ConnectorType(c.Param("connector")))
	if !ok {
		return nil, NotFound("unknown oauth connector")
	}
	return engine, nil
}

func (h *ConnectorHandler) frontendRedirect(connector models.ConnectorType, name string, value string) string {
	query := url.Values{}
	query.Set("connector", connector.String())
	query.Set(name, value)
	return h.frontendURL + CallbackPath + "?" + query.Encode()
}

func callbackErrorCode(err error) string {
	switch {
	case errors.Is(err, oauth.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, oauth.ErrSaveFailed):
		return "save_failed"
	case errors.Is(err, oauth.ErrProviderRequest):
		return "exchange_failed"
	default:
		return "internal_error"
	}
}
