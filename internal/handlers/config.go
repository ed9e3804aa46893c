package handlers

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/trellis/pkg/configstore"
	"github.com/Ramsey-B/trellis/pkg/keys"
)

// ConfigHandler exposes the unified tenant configuration
type ConfigHandler struct {
	store configstore.Store
}

func NewConfigHandler(store configstore.Store) *ConfigHandler {
	return &ConfigHandler{store: store}
}

type ConfigValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type SaveConfigRequest struct {
	Value string `json:"value" validate:"required"`
}

type DeleteConfigResponse struct {
	Key     string `json:"key"`
	Deleted bool   `json:"deleted"`
}

// RegisterRoutes registers the config routes
func (h *ConfigHandler) RegisterRoutes(g *echo.Group) {
	config := g.Group("/config")
	config.GET("", h.GetAll)
	config.GET("/:key", h.Get)
	config.PUT("/:key", h.Save)
	config.DELETE("/:key", h.Delete)
}

// GetAll handles GET /config
func (h *ConfigHandler) GetAll(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	values, err := h.store.GetAll(ctx, tenantID)
	if err != nil {
		return Internal(err)
	}

	return SuccessResponse(c, values)
}

// Get handles GET /config/:key
func (h *ConfigHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	key := keys.Key(c.Param("key"))

	value, err := h.store.Get(ctx, tenantID, key)
	if err != nil {
		return configError(err)
	}
	if value == nil {
		return NotFound("config value not found")
	}

	return SuccessResponse(c, ConfigValue{Key: key.String(), Value: *value})
}

// Save handles PUT /config/:key
func (h *ConfigHandler) Save(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	key := keys.Key(c.Param("key"))

	req, err := BindRequest[SaveConfigRequest](c)
	if err != nil {
		return err
	}

	ok, err := h.store.Save(ctx, tenantID, key, req.Value)
	if err != nil {
		return configError(err)
	}
	if !ok {
		return Internal(errors.New("config value was not saved"))
	}

	return SuccessResponse(c, ConfigValue{Key: key.String(), Value: req.Value})
}

// Delete handles DELETE /config/:key
func (h *ConfigHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	key := keys.Key(c.Param("key"))

	deleted, err := h.store.Delete(ctx, tenantID, key)
	if err != nil {
		return configError(err)
	}

	return SuccessResponse(c, DeleteConfigResponse{Key: key.String(), Deleted: deleted})
}

func configError(err error) error {
	if errors.Is(err, configstore.ErrUnknownKey) {
		return BadRequest(err.Error())
	}
	return Internal(err)
}
