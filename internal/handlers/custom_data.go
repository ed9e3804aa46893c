package handlers

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/trellis/pkg/customdata"
	"github.com/Ramsey-B/trellis/pkg/models"
)

// CustomDataHandler handles custom data type API requests
type CustomDataHandler struct {
	service *customdata.Service
}

func NewCustomDataHandler(service *customdata.Service) *CustomDataHandler {
	return &CustomDataHandler{service: service}
}

// RegisterRoutes registers the custom data routes
func (h *CustomDataHandler) RegisterRoutes(g *echo.Group) {
	types := g.Group("/custom-data/types")
	types.GET("", h.List)
	types.POST("", h.Create)
	types.GET("/:id", h.Get)
	types.PUT("/:id", h.Update)
	types.DELETE("/:id", h.Delete)
}

// List handles GET /custom-data/types
func (h *CustomDataHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	types, err := h.service.List(ctx, tenantID)
	if err != nil {
		return Internal(err)
	}
	if types == nil {
		types = []models.CustomDataType{}
	}

	return SuccessResponse(c, types)
}

// Create handles POST /custom-data/types
func (h *CustomDataHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}

	req, err := BindRequest[models.CreateCustomDataTypeRequest](c)
	if err != nil {
		return err
	}

	created, err := h.service.Create(ctx, tenantID, req)
	if err != nil {
		return customDataError(err)
	}

	return CreatedResponse(c, created)
}

// Get handles GET /custom-data/types/:id
func (h *CustomDataHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	t, err := h.service.Get(ctx, tenantID, id)
	if err != nil {
		return customDataError(err)
	}

	return SuccessResponse(c, t)
}

// Update handles PUT /custom-data/types/:id
func (h *CustomDataHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	req, err := BindRequest[models.UpdateCustomDataTypeRequest](c)
	if err != nil {
		return err
	}

	updated, err := h.service.Update(ctx, tenantID, id, req)
	if err != nil {
		return customDataError(err)
	}

	return SuccessResponse(c, updated)
}

// Delete handles DELETE /custom-data/types/:id, removing the type with all of its documents
func (h *CustomDataHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := GetTenantID(c)
	if err != nil {
		return err
	}
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	result, err := h.service.Delete(ctx, tenantID, id)
	if err != nil {
		return customDataError(err)
	}

	return SuccessResponse(c, result)
}

func customDataError(err error) error {
	switch {
	case errors.Is(err, customdata.ErrNotFound):
		return NotFound("custom data type not found")
	case errors.Is(err, customdata.ErrInvalidDisplayName):
		return BadRequest(err.Error() + ": display_name must contain at least one letter or digit")
	case errors.Is(err, customdata.ErrDuplicateSlug):
		return Conflict(err.Error())
	default:
		return Internal(err)
	}
}
