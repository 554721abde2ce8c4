package http

import (
	"errors"
	"net/http"

	"livetix/entities"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	tenantHeader     = "X-Tenant"
	tenantContextKey = "tenant"
)

func (h Handler) resolveTenant(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		slug := c.Request().Header.Get(tenantHeader)
		if slug == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "missing "+tenantHeader+" header")
		}

		tenant, err := h.tenantRepo.BySlug(c.Request().Context(), slug)
		if errors.Is(err, entities.ErrTenantNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "unknown tenant")
		}
		if err != nil {
			return err
		}

		c.Set(tenantContextKey, tenant)
		return next(c)
	}
}

func tenantFrom(c echo.Context) entities.Tenant {
	return c.Get(tenantContextKey).(entities.Tenant)
}

type tenantRequest struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

func (h Handler) PostTenant(c echo.Context) error {
	var req tenantRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Slug == "" || req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "slug and name are required")
	}

	tenant := entities.Tenant{
		TenantID:  uuid.New(),
		Slug:      req.Slug,
		Name:      req.Name,
		CreatedAt: h.clock.Now(),
	}
	if err := h.tenantRepo.Create(c.Request().Context(), tenant); err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, tenant)
}
