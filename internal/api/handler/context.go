package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sendit/parcel-service/internal/api/middleware"
	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

// ctxActor extracts the caller injected by the Auth middleware and fails
// fast when the claims are missing.
func ctxActor(c echo.Context) (ports.Actor, error) {
	userID, _ := c.Get(middleware.ContextUserID).(string)
	role, _ := c.Get(middleware.ContextRole).(domain.Role)
	if userID == "" || role == "" {
		return ports.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return ports.Actor{ID: userID, Role: role}, nil
}

// bindAndValidate decodes the request into req and runs struct validation.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return nil
}
