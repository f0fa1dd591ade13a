package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sendit/parcel-service/internal/core/ports"
)

// UserHandler serves the caller's profile and in-app inbox.
type UserHandler struct {
	users ports.UserService
	inbox ports.InboxService
}

func NewUserHandler(users ports.UserService, inbox ports.InboxService) *UserHandler {
	return &UserHandler{users: users, inbox: inbox}
}

// Me handles GET /v1/users/me.
//
// @Summary      Current user's profile
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.User
// @Failure      404  {object}  errorResponse
// @Router       /v1/users/me [get]
func (h *UserHandler) Me(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	u, err := h.users.GetProfile(c.Request().Context(), actor.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

// UpdatePreferences handles PATCH /v1/users/me/preferences.
//
// @Summary      Opt in or out of notifications
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      preferencesRequest  true  "Preferences"
// @Success      200   {object}  domain.User
// @Failure      422   {object}  errorResponse
// @Router       /v1/users/me/preferences [patch]
func (h *UserHandler) UpdatePreferences(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req preferencesRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	u, err := h.users.UpdatePreferences(c.Request().Context(), actor.ID, *req.NotificationsEnabled)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

// Notifications handles GET /v1/notifications.
//
// @Summary      In-app notifications, newest first
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        unread  query     bool  false  "Only unread"
// @Param        limit   query     int   false  "Maximum items"
// @Success      200     {object}  notificationsResponse
// @Router       /v1/notifications [get]
func (h *UserHandler) Notifications(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var (
		unread bool
		limit  int
	)
	if err := echo.QueryParamsBinder(c).
		Bool("unread", &unread).
		Int("limit", &limit).
		BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}
	items, err := h.inbox.List(c.Request().Context(), actor.ID, unread, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notificationsResponse{Items: items})
}

// MarkRead handles POST /v1/notifications/:id/read.
//
// @Summary      Mark a notification as read
// @Tags         users
// @Security     BearerAuth
// @Param        id   path  string  true  "Notification ID"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Router       /v1/notifications/{id}/read [post]
func (h *UserHandler) MarkRead(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	if err := h.inbox.MarkRead(c.Request().Context(), actor.ID, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
