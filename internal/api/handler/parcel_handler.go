package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

// ParcelHandler handles HTTP requests for sender-facing parcel operations.
type ParcelHandler struct {
	service ports.ParcelService
}

func NewParcelHandler(service ports.ParcelService) *ParcelHandler {
	return &ParcelHandler{service: service}
}

// Create handles POST /v1/parcels.
//
// @Summary      Create a new parcel
// @Tags         parcels
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key  header    string               false  "Idempotency key to prevent duplicate submissions"
// @Param        body             body      createParcelRequest  true   "Parcel details"
// @Success      201              {object}  parcelResponse
// @Success      200              {object}  parcelResponse  "Replayed idempotent request"
// @Failure      400              {object}  errorResponse
// @Failure      401              {object}  errorResponse
// @Failure      422              {object}  errorResponse
// @Router       /v1/parcels [post]
func (h *ParcelHandler) Create(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req createParcelRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	senderID := actor.ID
	if actor.IsAdmin() && req.SenderID != "" {
		senderID = req.SenderID
	}

	result, err := h.service.CreateParcel(c.Request().Context(),
		toCreateInput(req, senderID, c.Request().Header.Get("Idempotency-Key")))
	if err != nil {
		return err
	}

	if result.AlreadyExisted {
		c.Response().Header().Set("Idempotent-Replayed", "true")
		return c.JSON(http.StatusOK, toParcelResponse(result.Parcel))
	}
	c.Response().Header().Set(echo.HeaderLocation, "/v1/parcels/"+result.Parcel.ID)
	return c.JSON(http.StatusCreated, toParcelResponse(result.Parcel))
}

// List handles GET /v1/parcels.
//
// @Summary      List parcels
// @Description  Customers only see parcels they send or receive.
// @Tags         parcels
// @Produce      json
// @Security     BearerAuth
// @Param        status         query     string  false  "Comma-separated statuses"
// @Param        delivery_type  query     string  false  "Comma-separated delivery types"
// @Param        search         query     string  false  "Tracking number or description fragment"
// @Param        date_from      query     string  false  "RFC3339 or YYYY-MM-DD"
// @Param        date_to        query     string  false  "RFC3339 or YYYY-MM-DD"
// @Param        role           query     string  false  "sent or received"
// @Param        page           query     int     false  "Page (1-based)"
// @Param        limit          query     int     false  "Page size (max 100)"
// @Success      200            {object}  listParcelsResponse
// @Failure      400            {object}  errorResponse
// @Router       /v1/parcels [get]
func (h *ParcelHandler) List(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}

	in := ports.ListParcelsInput{Actor: actor, Search: c.QueryParam("search")}
	if err := echo.QueryParamsBinder(c).
		Int("page", &in.Page).
		Int("limit", &in.Limit).
		BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "page and limit must be integers")
	}

	for _, s := range splitList(c.QueryParam("status")) {
		status, err := domain.ParseStatus(s)
		if err != nil {
			return err
		}
		in.Statuses = append(in.Statuses, status)
	}
	for _, t := range splitList(c.QueryParam("delivery_type")) {
		in.DeliveryTypes = append(in.DeliveryTypes, domain.DeliveryType(t))
	}
	if in.DateFrom, err = parseDate(c.QueryParam("date_from"), false); err != nil {
		return domain.NewValidationError("date_from", "expected RFC3339 or YYYY-MM-DD")
	}
	if in.DateTo, err = parseDate(c.QueryParam("date_to"), true); err != nil {
		return domain.NewValidationError("date_to", "expected RFC3339 or YYYY-MM-DD")
	}
	switch c.QueryParam("role") {
	case "sent":
		in.Participation = ports.ParticipantSender
	case "received":
		in.Participation = ports.ParticipantRecipient
	case "":
	default:
		return domain.NewValidationError("role", "must be sent or received")
	}

	result, err := h.service.ListParcels(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toListResponse(result))
}

// parseDate accepts RFC3339 or a bare date. A bare end date covers the whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// Get handles GET /v1/parcels/:id.
//
// @Summary      Get a parcel with its history
// @Tags         parcels
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Parcel ID"
// @Success      200  {object}  parcelDetailResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/parcels/{id} [get]
func (h *ParcelHandler) Get(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	detail, err := h.service.GetParcel(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toDetailResponse(detail))
}

// History handles GET /v1/parcels/:id/history.
//
// @Summary      Tracking history, newest first
// @Tags         parcels
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      string  true   "Parcel ID"
// @Param        limit  query     int     false  "Maximum entries"
// @Success      200    {array}   domain.TrackingEntry
// @Failure      404    {object}  errorResponse
// @Router       /v1/parcels/{id}/history [get]
func (h *ParcelHandler) History(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var limit int
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
	}
	entries, err := h.service.GetHistory(c.Request().Context(), actor, c.Param("id"), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

// Attempts handles GET /v1/parcels/:id/attempts.
//
// @Summary      Delivery attempts in order
// @Tags         parcels
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Parcel ID"
// @Success      200  {array}   domain.DeliveryAttempt
// @Failure      404  {object}  errorResponse
// @Router       /v1/parcels/{id}/attempts [get]
func (h *ParcelHandler) Attempts(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	attempts, err := h.service.GetAttempts(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, attempts)
}

// Submit handles POST /v1/parcels/:id/submit.
//
// @Summary      Submit a draft for processing
// @Tags         parcels
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Parcel ID"
// @Success      200  {object}  parcelResponse
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/parcels/{id}/submit [post]
func (h *ParcelHandler) Submit(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	p, err := h.service.SubmitDraft(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toParcelResponse(p))
}

// Cancel handles POST /v1/parcels/:id/cancel.
//
// @Summary      Cancel a parcel
// @Tags         parcels
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string               true   "Parcel ID"
// @Param        body  body      cancelParcelRequest  false  "Cancellation reason"
// @Success      200   {object}  parcelResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /v1/parcels/{id}/cancel [post]
func (h *ParcelHandler) Cancel(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req cancelParcelRequest
	if c.Request().ContentLength != 0 {
		if err := bindAndValidate(c, &req); err != nil {
			return err
		}
	}
	p, err := h.service.CancelParcel(c.Request().Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toParcelResponse(p))
}

// Delete handles DELETE /v1/parcels/:id.
//
// @Summary      Soft-delete a parcel
// @Description  Customers may only delete DRAFT or CANCELLED parcels.
// @Tags         parcels
// @Security     BearerAuth
// @Param        id   path  string  true  "Parcel ID"
// @Success      204
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/parcels/{id} [delete]
func (h *ParcelHandler) Delete(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteParcel(c.Request().Context(), actor, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
