package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

// AdminHandler exposes operator actions: manual status changes, courier
// dispatch and payment relays.
type AdminHandler struct {
	parcels  ports.ParcelService
	dispatch ports.DispatchService
	payments ports.PaymentService
}

func NewAdminHandler(parcels ports.ParcelService, dispatch ports.DispatchService, payments ports.PaymentService) *AdminHandler {
	return &AdminHandler{parcels: parcels, dispatch: dispatch, payments: payments}
}

// UpdateStatus handles PATCH /v1/admin/parcels/:id/status.
//
// @Summary      Change a parcel's status
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string               true  "Parcel ID"
// @Param        body  body      statusUpdateRequest  true  "New status"
// @Success      200   {object}  parcelResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /v1/admin/parcels/{id}/status [patch]
func (h *AdminHandler) UpdateStatus(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req statusUpdateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		return err
	}

	p, err := h.parcels.UpdateParcelStatus(c.Request().Context(), ports.StatusUpdateInput{
		ParcelID:    c.Param("id"),
		Status:      status,
		Actor:       actor,
		Location:    req.Location,
		Description: req.Description,
		Coordinates: toCoordinates(req.Coordinates),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toParcelResponse(p))
}

// AssignCourier handles POST /v1/admin/parcels/:id/assignments.
//
// @Summary      Assign a courier to a parcel
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string                true  "Parcel ID"
// @Param        body  body      assignCourierRequest  true  "Courier"
// @Success      201   {object}  domain.CourierAssignment
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /v1/admin/parcels/{id}/assignments [post]
func (h *AdminHandler) AssignCourier(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req assignCourierRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	a, err := h.dispatch.AssignCourier(c.Request().Context(), actor, c.Param("id"), req.CourierID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

// CancelAssignment handles DELETE /v1/admin/assignments/:id.
//
// @Summary      Cancel an active courier assignment
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Assignment ID"
// @Success      200  {object}  domain.CourierAssignment
// @Failure      400  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/admin/assignments/{id} [delete]
func (h *AdminHandler) CancelAssignment(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	a, err := h.dispatch.CancelAssignment(c.Request().Context(), actor, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

// ConfirmPayment handles POST /v1/payments/confirm.
//
// @Summary      Relay a payment confirmation from the gateway
// @Tags         payments
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      paymentConfirmRequest  true  "Payment"
// @Success      200   {object}  parcelResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /v1/payments/confirm [post]
func (h *AdminHandler) ConfirmPayment(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req paymentConfirmRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	p, err := h.payments.ConfirmPayment(c.Request().Context(), ports.PaymentConfirmation{
		ParcelID:         req.ParcelID,
		TrackingNumber:   req.TrackingNumber,
		PaymentReference: req.PaymentReference,
		ActorID:          actor.ID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toParcelResponse(p))
}
