package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

// CourierHandler serves the courier app.
type CourierHandler struct {
	service ports.CourierService
}

func NewCourierHandler(service ports.CourierService) *CourierHandler {
	return &CourierHandler{service: service}
}

// Deliveries handles GET /v1/courier/deliveries.
//
// @Summary      Active deliveries, highest priority first
// @Tags         courier
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  deliveryResponse
// @Router       /v1/courier/deliveries [get]
func (h *CourierHandler) Deliveries(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	deliveries, err := h.service.ListDeliveries(c.Request().Context(), actor.ID)
	if err != nil {
		return err
	}
	out := make([]deliveryResponse, len(deliveries))
	for i, d := range deliveries {
		out[i] = toDeliveryResponse(d)
	}
	return c.JSON(http.StatusOK, out)
}

// UpdateStatus handles PATCH /v1/courier/deliveries/:parcel_id/status.
// It accepts JSON, or multipart/form-data carrying an optional "photo" file.
//
// @Summary      Report delivery progress
// @Tags         courier
// @Accept       json,mpfd
// @Produce      json
// @Security     BearerAuth
// @Param        parcel_id  path      string                 true   "Parcel ID"
// @Param        body       body      deliveryStatusRequest  false  "Status update (JSON)"
// @Param        photo      formData  file                   false  "Proof of delivery"
// @Success      200        {object}  deliveryResponse
// @Failure      400        {object}  errorResponse
// @Failure      404        {object}  errorResponse
// @Failure      409        {object}  errorResponse
// @Router       /v1/courier/deliveries/{parcel_id}/status [patch]
func (h *CourierHandler) UpdateStatus(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}

	var (
		req   deliveryStatusRequest
		photo *ports.PhotoUpload
	)
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		req, err = multipartStatus(c)
		if err != nil {
			return err
		}
		fh, err := c.FormFile("photo")
		switch {
		case errors.Is(err, http.ErrMissingFile):
		case err != nil:
			return echo.NewHTTPError(http.StatusBadRequest, "invalid photo upload")
		default:
			f, err := fh.Open()
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid photo upload")
			}
			defer f.Close()
			photo = &ports.PhotoUpload{
				Filename:    fh.Filename,
				ContentType: fh.Header.Get(echo.HeaderContentType),
				Size:        fh.Size,
				Body:        f,
			}
		}
		if err := c.Validate(&req); err != nil {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
	} else if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		return err
	}
	reason, err := domain.ParseAttemptStatus(req.FailureReason)
	if err != nil {
		return err
	}

	delivery, err := h.service.UpdateDeliveryStatus(c.Request().Context(), ports.DeliveryUpdateInput{
		ParcelID:      c.Param("parcel_id"),
		CourierID:     actor.ID,
		Status:        status,
		Location:      req.Location,
		Notes:         req.Notes,
		FailureReason: reason,
		Coordinates:   toCoordinates(req.Coordinates),
		Photo:         photo,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toDeliveryResponse(*delivery))
}

// multipartStatus reads the status fields of a multipart update. Coordinates
// are sent as separate lat and lng fields.
func multipartStatus(c echo.Context) (deliveryStatusRequest, error) {
	req := deliveryStatusRequest{
		Status:        c.FormValue("status"),
		Location:      c.FormValue("location"),
		Notes:         c.FormValue("notes"),
		FailureReason: c.FormValue("failure_reason"),
	}
	lat, lng := c.FormValue("lat"), c.FormValue("lng")
	if lat == "" && lng == "" {
		return req, nil
	}
	la, errLat := strconv.ParseFloat(lat, 64)
	lo, errLng := strconv.ParseFloat(lng, 64)
	if errLat != nil || errLng != nil {
		return req, domain.NewValidationError("coordinates", "lat and lng must both be numbers")
	}
	req.Coordinates = &coordinatesRequest{Lat: la, Lng: lo}
	return req, nil
}

// Earnings handles GET /v1/courier/earnings.
//
// @Summary      Earnings for today, this week and this month
// @Tags         courier
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  earningsResponse
// @Router       /v1/courier/earnings [get]
func (h *CourierHandler) Earnings(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	e, err := h.service.GetEarnings(c.Request().Context(), actor.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toEarningsResponse(e))
}
