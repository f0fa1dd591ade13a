package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

// TrackingHandler serves the unauthenticated endpoints.
type TrackingHandler struct {
	service  ports.ParcelService
	currency string
}

func NewTrackingHandler(service ports.ParcelService, currency string) *TrackingHandler {
	return &TrackingHandler{service: service, currency: currency}
}

// Track handles GET /v1/track/:tracking_number.
//
// @Summary      Public tracking view
// @Tags         tracking
// @Produce      json
// @Param        tracking_number  path      string  true  "Tracking number"
// @Success      200              {object}  ports.TrackingView
// @Failure      400              {object}  errorResponse
// @Failure      404              {object}  errorResponse
// @Router       /v1/track/{tracking_number} [get]
func (h *TrackingHandler) Track(c echo.Context) error {
	view, err := h.service.TrackParcel(c.Request().Context(), c.Param("tracking_number"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

// Quote handles POST /v1/quotes.
//
// @Summary      Price a prospective parcel
// @Tags         tracking
// @Accept       json
// @Produce      json
// @Param        body  body      quoteRequest  true  "Parcel weight and service"
// @Success      200   {object}  quoteResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/quotes [post]
func (h *TrackingHandler) Quote(c echo.Context) error {
	var req quoteRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	breakdown := h.service.Quote(req.Weight,
		domain.WeightUnit(req.WeightUnit),
		domain.DeliveryType(req.DeliveryType),
		domain.InsuranceCoverage(req.InsuranceCoverage),
	)
	return c.JSON(http.StatusOK, quoteResponse{PriceBreakdown: breakdown, Currency: h.currency})
}
