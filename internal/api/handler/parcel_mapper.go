package handler

import (
	"strings"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

// --- Request → Service input ---

func toCreateInput(req createParcelRequest, senderID, idempotencyKey string) ports.CreateParcelInput {
	in := ports.CreateParcelInput{
		SenderID: senderID,
		Recipient: ports.RecipientInput{
			Name:  req.Recipient.Name,
			Email: req.Recipient.Email,
			Phone: req.Recipient.Phone,
		},
		SenderAddress:     toAddress(req.SenderAddress),
		RecipientAddress:  toAddress(req.RecipientAddress),
		PackageType:       domain.PackageType(req.PackageType),
		Weight:            req.Weight,
		WeightUnit:        domain.WeightUnit(req.WeightUnit),
		Description:       req.Description,
		DeclaredValue:     req.DeclaredValue,
		DeliveryType:      domain.DeliveryType(req.DeliveryType),
		InsuranceCoverage: domain.InsuranceCoverage(req.InsuranceCoverage),
		Handling:          domain.Handling(req.Handling),
		InitialStatus:     domain.ParcelStatus(req.InitialStatus),
		IdempotencyKey:    idempotencyKey,
	}
	if req.Dimensions != nil {
		in.Dimensions = &domain.Dimensions{
			LengthCm: req.Dimensions.LengthCm,
			WidthCm:  req.Dimensions.WidthCm,
			HeightCm: req.Dimensions.HeightCm,
		}
	}
	return in
}

func toAddress(a addressRequest) domain.Address {
	return domain.Address{
		Street:      a.Street,
		City:        a.City,
		State:       a.State,
		PostalCode:  a.PostalCode,
		Country:     a.Country,
		Coordinates: toCoordinates(a.Coordinates),
	}
}

func toCoordinates(c *coordinatesRequest) *domain.Coordinates {
	if c == nil {
		return nil
	}
	return &domain.Coordinates{Lat: c.Lat, Lng: c.Lng}
}

// splitList parses a comma-separated query value into upper-cased items.
func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// --- Service result → HTTP response ---

func toParcelResponse(p *domain.Parcel) parcelResponse {
	return parcelResponse{
		Parcel: p,
		Links: parcelLinks{
			Self:     "/v1/parcels/" + p.ID,
			History:  "/v1/parcels/" + p.ID + "/history",
			Tracking: "/v1/track/" + p.TrackingNumber,
		},
	}
}

func toDetailResponse(d *ports.ParcelDetail) parcelDetailResponse {
	return parcelDetailResponse{
		parcelResponse:   toParcelResponse(d.Parcel),
		History:          d.History,
		Attempts:         d.Attempts,
		ActiveAssignment: d.ActiveAssignment,
		AllowedNext:      d.AllowedNext,
	}
}

func toListResponse(r *ports.ListParcelsResult) listParcelsResponse {
	items := make([]parcelResponse, len(r.Items))
	for i, p := range r.Items {
		items[i] = toParcelResponse(p)
	}
	return listParcelsResponse{
		Items:      items,
		Total:      r.Total,
		Page:       r.Page,
		Limit:      r.Limit,
		TotalPages: r.TotalPages,
	}
}

func toDeliveryResponse(d ports.CourierDelivery) deliveryResponse {
	return deliveryResponse{
		Parcel:            toParcelResponse(d.Parcel),
		Assignment:        d.Assignment,
		LatestAttempt:     d.LatestAttempt,
		Priority:          d.Priority,
		EstimatedEarnings: d.EstimatedEarnings,
	}
}

func toEarningsResponse(e *ports.CourierEarnings) earningsResponse {
	period := func(p ports.EarningsPeriod) earningsPeriodResponse {
		return earningsPeriodResponse{
			From:       p.From,
			Deliveries: p.Deliveries,
			Earnings:   p.Earnings,
			Bonus:      p.Bonus,
			Total:      p.Total,
		}
	}
	return earningsResponse{
		CourierID:     e.CourierID,
		Daily:         period(e.Daily),
		Weekly:        period(e.Weekly),
		Monthly:       period(e.Monthly),
		AverageRating: e.AverageRating,
	}
}
