package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sendit/parcel-service/internal/core/domain"
)

// --- Request types ---

type coordinatesRequest struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

type addressRequest struct {
	Street      string              `json:"street" validate:"required"`
	City        string              `json:"city" validate:"required"`
	State       string              `json:"state"`
	PostalCode  string              `json:"postal_code"`
	Country     string              `json:"country" validate:"required"`
	Coordinates *coordinatesRequest `json:"coordinates" validate:"omitempty"`
}

type recipientRequest struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone"`
}

type dimensionsRequest struct {
	LengthCm float64 `json:"length_cm" validate:"gt=0"`
	WidthCm  float64 `json:"width_cm" validate:"gt=0"`
	HeightCm float64 `json:"height_cm" validate:"gt=0"`
}

type handlingRequest struct {
	Fragile           bool `json:"fragile"`
	Perishable        bool `json:"perishable"`
	Hazardous         bool `json:"hazardous"`
	HighValue         bool `json:"high_value"`
	SignatureRequired bool `json:"signature_required"`
}

type createParcelRequest struct {
	// SenderID lets an admin create a parcel on a customer's behalf.
	SenderID          string             `json:"sender_id"`
	Recipient         recipientRequest   `json:"recipient"`
	SenderAddress     addressRequest     `json:"sender_address"`
	RecipientAddress  addressRequest     `json:"recipient_address"`
	PackageType       string             `json:"package_type" validate:"required,oneof=DOCUMENT ENVELOPE SMALL_BOX MEDIUM_BOX LARGE_BOX OTHER"`
	Weight            float64            `json:"weight" validate:"gt=0"`
	WeightUnit        string             `json:"weight_unit" validate:"omitempty,oneof=KG LB G"`
	Dimensions        *dimensionsRequest `json:"dimensions" validate:"omitempty"`
	Description       string             `json:"description" validate:"max=500"`
	DeclaredValue     decimal.Decimal    `json:"declared_value" swaggertype:"number"`
	DeliveryType      string             `json:"delivery_type" validate:"omitempty,oneof=STANDARD EXPRESS SAME_DAY OVERNIGHT"`
	InsuranceCoverage string             `json:"insurance_coverage" validate:"omitempty,oneof=NO_INSURANCE BASIC_INSURANCE PREMIUM_INSURANCE"`
	Handling          handlingRequest    `json:"handling"`
	InitialStatus     string             `json:"initial_status" validate:"omitempty,oneof=DRAFT PROCESSING PAYMENT_PENDING"`
}

type cancelParcelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type statusUpdateRequest struct {
	Status      string              `json:"status" validate:"required"`
	Location    string              `json:"location"`
	Description string              `json:"description" validate:"max=500"`
	Coordinates *coordinatesRequest `json:"coordinates" validate:"omitempty"`
}

type assignCourierRequest struct {
	CourierID string `json:"courier_id" validate:"required"`
}

type quoteRequest struct {
	Weight            float64 `json:"weight" validate:"gt=0"`
	WeightUnit        string  `json:"weight_unit" validate:"omitempty,oneof=KG LB G"`
	DeliveryType      string  `json:"delivery_type" validate:"omitempty,oneof=STANDARD EXPRESS SAME_DAY OVERNIGHT"`
	InsuranceCoverage string  `json:"insurance_coverage" validate:"omitempty,oneof=NO_INSURANCE BASIC_INSURANCE PREMIUM_INSURANCE"`
}

type paymentConfirmRequest struct {
	ParcelID         string `json:"parcel_id" validate:"required_without=TrackingNumber"`
	TrackingNumber   string `json:"tracking_number" validate:"omitempty,tracking_number"`
	PaymentReference string `json:"payment_reference"`
}

type deliveryStatusRequest struct {
	Status        string              `json:"status" validate:"required"`
	Location      string              `json:"location"`
	Notes         string              `json:"notes" validate:"max=1000"`
	FailureReason string              `json:"failure_reason"`
	Coordinates   *coordinatesRequest `json:"coordinates" validate:"omitempty"`
}

type preferencesRequest struct {
	NotificationsEnabled *bool `json:"notifications_enabled" validate:"required"`
}

// --- Response types ---

// errorResponse documents the envelope rendered by the API error handler.
type errorResponse struct {
	Error string `json:"error"`
}

type parcelLinks struct {
	Self     string `json:"self"`
	History  string `json:"history"`
	Tracking string `json:"tracking"`
}

type parcelResponse struct {
	*domain.Parcel
	Links parcelLinks `json:"_links"`
}

type parcelDetailResponse struct {
	parcelResponse
	History          []domain.TrackingEntry    `json:"history"`
	Attempts         []domain.DeliveryAttempt  `json:"delivery_attempts"`
	ActiveAssignment *domain.CourierAssignment `json:"active_assignment,omitempty"`
	AllowedNext      []domain.ParcelStatus     `json:"allowed_next_statuses"`
}

type listParcelsResponse struct {
	Items      []parcelResponse `json:"items"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"total_pages"`
}

type deliveryResponse struct {
	Parcel            parcelResponse            `json:"parcel"`
	Assignment        *domain.CourierAssignment `json:"assignment"`
	LatestAttempt     *domain.DeliveryAttempt   `json:"latest_attempt,omitempty"`
	Priority          domain.Priority           `json:"priority"`
	EstimatedEarnings decimal.Decimal           `json:"estimated_earnings" swaggertype:"number"`
}

type earningsPeriodResponse struct {
	From       time.Time       `json:"from"`
	Deliveries int             `json:"deliveries"`
	Earnings   decimal.Decimal `json:"earnings" swaggertype:"number"`
	Bonus      decimal.Decimal `json:"bonus" swaggertype:"number"`
	Total      decimal.Decimal `json:"total" swaggertype:"number"`
}

type earningsResponse struct {
	CourierID     string                 `json:"courier_id"`
	Daily         earningsPeriodResponse `json:"daily"`
	Weekly        earningsPeriodResponse `json:"weekly"`
	Monthly       earningsPeriodResponse `json:"monthly"`
	AverageRating float64                `json:"average_rating"`
}

type quoteResponse struct {
	domain.PriceBreakdown
	Currency string `json:"currency"`
}

type notificationsResponse struct {
	Items []*domain.Notification `json:"items"`
}
