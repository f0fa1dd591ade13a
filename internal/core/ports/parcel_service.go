package ports

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sendit/parcel-service/internal/core/domain"
)

// Actor is the authenticated caller of a use case.
type Actor struct {
	ID   string
	Role domain.Role
}

// IsAdmin reports whether the actor has the ADMIN role.
func (a Actor) IsAdmin() bool { return a.Role == domain.RoleAdmin }

// RecipientInput identifies the recipient. Unknown emails get a shell account.
type RecipientInput struct {
	Name  string
	Email string
	Phone string
}

// CreateParcelInput carries all data needed to create a new parcel.
type CreateParcelInput struct {
	SenderID          string
	Recipient         RecipientInput
	SenderAddress     domain.Address
	RecipientAddress  domain.Address
	PackageType       domain.PackageType
	Weight            float64
	WeightUnit        domain.WeightUnit
	Dimensions        *domain.Dimensions
	Description       string
	DeclaredValue     decimal.Decimal
	DeliveryType      domain.DeliveryType      // empty = STANDARD
	InsuranceCoverage domain.InsuranceCoverage // empty = NO_INSURANCE
	Handling          domain.Handling
	// InitialStatus is DRAFT, PROCESSING or PAYMENT_PENDING. Empty = PROCESSING.
	InitialStatus  domain.ParcelStatus
	IdempotencyKey string
}

// ParcelResult is returned after creating a parcel.
type ParcelResult struct {
	Parcel *domain.Parcel
	// AlreadyExisted is true when the Idempotency-Key matched an existing parcel.
	AlreadyExisted bool
}

// StatusUpdateInput is an admin or sender request to change a parcel's status.
type StatusUpdateInput struct {
	ParcelID    string
	Status      domain.ParcelStatus
	Actor       Actor
	Location    string
	Description string
	Coordinates *domain.Coordinates
}

// ParcelDetail is the full view of one parcel.
type ParcelDetail struct {
	Parcel           *domain.Parcel
	History          []domain.TrackingEntry
	Attempts         []domain.DeliveryAttempt
	ActiveAssignment *domain.CourierAssignment
	AllowedNext      []domain.ParcelStatus
}

// ListParcelsInput carries the list endpoint parameters.
type ListParcelsInput struct {
	Actor         Actor
	Statuses      []domain.ParcelStatus
	DeliveryTypes []domain.DeliveryType
	Search        string
	DateFrom      time.Time
	DateTo        time.Time
	// Participation narrows a customer's view to sent or received parcels.
	Participation ParticipantRole
	Page          int
	Limit         int
}

// ListParcelsResult is returned by ListParcels.
type ListParcelsResult struct {
	Items      []*domain.Parcel
	Total      int64
	Page       int
	Limit      int
	TotalPages int
}

// TrackingView is the public, unauthenticated view of a parcel.
type TrackingView struct {
	TrackingNumber    string                 `json:"tracking_number"`
	Version           int64                  `json:"version"`
	Status            domain.ParcelStatus    `json:"status"`
	DeliveryType      domain.DeliveryType    `json:"delivery_type"`
	OriginCity        string                 `json:"origin_city"`
	DestinationCity   string                 `json:"destination_city"`
	EstimatedDelivery time.Time              `json:"estimated_delivery"`
	ActualDelivery    *time.Time             `json:"actual_delivery,omitempty"`
	History           []domain.TrackingEntry `json:"history"`
}

// ParcelService defines sender-, admin- and public-facing parcel use cases.
type ParcelService interface {
	CreateParcel(ctx context.Context, input CreateParcelInput) (*ParcelResult, error)
	GetParcel(ctx context.Context, actor Actor, parcelID string) (*ParcelDetail, error)
	ListParcels(ctx context.Context, input ListParcelsInput) (*ListParcelsResult, error)
	GetHistory(ctx context.Context, actor Actor, parcelID string, limit int) ([]domain.TrackingEntry, error)
	GetAttempts(ctx context.Context, actor Actor, parcelID string) ([]domain.DeliveryAttempt, error)
	TrackParcel(ctx context.Context, trackingNumber string) (*TrackingView, error)
	UpdateParcelStatus(ctx context.Context, input StatusUpdateInput) (*domain.Parcel, error)
	SubmitDraft(ctx context.Context, actor Actor, parcelID string) (*domain.Parcel, error)
	CancelParcel(ctx context.Context, actor Actor, parcelID, reason string) (*domain.Parcel, error)
	DeleteParcel(ctx context.Context, actor Actor, parcelID string) error
	Quote(weight float64, unit domain.WeightUnit, deliveryType domain.DeliveryType, coverage domain.InsuranceCoverage) domain.PriceBreakdown
}

// PhotoUpload is an optional proof-of-delivery image.
type PhotoUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// DeliveryUpdateInput is a courier's status report for one parcel.
type DeliveryUpdateInput struct {
	ParcelID      string
	CourierID     string
	Status        domain.ParcelStatus
	Location      string
	Notes         string
	FailureReason domain.AttemptStatus
	Coordinates   *domain.Coordinates
	Photo         *PhotoUpload
}

// CourierDelivery is one parcel from the courier's point of view.
type CourierDelivery struct {
	Parcel            *domain.Parcel
	Assignment        *domain.CourierAssignment
	LatestAttempt     *domain.DeliveryAttempt
	Priority          domain.Priority
	EstimatedEarnings decimal.Decimal
}

// EarningsPeriod aggregates completed deliveries since From.
type EarningsPeriod struct {
	From       time.Time
	Deliveries int
	Earnings   decimal.Decimal
	Bonus      decimal.Decimal
	Total      decimal.Decimal
}

// CourierEarnings is returned by GetEarnings.
type CourierEarnings struct {
	CourierID     string
	Daily         EarningsPeriod
	Weekly        EarningsPeriod
	Monthly       EarningsPeriod
	AverageRating float64
}

// CourierService defines courier-facing use cases.
type CourierService interface {
	ListDeliveries(ctx context.Context, courierID string) ([]CourierDelivery, error)
	UpdateDeliveryStatus(ctx context.Context, input DeliveryUpdateInput) (*CourierDelivery, error)
	GetEarnings(ctx context.Context, courierID string) (*CourierEarnings, error)
}

// DispatchService assigns couriers to parcels.
type DispatchService interface {
	AssignCourier(ctx context.Context, admin Actor, parcelID, courierID string) (*domain.CourierAssignment, error)
	CancelAssignment(ctx context.Context, admin Actor, assignmentID string) (*domain.CourierAssignment, error)
}

// PaymentConfirmation is relayed from the payment gateway.
type PaymentConfirmation struct {
	ParcelID         string
	TrackingNumber   string
	PaymentReference string
	ActorID          string
}

// PaymentService applies payment outcomes to parcels.
type PaymentService interface {
	ConfirmPayment(ctx context.Context, in PaymentConfirmation) (*domain.Parcel, error)
}

// UserService exposes the caller's profile.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (*domain.User, error)
	UpdatePreferences(ctx context.Context, userID string, notificationsEnabled bool) (*domain.User, error)
}

// InboxService reads in-app notifications.
type InboxService interface {
	List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
}
