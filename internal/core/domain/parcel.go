package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParcelStatus represents the lifecycle state of a parcel.
type ParcelStatus string

const (
	StatusDraft            ParcelStatus = "DRAFT"
	StatusProcessing       ParcelStatus = "PROCESSING"
	StatusPaymentPending   ParcelStatus = "PAYMENT_PENDING"
	StatusPaymentConfirmed ParcelStatus = "PAYMENT_CONFIRMED"
	StatusPickedUp         ParcelStatus = "PICKED_UP"
	StatusInTransit        ParcelStatus = "IN_TRANSIT"
	StatusOutForDelivery   ParcelStatus = "OUT_FOR_DELIVERY"
	StatusDelivered        ParcelStatus = "DELIVERED"
	StatusDelayed          ParcelStatus = "DELAYED"
	StatusReturned         ParcelStatus = "RETURNED"
	StatusCancelled        ParcelStatus = "CANCELLED"
	StatusRefunded         ParcelStatus = "REFUNDED"
)

// AllStatuses lists every known status in lifecycle order.
var AllStatuses = []ParcelStatus{
	StatusDraft,
	StatusProcessing,
	StatusPaymentPending,
	StatusPaymentConfirmed,
	StatusPickedUp,
	StatusInTransit,
	StatusOutForDelivery,
	StatusDelivered,
	StatusDelayed,
	StatusReturned,
	StatusCancelled,
	StatusRefunded,
}

// ParseStatus converts user input into a known ParcelStatus.
func ParseStatus(s string) (ParcelStatus, error) {
	candidate := ParcelStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllStatuses {
		if known == candidate {
			return known, nil
		}
	}
	return "", NewValidationError("status", "unknown parcel status %q", s)
}

// CanTransitionTo reports whether a transition from s to next is allowed by
// the default transition table.
func (s ParcelStatus) CanTransitionTo(next ParcelStatus) bool {
	return DefaultTransitions.Allows(s, next)
}

// IsTerminal reports whether no further transition is possible from s.
func (s ParcelStatus) IsTerminal() bool {
	return DefaultTransitions.IsTerminal(s)
}

type PackageType string

const (
	PackageDocument  PackageType = "DOCUMENT"
	PackageEnvelope  PackageType = "ENVELOPE"
	PackageSmallBox  PackageType = "SMALL_BOX"
	PackageMediumBox PackageType = "MEDIUM_BOX"
	PackageLargeBox  PackageType = "LARGE_BOX"
	PackageOther     PackageType = "OTHER"
)

type DeliveryType string

const (
	DeliveryStandard  DeliveryType = "STANDARD"
	DeliveryExpress   DeliveryType = "EXPRESS"
	DeliverySameDay   DeliveryType = "SAME_DAY"
	DeliveryOvernight DeliveryType = "OVERNIGHT"
)

type InsuranceCoverage string

const (
	NoInsurance      InsuranceCoverage = "NO_INSURANCE"
	BasicInsurance   InsuranceCoverage = "BASIC_INSURANCE"
	PremiumInsurance InsuranceCoverage = "PREMIUM_INSURANCE"
)

// Insured reports whether any coverage was requested. An empty value means
// the sender did not ask for insurance.
func (c InsuranceCoverage) Insured() bool {
	return c != "" && c != NoInsurance
}

type WeightUnit string

const (
	UnitKilogram WeightUnit = "KG"
	UnitPound    WeightUnit = "LB"
	UnitGram     WeightUnit = "G"
)

// Coordinates represents a geographic point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within the WGS84 ranges.
func (c Coordinates) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Address represents a physical location. Coordinates are optional.
type Address struct {
	Street      string       `json:"street"`
	City        string       `json:"city"`
	State       string       `json:"state,omitempty"`
	PostalCode  string       `json:"postal_code,omitempty"`
	Country     string       `json:"country"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Dimensions represents the physical size of a package.
type Dimensions struct {
	LengthCm float64 `json:"length_cm"`
	WidthCm  float64 `json:"width_cm"`
	HeightCm float64 `json:"height_cm"`
}

// Handling groups the special-handling flags of a parcel.
type Handling struct {
	Fragile           bool `json:"fragile"`
	Perishable        bool `json:"perishable"`
	Hazardous         bool `json:"hazardous"`
	HighValue         bool `json:"high_value"`
	SignatureRequired bool `json:"signature_required"`
}

// Parcel is the core aggregate root. Once created, only Status,
// ActualDelivery, UpdatedBy, UpdatedAt and Version change, and only through
// a recorded transition.
type Parcel struct {
	ID                string            `json:"id"`
	TrackingNumber    string            `json:"tracking_number"`
	Status            ParcelStatus      `json:"status"`
	PackageType       PackageType       `json:"package_type"`
	DeliveryType      DeliveryType      `json:"delivery_type"`
	Weight            float64           `json:"weight"`
	WeightUnit        WeightUnit        `json:"weight_unit"`
	Dimensions        *Dimensions       `json:"dimensions,omitempty"`
	Description       string            `json:"description,omitempty"`
	DeclaredValue     decimal.Decimal   `json:"declared_value"`
	InsuranceCoverage InsuranceCoverage `json:"insurance_coverage"`
	TotalPrice        decimal.Decimal   `json:"total_price"`
	Currency          string            `json:"currency"`
	Handling          Handling          `json:"handling"`
	SenderID          string            `json:"sender_id"`
	RecipientID       string            `json:"recipient_id"`
	SenderAddress     Address           `json:"sender_address"`
	RecipientAddress  Address           `json:"recipient_address"`
	EstimatedDelivery time.Time         `json:"estimated_delivery"`
	ActualDelivery    *time.Time        `json:"actual_delivery,omitempty"`
	IdempotencyKey    string            `json:"-"`
	Version           int64             `json:"version"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	UpdatedBy         string            `json:"updated_by,omitempty"`
	DeletedAt         *time.Time        `json:"-"`
}

// WeightKg returns the parcel weight normalised to kilograms.
func (p *Parcel) WeightKg() float64 {
	return ToKilograms(p.Weight, p.WeightUnit)
}

// InvolvesUser reports whether userID is the sender or the recipient.
func (p *Parcel) InvolvesUser(userID string) bool {
	return userID != "" && (p.SenderID == userID || p.RecipientID == userID)
}
