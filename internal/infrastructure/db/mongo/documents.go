package mongo

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/sendit/parcel-service/internal/core/domain"
)

// bsonKeys builds an index key document. A leading "-" sorts descending.
func bsonKeys(fields ...string) bson.D {
	keys := make(bson.D, 0, len(fields))
	for _, f := range fields {
		if name, ok := strings.CutPrefix(f, "-"); ok {
			keys = append(keys, bson.E{Key: name, Value: -1})
			continue
		}
		keys = append(keys, bson.E{Key: f, Value: 1})
	}
	return keys
}

func bsonDoc(key string, value interface{}) bson.D {
	return bson.D{{Key: key, Value: value}}
}

// ---------------------------------------------------------------------------
// Money
// ---------------------------------------------------------------------------

func toDecimal128(d decimal.Decimal) primitive.Decimal128 {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.NewDecimal128(0, 0)
	}
	return v
}

func fromDecimal128(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ---------------------------------------------------------------------------
// Parcels
// ---------------------------------------------------------------------------

type coordinatesDoc struct {
	Lat float64 `bson:"lat"`
	Lng float64 `bson:"lng"`
}

func toCoordinatesDoc(c *domain.Coordinates) *coordinatesDoc {
	if c == nil {
		return nil
	}
	return &coordinatesDoc{Lat: c.Lat, Lng: c.Lng}
}

func (c *coordinatesDoc) toDomain() *domain.Coordinates {
	if c == nil {
		return nil
	}
	return &domain.Coordinates{Lat: c.Lat, Lng: c.Lng}
}

type addressDoc struct {
	Street      string          `bson:"street"`
	City        string          `bson:"city"`
	State       string          `bson:"state,omitempty"`
	PostalCode  string          `bson:"postal_code,omitempty"`
	Country     string          `bson:"country"`
	Coordinates *coordinatesDoc `bson:"coordinates,omitempty"`
}

func toAddressDoc(a domain.Address) addressDoc {
	return addressDoc{
		Street:      a.Street,
		City:        a.City,
		State:       a.State,
		PostalCode:  a.PostalCode,
		Country:     a.Country,
		Coordinates: toCoordinatesDoc(a.Coordinates),
	}
}

func (a addressDoc) toDomain() domain.Address {
	return domain.Address{
		Street:      a.Street,
		City:        a.City,
		State:       a.State,
		PostalCode:  a.PostalCode,
		Country:     a.Country,
		Coordinates: a.Coordinates.toDomain(),
	}
}

type dimensionsDoc struct {
	LengthCm float64 `bson:"length_cm"`
	WidthCm  float64 `bson:"width_cm"`
	HeightCm float64 `bson:"height_cm"`
}

type handlingDoc struct {
	Fragile           bool `bson:"fragile"`
	Perishable        bool `bson:"perishable"`
	Hazardous         bool `bson:"hazardous"`
	HighValue         bool `bson:"high_value"`
	SignatureRequired bool `bson:"signature_required"`
}

type parcelDoc struct {
	ID                string               `bson:"_id"`
	TrackingNumber    string               `bson:"tracking_number"`
	Status            string               `bson:"status"`
	PackageType       string               `bson:"package_type"`
	DeliveryType      string               `bson:"delivery_type"`
	Weight            float64              `bson:"weight"`
	WeightUnit        string               `bson:"weight_unit"`
	Dimensions        *dimensionsDoc       `bson:"dimensions,omitempty"`
	Description       string               `bson:"description,omitempty"`
	DeclaredValue     primitive.Decimal128 `bson:"declared_value"`
	InsuranceCoverage string               `bson:"insurance_coverage"`
	TotalPrice        primitive.Decimal128 `bson:"total_price"`
	Currency          string               `bson:"currency"`
	Handling          handlingDoc          `bson:"handling"`
	SenderID          string               `bson:"sender_id"`
	RecipientID       string               `bson:"recipient_id"`
	SenderAddress     addressDoc           `bson:"sender_address"`
	RecipientAddress  addressDoc           `bson:"recipient_address"`
	EstimatedDelivery time.Time            `bson:"estimated_delivery"`
	ActualDelivery    *time.Time           `bson:"actual_delivery,omitempty"`
	IdempotencyKey    string               `bson:"idempotency_key,omitempty"`
	Version           int64                `bson:"version"`
	CreatedAt         time.Time            `bson:"created_at"`
	UpdatedAt         time.Time            `bson:"updated_at"`
	UpdatedBy         string               `bson:"updated_by,omitempty"`
	DeletedAt         *time.Time           `bson:"deleted_at,omitempty"`
	DeletedBy         string               `bson:"deleted_by,omitempty"`
}

func toParcelDoc(p *domain.Parcel) parcelDoc {
	doc := parcelDoc{
		ID:                p.ID,
		TrackingNumber:    p.TrackingNumber,
		Status:            string(p.Status),
		PackageType:       string(p.PackageType),
		DeliveryType:      string(p.DeliveryType),
		Weight:            p.Weight,
		WeightUnit:        string(p.WeightUnit),
		Description:       p.Description,
		DeclaredValue:     toDecimal128(p.DeclaredValue),
		InsuranceCoverage: string(p.InsuranceCoverage),
		TotalPrice:        toDecimal128(p.TotalPrice),
		Currency:          p.Currency,
		Handling:          handlingDoc(p.Handling),
		SenderID:          p.SenderID,
		RecipientID:       p.RecipientID,
		SenderAddress:     toAddressDoc(p.SenderAddress),
		RecipientAddress:  toAddressDoc(p.RecipientAddress),
		EstimatedDelivery: p.EstimatedDelivery.UTC(),
		ActualDelivery:    p.ActualDelivery,
		IdempotencyKey:    p.IdempotencyKey,
		Version:           p.Version,
		CreatedAt:         p.CreatedAt.UTC(),
		UpdatedAt:         p.UpdatedAt.UTC(),
		UpdatedBy:         p.UpdatedBy,
		DeletedAt:         p.DeletedAt,
	}
	if p.Dimensions != nil {
		d := dimensionsDoc(*p.Dimensions)
		doc.Dimensions = &d
	}
	return doc
}

func (d parcelDoc) toDomain() *domain.Parcel {
	p := &domain.Parcel{
		ID:                d.ID,
		TrackingNumber:    d.TrackingNumber,
		Status:            domain.ParcelStatus(d.Status),
		PackageType:       domain.PackageType(d.PackageType),
		DeliveryType:      domain.DeliveryType(d.DeliveryType),
		Weight:            d.Weight,
		WeightUnit:        domain.WeightUnit(d.WeightUnit),
		Description:       d.Description,
		DeclaredValue:     fromDecimal128(d.DeclaredValue),
		InsuranceCoverage: domain.InsuranceCoverage(d.InsuranceCoverage),
		TotalPrice:        fromDecimal128(d.TotalPrice),
		Currency:          d.Currency,
		Handling:          domain.Handling(d.Handling),
		SenderID:          d.SenderID,
		RecipientID:       d.RecipientID,
		SenderAddress:     d.SenderAddress.toDomain(),
		RecipientAddress:  d.RecipientAddress.toDomain(),
		EstimatedDelivery: d.EstimatedDelivery,
		ActualDelivery:    d.ActualDelivery,
		IdempotencyKey:    d.IdempotencyKey,
		Version:           d.Version,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		UpdatedBy:         d.UpdatedBy,
		DeletedAt:         d.DeletedAt,
	}
	if d.Dimensions != nil {
		dims := domain.Dimensions(*d.Dimensions)
		p.Dimensions = &dims
	}
	return p
}

// ---------------------------------------------------------------------------
// Ledgers
// ---------------------------------------------------------------------------

type trackingDoc struct {
	ID          string          `bson:"_id"`
	ParcelID    string          `bson:"parcel_id"`
	Seq         int64           `bson:"seq"` // parcel version after the write
	Status      string          `bson:"status"`
	Location    string          `bson:"location,omitempty"`
	Description string          `bson:"description,omitempty"`
	Coordinates *coordinatesDoc `bson:"coordinates,omitempty"`
	Timestamp   time.Time       `bson:"timestamp"`
	UpdatedBy   string          `bson:"updated_by"`
}

func toTrackingDoc(e domain.TrackingEntry, seq int64) trackingDoc {
	return trackingDoc{
		ID:          e.ID,
		ParcelID:    e.ParcelID,
		Seq:         seq,
		Status:      string(e.Status),
		Location:    e.Location,
		Description: e.Description,
		Coordinates: toCoordinatesDoc(e.Coordinates),
		Timestamp:   e.Timestamp.UTC(),
		UpdatedBy:   e.UpdatedBy,
	}
}

func (d trackingDoc) toDomain() domain.TrackingEntry {
	return domain.TrackingEntry{
		ID:          d.ID,
		ParcelID:    d.ParcelID,
		Status:      domain.ParcelStatus(d.Status),
		Location:    d.Location,
		Description: d.Description,
		Coordinates: d.Coordinates.toDomain(),
		Timestamp:   d.Timestamp,
		UpdatedBy:   d.UpdatedBy,
	}
}

type attemptDoc struct {
	ID                 string          `bson:"_id"`
	ParcelID           string          `bson:"parcel_id"`
	CourierID          string          `bson:"courier_id,omitempty"`
	AttemptNumber      int             `bson:"attempt_number"`
	Status             string          `bson:"status"`
	CourierNotes       string          `bson:"courier_notes,omitempty"`
	Coordinates        *coordinatesDoc `bson:"coordinates,omitempty"`
	ProofOfDeliveryURL string          `bson:"proof_of_delivery_url,omitempty"`
	AttemptedAt        time.Time       `bson:"attempted_at"`
	NextAttempt        *time.Time      `bson:"next_attempt,omitempty"`
}

func toAttemptDoc(a *domain.DeliveryAttempt) attemptDoc {
	return attemptDoc{
		ID:                 a.ID,
		ParcelID:           a.ParcelID,
		CourierID:          a.CourierID,
		AttemptNumber:      a.AttemptNumber,
		Status:             string(a.Status),
		CourierNotes:       a.CourierNotes,
		Coordinates:        toCoordinatesDoc(a.Coordinates),
		ProofOfDeliveryURL: a.ProofOfDeliveryURL,
		AttemptedAt:        a.AttemptedAt.UTC(),
		NextAttempt:        a.NextAttempt,
	}
}

func (d attemptDoc) toDomain() domain.DeliveryAttempt {
	return domain.DeliveryAttempt{
		ID:                 d.ID,
		ParcelID:           d.ParcelID,
		CourierID:          d.CourierID,
		AttemptNumber:      d.AttemptNumber,
		Status:             domain.AttemptStatus(d.Status),
		CourierNotes:       d.CourierNotes,
		Coordinates:        d.Coordinates.toDomain(),
		ProofOfDeliveryURL: d.ProofOfDeliveryURL,
		AttemptedAt:        d.AttemptedAt,
		NextAttempt:        d.NextAttempt,
	}
}

// ---------------------------------------------------------------------------
// Assignments, users, notifications
// ---------------------------------------------------------------------------

type assignmentDoc struct {
	ID          string               `bson:"_id"`
	ParcelID    string               `bson:"parcel_id"`
	CourierID   string               `bson:"courier_id"`
	Status      string               `bson:"status"`
	AssignedAt  time.Time            `bson:"assigned_at"`
	AssignedBy  string               `bson:"assigned_by"`
	CompletedAt *time.Time           `bson:"completed_at,omitempty"`
	CancelledAt *time.Time           `bson:"cancelled_at,omitempty"`
	Earnings    primitive.Decimal128 `bson:"earnings"`
}

func toAssignmentDoc(a *domain.CourierAssignment) assignmentDoc {
	return assignmentDoc{
		ID:          a.ID,
		ParcelID:    a.ParcelID,
		CourierID:   a.CourierID,
		Status:      string(a.Status),
		AssignedAt:  a.AssignedAt.UTC(),
		AssignedBy:  a.AssignedBy,
		CompletedAt: a.CompletedAt,
		CancelledAt: a.CancelledAt,
		Earnings:    toDecimal128(a.Earnings),
	}
}

func (d assignmentDoc) toDomain() *domain.CourierAssignment {
	return &domain.CourierAssignment{
		ID:          d.ID,
		ParcelID:    d.ParcelID,
		CourierID:   d.CourierID,
		Status:      domain.AssignmentStatus(d.Status),
		AssignedAt:  d.AssignedAt,
		AssignedBy:  d.AssignedBy,
		CompletedAt: d.CompletedAt,
		CancelledAt: d.CancelledAt,
		Earnings:    fromDecimal128(d.Earnings),
	}
}

type userDoc struct {
	ID                   string    `bson:"_id"`
	Email                string    `bson:"email"`
	Name                 string    `bson:"name"`
	Phone                string    `bson:"phone,omitempty"`
	Role                 string    `bson:"role"`
	PasswordHash         string    `bson:"password_hash"`
	NotificationsEnabled bool      `bson:"notifications_enabled"`
	IsShell              bool      `bson:"is_shell"`
	CreatedAt            time.Time `bson:"created_at"`
	UpdatedAt            time.Time `bson:"updated_at"`
}

func toUserDoc(u *domain.User) userDoc {
	return userDoc{
		ID:                   u.ID,
		Email:                strings.ToLower(u.Email),
		Name:                 u.Name,
		Phone:                u.Phone,
		Role:                 string(u.Role),
		PasswordHash:         u.PasswordHash,
		NotificationsEnabled: u.NotificationsEnabled,
		IsShell:              u.IsShell,
		CreatedAt:            u.CreatedAt.UTC(),
		UpdatedAt:            u.UpdatedAt.UTC(),
	}
}

func (d userDoc) toDomain() *domain.User {
	return &domain.User{
		ID:                   d.ID,
		Email:                d.Email,
		Name:                 d.Name,
		Phone:                d.Phone,
		Role:                 domain.Role(d.Role),
		PasswordHash:         d.PasswordHash,
		NotificationsEnabled: d.NotificationsEnabled,
		IsShell:              d.IsShell,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

type notificationDoc struct {
	ID             string    `bson:"_id"`
	UserID         string    `bson:"user_id"`
	ParcelID       string    `bson:"parcel_id"`
	TrackingNumber string    `bson:"tracking_number"`
	Status         string    `bson:"status"`
	Title          string    `bson:"title"`
	Message        string    `bson:"message"`
	Read           bool      `bson:"read"`
	CreatedAt      time.Time `bson:"created_at"`
}

func toNotificationDoc(n *domain.Notification) notificationDoc {
	return notificationDoc{
		ID:             n.ID,
		UserID:         n.UserID,
		ParcelID:       n.ParcelID,
		TrackingNumber: n.TrackingNumber,
		Status:         string(n.Status),
		Title:          n.Title,
		Message:        n.Message,
		Read:           n.Read,
		CreatedAt:      n.CreatedAt.UTC(),
	}
}

func (d notificationDoc) toDomain() *domain.Notification {
	return &domain.Notification{
		ID:             d.ID,
		UserID:         d.UserID,
		ParcelID:       d.ParcelID,
		TrackingNumber: d.TrackingNumber,
		Status:         domain.ParcelStatus(d.Status),
		Title:          d.Title,
		Message:        d.Message,
		Read:           d.Read,
		CreatedAt:      d.CreatedAt,
	}
}
