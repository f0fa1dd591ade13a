package ports

import (
	"context"
	"time"

	"github.com/sendit/parcel-service/internal/core/domain"
)

// ParcelFilter is one typed dimension of a parcel query. Repositories switch
// on the concrete type to build their native query.
type ParcelFilter interface {
	parcelFilter()
}

// StatusFilter matches parcels whose status is any of Statuses.
type StatusFilter struct {
	Statuses []domain.ParcelStatus
}

// CreatedRange matches parcels created in [From, To]. A zero bound is open.
type CreatedRange struct {
	From time.Time
	To   time.Time
}

// TextSearch is a case-insensitive partial match on tracking number or description.
type TextSearch struct {
	Text string
}

// DeliveryTypeFilter matches any of Types.
type DeliveryTypeFilter struct {
	Types []domain.DeliveryType
}

type ParticipantRole int

const (
	ParticipantAny ParticipantRole = iota
	ParticipantSender
	ParticipantRecipient
)

// ParticipantFilter restricts results to parcels a user sends and/or receives.
type ParticipantFilter struct {
	UserID string
	Role   ParticipantRole
}

func (StatusFilter) parcelFilter()       {}
func (CreatedRange) parcelFilter()       {}
func (TextSearch) parcelFilter()         {}
func (DeliveryTypeFilter) parcelFilter() {}
func (ParticipantFilter) parcelFilter()  {}

// ParcelQuery is a page of parcels matching every filter, newest first.
// Soft-deleted parcels are never returned.
type ParcelQuery struct {
	Filters []ParcelFilter
	Page    int // 1-based
	Limit   int
}

// Skip returns the number of rows before the requested page.
func (q ParcelQuery) Skip() int {
	if q.Page <= 1 || q.Limit <= 0 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// TransitionRecord is everything written by one status change. Stores apply
// it atomically: either every part is persisted or none is.
type TransitionRecord struct {
	ParcelID        string
	FromStatus      domain.ParcelStatus
	ExpectedVersion int64
	ToStatus        domain.ParcelStatus
	UpdatedBy       string
	At              time.Time
	ActualDelivery  *time.Time
	Entry           domain.TrackingEntry
	Attempt         *domain.DeliveryAttempt
	Completion      *domain.AssignmentCompletion
}

// ParcelRepository defines persistence operations for parcels.
type ParcelRepository interface {
	// Create stores the parcel together with its first tracking entry.
	Create(ctx context.Context, p *domain.Parcel, initial domain.TrackingEntry) error
	FindByID(ctx context.Context, id string) (*domain.Parcel, error)
	FindByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Parcel, error)
	// FindByIdempotencyKey looks the key up within one sender's parcels.
	FindByIdempotencyKey(ctx context.Context, senderID, key string) (*domain.Parcel, error)
	TrackingNumberExists(ctx context.Context, trackingNumber string) (bool, error)
	// List returns a page of parcels matching q and the total count.
	List(ctx context.Context, q ParcelQuery) ([]*domain.Parcel, int64, error)
	SoftDelete(ctx context.Context, id, deletedBy string, at time.Time) error

	// RecordTransition applies rec if the parcel is still at rec.FromStatus
	// and rec.ExpectedVersion. Otherwise it returns domain.ErrConcurrentUpdate
	// and writes nothing. The returned parcel reflects the new state.
	RecordTransition(ctx context.Context, rec TransitionRecord) (*domain.Parcel, error)
}

// TrackingRepository reads the append-only ledgers written by RecordTransition.
type TrackingRepository interface {
	// ListHistory returns entries newest first. limit <= 0 returns all.
	ListHistory(ctx context.Context, parcelID string, limit int) ([]domain.TrackingEntry, error)
	// ListAttempts returns attempts in the order they were made.
	ListAttempts(ctx context.Context, parcelID string) ([]domain.DeliveryAttempt, error)
}
