package ports

import (
	"context"
	"time"

	"github.com/sendit/parcel-service/internal/core/domain"
)

// AssignmentQuery selects a courier's assignments.
type AssignmentQuery struct {
	CourierID     string
	Status        domain.AssignmentStatus // empty = any
	CompletedFrom time.Time               // zero = no lower bound on completed_at
}

// AssignmentRepository persists courier assignments. Completion is not
// exposed here: it only happens inside ParcelRepository.RecordTransition.
type AssignmentRepository interface {
	// Create returns domain.ErrAssignmentExists when the parcel already has an
	// ACTIVE assignment.
	Create(ctx context.Context, a *domain.CourierAssignment) error
	FindByID(ctx context.Context, id string) (*domain.CourierAssignment, error)
	FindActiveByParcel(ctx context.Context, parcelID string) (*domain.CourierAssignment, error)
	List(ctx context.Context, q AssignmentQuery) ([]*domain.CourierAssignment, error)
	// Cancel moves an ACTIVE assignment to CANCELLED.
	Cancel(ctx context.Context, id string, at time.Time) error
}
