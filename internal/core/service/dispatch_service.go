package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

// assignableStatuses are the states in which a courier may be attached.
var assignableStatuses = map[domain.ParcelStatus]bool{
	domain.StatusProcessing:       true,
	domain.StatusPaymentConfirmed: true,
	domain.StatusPickedUp:         true,
	domain.StatusInTransit:        true,
	domain.StatusOutForDelivery:   true,
	domain.StatusDelayed:          true,
}

type DispatchService struct {
	parcels     ports.ParcelRepository
	assignments ports.AssignmentRepository
	users       ports.UserRepository
	now         func() time.Time
	logger      zerolog.Logger
}

func NewDispatchService(
	parcels ports.ParcelRepository,
	assignments ports.AssignmentRepository,
	users ports.UserRepository,
	logger zerolog.Logger,
) *DispatchService {
	return &DispatchService{
		parcels:     parcels,
		assignments: assignments,
		users:       users,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

// AssignCourier attaches a courier to a parcel. A parcel holds at most one
// ACTIVE assignment; the repository enforces it.
func (s *DispatchService) AssignCourier(ctx context.Context, admin ports.Actor, parcelID, courierID string) (*domain.CourierAssignment, error) {
	if !admin.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	p, err := s.parcels.FindByID(ctx, parcelID)
	if err != nil {
		return nil, err
	}
	if !assignableStatuses[p.Status] {
		return nil, domain.NewValidationError("status", "cannot assign a courier to a parcel in status %s", p.Status)
	}

	courier, err := s.users.FindByID(ctx, courierID)
	if err != nil {
		return nil, fmt.Errorf("find courier: %w", err)
	}
	if courier.Role != domain.RoleCourier {
		return nil, domain.NewValidationError("courier_id", "user %s is not a courier", courierID)
	}

	a := &domain.CourierAssignment{
		ID:         uuid.NewString(),
		ParcelID:   p.ID,
		CourierID:  courier.ID,
		Status:     domain.AssignmentActive,
		AssignedAt: s.now(),
		AssignedBy: admin.ID,
		Earnings:   decimal.Zero,
	}
	if err := s.assignments.Create(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("assignment_id", a.ID).
		Str("parcel_id", p.ID).
		Str("courier_id", courier.ID).
		Msg("courier assigned")
	return a, nil
}

// CancelAssignment releases an ACTIVE assignment so the parcel can be
// reassigned.
func (s *DispatchService) CancelAssignment(ctx context.Context, admin ports.Actor, assignmentID string) (*domain.CourierAssignment, error) {
	if !admin.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	a, err := s.assignments.FindByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a.Status != domain.AssignmentActive {
		return nil, domain.NewValidationError("status", "assignment is %s", a.Status)
	}

	now := s.now()
	if err := s.assignments.Cancel(ctx, a.ID, now); err != nil {
		return nil, err
	}
	a.Status = domain.AssignmentCancelled
	a.CancelledAt = &now

	s.logger.Info().Str("assignment_id", a.ID).Str("cancelled_by", admin.ID).Msg("assignment cancelled")
	return a, nil
}
