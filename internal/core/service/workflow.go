package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
	"github.com/sendit/parcel-service/internal/pkg/metrics"
)

// maxTransitionAttempts bounds re-reads after an optimistic-concurrency miss.
const maxTransitionAttempts = 3

const (
	sourceAdmin   = "admin"
	sourceSender  = "sender"
	sourceCourier = "courier"
	sourcePayment = "payment"
)

// transitionRequest is the common shape of every status change, whoever asks.
type transitionRequest struct {
	ParcelID string
	To       domain.ParcelStatus
	ActorID  string
	Source   string

	// CourierID, when set, must hold the parcel's ACTIVE assignment.
	CourierID string

	Location      string
	Description   string
	Coordinates   *domain.Coordinates
	Notes         string
	FailureReason domain.AttemptStatus
	ProofURL      string

	// Authorize runs against every fresh read of the parcel.
	Authorize func(p *domain.Parcel) error
}

type transitionOutcome struct {
	Parcel     *domain.Parcel
	From       domain.ParcelStatus
	Entry      domain.TrackingEntry
	Attempt    *domain.DeliveryAttempt
	Assignment *domain.CourierAssignment
}

// Workflow validates status changes and persists each one as a single
// atomic transition record. Cache invalidation and notifications happen
// after commit and never fail the transition.
type Workflow struct {
	parcels     ports.ParcelRepository
	tracking    ports.TrackingRepository
	assignments ports.AssignmentRepository
	cache       ports.TrackingCache
	dispatcher  ports.NotificationDispatcher
	table       domain.TransitionTable
	now         func() time.Time
	log         zerolog.Logger
}

// WorkflowOption customises a Workflow.
type WorkflowOption func(*Workflow)

// WithTransitionTable replaces the default lifecycle table.
func WithTransitionTable(t domain.TransitionTable) WorkflowOption {
	return func(w *Workflow) { w.table = t }
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) WorkflowOption {
	return func(w *Workflow) { w.now = now }
}

// NewWorkflow returns a Workflow. cache and dispatcher may be nil.
func NewWorkflow(
	parcels ports.ParcelRepository,
	tracking ports.TrackingRepository,
	assignments ports.AssignmentRepository,
	cache ports.TrackingCache,
	dispatcher ports.NotificationDispatcher,
	log zerolog.Logger,
	opts ...WorkflowOption,
) *Workflow {
	w := &Workflow{
		parcels:     parcels,
		tracking:    tracking,
		assignments: assignments,
		cache:       cache,
		dispatcher:  dispatcher,
		table:       domain.DefaultTransitions,
		now:         func() time.Time { return time.Now().UTC() },
		log:         log,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Table returns the transition table in use.
func (w *Workflow) Table() domain.TransitionTable { return w.table }

func (w *Workflow) apply(ctx context.Context, req transitionRequest) (*transitionOutcome, error) {
	start := time.Now()

	for attempt := 1; ; attempt++ {
		out, err := w.try(ctx, req)
		if errors.Is(err, domain.ErrConcurrentUpdate) && attempt < maxTransitionAttempts {
			metrics.TransitionRetriesTotal.Inc()
			w.log.Debug().Str("parcel_id", req.ParcelID).Int("attempt", attempt).Msg("concurrent update, retrying transition")
			continue
		}
		if err != nil {
			metrics.TransitionErrorsTotal.WithLabelValues(errorReason(err)).Inc()
			return nil, err
		}

		metrics.TransitionsTotal.WithLabelValues(string(out.From), string(req.To), req.Source).Inc()
		metrics.TransitionDuration.WithLabelValues(string(req.To)).Observe(time.Since(start).Seconds())
		w.afterCommit(ctx, req, out)
		return out, nil
	}
}

func (w *Workflow) try(ctx context.Context, req transitionRequest) (*transitionOutcome, error) {
	p, err := w.parcels.FindByID(ctx, req.ParcelID)
	if err != nil {
		return nil, err
	}
	if req.Authorize != nil {
		if err := req.Authorize(p); err != nil {
			return nil, err
		}
	}

	var assignment *domain.CourierAssignment
	if req.CourierID != "" {
		// Ownership is checked before the transition so a foreign courier
		// learns nothing about the parcel's state.
		if assignment, err = w.courierAssignment(ctx, p.ID, req.CourierID); err != nil {
			return nil, err
		}
	}

	if err := w.table.Validate(p.Status, req.To); err != nil {
		return nil, err
	}

	if req.CourierID == "" && req.To == domain.StatusDelivered {
		if assignment, err = w.activeAssignment(ctx, p.ID); err != nil {
			return nil, err
		}
	}

	now := w.now()
	description := req.Description
	if description == "" {
		description = domain.DefaultDescription(req.To)
	}

	rec := ports.TransitionRecord{
		ParcelID:        p.ID,
		FromStatus:      p.Status,
		ExpectedVersion: p.Version,
		ToStatus:        req.To,
		UpdatedBy:       req.ActorID,
		At:              now,
		Entry: domain.TrackingEntry{
			ID:          uuid.NewString(),
			ParcelID:    p.ID,
			Status:      req.To,
			Location:    req.Location,
			Description: description,
			Coordinates: req.Coordinates,
			Timestamp:   now,
			UpdatedBy:   req.ActorID,
		},
	}

	if req.To == domain.StatusDelivered {
		delivered := now
		rec.ActualDelivery = &delivered
	}

	if domain.RecordsAttempt(req.To) {
		attempt, err := w.newAttempt(ctx, p, req, assignment, now)
		if err != nil {
			return nil, err
		}
		rec.Attempt = attempt
	}

	if req.To == domain.StatusDelivered && assignment != nil {
		rec.Completion = &domain.AssignmentCompletion{
			AssignmentID: assignment.ID,
			CompletedAt:  now,
			Earnings:     domain.DeliveryEarnings(p),
		}
	}

	updated, err := w.parcels.RecordTransition(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("record transition: %w", err)
	}

	if rec.Completion != nil {
		completed := *assignment
		completed.Status = domain.AssignmentCompleted
		completed.CompletedAt = &rec.Completion.CompletedAt
		completed.Earnings = rec.Completion.Earnings
		assignment = &completed
	}

	return &transitionOutcome{
		Parcel:     updated,
		From:       p.Status,
		Entry:      rec.Entry,
		Attempt:    rec.Attempt,
		Assignment: assignment,
	}, nil
}

func (w *Workflow) newAttempt(
	ctx context.Context,
	p *domain.Parcel,
	req transitionRequest,
	assignment *domain.CourierAssignment,
	now time.Time,
) (*domain.DeliveryAttempt, error) {
	previous, err := w.tracking.ListAttempts(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	notes := req.Notes
	if notes == "" {
		notes = req.Description
	}
	courierID := req.CourierID
	if courierID == "" && assignment != nil {
		courierID = assignment.CourierID
	}

	return &domain.DeliveryAttempt{
		ID:                 uuid.NewString(),
		ParcelID:           p.ID,
		CourierID:          courierID,
		AttemptNumber:      len(previous) + 1,
		Status:             domain.ResolveAttemptStatus(req.To, notes, req.FailureReason),
		CourierNotes:       notes,
		Coordinates:        req.Coordinates,
		ProofOfDeliveryURL: req.ProofURL,
		AttemptedAt:        now,
		NextAttempt:        domain.NextAttemptAt(req.To, now),
	}, nil
}

func (w *Workflow) courierAssignment(ctx context.Context, parcelID, courierID string) (*domain.CourierAssignment, error) {
	a, err := w.assignments.FindActiveByParcel(ctx, parcelID)
	if err != nil {
		return nil, err
	}
	if a.CourierID != courierID {
		return nil, domain.ErrAssignmentNotFound
	}
	return a, nil
}

// activeAssignment returns nil without error when the parcel has none.
func (w *Workflow) activeAssignment(ctx context.Context, parcelID string) (*domain.CourierAssignment, error) {
	a, err := w.assignments.FindActiveByParcel(ctx, parcelID)
	if errors.Is(err, domain.ErrAssignmentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active assignment: %w", err)
	}
	return a, nil
}

func (w *Workflow) afterCommit(ctx context.Context, req transitionRequest, out *transitionOutcome) {
	p := out.Parcel

	if w.cache != nil {
		if err := w.cache.Invalidate(ctx, p.TrackingNumber, p.Version); err != nil {
			w.log.Warn().Err(err).Str("tracking_number", p.TrackingNumber).Msg("failed to invalidate tracking cache")
		}
	}

	if w.dispatcher != nil {
		w.dispatcher.Enqueue(ports.NotificationJob{
			ParcelID:       p.ID,
			Version:        p.Version,
			TrackingNumber: p.TrackingNumber,
			SenderID:       p.SenderID,
			RecipientID:    p.RecipientID,
			From:           out.From,
			To:             p.Status,
			ActorID:        req.ActorID,
			Location:       out.Entry.Location,
			Description:    out.Entry.Description,
			OccurredAt:     out.Entry.Timestamp,
		})
	}

	evt := w.log.Info().
		Str("parcel_id", p.ID).
		Str("tracking_number", p.TrackingNumber).
		Str("from", string(out.From)).
		Str("to", string(p.Status)).
		Str("source", req.Source).
		Str("actor_id", req.ActorID)
	if out.Attempt != nil {
		evt = evt.Str("attempt_status", string(out.Attempt.Status))
	}
	if out.Assignment != nil && out.Assignment.Status == domain.AssignmentCompleted {
		evt = evt.Str("assignment_id", out.Assignment.ID)
	}
	evt.Msg("parcel status updated")
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return "conflict"
	case errors.Is(err, domain.ErrForbidden):
		return "forbidden"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	default:
		return "store_failed"
	}
}
