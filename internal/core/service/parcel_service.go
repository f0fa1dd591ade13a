package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
	"github.com/sendit/parcel-service/internal/pkg/metrics"
)

const (
	defaultPageLimit          = 20
	maxPageLimit              = 100
	trackingNumberGenAttempts = 5
)

// ParcelServiceConfig holds the settings ParcelService needs at runtime.
type ParcelServiceConfig struct {
	Currency string
	// Location is used to compute estimated delivery times. Defaults to UTC.
	Location *time.Location
}

type ParcelService struct {
	parcels     ports.ParcelRepository
	tracking    ports.TrackingRepository
	assignments ports.AssignmentRepository
	users       ports.UserRepository
	accounts    *AccountService
	workflow    *Workflow
	cache       ports.TrackingCache
	dispatcher  ports.NotificationDispatcher
	cfg         ParcelServiceConfig
	now         func() time.Time
	logger      zerolog.Logger
}

func NewParcelService(
	parcels ports.ParcelRepository,
	tracking ports.TrackingRepository,
	assignments ports.AssignmentRepository,
	users ports.UserRepository,
	accounts *AccountService,
	workflow *Workflow,
	cache ports.TrackingCache,
	dispatcher ports.NotificationDispatcher,
	cfg ParcelServiceConfig,
	logger zerolog.Logger,
) *ParcelService {
	if cfg.Currency == "" {
		cfg.Currency = "KES"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ParcelService{
		parcels:     parcels,
		tracking:    tracking,
		assignments: assignments,
		users:       users,
		accounts:    accounts,
		workflow:    workflow,
		cache:       cache,
		dispatcher:  dispatcher,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

// CreateParcel creates a new parcel. If an idempotency key is provided and
// already seen for this sender, the existing parcel is returned without side
// effects.
func (s *ParcelService) CreateParcel(ctx context.Context, input ports.CreateParcelInput) (*ports.ParcelResult, error) {
	if err := normalizeCreateInput(&input); err != nil {
		return nil, err
	}

	if input.IdempotencyKey != "" {
		existing, err := s.parcels.FindByIdempotencyKey(ctx, input.SenderID, input.IdempotencyKey)
		if err == nil && existing != nil {
			s.logger.Info().Str("idempotency_key", input.IdempotencyKey).Str("tracking_number", existing.TrackingNumber).Msg("idempotent replay")
			return &ports.ParcelResult{Parcel: existing, AlreadyExisted: true}, nil
		}
	}

	sender, err := s.users.FindByID(ctx, input.SenderID)
	if err != nil {
		return nil, fmt.Errorf("find sender: %w", err)
	}
	recipient, err := s.accounts.EnsureRecipient(ctx, input.Recipient)
	if err != nil {
		return nil, fmt.Errorf("resolve recipient: %w", err)
	}

	trackingNumber, err := s.newTrackingNumber(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	price := domain.CalculatePrice(input.Weight, input.WeightUnit, input.DeliveryType, input.InsuranceCoverage)
	parcel := &domain.Parcel{
		ID:                uuid.NewString(),
		TrackingNumber:    trackingNumber,
		Status:            input.InitialStatus,
		PackageType:       input.PackageType,
		DeliveryType:      input.DeliveryType,
		Weight:            input.Weight,
		WeightUnit:        input.WeightUnit,
		Dimensions:        input.Dimensions,
		Description:       input.Description,
		DeclaredValue:     input.DeclaredValue,
		InsuranceCoverage: input.InsuranceCoverage,
		TotalPrice:        price.Total,
		Currency:          s.cfg.Currency,
		Handling:          input.Handling,
		SenderID:          sender.ID,
		RecipientID:       recipient.ID,
		SenderAddress:     input.SenderAddress,
		RecipientAddress:  input.RecipientAddress,
		EstimatedDelivery: domain.EstimateDelivery(input.DeliveryType, now.In(s.cfg.Location)).UTC(),
		IdempotencyKey:    input.IdempotencyKey,
		CreatedAt:         now,
		UpdatedAt:         now,
		UpdatedBy:         sender.ID,
	}
	initial := domain.TrackingEntry{
		ID:          uuid.NewString(),
		ParcelID:    parcel.ID,
		Status:      parcel.Status,
		Location:    input.SenderAddress.City,
		Description: domain.DefaultDescription(parcel.Status),
		Timestamp:   now,
		UpdatedBy:   sender.ID,
	}

	if err := s.parcels.Create(ctx, parcel, initial); err != nil {
		if errors.Is(err, domain.ErrDuplicateParcel) && input.IdempotencyKey != "" {
			if existing, findErr := s.parcels.FindByIdempotencyKey(ctx, input.SenderID, input.IdempotencyKey); findErr == nil {
				return &ports.ParcelResult{Parcel: existing, AlreadyExisted: true}, nil
			}
		}
		s.logger.Error().Err(err).Msg("failed to create parcel")
		return nil, err
	}

	metrics.ParcelsCreatedTotal.WithLabelValues(string(parcel.DeliveryType)).Inc()
	s.logger.Info().
		Str("tracking_number", parcel.TrackingNumber).
		Str("sender_id", sender.ID).
		Str("total_price", parcel.TotalPrice.StringFixed(2)).
		Msg("parcel created")

	if s.dispatcher != nil {
		s.dispatcher.Enqueue(ports.NotificationJob{
			ParcelID:       parcel.ID,
			Version:        parcel.Version,
			TrackingNumber: parcel.TrackingNumber,
			SenderID:       parcel.SenderID,
			RecipientID:    parcel.RecipientID,
			To:             parcel.Status,
			ActorID:        sender.ID,
			Location:       initial.Location,
			Description:    initial.Description,
			OccurredAt:     now,
		})
	}

	return &ports.ParcelResult{Parcel: parcel}, nil
}

func (s *ParcelService) newTrackingNumber(ctx context.Context) (string, error) {
	for i := 0; i < trackingNumberGenAttempts; i++ {
		tn := domain.GenerateTrackingNumber()
		exists, err := s.parcels.TrackingNumberExists(ctx, tn)
		if err != nil {
			return "", fmt.Errorf("check tracking number: %w", err)
		}
		if !exists {
			return tn, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique tracking number after %d attempts", trackingNumberGenAttempts)
}

// GetParcel returns the full view of a parcel the actor may see.
func (s *ParcelService) GetParcel(ctx context.Context, actor ports.Actor, parcelID string) (*ports.ParcelDetail, error) {
	p, err := s.visibleParcel(ctx, actor, parcelID)
	if err != nil {
		return nil, err
	}

	history, err := s.tracking.ListHistory(ctx, p.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	attempts, err := s.tracking.ListAttempts(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	detail := &ports.ParcelDetail{
		Parcel:      p,
		History:     history,
		Attempts:    attempts,
		AllowedNext: s.workflow.Table().Next(p.Status),
	}
	active, err := s.assignments.FindActiveByParcel(ctx, p.ID)
	switch {
	case err == nil:
		detail.ActiveAssignment = active
	case !errors.Is(err, domain.ErrAssignmentNotFound):
		return nil, fmt.Errorf("find active assignment: %w", err)
	}
	return detail, nil
}

// visibleParcel loads a parcel and hides it from actors who are neither
// admin, sender, recipient nor its assigned courier.
func (s *ParcelService) visibleParcel(ctx context.Context, actor ports.Actor, parcelID string) (*domain.Parcel, error) {
	p, err := s.parcels.FindByID(ctx, parcelID)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() || p.InvolvesUser(actor.ID) {
		return p, nil
	}
	if actor.Role == domain.RoleCourier {
		a, err := s.assignments.FindActiveByParcel(ctx, p.ID)
		if err == nil && a.CourierID == actor.ID {
			return p, nil
		}
	}
	return nil, domain.ErrParcelNotFound
}

// ListParcels returns a page of parcels. Non-admin actors only see parcels
// they send or receive.
func (s *ParcelService) ListParcels(ctx context.Context, input ports.ListParcelsInput) (*ports.ListParcelsResult, error) {
	page := input.Page
	if page < 1 {
		page = 1
	}
	limit := input.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	q := ports.ParcelQuery{Page: page, Limit: limit}
	if !input.Actor.IsAdmin() {
		q.Filters = append(q.Filters, ports.ParticipantFilter{UserID: input.Actor.ID, Role: input.Participation})
	}
	if len(input.Statuses) > 0 {
		q.Filters = append(q.Filters, ports.StatusFilter{Statuses: input.Statuses})
	}
	if len(input.DeliveryTypes) > 0 {
		q.Filters = append(q.Filters, ports.DeliveryTypeFilter{Types: input.DeliveryTypes})
	}
	if search := strings.TrimSpace(input.Search); search != "" {
		q.Filters = append(q.Filters, ports.TextSearch{Text: search})
	}
	if !input.DateFrom.IsZero() || !input.DateTo.IsZero() {
		q.Filters = append(q.Filters, ports.CreatedRange{From: input.DateFrom, To: input.DateTo})
	}

	items, total, err := s.parcels.List(ctx, q)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list parcels")
		return nil, err
	}

	return &ports.ListParcelsResult{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

func (s *ParcelService) GetHistory(ctx context.Context, actor ports.Actor, parcelID string, limit int) ([]domain.TrackingEntry, error) {
	p, err := s.visibleParcel(ctx, actor, parcelID)
	if err != nil {
		return nil, err
	}
	return s.tracking.ListHistory(ctx, p.ID, limit)
}

func (s *ParcelService) GetAttempts(ctx context.Context, actor ports.Actor, parcelID string) ([]domain.DeliveryAttempt, error) {
	p, err := s.visibleParcel(ctx, actor, parcelID)
	if err != nil {
		return nil, err
	}
	return s.tracking.ListAttempts(ctx, p.ID)
}

// TrackParcel returns the public tracking view. Results are cached until the
// next status change.
func (s *ParcelService) TrackParcel(ctx context.Context, trackingNumber string) (*ports.TrackingView, error) {
	trackingNumber = strings.ToUpper(strings.TrimSpace(trackingNumber))
	if !domain.IsTrackingNumber(trackingNumber) {
		return nil, domain.NewValidationError("tracking_number", "must match ST-NNNNNNN")
	}

	if s.cache != nil {
		view, ok, err := s.cache.Get(ctx, trackingNumber)
		switch {
		case err != nil:
			metrics.TrackingCacheTotal.WithLabelValues("error").Inc()
			s.logger.Warn().Err(err).Str("tracking_number", trackingNumber).Msg("tracking cache read failed")
		case ok:
			metrics.TrackingCacheTotal.WithLabelValues("hit").Inc()
			return view, nil
		default:
			metrics.TrackingCacheTotal.WithLabelValues("miss").Inc()
		}
	}

	p, err := s.parcels.FindByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	history, err := s.tracking.ListHistory(ctx, p.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	view := &ports.TrackingView{
		TrackingNumber:    p.TrackingNumber,
		Version:           p.Version,
		Status:            p.Status,
		DeliveryType:      p.DeliveryType,
		OriginCity:        p.SenderAddress.City,
		DestinationCity:   p.RecipientAddress.City,
		EstimatedDelivery: p.EstimatedDelivery,
		ActualDelivery:    p.ActualDelivery,
		History:           publicHistory(history),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, view); err != nil {
			s.logger.Warn().Err(err).Str("tracking_number", trackingNumber).Msg("tracking cache write failed")
		}
	}
	return view, nil
}

// publicHistory strips actor identities from ledger entries.
func publicHistory(entries []domain.TrackingEntry) []domain.TrackingEntry {
	out := make([]domain.TrackingEntry, len(entries))
	for i, e := range entries {
		e.UpdatedBy = ""
		out[i] = e
	}
	return out
}

// UpdateParcelStatus is the admin entry point into the status workflow.
func (s *ParcelService) UpdateParcelStatus(ctx context.Context, input ports.StatusUpdateInput) (*domain.Parcel, error) {
	if !input.Actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if input.Coordinates != nil && !input.Coordinates.Valid() {
		return nil, domain.NewValidationError("coordinates", "latitude or longitude out of range")
	}

	out, err := s.workflow.apply(ctx, transitionRequest{
		ParcelID:    input.ParcelID,
		To:          input.Status,
		ActorID:     input.Actor.ID,
		Source:      sourceAdmin,
		Location:    input.Location,
		Description: input.Description,
		Coordinates: input.Coordinates,
	})
	if err != nil {
		return nil, err
	}
	return out.Parcel, nil
}

// SubmitDraft moves the sender's DRAFT parcel to PROCESSING.
func (s *ParcelService) SubmitDraft(ctx context.Context, actor ports.Actor, parcelID string) (*domain.Parcel, error) {
	out, err := s.workflow.apply(ctx, transitionRequest{
		ParcelID:  parcelID,
		To:        domain.StatusProcessing,
		ActorID:   actor.ID,
		Source:    sourceSender,
		Authorize: senderOnly(actor),
	})
	if err != nil {
		return nil, err
	}
	return out.Parcel, nil
}

// CancelParcel cancels a parcel on behalf of its sender or an admin.
func (s *ParcelService) CancelParcel(ctx context.Context, actor ports.Actor, parcelID, reason string) (*domain.Parcel, error) {
	source := sourceSender
	if actor.IsAdmin() {
		source = sourceAdmin
	}
	out, err := s.workflow.apply(ctx, transitionRequest{
		ParcelID:    parcelID,
		To:          domain.StatusCancelled,
		ActorID:     actor.ID,
		Source:      source,
		Description: reason,
		Authorize:   senderOrAdmin(actor),
	})
	if err != nil {
		return nil, err
	}
	return out.Parcel, nil
}

// DeleteParcel soft-deletes a parcel. Senders may only delete drafts and
// cancelled parcels.
func (s *ParcelService) DeleteParcel(ctx context.Context, actor ports.Actor, parcelID string) error {
	p, err := s.parcels.FindByID(ctx, parcelID)
	if err != nil {
		return err
	}
	if err := senderOrAdmin(actor)(p); err != nil {
		return err
	}
	if !actor.IsAdmin() && p.Status != domain.StatusDraft && p.Status != domain.StatusCancelled {
		return fmt.Errorf("%w: parcel in status %s cannot be deleted", domain.ErrForbidden, p.Status)
	}

	if err := s.parcels.SoftDelete(ctx, p.ID, actor.ID, s.now()); err != nil {
		return err
	}
	if s.cache != nil {
		// SoftDelete does not bump the version; the floor still has to exceed
		// any view loaded before the delete.
		if err := s.cache.Invalidate(ctx, p.TrackingNumber, p.Version+1); err != nil {
			s.logger.Warn().Err(err).Str("tracking_number", p.TrackingNumber).Msg("failed to invalidate tracking cache")
		}
	}
	s.logger.Info().Str("parcel_id", p.ID).Str("deleted_by", actor.ID).Msg("parcel deleted")
	return nil
}

// Quote prices a shipment without creating it.
func (s *ParcelService) Quote(weight float64, unit domain.WeightUnit, deliveryType domain.DeliveryType, coverage domain.InsuranceCoverage) domain.PriceBreakdown {
	return domain.CalculatePrice(weight, unit, deliveryType, coverage)
}

func senderOnly(actor ports.Actor) func(*domain.Parcel) error {
	return func(p *domain.Parcel) error {
		if p.SenderID != actor.ID {
			return domain.ErrParcelNotFound
		}
		return nil
	}
}

func senderOrAdmin(actor ports.Actor) func(*domain.Parcel) error {
	return func(p *domain.Parcel) error {
		if actor.IsAdmin() || p.SenderID == actor.ID {
			return nil
		}
		return domain.ErrParcelNotFound
	}
}

// normalizeCreateInput applies defaults and rejects malformed input.
func normalizeCreateInput(in *ports.CreateParcelInput) error {
	if in.SenderID == "" {
		return domain.NewValidationError("sender_id", "is required")
	}
	if in.Weight <= 0 {
		return domain.NewValidationError("weight", "must be greater than 0")
	}
	if in.WeightUnit == "" {
		in.WeightUnit = domain.UnitKilogram
	}
	if in.DeliveryType == "" {
		in.DeliveryType = domain.DeliveryStandard
	}
	if in.InsuranceCoverage == "" {
		in.InsuranceCoverage = domain.NoInsurance
	}
	if in.PackageType == "" {
		in.PackageType = domain.PackageOther
	}

	switch in.InitialStatus {
	case "":
		in.InitialStatus = domain.StatusProcessing
	case domain.StatusDraft, domain.StatusProcessing, domain.StatusPaymentPending:
	default:
		return domain.NewValidationError("initial_status", "must be DRAFT, PROCESSING or PAYMENT_PENDING")
	}

	switch in.DeliveryType {
	case domain.DeliveryStandard, domain.DeliveryExpress, domain.DeliverySameDay, domain.DeliveryOvernight:
	default:
		return domain.NewValidationError("delivery_type", "unknown delivery type %q", in.DeliveryType)
	}

	switch in.WeightUnit {
	case domain.UnitKilogram, domain.UnitPound, domain.UnitGram:
	default:
		return domain.NewValidationError("weight_unit", "unknown weight unit %q", in.WeightUnit)
	}

	in.Recipient.Email = strings.ToLower(strings.TrimSpace(in.Recipient.Email))
	if in.Recipient.Email == "" {
		return domain.NewValidationError("recipient.email", "is required")
	}

	for field, addr := range map[string]domain.Address{
		"sender_address":    in.SenderAddress,
		"recipient_address": in.RecipientAddress,
	} {
		if addr.Street == "" || addr.City == "" || addr.Country == "" {
			return domain.NewValidationError(field, "street, city and country are required")
		}
		if addr.Coordinates != nil && !addr.Coordinates.Valid() {
			return domain.NewValidationError(field+".coordinates", "latitude or longitude out of range")
		}
	}
	return nil
}
