package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

// courierStatuses are the statuses a courier may report.
var courierStatuses = map[domain.ParcelStatus]bool{
	domain.StatusPickedUp:       true,
	domain.StatusInTransit:      true,
	domain.StatusOutForDelivery: true,
	domain.StatusDelivered:      true,
	domain.StatusDelayed:        true,
	domain.StatusReturned:       true,
}

const (
	maxPhotoBytes       = 10 << 20
	photoCleanupTimeout = 10 * time.Second
)

type CourierServiceConfig struct {
	// PhotoRequired makes proof of delivery mandatory for every DELIVERED
	// report. Signature-required parcels always need one.
	PhotoRequired bool
	// Location defines calendar days for earnings. Defaults to UTC.
	Location *time.Location
}

type CourierService struct {
	parcels     ports.ParcelRepository
	tracking    ports.TrackingRepository
	assignments ports.AssignmentRepository
	workflow    *Workflow
	photos      ports.PhotoStore
	ratings     ports.RatingsProvider
	cfg         CourierServiceConfig
	now         func() time.Time
	logger      zerolog.Logger
}

func NewCourierService(
	parcels ports.ParcelRepository,
	tracking ports.TrackingRepository,
	assignments ports.AssignmentRepository,
	workflow *Workflow,
	photos ports.PhotoStore,
	ratings ports.RatingsProvider,
	cfg CourierServiceConfig,
	logger zerolog.Logger,
) *CourierService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &CourierService{
		parcels:     parcels,
		tracking:    tracking,
		assignments: assignments,
		workflow:    workflow,
		photos:      photos,
		ratings:     ratings,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

// ListDeliveries returns the courier's active deliveries, highest priority
// first and then by estimated delivery.
func (s *CourierService) ListDeliveries(ctx context.Context, courierID string) ([]ports.CourierDelivery, error) {
	active, err := s.assignments.List(ctx, ports.AssignmentQuery{CourierID: courierID, Status: domain.AssignmentActive})
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}

	now := s.now()
	out := make([]ports.CourierDelivery, 0, len(active))
	for _, a := range active {
		p, err := s.parcels.FindByID(ctx, a.ParcelID)
		if errors.Is(err, domain.ErrParcelNotFound) {
			s.logger.Warn().Str("assignment_id", a.ID).Str("parcel_id", a.ParcelID).Msg("active assignment references a missing parcel")
			continue
		}
		if err != nil {
			return nil, err
		}
		d, err := s.delivery(ctx, p, a, now)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Priority.Rank(), out[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return out[i].Parcel.EstimatedDelivery.Before(out[j].Parcel.EstimatedDelivery)
	})
	return out, nil
}

func (s *CourierService) delivery(ctx context.Context, p *domain.Parcel, a *domain.CourierAssignment, now time.Time) (*ports.CourierDelivery, error) {
	attempts, err := s.tracking.ListAttempts(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	d := &ports.CourierDelivery{
		Parcel:            p,
		Assignment:        a,
		Priority:          domain.ParcelPriority(p, now),
		EstimatedEarnings: domain.DeliveryEarnings(p),
	}
	if n := len(attempts); n > 0 {
		last := attempts[n-1]
		d.LatestAttempt = &last
	}
	return d, nil
}

// UpdateDeliveryStatus applies a courier's report to an assigned parcel.
// A DELIVERED report completes the assignment in the same transition.
func (s *CourierService) UpdateDeliveryStatus(ctx context.Context, input ports.DeliveryUpdateInput) (*ports.CourierDelivery, error) {
	if !courierStatuses[input.Status] {
		return nil, domain.NewValidationError("status", "couriers cannot report status %s", input.Status)
	}
	if input.Coordinates != nil && !input.Coordinates.Valid() {
		return nil, domain.NewValidationError("coordinates", "latitude or longitude out of range")
	}
	if input.FailureReason != "" && input.Status == domain.StatusDelivered {
		return nil, domain.NewValidationError("failure_reason", "not allowed for DELIVERED")
	}

	// Check ownership and the transition before storing a photo, so a
	// rejected report leaves nothing behind.
	p, err := s.parcels.FindByID(ctx, input.ParcelID)
	if err != nil {
		return nil, err
	}
	if _, err := s.workflow.courierAssignment(ctx, p.ID, input.CourierID); err != nil {
		return nil, err
	}
	if err := s.workflow.Table().Validate(p.Status, input.Status); err != nil {
		return nil, err
	}

	var proofKey, proofURL string
	if input.Status == domain.StatusDelivered {
		if input.Photo == nil && (s.cfg.PhotoRequired || p.Handling.SignatureRequired) {
			return nil, domain.NewValidationError("photo", "proof of delivery is required")
		}
		if input.Photo != nil {
			if proofKey, proofURL, err = s.uploadProof(ctx, p.ID, input.Photo); err != nil {
				return nil, err
			}
		}
	}

	out, err := s.workflow.apply(ctx, transitionRequest{
		ParcelID:      input.ParcelID,
		To:            input.Status,
		ActorID:       input.CourierID,
		Source:        sourceCourier,
		CourierID:     input.CourierID,
		Location:      input.Location,
		Coordinates:   input.Coordinates,
		Notes:         input.Notes,
		FailureReason: input.FailureReason,
		ProofURL:      proofURL,
	})
	if err != nil {
		if proofKey != "" {
			s.discardProof(ctx, p.ID, proofKey)
		}
		return nil, err
	}

	d := &ports.CourierDelivery{
		Parcel:            out.Parcel,
		Assignment:        out.Assignment,
		LatestAttempt:     out.Attempt,
		Priority:          domain.ParcelPriority(out.Parcel, s.now()),
		EstimatedEarnings: domain.DeliveryEarnings(out.Parcel),
	}
	return d, nil
}

// uploadProof stores the photo and returns its object key and public URL.
func (s *CourierService) uploadProof(ctx context.Context, parcelID string, photo *ports.PhotoUpload) (string, string, error) {
	if s.photos == nil {
		return "", "", errors.New("photo storage is not configured")
	}
	if !strings.HasPrefix(photo.ContentType, "image/") {
		return "", "", domain.NewValidationError("photo", "content type %q is not an image", photo.ContentType)
	}
	if photo.Size > maxPhotoBytes {
		return "", "", domain.NewValidationError("photo", "must be at most %d bytes", maxPhotoBytes)
	}

	key := fmt.Sprintf("proof-of-delivery/%s/%s%s", parcelID, uuid.NewString(), strings.ToLower(path.Ext(photo.Filename)))
	url, err := s.photos.Upload(ctx, key, photo.Body, photo.Size, photo.ContentType)
	if err != nil {
		return "", "", fmt.Errorf("upload proof of delivery: %w", err)
	}
	return key, url, nil
}

// discardProof removes a photo whose delivery report was not recorded. The
// request context may already be done, so the delete runs detached from it.
func (s *CourierService) discardProof(ctx context.Context, parcelID, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), photoCleanupTimeout)
	defer cancel()
	if err := s.photos.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).
			Str("parcel_id", parcelID).
			Str("photo_key", key).
			Msg("failed to delete orphaned proof of delivery")
	}
}

// GetEarnings sums completed assignments for the current day, ISO week and
// month. The daily bonus is applied per calendar day.
func (s *CourierService) GetEarnings(ctx context.Context, courierID string) (*ports.CourierEarnings, error) {
	now := s.now().In(s.cfg.Location)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Location)
	weekday := (int(now.Weekday()) + 6) % 7 // Monday = 0
	weekStart := dayStart.AddDate(0, 0, -weekday)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.cfg.Location)

	from := weekStart
	if monthStart.Before(from) {
		from = monthStart
	}
	completed, err := s.assignments.List(ctx, ports.AssignmentQuery{
		CourierID:     courierID,
		Status:        domain.AssignmentCompleted,
		CompletedFrom: from.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("list completed assignments: %w", err)
	}

	rating := 0.0
	if s.ratings != nil {
		if rating, err = s.ratings.AverageRating(ctx, courierID); err != nil {
			s.logger.Warn().Err(err).Str("courier_id", courierID).Msg("failed to load courier rating")
			rating = 0
		}
	}

	return &ports.CourierEarnings{
		CourierID:     courierID,
		Daily:         s.period(completed, dayStart),
		Weekly:        s.period(completed, weekStart),
		Monthly:       s.period(completed, monthStart),
		AverageRating: rating,
	}, nil
}

func (s *CourierService) period(assignments []*domain.CourierAssignment, from time.Time) ports.EarningsPeriod {
	p := ports.EarningsPeriod{From: from, Earnings: decimal.Zero, Bonus: decimal.Zero}
	perDay := make(map[string]int)
	for _, a := range assignments {
		if a.CompletedAt == nil || a.CompletedAt.Before(from) {
			continue
		}
		p.Deliveries++
		p.Earnings = p.Earnings.Add(a.Earnings)
		perDay[a.CompletedAt.In(s.cfg.Location).Format(time.DateOnly)]++
	}
	for _, n := range perDay {
		p.Bonus = p.Bonus.Add(domain.DailyBonus(n))
	}
	p.Total = p.Earnings.Add(p.Bonus)
	return p
}
