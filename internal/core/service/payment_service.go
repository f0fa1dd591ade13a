package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
	"github.com/sendit/parcel-service/internal/pkg/metrics"
)

// PaymentService moves PAYMENT_PENDING parcels to PAYMENT_CONFIRMED when the
// gateway reports a successful charge. Redelivered confirmations are no-ops.
type PaymentService struct {
	parcels  ports.ParcelRepository
	workflow *Workflow
	logger   zerolog.Logger
}

func NewPaymentService(parcels ports.ParcelRepository, workflow *Workflow, logger zerolog.Logger) *PaymentService {
	return &PaymentService{parcels: parcels, workflow: workflow, logger: logger}
}

func (s *PaymentService) ConfirmPayment(ctx context.Context, in ports.PaymentConfirmation) (*domain.Parcel, error) {
	parcelID := in.ParcelID
	if parcelID == "" {
		if in.TrackingNumber == "" {
			return nil, domain.NewValidationError("parcel_id", "parcel_id or tracking_number is required")
		}
		p, err := s.parcels.FindByTrackingNumber(ctx, in.TrackingNumber)
		if err != nil {
			metrics.PaymentEventsTotal.WithLabelValues("not_found").Inc()
			return nil, err
		}
		parcelID = p.ID
	}

	description := "Payment confirmed"
	if in.PaymentReference != "" {
		description += " (ref " + in.PaymentReference + ")"
	}

	out, err := s.workflow.apply(ctx, transitionRequest{
		ParcelID:    parcelID,
		To:          domain.StatusPaymentConfirmed,
		ActorID:     in.ActorID,
		Source:      sourcePayment,
		Description: description,
	})
	if err != nil {
		var terr *domain.TransitionError
		if errors.As(err, &terr) && terr.From == domain.StatusPaymentConfirmed {
			metrics.PaymentEventsTotal.WithLabelValues("duplicate").Inc()
			s.logger.Info().Str("parcel_id", parcelID).Msg("payment already confirmed")
			return s.parcels.FindByID(ctx, parcelID)
		}
		metrics.PaymentEventsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	metrics.PaymentEventsTotal.WithLabelValues("confirmed").Inc()
	return out.Parcel, nil
}
