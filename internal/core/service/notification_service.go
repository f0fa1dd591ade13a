package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
	"github.com/sendit/parcel-service/internal/pkg/metrics"
)

const defaultInboxLimit = 50

// NotificationService processes NotificationJobs off the request path. It
// also serves each user's in-app inbox.
type NotificationService struct {
	users     ports.UserRepository
	inbox     ports.NotificationRepository
	mailer    ports.Mailer
	publisher ports.EventPublisher
	dedup     ports.NotificationDedup
	logger    zerolog.Logger
}

// NewNotificationService wires the notification channels. mailer, publisher
// and dedup may be nil.
func NewNotificationService(
	users ports.UserRepository,
	inbox ports.NotificationRepository,
	mailer ports.Mailer,
	publisher ports.EventPublisher,
	dedup ports.NotificationDedup,
	logger zerolog.Logger,
) *NotificationService {
	return &NotificationService{
		users:     users,
		inbox:     inbox,
		mailer:    mailer,
		publisher: publisher,
		dedup:     dedup,
		logger:    logger,
	}
}

// Handle publishes the status change and notifies the sender and, for the
// last-mile statuses, the recipient. Every channel is attempted; failures
// are joined into the returned error.
func (s *NotificationService) Handle(ctx context.Context, job ports.NotificationJob) error {
	var errs []error

	if s.publisher != nil {
		err := s.publisher.PublishStatusChanged(ctx, ports.StatusChangedEvent{
			ParcelID:       job.ParcelID,
			TrackingNumber: job.TrackingNumber,
			From:           job.From,
			To:             job.To,
			ActorID:        job.ActorID,
			Location:       job.Location,
			OccurredAt:     job.OccurredAt,
		})
		countNotification("broker", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("publish status change: %w", err))
		}
	}

	targets := []string{job.SenderID}
	if domain.NotifiesRecipient(job.To) && job.RecipientID != "" && job.RecipientID != job.SenderID {
		targets = append(targets, job.RecipientID)
	}
	for _, userID := range targets {
		if err := s.notifyUser(ctx, job, userID); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", userID, err))
		}
	}

	return errors.Join(errs...)
}

func (s *NotificationService) notifyUser(ctx context.Context, job ports.NotificationJob, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.NotificationsEnabled {
		countNotification("skipped", nil)
		return nil
	}

	if s.dedup != nil {
		first, err := s.dedup.Claim(ctx, job.ParcelID, job.Version, job.To, user.ID)
		if err != nil {
			// Prefer a possible duplicate over a lost notification.
			s.logger.Warn().Err(err).Str("parcel_id", job.ParcelID).Msg("notification dedup unavailable")
		} else if !first {
			metrics.NotificationsTotal.WithLabelValues("any", "duplicate").Inc()
			return nil
		}
	}

	title, body := notificationText(job)
	var errs []error

	n := &domain.Notification{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		ParcelID:       job.ParcelID,
		TrackingNumber: job.TrackingNumber,
		Status:         job.To,
		Title:          title,
		Message:        body,
		CreatedAt:      job.OccurredAt,
	}
	err = s.inbox.Create(ctx, n)
	countNotification("in_app", err)
	if err != nil {
		errs = append(errs, fmt.Errorf("store notification: %w", err))
	}

	if s.mailer != nil && user.Email != "" {
		err := s.mailer.Send(ctx, ports.Email{
			To:      user.Email,
			Name:    user.Name,
			Subject: title,
			Body:    body,
		})
		countNotification("email", err)
		if err != nil {
			errs = append(errs, fmt.Errorf("send email: %w", err))
		}
	}

	return errors.Join(errs...)
}

func notificationText(job ports.NotificationJob) (string, string) {
	title := fmt.Sprintf("Parcel %s: %s", job.TrackingNumber, humanStatus(job.To))

	var b strings.Builder
	fmt.Fprintf(&b, "Your parcel %s is now %s.", job.TrackingNumber, humanStatus(job.To))
	if job.Description != "" {
		fmt.Fprintf(&b, "\n%s", job.Description)
	}
	if job.Location != "" {
		fmt.Fprintf(&b, "\nLocation: %s", job.Location)
	}
	return title, b.String()
}

func humanStatus(s domain.ParcelStatus) string {
	return strings.ToLower(strings.ReplaceAll(string(s), "_", " "))
}

func countNotification(channel string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	metrics.NotificationsTotal.WithLabelValues(channel, result).Inc()
}

func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultInboxLimit
	}
	return s.inbox.ListByUser(ctx, userID, unreadOnly, limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	return s.inbox.MarkRead(ctx, notificationID, userID)
}
