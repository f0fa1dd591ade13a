package ports

import (
	"context"
	"time"

	"github.com/sendit/parcel-service/internal/core/domain"
)

// NotificationJob describes a committed status change that users should hear about.
// Version is the parcel version the change produced; it tells apart two visits
// to the same status.
type NotificationJob struct {
	ParcelID       string
	Version        int64
	TrackingNumber string
	SenderID       string
	RecipientID    string
	From           domain.ParcelStatus
	To             domain.ParcelStatus
	ActorID        string
	Location       string
	Description    string
	OccurredAt     time.Time
}

// NotificationDispatcher hands jobs to background workers. Enqueue never blocks.
type NotificationDispatcher interface {
	Enqueue(job NotificationJob)
}

// NotificationHandler processes one job. Errors are logged by the caller.
type NotificationHandler interface {
	Handle(ctx context.Context, job NotificationJob) error
}

// Email is a plain-text message.
type Email struct {
	To      string
	Name    string
	Subject string
	Body    string
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// StatusChangedEvent is published to the message broker after a transition.
type StatusChangedEvent struct {
	ParcelID       string              `json:"parcel_id"`
	TrackingNumber string              `json:"tracking_number"`
	From           domain.ParcelStatus `json:"from"`
	To             domain.ParcelStatus `json:"to"`
	ActorID        string              `json:"actor_id"`
	Location       string              `json:"location,omitempty"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

// EventPublisher emits domain events to other services.
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, event StatusChangedEvent) error
}

// NotificationDedup suppresses a second delivery of the same message.
type NotificationDedup interface {
	// Claim returns true the first time it sees (parcelID, version, status, userID).
	Claim(ctx context.Context, parcelID string, version int64, status domain.ParcelStatus, userID string) (bool, error)
}

// NotificationRepository stores in-app notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	// ListByUser returns notifications newest first.
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}
