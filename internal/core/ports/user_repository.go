package ports

import (
	"context"

	"github.com/sendit/parcel-service/internal/core/domain"
)

// UserRepository defines the persistence operations the service needs on users.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	SetNotificationsEnabled(ctx context.Context, id string, enabled bool) error
}
