package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

// AccountService resolves recipients and serves the caller's profile.
type AccountService struct {
	users  ports.UserRepository
	now    func() time.Time
	logger zerolog.Logger
}

func NewAccountService(users ports.UserRepository, logger zerolog.Logger) *AccountService {
	return &AccountService{
		users:  users,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// EnsureRecipient returns the user registered under the recipient's email,
// creating a shell CUSTOMER account with a random password when none exists.
func (s *AccountService) EnsureRecipient(ctx context.Context, in ports.RecipientInput) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" {
		return nil, domain.NewValidationError("recipient.email", "is required")
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hash, err := randomPasswordHash()
	if err != nil {
		return nil, fmt.Errorf("hash shell password: %w", err)
	}

	now := s.now()
	user := &domain.User{
		ID:                   uuid.NewString(),
		Email:                email,
		Name:                 strings.TrimSpace(in.Name),
		Phone:                strings.TrimSpace(in.Phone),
		Role:                 domain.RoleCustomer,
		PasswordHash:         hash,
		NotificationsEnabled: true,
		IsShell:              true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Lost a race with another request for the same email.
		if errors.Is(err, domain.ErrUserExists) {
			return s.users.FindByEmail(ctx, email)
		}
		return nil, err
	}

	s.logger.Info().Str("user_id", user.ID).Msg("shell recipient account created")
	return user, nil
}

func randomPasswordHash() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(base64.RawURLEncoding.EncodeToString(buf)), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (s *AccountService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.FindByID(ctx, userID)
}

func (s *AccountService) UpdatePreferences(ctx context.Context, userID string, notificationsEnabled bool) (*domain.User, error) {
	if err := s.users.SetNotificationsEnabled(ctx, userID, notificationsEnabled); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Bool("notifications_enabled", notificationsEnabled).Msg("preferences updated")
	return s.users.FindByID(ctx, userID)
}
