package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
	"github.com/sendit/parcel-service/internal/infrastructure/db/memory"
)

func TestEnsureRecipient_ReusesExistingAccount(t *testing.T) {
	store := memory.NewStore()
	existing := &domain.User{ID: "u1", Email: "rita@example.com", Role: domain.RoleCustomer}
	_ = store.Users().Create(context.Background(), existing)
	svc := NewAccountService(store.Users(), zerolog.Nop())

	u, err := svc.EnsureRecipient(context.Background(), ports.RecipientInput{Email: "RITA@example.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.ID != "u1" {
		t.Errorf("expected existing user, got %s", u.ID)
	}
}

func TestEnsureRecipient_ShellPasswordIsBcrypt(t *testing.T) {
	svc := NewAccountService(memory.NewStore().Users(), zerolog.Nop())

	u, err := svc.EnsureRecipient(context.Background(), ports.RecipientInput{Email: "new@example.com", Name: "New"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
		t.Errorf("password hash is not bcrypt: %v", err)
	}
	if !u.NotificationsEnabled {
		t.Error("shell accounts should receive notifications by default")
	}
}

func TestUpdatePreferences(t *testing.T) {
	store := memory.NewStore()
	_ = store.Users().Create(context.Background(), &domain.User{ID: "u1", Email: "a@example.com", NotificationsEnabled: true})
	svc := NewAccountService(store.Users(), zerolog.Nop())

	u, err := svc.UpdatePreferences(context.Background(), "u1", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.NotificationsEnabled {
		t.Error("expected notifications disabled")
	}

	_, err = svc.UpdatePreferences(context.Background(), "missing", true)
	assertErrorIs(t, err, domain.ErrUserNotFound)
}
