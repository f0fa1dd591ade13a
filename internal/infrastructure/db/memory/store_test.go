package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func seedParcel(t *testing.T, s *Store, id string, created time.Time) *domain.Parcel {
	t.Helper()
	p := &domain.Parcel{
		ID:             id,
		TrackingNumber: "ST-" + id,
		Status:         domain.StatusProcessing,
		DeliveryType:   domain.DeliveryStandard,
		SenderID:       "sender",
		RecipientID:    "recipient",
		Description:    "books for " + id,
		CreatedAt:      created,
	}
	entry := domain.TrackingEntry{ID: id + "-0", ParcelID: id, Status: p.Status, Timestamp: created}
	if err := s.Parcels().Create(context.Background(), p, entry); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return p
}

func TestRecordTransition_AppliesEverythingTogether(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p := seedParcel(t, s, "p1", t0)

	a := &domain.CourierAssignment{ID: "a1", ParcelID: "p1", CourierID: "c1", Status: domain.AssignmentActive}
	if err := s.Assignments().Create(ctx, a); err != nil {
		t.Fatalf("assign: %v", err)
	}

	delivered := t0.Add(time.Hour)
	got, err := s.Parcels().RecordTransition(ctx, ports.TransitionRecord{
		ParcelID:        p.ID,
		FromStatus:      domain.StatusProcessing,
		ExpectedVersion: 0,
		ToStatus:        domain.StatusDelivered,
		At:              delivered,
		ActualDelivery:  &delivered,
		Entry:           domain.TrackingEntry{ID: "e1", ParcelID: p.ID, Status: domain.StatusDelivered, Timestamp: delivered},
		Attempt:         &domain.DeliveryAttempt{ID: "at1", ParcelID: p.ID, AttemptNumber: 1},
		Completion:      &domain.AssignmentCompletion{AssignmentID: "a1", CompletedAt: delivered, Earnings: decimal.NewFromInt(150)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.StatusDelivered || got.Version != 1 {
		t.Errorf("parcel: status=%s version=%d", got.Status, got.Version)
	}

	history, _ := s.Tracking().ListHistory(ctx, p.ID, 0)
	if len(history) != 2 || history[0].ID != "e1" {
		t.Errorf("history not newest first: %+v", history)
	}
	attempts, _ := s.Tracking().ListAttempts(ctx, p.ID)
	if len(attempts) != 1 {
		t.Errorf("expected 1 attempt, got %d", len(attempts))
	}
	done, _ := s.Assignments().FindByID(ctx, "a1")
	if done.Status != domain.AssignmentCompleted || !done.Earnings.Equal(decimal.NewFromInt(150)) {
		t.Errorf("assignment not completed: %+v", done)
	}
}

func TestRecordTransition_StaleCompletionWritesNothing(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p := seedParcel(t, s, "p1", t0)

	_, err := s.Parcels().RecordTransition(ctx, ports.TransitionRecord{
		ParcelID:   p.ID,
		FromStatus: domain.StatusProcessing,
		ToStatus:   domain.StatusDelivered,
		Entry:      domain.TrackingEntry{ID: "e1"},
		Completion: &domain.AssignmentCompletion{AssignmentID: "missing"},
	})
	if !errors.Is(err, domain.ErrConcurrentUpdate) {
		t.Fatalf("expected ErrConcurrentUpdate, got %v", err)
	}
	got, _ := s.Parcels().FindByID(ctx, p.ID)
	if got.Status != domain.StatusProcessing {
		t.Errorf("status changed to %s", got.Status)
	}
	if history, _ := s.Tracking().ListHistory(ctx, p.ID, 0); len(history) != 1 {
		t.Errorf("history grew to %d entries", len(history))
	}
}

func TestList_FiltersAndPagination(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c", "d"} {
		seedParcel(t, s, id, t0.Add(time.Duration(i)*time.Hour))
	}

	items, total, err := s.Parcels().List(ctx, ports.ParcelQuery{Page: 2, Limit: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 4 || len(items) != 1 || items[0].ID != "a" {
		t.Errorf("page 2: total=%d items=%v", total, items)
	}

	items, total, _ = s.Parcels().List(ctx, ports.ParcelQuery{
		Filters: []ports.ParcelFilter{
			ports.TextSearch{Text: "BOOKS FOR C"},
			ports.ParticipantFilter{UserID: "recipient", Role: ports.ParticipantRecipient},
		},
	})
	if total != 1 || items[0].ID != "c" {
		t.Errorf("search: total=%d items=%v", total, items)
	}

	_, total, _ = s.Parcels().List(ctx, ports.ParcelQuery{
		Filters: []ports.ParcelFilter{ports.CreatedRange{From: t0.Add(time.Hour), To: t0.Add(2 * time.Hour)}},
	})
	if total != 2 {
		t.Errorf("date range: expected 2, got %d", total)
	}

	_, total, _ = s.Parcels().List(ctx, ports.ParcelQuery{
		Filters: []ports.ParcelFilter{ports.ParticipantFilter{UserID: "recipient", Role: ports.ParticipantSender}},
	})
	if total != 0 {
		t.Errorf("recipient is not a sender, got %d", total)
	}
}

func TestSoftDelete_HidesParcel(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	p := seedParcel(t, s, "p1", t0)

	if err := s.Parcels().SoftDelete(ctx, p.ID, "admin", t0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Parcels().FindByID(ctx, p.ID); !errors.Is(err, domain.ErrParcelNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	exists, _ := s.Parcels().TrackingNumberExists(ctx, p.TrackingNumber)
	if !exists {
		t.Error("deleted parcels keep their tracking number reserved")
	}
}

func TestAssignments_OneActivePerParcel(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_ = s.Assignments().Create(ctx, &domain.CourierAssignment{ID: "a1", ParcelID: "p1", Status: domain.AssignmentActive})
	err := s.Assignments().Create(ctx, &domain.CourierAssignment{ID: "a2", ParcelID: "p1", Status: domain.AssignmentActive})
	if !errors.Is(err, domain.ErrAssignmentExists) {
		t.Fatalf("expected ErrAssignmentExists, got %v", err)
	}

	if err := s.Assignments().Cancel(ctx, "a1", t0); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := s.Assignments().Create(ctx, &domain.CourierAssignment{ID: "a2", ParcelID: "p1", Status: domain.AssignmentActive}); err != nil {
		t.Errorf("reassign after cancel: %v", err)
	}
}
