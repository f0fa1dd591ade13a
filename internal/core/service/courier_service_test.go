package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

func TestUpdateDeliveryStatus_RequiresOwnAssignment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createParcel(t)

	_, err := f.courierSvc.UpdateDeliveryStatus(ctx, ports.DeliveryUpdateInput{
		ParcelID: p.ID, CourierID: f.courier.ID, Status: domain.StatusPickedUp,
	})
	assertErrorIs(t, err, domain.ErrAssignmentNotFound)

	f.assign(t, p.ID)
	other := f.addUser(t, "other-courier@example.com", domain.RoleCourier)
	_, err = f.courierSvc.UpdateDeliveryStatus(ctx, ports.DeliveryUpdateInput{
		ParcelID: p.ID, CourierID: other.ID, Status: domain.StatusPickedUp,
	})
	assertErrorIs(t, err, domain.ErrAssignmentNotFound)

	got, _ := f.parcels.FindByID(ctx, p.ID)
	if got.Status != domain.StatusProcessing {
		t.Errorf("foreign courier changed status to %s", got.Status)
	}
}

func TestUpdateDeliveryStatus_RejectsNonCourierStatuses(t *testing.T) {
	f := newFixture(t)
	p := f.createParcel(t)
	f.assign(t, p.ID)

	_, err := f.courierSvc.UpdateDeliveryStatus(context.Background(), ports.DeliveryUpdateInput{
		ParcelID: p.ID, CourierID: f.courier.ID, Status: domain.StatusCancelled,
	})
	assertErrorIs(t, err, domain.ErrValidation)
}

func TestUpdateDeliveryStatus_PhotoRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createParcel(t)
	f.assign(t, p.ID)
	f.advance(t, p.ID, domain.StatusPickedUp)

	_, err := f.courierSvc.UpdateDeliveryStatus(ctx, ports.DeliveryUpdateInput{
		ParcelID: p.ID, CourierID: f.courier.ID, Status: domain.StatusDelivered,
	})
	assertErrorIs(t, err, domain.ErrValidation)

	notImage := photo()
	notImage.ContentType = "application/pdf"
	_, err = f.courierSvc.UpdateDeliveryStatus(ctx, ports.DeliveryUpdateInput{
		ParcelID: p.ID, CourierID: f.courier.ID, Status: domain.StatusDelivered, Photo: notImage,
	})
	assertErrorIs(t, err, domain.ErrValidation)

	f.photos.uploadErr = errors.New("bucket unavailable")
	_, err = f.courierSvc.UpdateDeliveryStatus(ctx, ports.DeliveryUpdateInput{
		ParcelID: p.ID, CourierID: f.courier.ID, Status: domain.StatusDelivered, Photo: photo(),
	})
	if err == nil {
		t.Fatal("expected upload failure to abort the transition")
	}
	got, _ := f.parcels.FindByID(ctx, p.ID)
	if got.Status != domain.StatusPickedUp {
		t.Errorf("status changed despite failed upload: %s", got.Status)
	}

	f.photos.uploadErr = nil
	d, err := f.courierSvc.UpdateDeliveryStatus(ctx, ports.DeliveryUpdateInput{
		ParcelID: p.ID, CourierID: f.courier.ID, Status: domain.StatusDelivered, Photo: photo(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantPrefix := fmt.Sprintf("proof-of-delivery/%s/", p.ID)
	if len(f.photos.keys) != 1 || f.photos.keys[0][:len(wantPrefix)] != wantPrefix {
		t.Errorf("unexpected photo keys %v", f.photos.keys)
	}
	if d.LatestAttempt.ProofOfDeliveryURL == "" {
		t.Error("expected proof URL on attempt")
	}
	if len(f.photos.deleted) != 0 {
		t.Errorf("recorded proof must be kept, deleted %v", f.photos.deleted)
	}
}

func TestUpdateDeliveryStatus_InvalidTransitionSkipsUpload(t *testing.T) {
	f := newFixture(t)
	p := f.createParcel(t)
	f.assign(t, p.ID)

	_, err := f.courierSvc.UpdateDeliveryStatus(context.Background(), ports.DeliveryUpdateInput{
		ParcelID: p.ID, CourierID: f.courier.ID, Status: domain.StatusDelivered, Photo: photo(),
	})
	assertErrorIs(t, err, domain.ErrInvalidTransition)
	if len(f.photos.keys) != 0 {
		t.Error("photo uploaded for a rejected transition")
	}
}

func TestUpdateDeliveryStatus_FailedTransitionDeletesPhoto(t *testing.T) {
	var wrapped *conflictingParcels
	f := newFixtureWithParcels(t, func(r ports.ParcelRepository) ports.ParcelRepository {
		wrapped = &conflictingParcels{ParcelRepository: r}
		return wrapped
	})
	ctx := context.Background()
	p := f.createParcel(t)
	f.assign(t, p.ID)
	f.advance(t, p.ID, domain.StatusPickedUp)

	wrapped.conflicts = maxTransitionAttempts
	_, err := f.courierSvc.UpdateDeliveryStatus(ctx, ports.DeliveryUpdateInput{
		ParcelID: p.ID, CourierID: f.courier.ID, Status: domain.StatusDelivered, Photo: photo(),
	})
	assertErrorIs(t, err, domain.ErrConcurrentUpdate)

	if len(f.photos.keys) != 1 {
		t.Fatalf("expected one upload, got %v", f.photos.keys)
	}
	if len(f.photos.deleted) != 1 || f.photos.deleted[0] != f.photos.keys[0] {
		t.Errorf("expected uploaded photo %s to be deleted, got %v", f.photos.keys[0], f.photos.deleted)
	}
	got, _ := f.parcels.FindByID(ctx, p.ID)
	if got.Status != domain.StatusPickedUp {
		t.Errorf("status changed despite failed transition: %s", got.Status)
	}
}

func TestUpdateDeliveryStatus_StructuredFailureReason(t *testing.T) {
	f := newFixture(t)
	p := f.createParcel(t)
	f.assign(t, p.ID)
	f.advance(t, p.ID, domain.StatusPickedUp, domain.StatusInTransit)

	d, err := f.courierSvc.UpdateDeliveryStatus(context.Background(), ports.DeliveryUpdateInput{
		ParcelID: p.ID, CourierID: f.courier.ID, Status: domain.StatusDelayed,
		Notes: "road closed", FailureReason: domain.AttemptWeather,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.LatestAttempt.Status != domain.AttemptWeather {
		t.Errorf("expected FAILED_WEATHER, got %s", d.LatestAttempt.Status)
	}
	if d.Assignment.Status != domain.AssignmentActive {
		t.Errorf("DELAYED must keep the assignment active, got %s", d.Assignment.Status)
	}
}

func TestListDeliveries_SortedByPriority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	standard := f.createInput()
	standard.DeliveryType = domain.DeliveryStandard
	lowRes, _ := f.parcelSvc.CreateParcel(ctx, standard)
	high := f.createParcel(t) // EXPRESS

	f.assign(t, lowRes.Parcel.ID)
	f.assign(t, high.ID)

	list, err := f.courierSvc.ListDeliveries(ctx, f.courier.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(list))
	}
	if list[0].Parcel.ID != high.ID || list[0].Priority != domain.PriorityHigh {
		t.Errorf("expected EXPRESS parcel first with HIGH priority, got %s/%s", list[0].Parcel.DeliveryType, list[0].Priority)
	}
	if list[1].Priority != domain.PriorityLow {
		t.Errorf("expected LOW for STANDARD 3 days out, got %s", list[1].Priority)
	}
}

func TestGetEarnings_Periods(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seed := func(id string, at time.Time) {
		completed := at
		err := f.store.Assignments().Create(ctx, &domain.CourierAssignment{
			ID: id, ParcelID: "p-" + id, CourierID: f.courier.ID,
			Status: domain.AssignmentCompleted, AssignedAt: at.Add(-time.Hour),
			CompletedAt: &completed, Earnings: decimal.NewFromInt(100),
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	today := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		seed(fmt.Sprintf("today-%d", i), today.Add(time.Duration(i)*time.Minute))
	}
	seed("monday", time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC))
	seed("early-march", time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	seed("february", time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC))

	e, err := f.courierSvc.GetEarnings(ctx, f.courier.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name       string
		period     ports.EarningsPeriod
		deliveries int
		total      int64
	}{
		{"daily", e.Daily, 6, 660},
		{"weekly", e.Weekly, 7, 760},
		{"monthly", e.Monthly, 8, 860},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.period.Deliveries != tc.deliveries {
				t.Errorf("deliveries: expected %d, got %d", tc.deliveries, tc.period.Deliveries)
			}
			if !tc.period.Total.Equal(decimal.NewFromInt(tc.total)) {
				t.Errorf("total: expected %d, got %s", tc.total, tc.period.Total)
			}
		})
	}
	if e.AverageRating != 4.5 {
		t.Errorf("expected rating 4.5, got %v", e.AverageRating)
	}
}
