package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

// ---------------------------------------------------------------------------
// CreateParcel
// ---------------------------------------------------------------------------

func TestCreateParcel_PricesAndEstimates(t *testing.T) {
	f := newFixture(t)
	p := f.createParcel(t)

	if !domain.IsTrackingNumber(p.TrackingNumber) {
		t.Errorf("bad tracking number %q", p.TrackingNumber)
	}
	// 3kg EXPRESS, no insurance: 25 * 1.5
	if !p.TotalPrice.Equal(decimal.RequireFromString("37.5")) {
		t.Errorf("expected total 37.5, got %s", p.TotalPrice)
	}
	wantETA := time.Date(2026, 3, 11, 18, 0, 0, 0, time.UTC)
	if !p.EstimatedDelivery.Equal(wantETA) {
		t.Errorf("expected ETA %v, got %v", wantETA, p.EstimatedDelivery)
	}
	if p.RecipientID != f.recipient.ID {
		t.Errorf("expected existing recipient %s, got %s", f.recipient.ID, p.RecipientID)
	}

	history, _ := f.store.Tracking().ListHistory(context.Background(), p.ID, 0)
	if len(history) != 1 || history[0].Description != "Parcel created and processing" {
		t.Errorf("unexpected initial ledger: %+v", history)
	}
}

func TestCreateParcel_CreatesShellRecipient(t *testing.T) {
	f := newFixture(t)
	in := f.createInput()
	in.Recipient = ports.RecipientInput{Name: "New Person", Email: "  New@Example.com "}

	res, err := f.parcelSvc.CreateParcel(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u, err := f.store.Users().FindByEmail(context.Background(), "new@example.com")
	if err != nil {
		t.Fatalf("shell account not created: %v", err)
	}
	if !u.IsShell || u.Role != domain.RoleCustomer || u.PasswordHash == "" {
		t.Errorf("unexpected shell account: %+v", u)
	}
	if res.Parcel.RecipientID != u.ID {
		t.Errorf("parcel recipient %s, want %s", res.Parcel.RecipientID, u.ID)
	}
}

func TestCreateParcel_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	in := f.createInput()
	in.IdempotencyKey = "key-1"

	first, err := f.parcelSvc.CreateParcel(context.Background(), in)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := f.parcelSvc.CreateParcel(context.Background(), in)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}

	if !second.AlreadyExisted {
		t.Error("expected AlreadyExisted on replay")
	}
	if second.Parcel.ID != first.Parcel.ID {
		t.Errorf("replay returned a different parcel")
	}
	if n := f.dispatcher.count(); n != 1 {
		t.Errorf("replay must not enqueue notifications, got %d jobs", n)
	}
}

func TestCreateParcel_InitialStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  domain.ParcelStatus
		wantErr bool
	}{
		{"draft", domain.StatusDraft, false},
		{"payment pending", domain.StatusPaymentPending, false},
		{"picked up is not an entry state", domain.StatusPickedUp, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			in := f.createInput()
			in.InitialStatus = tc.status

			res, err := f.parcelSvc.CreateParcel(context.Background(), in)
			if tc.wantErr {
				assertErrorIs(t, err, domain.ErrValidation)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Parcel.Status != tc.status {
				t.Errorf("expected %s, got %s", tc.status, res.Parcel.Status)
			}
		})
	}
}

func TestCreateParcel_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		mutate func(*ports.CreateParcelInput)
	}{
		{"zero weight", func(in *ports.CreateParcelInput) { in.Weight = 0 }},
		{"unknown delivery type", func(in *ports.CreateParcelInput) { in.DeliveryType = "TELEPORT" }},
		{"missing recipient email", func(in *ports.CreateParcelInput) { in.Recipient.Email = "" }},
		{"missing city", func(in *ports.CreateParcelInput) { in.RecipientAddress.City = "" }},
		{"bad coordinates", func(in *ports.CreateParcelInput) {
			in.SenderAddress.Coordinates = &domain.Coordinates{Lat: 91, Lng: 0}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := f.createInput()
			tc.mutate(&in)
			_, err := f.parcelSvc.CreateParcel(context.Background(), in)
			assertErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestCreateParcel_UnknownSender(t *testing.T) {
	f := newFixture(t)
	in := f.createInput()
	in.SenderID = "ghost"

	_, err := f.parcelSvc.CreateParcel(context.Background(), in)
	assertErrorIs(t, err, domain.ErrUserNotFound)
}

// ---------------------------------------------------------------------------
// Reads and visibility
// ---------------------------------------------------------------------------

func TestGetParcel_HiddenFromStrangers(t *testing.T) {
	f := newFixture(t)
	p := f.createParcel(t)
	stranger := f.addUser(t, "stranger@example.com", domain.RoleCustomer)

	_, err := f.parcelSvc.GetParcel(context.Background(), ports.Actor{ID: stranger.ID, Role: domain.RoleCustomer}, p.ID)
	assertErrorIs(t, err, domain.ErrParcelNotFound)

	for _, actor := range []ports.Actor{
		f.senderActor(),
		{ID: f.recipient.ID, Role: domain.RoleCustomer},
		f.adminActor(),
	} {
		if _, err := f.parcelSvc.GetParcel(context.Background(), actor, p.ID); err != nil {
			t.Errorf("actor %s: unexpected error %v", actor.ID, err)
		}
	}
}

func TestGetParcel_AllowedNext(t *testing.T) {
	f := newFixture(t)
	p := f.createParcel(t)

	d, err := f.parcelSvc.GetParcel(context.Background(), f.senderActor(), p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.AllowedNext) != 2 {
		t.Errorf("expected 2 allowed transitions from PROCESSING, got %v", d.AllowedNext)
	}
}

func TestListParcels_ScopesCustomers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createParcel(t)
	f.createParcel(t)

	other := f.addUser(t, "other@example.com", domain.RoleCustomer)
	in := f.createInput()
	in.SenderID = other.ID
	if _, err := f.parcelSvc.CreateParcel(ctx, in); err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := f.parcelSvc.ListParcels(ctx, ports.ListParcelsInput{Actor: f.senderActor()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Total != 2 {
		t.Errorf("sender should see 2 parcels, got %d", res.Total)
	}

	res, _ = f.parcelSvc.ListParcels(ctx, ports.ListParcelsInput{
		Actor:         ports.Actor{ID: f.recipient.ID, Role: domain.RoleCustomer},
		Participation: ports.ParticipantRecipient,
	})
	if res.Total != 3 {
		t.Errorf("recipient should see 3 parcels, got %d", res.Total)
	}

	res, _ = f.parcelSvc.ListParcels(ctx, ports.ListParcelsInput{Actor: f.adminActor(), Limit: 2})
	if res.Total != 3 || len(res.Items) != 2 || res.TotalPages != 2 {
		t.Errorf("admin page: total=%d items=%d pages=%d", res.Total, len(res.Items), res.TotalPages)
	}
}

func TestListParcels_CapsLimit(t *testing.T) {
	f := newFixture(t)
	res, err := f.parcelSvc.ListParcels(context.Background(), ports.ListParcelsInput{Actor: f.adminActor(), Limit: 500})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Limit != maxPageLimit || res.Page != 1 {
		t.Errorf("expected limit %d page 1, got %d/%d", maxPageLimit, res.Limit, res.Page)
	}
}

func TestTrackParcel(t *testing.T) {
	f := newFixture(t)
	p := f.createParcel(t)

	view, err := f.parcelSvc.TrackParcel(context.Background(), p.TrackingNumber)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.OriginCity != "Nairobi" || view.DestinationCity != "Mombasa" {
		t.Errorf("unexpected cities: %s -> %s", view.OriginCity, view.DestinationCity)
	}
	for _, e := range view.History {
		if e.UpdatedBy != "" {
			t.Error("public history must not expose actor IDs")
		}
	}

	_, err = f.parcelSvc.TrackParcel(context.Background(), "XX-1")
	assertErrorIs(t, err, domain.ErrValidation)

	missing := "ST-0000000"
	if p.TrackingNumber == missing {
		missing = "ST-0000001"
	}
	_, err = f.parcelSvc.TrackParcel(context.Background(), missing)
	assertErrorIs(t, err, domain.ErrParcelNotFound)
}

func TestTrackParcel_CacheErrorFallsBackToStore(t *testing.T) {
	f := newFixture(t)
	p := f.createParcel(t)
	f.cache.getErr = errors.New("redis down")

	if _, err := f.parcelSvc.TrackParcel(context.Background(), p.TrackingNumber); err != nil {
		t.Fatalf("expected fallback to store, got %v", err)
	}
}

// commitDuringRead runs onRead once, between the parcel load and the history
// load of a tracking lookup.
type commitDuringRead struct {
	ports.TrackingRepository
	onRead func()
}

func (r *commitDuringRead) ListHistory(ctx context.Context, parcelID string, limit int) ([]domain.TrackingEntry, error) {
	if r.onRead != nil {
		hook := r.onRead
		r.onRead = nil
		hook()
	}
	return r.TrackingRepository.ListHistory(ctx, parcelID, limit)
}

func TestTrackParcel_TransitionDuringLookupIsNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createParcel(t)

	tracking := &commitDuringRead{TrackingRepository: f.store.Tracking()}
	tracking.onRead = func() { f.advance(t, p.ID, domain.StatusPickedUp) }
	reader := NewParcelService(f.parcels, tracking, f.store.Assignments(), f.store.Users(), f.accounts,
		f.workflow, f.cache, f.dispatcher, ParcelServiceConfig{Currency: "KES"}, zerolog.Nop())

	view, err := reader.TrackParcel(ctx, p.TrackingNumber)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if view.Status != domain.StatusProcessing {
		t.Fatalf("expected the lookup to see the pre-transition parcel, got %s", view.Status)
	}
	if cached, ok := f.cache.views[p.TrackingNumber]; ok {
		t.Fatalf("stale view cached after invalidation: %s", cached.Status)
	}

	view, err = reader.TrackParcel(ctx, p.TrackingNumber)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if view.Status != domain.StatusPickedUp {
		t.Errorf("expected PICKED_UP after the transition, got %s", view.Status)
	}
}

func TestTrackParcel_DeleteBlocksEarlierViews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createParcel(t)

	if err := f.parcelSvc.DeleteParcel(ctx, f.adminActor(), p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	// A lookup that loaded the parcel before the delete writes back late.
	_ = f.cache.Set(ctx, &ports.TrackingView{TrackingNumber: p.TrackingNumber, Version: p.Version, Status: p.Status})
	if _, ok := f.cache.views[p.TrackingNumber]; ok {
		t.Error("view loaded before the delete must not be cached")
	}
}

// ---------------------------------------------------------------------------
// Sender operations
// ---------------------------------------------------------------------------

func TestUpdateParcelStatus_RequiresAdmin(t *testing.T) {
	f := newFixture(t)
	p := f.createParcel(t)

	_, err := f.parcelSvc.UpdateParcelStatus(context.Background(), ports.StatusUpdateInput{
		ParcelID: p.ID, Status: domain.StatusPickedUp, Actor: f.senderActor(),
	})
	assertErrorIs(t, err, domain.ErrForbidden)
}

func TestSubmitDraft(t *testing.T) {
	f := newFixture(t)
	in := f.createInput()
	in.InitialStatus = domain.StatusDraft
	res, _ := f.parcelSvc.CreateParcel(context.Background(), in)

	_, err := f.parcelSvc.SubmitDraft(context.Background(), ports.Actor{ID: f.recipient.ID, Role: domain.RoleCustomer}, res.Parcel.ID)
	assertErrorIs(t, err, domain.ErrParcelNotFound)

	p, err := f.parcelSvc.SubmitDraft(context.Background(), f.senderActor(), res.Parcel.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != domain.StatusProcessing {
		t.Errorf("expected PROCESSING, got %s", p.Status)
	}
}

func TestCancelParcel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createParcel(t)

	got, err := f.parcelSvc.CancelParcel(ctx, f.senderActor(), p.ID, "changed my mind")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", got.Status)
	}
	history, _ := f.store.Tracking().ListHistory(ctx, p.ID, 1)
	if history[0].Description != "changed my mind" {
		t.Errorf("expected reason in ledger, got %q", history[0].Description)
	}

	q := f.createParcel(t)
	f.advance(t, q.ID, domain.StatusPickedUp)
	_, err = f.parcelSvc.CancelParcel(ctx, f.senderActor(), q.ID, "")
	assertErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestDeleteParcel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	active := f.createParcel(t)
	err := f.parcelSvc.DeleteParcel(ctx, f.senderActor(), active.ID)
	assertErrorIs(t, err, domain.ErrForbidden)

	if _, err := f.parcelSvc.CancelParcel(ctx, f.senderActor(), active.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := f.parcelSvc.DeleteParcel(ctx, f.senderActor(), active.ID); err != nil {
		t.Fatalf("delete cancelled parcel: %v", err)
	}
	_, err = f.parcelSvc.GetParcel(ctx, f.adminActor(), active.ID)
	assertErrorIs(t, err, domain.ErrParcelNotFound)

	other := f.createParcel(t)
	if err := f.parcelSvc.DeleteParcel(ctx, f.adminActor(), other.ID); err != nil {
		t.Errorf("admin delete: %v", err)
	}
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	q := f.parcelSvc.Quote(3, domain.UnitKilogram, domain.DeliveryExpress, domain.NoInsurance)
	if !q.Total.Equal(decimal.RequireFromString("37.5")) {
		t.Errorf("expected 37.5, got %s", q.Total)
	}
}
