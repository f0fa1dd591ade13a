package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
	"github.com/sendit/parcel-service/internal/infrastructure/db/memory"
)

// ---------------------------------------------------------------------------
// Stub collaborators
// ---------------------------------------------------------------------------

type stubDispatcher struct {
	mu   sync.Mutex
	jobs []ports.NotificationJob
}

func (d *stubDispatcher) Enqueue(job ports.NotificationJob) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
}

func (d *stubDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.jobs)
}

type stubCache struct {
	mu          sync.Mutex
	views       map[string]*ports.TrackingView
	floors      map[string]int64
	invalidated []string
	getErr      error
}

func newStubCache() *stubCache {
	return &stubCache{views: make(map[string]*ports.TrackingView), floors: make(map[string]int64)}
}

func (c *stubCache) Get(_ context.Context, tn string) (*ports.TrackingView, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.views[tn]
	return v, ok, nil
}

func (c *stubCache) Set(_ context.Context, v *ports.TrackingView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v.Version < c.floors[v.TrackingNumber] {
		return nil
	}
	c.views[v.TrackingNumber] = v
	return nil
}

func (c *stubCache) Invalidate(_ context.Context, tn string, minVersion int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if minVersion > c.floors[tn] {
		c.floors[tn] = minVersion
	}
	delete(c.views, tn)
	c.invalidated = append(c.invalidated, tn)
	return nil
}

type stubPhotos struct {
	keys      []string
	deleted   []string
	uploadErr error
}

func (p *stubPhotos) Upload(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	if p.uploadErr != nil {
		return "", p.uploadErr
	}
	_, _ = io.Copy(io.Discard, r)
	p.keys = append(p.keys, key)
	return "https://photos.test/" + key, nil
}

func (p *stubPhotos) Delete(_ context.Context, key string) error {
	p.deleted = append(p.deleted, key)
	return nil
}

// conflictingParcels makes the next `conflicts` RecordTransition calls fail
// with ErrConcurrentUpdate before delegating to the wrapped repository.
type conflictingParcels struct {
	ports.ParcelRepository
	conflicts int
	calls     int
}

func (r *conflictingParcels) RecordTransition(ctx context.Context, rec ports.TransitionRecord) (*domain.Parcel, error) {
	r.calls++
	if r.conflicts > 0 {
		r.conflicts--
		return nil, domain.ErrConcurrentUpdate
	}
	return r.ParcelRepository.RecordTransition(ctx, rec)
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) // a Tuesday

type fixture struct {
	store      *memory.Store
	parcels    ports.ParcelRepository
	cache      *stubCache
	dispatcher *stubDispatcher
	photos     *stubPhotos
	workflow   *Workflow
	accounts   *AccountService
	parcelSvc  *ParcelService
	courierSvc *CourierService
	dispatch   *DispatchService
	payments   *PaymentService

	sender    *domain.User
	recipient *domain.User
	courier   *domain.User
	admin     *domain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithParcels(t, nil)
}

// newFixtureWithParcels lets a test wrap the parcel repository.
func newFixtureWithParcels(t *testing.T, wrap func(ports.ParcelRepository) ports.ParcelRepository) *fixture {
	t.Helper()
	log := zerolog.Nop()
	store := memory.NewStore()

	parcels := store.Parcels()
	if wrap != nil {
		parcels = wrap(parcels)
	}

	f := &fixture{
		store:      store,
		parcels:    parcels,
		cache:      newStubCache(),
		dispatcher: &stubDispatcher{},
		photos:     &stubPhotos{},
	}
	clock := func() time.Time { return fixedNow }

	f.workflow = NewWorkflow(parcels, store.Tracking(), store.Assignments(), f.cache, f.dispatcher, log, WithClock(clock))
	f.accounts = NewAccountService(store.Users(), log)
	f.parcelSvc = NewParcelService(parcels, store.Tracking(), store.Assignments(), store.Users(), f.accounts,
		f.workflow, f.cache, f.dispatcher, ParcelServiceConfig{Currency: "KES"}, log)
	f.parcelSvc.now = clock
	f.courierSvc = NewCourierService(parcels, store.Tracking(), store.Assignments(), f.workflow, f.photos,
		StaticRatings{Value: 4.5}, CourierServiceConfig{PhotoRequired: true}, log)
	f.courierSvc.now = clock
	f.dispatch = NewDispatchService(parcels, store.Assignments(), store.Users(), log)
	f.dispatch.now = clock
	f.payments = NewPaymentService(parcels, f.workflow, log)

	f.sender = f.addUser(t, "sender@example.com", domain.RoleCustomer)
	f.recipient = f.addUser(t, "recipient@example.com", domain.RoleCustomer)
	f.courier = f.addUser(t, "courier@example.com", domain.RoleCourier)
	f.admin = f.addUser(t, "admin@example.com", domain.RoleAdmin)
	return f
}

func (f *fixture) addUser(t *testing.T, email string, role domain.Role) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:                   "user-" + email,
		Email:                email,
		Name:                 email,
		Role:                 role,
		NotificationsEnabled: true,
		CreatedAt:            fixedNow,
	}
	if err := f.store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func (f *fixture) adminActor() ports.Actor {
	return ports.Actor{ID: f.admin.ID, Role: domain.RoleAdmin}
}

func (f *fixture) senderActor() ports.Actor {
	return ports.Actor{ID: f.sender.ID, Role: domain.RoleCustomer}
}

func (f *fixture) createInput() ports.CreateParcelInput {
	return ports.CreateParcelInput{
		SenderID:  f.sender.ID,
		Recipient: ports.RecipientInput{Name: "Rita", Email: f.recipient.Email},
		SenderAddress: domain.Address{
			Street: "1 Moi Avenue", City: "Nairobi", Country: "KE",
			Coordinates: &domain.Coordinates{Lat: -1.2864, Lng: 36.8172},
		},
		RecipientAddress: domain.Address{
			Street: "2 Nkrumah Road", City: "Mombasa", Country: "KE",
			Coordinates: &domain.Coordinates{Lat: -4.0435, Lng: 39.6682},
		},
		PackageType:   domain.PackageSmallBox,
		Weight:        3,
		WeightUnit:    domain.UnitKilogram,
		DeclaredValue: decimal.NewFromInt(1000),
		DeliveryType:  domain.DeliveryExpress,
	}
}

func (f *fixture) createParcel(t *testing.T) *domain.Parcel {
	t.Helper()
	res, err := f.parcelSvc.CreateParcel(context.Background(), f.createInput())
	if err != nil {
		t.Fatalf("create parcel: %v", err)
	}
	return res.Parcel
}

func (f *fixture) advance(t *testing.T, parcelID string, statuses ...domain.ParcelStatus) *domain.Parcel {
	t.Helper()
	var p *domain.Parcel
	for _, s := range statuses {
		var err error
		p, err = f.parcelSvc.UpdateParcelStatus(context.Background(), ports.StatusUpdateInput{
			ParcelID: parcelID,
			Status:   s,
			Actor:    f.adminActor(),
			Location: "Hub",
		})
		if err != nil {
			t.Fatalf("advance to %s: %v", s, err)
		}
	}
	return p
}

func (f *fixture) assign(t *testing.T, parcelID string) *domain.CourierAssignment {
	t.Helper()
	a, err := f.dispatch.AssignCourier(context.Background(), f.adminActor(), parcelID, f.courier.ID)
	if err != nil {
		t.Fatalf("assign courier: %v", err)
	}
	return a
}

func photo() *ports.PhotoUpload {
	return &ports.PhotoUpload{Filename: "door.JPG", ContentType: "image/jpeg", Size: 4, Body: strings.NewReader("jpeg")}
}

func assertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
