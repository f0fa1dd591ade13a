// Package memory is an in-process store used for local development and
// tests. All state sits behind a single mutex, so RecordTransition is atomic.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

type Store struct {
	mu            sync.RWMutex
	parcels       map[string]*domain.Parcel
	history       map[string][]domain.TrackingEntry
	attempts      map[string][]domain.DeliveryAttempt
	assignments   map[string]*domain.CourierAssignment
	users         map[string]*domain.User
	notifications map[string]*domain.Notification
}

func NewStore() *Store {
	return &Store{
		parcels:       make(map[string]*domain.Parcel),
		history:       make(map[string][]domain.TrackingEntry),
		attempts:      make(map[string][]domain.DeliveryAttempt),
		assignments:   make(map[string]*domain.CourierAssignment),
		users:         make(map[string]*domain.User),
		notifications: make(map[string]*domain.Notification),
	}
}

// Parcels returns the store as a ports.ParcelRepository.
func (s *Store) Parcels() ports.ParcelRepository { return (*parcelRepo)(s) }

// Tracking returns the store as a ports.TrackingRepository.
func (s *Store) Tracking() ports.TrackingRepository { return (*trackingRepo)(s) }

// Assignments returns the store as a ports.AssignmentRepository.
func (s *Store) Assignments() ports.AssignmentRepository { return (*assignmentRepo)(s) }

// Users returns the store as a ports.UserRepository.
func (s *Store) Users() ports.UserRepository { return (*userRepo)(s) }

// Notifications returns the store as a ports.NotificationRepository.
func (s *Store) Notifications() ports.NotificationRepository { return (*notificationRepo)(s) }

// ---------------------------------------------------------------------------
// Parcels
// ---------------------------------------------------------------------------

type parcelRepo Store

func (r *parcelRepo) Create(_ context.Context, p *domain.Parcel, initial domain.TrackingEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.parcels[p.ID]; ok {
		return domain.ErrDuplicateParcel
	}
	for _, existing := range r.parcels {
		if existing.TrackingNumber == p.TrackingNumber {
			return domain.ErrDuplicateParcel
		}
		if p.IdempotencyKey != "" && existing.SenderID == p.SenderID && existing.IdempotencyKey == p.IdempotencyKey {
			return domain.ErrDuplicateParcel
		}
	}

	cp := *p
	r.parcels[p.ID] = &cp
	r.history[p.ID] = append(r.history[p.ID], initial)
	return nil
}

func (r *parcelRepo) live(id string) (*domain.Parcel, bool) {
	p, ok := r.parcels[id]
	if !ok || p.DeletedAt != nil {
		return nil, false
	}
	return p, true
}

func (r *parcelRepo) FindByID(_ context.Context, id string) (*domain.Parcel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.live(id)
	if !ok {
		return nil, domain.ErrParcelNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *parcelRepo) FindByTrackingNumber(_ context.Context, trackingNumber string) (*domain.Parcel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.parcels {
		if p.TrackingNumber == trackingNumber && p.DeletedAt == nil {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrParcelNotFound
}

func (r *parcelRepo) FindByIdempotencyKey(_ context.Context, senderID, key string) (*domain.Parcel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.parcels {
		if p.SenderID == senderID && p.IdempotencyKey == key && p.DeletedAt == nil {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrParcelNotFound
}

func (r *parcelRepo) TrackingNumberExists(_ context.Context, trackingNumber string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.parcels {
		if p.TrackingNumber == trackingNumber {
			return true, nil
		}
	}
	return false, nil
}

func (r *parcelRepo) List(_ context.Context, q ports.ParcelQuery) ([]*domain.Parcel, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*domain.Parcel
	for _, p := range r.parcels {
		if p.DeletedAt != nil || !matchesAll(p, q.Filters) {
			continue
		}
		cp := *p
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	start := q.Skip()
	if start >= len(matched) {
		return []*domain.Parcel{}, total, nil
	}
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	return matched[start:end], total, nil
}

func matchesAll(p *domain.Parcel, filters []ports.ParcelFilter) bool {
	for _, f := range filters {
		if !matches(p, f) {
			return false
		}
	}
	return true
}

func matches(p *domain.Parcel, f ports.ParcelFilter) bool {
	switch f := f.(type) {
	case ports.StatusFilter:
		for _, s := range f.Statuses {
			if p.Status == s {
				return true
			}
		}
		return false
	case ports.DeliveryTypeFilter:
		for _, t := range f.Types {
			if p.DeliveryType == t {
				return true
			}
		}
		return false
	case ports.TextSearch:
		text := strings.ToLower(f.Text)
		return strings.Contains(strings.ToLower(p.TrackingNumber), text) ||
			strings.Contains(strings.ToLower(p.Description), text)
	case ports.CreatedRange:
		if !f.From.IsZero() && p.CreatedAt.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && p.CreatedAt.After(f.To) {
			return false
		}
		return true
	case ports.ParticipantFilter:
		switch f.Role {
		case ports.ParticipantSender:
			return p.SenderID == f.UserID
		case ports.ParticipantRecipient:
			return p.RecipientID == f.UserID
		default:
			return p.SenderID == f.UserID || p.RecipientID == f.UserID
		}
	default:
		return true
	}
}

func (r *parcelRepo) SoftDelete(_ context.Context, id, deletedBy string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.live(id)
	if !ok {
		return domain.ErrParcelNotFound
	}
	p.DeletedAt = &at
	p.UpdatedAt = at
	p.UpdatedBy = deletedBy
	p.Version++
	return nil
}

func (r *parcelRepo) RecordTransition(_ context.Context, rec ports.TransitionRecord) (*domain.Parcel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.live(rec.ParcelID)
	if !ok {
		return nil, domain.ErrParcelNotFound
	}
	if p.Status != rec.FromStatus || p.Version != rec.ExpectedVersion {
		return nil, domain.ErrConcurrentUpdate
	}

	var completing *domain.CourierAssignment
	if rec.Completion != nil {
		a, ok := r.assignments[rec.Completion.AssignmentID]
		if !ok || a.Status != domain.AssignmentActive {
			return nil, domain.ErrConcurrentUpdate
		}
		completing = a
	}

	// Nothing is mutated before this point, so a rejected record leaves the
	// store untouched.
	p.Status = rec.ToStatus
	p.UpdatedBy = rec.UpdatedBy
	p.UpdatedAt = rec.At
	p.Version++
	if rec.ActualDelivery != nil {
		at := *rec.ActualDelivery
		p.ActualDelivery = &at
	}
	r.history[p.ID] = append(r.history[p.ID], rec.Entry)
	if rec.Attempt != nil {
		r.attempts[p.ID] = append(r.attempts[p.ID], *rec.Attempt)
	}
	if completing != nil {
		at := rec.Completion.CompletedAt
		completing.Status = domain.AssignmentCompleted
		completing.CompletedAt = &at
		completing.Earnings = rec.Completion.Earnings
	}

	cp := *p
	return &cp, nil
}

// ---------------------------------------------------------------------------
// Tracking ledgers
// ---------------------------------------------------------------------------

type trackingRepo Store

func (r *trackingRepo) ListHistory(_ context.Context, parcelID string, limit int) ([]domain.TrackingEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.history[parcelID]
	out := make([]domain.TrackingEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *trackingRepo) ListAttempts(_ context.Context, parcelID string) ([]domain.DeliveryAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.DeliveryAttempt{}, r.attempts[parcelID]...), nil
}

// ---------------------------------------------------------------------------
// Assignments
// ---------------------------------------------------------------------------

type assignmentRepo Store

func (r *assignmentRepo) Create(_ context.Context, a *domain.CourierAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.assignments {
		if existing.ParcelID == a.ParcelID && existing.Status == domain.AssignmentActive {
			return domain.ErrAssignmentExists
		}
	}
	cp := *a
	r.assignments[a.ID] = &cp
	return nil
}

func (r *assignmentRepo) FindByID(_ context.Context, id string) (*domain.CourierAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assignments[id]
	if !ok {
		return nil, domain.ErrAssignmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *assignmentRepo) FindActiveByParcel(_ context.Context, parcelID string) (*domain.CourierAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.assignments {
		if a.ParcelID == parcelID && a.Status == domain.AssignmentActive {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAssignmentNotFound
}

func (r *assignmentRepo) List(_ context.Context, q ports.AssignmentQuery) ([]*domain.CourierAssignment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.CourierAssignment
	for _, a := range r.assignments {
		if q.CourierID != "" && a.CourierID != q.CourierID {
			continue
		}
		if q.Status != "" && a.Status != q.Status {
			continue
		}
		if !q.CompletedFrom.IsZero() && (a.CompletedAt == nil || a.CompletedAt.Before(q.CompletedFrom)) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AssignedAt.Before(out[j].AssignedAt)
	})
	return out, nil
}

func (r *assignmentRepo) Cancel(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assignments[id]
	if !ok {
		return domain.ErrAssignmentNotFound
	}
	if a.Status != domain.AssignmentActive {
		return domain.ErrConcurrentUpdate
	}
	a.Status = domain.AssignmentCancelled
	a.CancelledAt = &at
	return nil
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

type userRepo Store

func (r *userRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *userRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *userRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.ID == user.ID || strings.EqualFold(u.Email, user.Email) {
			return domain.ErrUserExists
		}
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *userRepo) SetNotificationsEnabled(_ context.Context, id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.NotificationsEnabled = enabled
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// ---------------------------------------------------------------------------
// Notifications
// ---------------------------------------------------------------------------

type notificationRepo Store

func (r *notificationRepo) Create(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *n
	r.notifications[n.ID] = &cp
	return nil
}

func (r *notificationRepo) ListByUser(_ context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Notification
	for _, n := range r.notifications {
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *notificationRepo) MarkRead(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[id]
	if !ok || n.UserID != userID {
		return domain.ErrNotificationNotFound
	}
	n.Read = true
	return nil
}
