package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

const assignmentColumns = `id, parcel_id, courier_id, status, assigned_at, assigned_by, completed_at, cancelled_at, earnings`

type AssignmentRepository struct {
	db *sql.DB
}

func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func scanAssignment(row rowScanner) (*domain.CourierAssignment, error) {
	var (
		a                      domain.CourierAssignment
		completed, cancelledAt sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.ParcelID, &a.CourierID, &a.Status, &a.AssignedAt, &a.AssignedBy,
		&completed, &cancelledAt, &a.Earnings); err != nil {
		return nil, err
	}
	a.AssignedAt = a.AssignedAt.UTC()
	a.CompletedAt = timePtr(completed)
	a.CancelledAt = timePtr(cancelledAt)
	return &a, nil
}

// Create relies on the partial unique index on ACTIVE assignments.
func (r *AssignmentRepository) Create(ctx context.Context, a *domain.CourierAssignment) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `INSERT INTO courier_assignments (`+assignmentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.ParcelID, a.CourierID, a.Status, a.AssignedAt.UTC(), a.AssignedBy,
		nullTime(a.CompletedAt), nullTime(a.CancelledAt), a.Earnings,
	)
	if isUniqueViolation(err) {
		return domain.ErrAssignmentExists
	}
	if err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

func (r *AssignmentRepository) findOne(ctx context.Context, where string, args ...any) (*domain.CourierAssignment, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	a, err := scanAssignment(r.db.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM courier_assignments WHERE `+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find assignment: %w", err)
	}
	return a, nil
}

func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*domain.CourierAssignment, error) {
	return r.findOne(ctx, "id = $1", id)
}

func (r *AssignmentRepository) FindActiveByParcel(ctx context.Context, parcelID string) (*domain.CourierAssignment, error) {
	return r.findOne(ctx, "parcel_id = $1 AND status = $2", parcelID, domain.AssignmentActive)
}

func (r *AssignmentRepository) List(ctx context.Context, q ports.AssignmentQuery) ([]*domain.CourierAssignment, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	conds := []string{"TRUE"}
	var args []any
	if q.CourierID != "" {
		args = append(args, q.CourierID)
		conds = append(conds, fmt.Sprintf("courier_id = $%d", len(args)))
	}
	if q.Status != "" {
		args = append(args, q.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if !q.CompletedFrom.IsZero() {
		args = append(args, q.CompletedFrom.UTC())
		conds = append(conds, fmt.Sprintf("completed_at >= $%d", len(args)))
	}

	rows, err := r.db.QueryContext(ctx, `SELECT `+assignmentColumns+` FROM courier_assignments
		WHERE `+strings.Join(conds, " AND ")+` ORDER BY assigned_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	out := []*domain.CourierAssignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AssignmentRepository) Cancel(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE courier_assignments SET status = $1, cancelled_at = $2
		WHERE id = $3 AND status = $4`,
		domain.AssignmentCancelled, at.UTC(), id, domain.AssignmentActive)
	if err != nil {
		return fmt.Errorf("cancel assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM courier_assignments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrAssignmentNotFound
	}
	return domain.ErrConcurrentUpdate
}
