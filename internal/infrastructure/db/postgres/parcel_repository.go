package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

const parcelColumns = `id, tracking_number, status, package_type, delivery_type, weight, weight_unit,
	dimensions, description, declared_value, insurance_coverage, total_price, currency, handling,
	sender_id, recipient_id, sender_address, recipient_address, estimated_delivery, actual_delivery,
	idempotency_key, version, created_at, updated_at, updated_by, deleted_at`

// ParcelRepository implements ports.ParcelRepository and ports.TrackingRepository.
type ParcelRepository struct {
	db *sql.DB
}

func NewParcelRepository(db *sql.DB) *ParcelRepository {
	return &ParcelRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParcel(row rowScanner) (*domain.Parcel, error) {
	var (
		p                                      domain.Parcel
		dimensions, handling, senderAddr, rcpt []byte
		actualDelivery, deletedAt              sql.NullTime
		idempotencyKey                         sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.TrackingNumber, &p.Status, &p.PackageType, &p.DeliveryType, &p.Weight, &p.WeightUnit,
		&dimensions, &p.Description, &p.DeclaredValue, &p.InsuranceCoverage, &p.TotalPrice, &p.Currency, &handling,
		&p.SenderID, &p.RecipientID, &senderAddr, &rcpt, &p.EstimatedDelivery, &actualDelivery,
		&idempotencyKey, &p.Version, &p.CreatedAt, &p.UpdatedAt, &p.UpdatedBy, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(dimensions) > 0 {
		p.Dimensions = &domain.Dimensions{}
		if err := json.Unmarshal(dimensions, p.Dimensions); err != nil {
			return nil, fmt.Errorf("decode dimensions: %w", err)
		}
	}
	if err := json.Unmarshal(handling, &p.Handling); err != nil {
		return nil, fmt.Errorf("decode handling: %w", err)
	}
	if err := json.Unmarshal(senderAddr, &p.SenderAddress); err != nil {
		return nil, fmt.Errorf("decode sender address: %w", err)
	}
	if err := json.Unmarshal(rcpt, &p.RecipientAddress); err != nil {
		return nil, fmt.Errorf("decode recipient address: %w", err)
	}
	p.ActualDelivery = timePtr(actualDelivery)
	p.DeletedAt = timePtr(deletedAt)
	p.IdempotencyKey = idempotencyKey.String
	p.EstimatedDelivery = p.EstimatedDelivery.UTC()
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// parcelJSON encodes the JSONB columns of p. Dimensions stay NULL when unset.
func parcelJSON(p *domain.Parcel) (dimensions, handling, senderAddr, recipientAddr []byte, err error) {
	if p.Dimensions != nil {
		if dimensions, err = json.Marshal(p.Dimensions); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("encode dimensions: %w", err)
		}
	}
	if handling, err = json.Marshal(p.Handling); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode handling: %w", err)
	}
	if senderAddr, err = json.Marshal(p.SenderAddress); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode sender address: %w", err)
	}
	if recipientAddr, err = json.Marshal(p.RecipientAddress); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode recipient address: %w", err)
	}
	return dimensions, handling, senderAddr, recipientAddr, nil
}

func (r *ParcelRepository) Create(ctx context.Context, p *domain.Parcel, initial domain.TrackingEntry) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	dimensions, handling, senderAddr, recipientAddr, err := parcelJSON(p)
	if err != nil {
		return err
	}

	err = inTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO parcels (`+parcelColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)`,
			p.ID, p.TrackingNumber, p.Status, p.PackageType, p.DeliveryType, p.Weight, p.WeightUnit,
			dimensions, p.Description, p.DeclaredValue, p.InsuranceCoverage, p.TotalPrice, p.Currency, handling,
			p.SenderID, p.RecipientID, senderAddr, recipientAddr, p.EstimatedDelivery.UTC(), nullTime(p.ActualDelivery),
			nullString(p.IdempotencyKey), p.Version, p.CreatedAt.UTC(), p.UpdatedAt.UTC(), p.UpdatedBy, nullTime(p.DeletedAt),
		)
		if err != nil {
			return err
		}
		return insertEntry(ctx, tx, initial, p.Version)
	})
	if isUniqueViolation(err) {
		return domain.ErrDuplicateParcel
	}
	if err != nil {
		return fmt.Errorf("create parcel: %w", err)
	}
	return nil
}

func (r *ParcelRepository) findOne(ctx context.Context, where string, args ...any) (*domain.Parcel, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := r.db.QueryRowContext(ctx, `SELECT `+parcelColumns+` FROM parcels WHERE deleted_at IS NULL AND `+where, args...)
	p, err := scanParcel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrParcelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get parcel: %w", err)
	}
	return p, nil
}

func (r *ParcelRepository) FindByID(ctx context.Context, id string) (*domain.Parcel, error) {
	return r.findOne(ctx, "id = $1", id)
}

func (r *ParcelRepository) FindByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Parcel, error) {
	return r.findOne(ctx, "tracking_number = $1", trackingNumber)
}

func (r *ParcelRepository) FindByIdempotencyKey(ctx context.Context, senderID, key string) (*domain.Parcel, error) {
	return r.findOne(ctx, "sender_id = $1 AND idempotency_key = $2", senderID, key)
}

func (r *ParcelRepository) TrackingNumberExists(ctx context.Context, trackingNumber string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM parcels WHERE tracking_number = $1)`, trackingNumber).Scan(&exists)
	return exists, err
}

// whereClause renders typed filters as SQL with positional arguments.
func whereClause(filters []ports.ParcelFilter) (string, []any) {
	conds := []string{"deleted_at IS NULL"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, f := range filters {
		switch f := f.(type) {
		case ports.StatusFilter:
			ph := make([]string, len(f.Statuses))
			for i, s := range f.Statuses {
				ph[i] = arg(string(s))
			}
			conds = append(conds, "status IN ("+strings.Join(ph, ", ")+")")
		case ports.DeliveryTypeFilter:
			ph := make([]string, len(f.Types))
			for i, t := range f.Types {
				ph[i] = arg(string(t))
			}
			conds = append(conds, "delivery_type IN ("+strings.Join(ph, ", ")+")")
		case ports.TextSearch:
			p := arg("%" + escapeLike(f.Text) + "%")
			conds = append(conds, fmt.Sprintf("(tracking_number ILIKE %s OR description ILIKE %s)", p, p))
		case ports.CreatedRange:
			if !f.From.IsZero() {
				conds = append(conds, "created_at >= "+arg(f.From.UTC()))
			}
			if !f.To.IsZero() {
				conds = append(conds, "created_at <= "+arg(f.To.UTC()))
			}
		case ports.ParticipantFilter:
			p := arg(f.UserID)
			switch f.Role {
			case ports.ParticipantSender:
				conds = append(conds, "sender_id = "+p)
			case ports.ParticipantRecipient:
				conds = append(conds, "recipient_id = "+p)
			default:
				conds = append(conds, fmt.Sprintf("(sender_id = %s OR recipient_id = %s)", p, p))
			}
		}
	}
	return strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *ParcelRepository) List(ctx context.Context, q ports.ParcelQuery) ([]*domain.Parcel, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	where, args := whereClause(q.Filters)

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parcels WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count parcels: %w", err)
	}

	query := `SELECT ` + parcelColumns + ` FROM parcels WHERE ` + where + ` ORDER BY created_at DESC, id`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	args = append(args, q.Skip())
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list parcels: %w", err)
	}
	defer rows.Close()

	parcels := []*domain.Parcel{}
	for rows.Next() {
		p, err := scanParcel(rows)
		if err != nil {
			return nil, 0, err
		}
		parcels = append(parcels, p)
	}
	return parcels, total, rows.Err()
}

func (r *ParcelRepository) SoftDelete(ctx context.Context, id, deletedBy string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE parcels
		SET deleted_at = $1, deleted_by = $2, updated_at = $1, updated_by = $2, version = version + 1
		WHERE id = $3 AND deleted_at IS NULL`, at.UTC(), deletedBy, id)
	if err != nil {
		return fmt.Errorf("delete parcel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrParcelNotFound
	}
	return nil
}

// RecordTransition applies rec in one transaction guarded by the parcel's
// status and version.
func (r *ParcelRepository) RecordTransition(ctx context.Context, rec ports.TransitionRecord) (*domain.Parcel, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var updated *domain.Parcel
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `UPDATE parcels
			SET status = $1, updated_by = $2, updated_at = $3,
				actual_delivery = COALESCE($4, actual_delivery), version = version + 1
			WHERE id = $5 AND status = $6 AND version = $7 AND deleted_at IS NULL
			RETURNING `+parcelColumns,
			rec.ToStatus, rec.UpdatedBy, rec.At.UTC(), nullTime(rec.ActualDelivery),
			rec.ParcelID, rec.FromStatus, rec.ExpectedVersion,
		)
		p, err := scanParcel(row)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrConcurrentUpdate
		}
		if err != nil {
			return err
		}
		updated = p

		if err := insertEntry(ctx, tx, rec.Entry, p.Version); err != nil {
			return err
		}

		if a := rec.Attempt; a != nil {
			lat, lng := latLng(a.Coordinates)
			_, err := tx.ExecContext(ctx, `INSERT INTO delivery_attempts
				(id, parcel_id, courier_id, attempt_number, status, courier_notes, lat, lng,
				 proof_of_delivery_url, attempted_at, next_attempt)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
				a.ID, a.ParcelID, a.CourierID, a.AttemptNumber, a.Status, a.CourierNotes, lat, lng,
				a.ProofOfDeliveryURL, a.AttemptedAt.UTC(), nullTime(a.NextAttempt),
			)
			if err != nil {
				return fmt.Errorf("insert delivery attempt: %w", err)
			}
		}

		if c := rec.Completion; c != nil {
			res, err := tx.ExecContext(ctx, `UPDATE courier_assignments
				SET status = $1, completed_at = $2, earnings = $3
				WHERE id = $4 AND status = $5`,
				domain.AssignmentCompleted, c.CompletedAt.UTC(), c.Earnings, c.AssignmentID, domain.AssignmentActive,
			)
			if err != nil {
				return fmt.Errorf("complete assignment: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return domain.ErrConcurrentUpdate
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e domain.TrackingEntry, seq int64) error {
	lat, lng := latLng(e.Coordinates)
	_, err := tx.ExecContext(ctx, `INSERT INTO tracking_entries
		(id, parcel_id, seq, status, location, description, lat, lng, recorded_at, updated_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		e.ID, e.ParcelID, seq, e.Status, e.Location, e.Description, lat, lng, e.Timestamp.UTC(), e.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("insert tracking entry: %w", err)
	}
	return nil
}

func latLng(c *domain.Coordinates) (sql.NullFloat64, sql.NullFloat64) {
	if c == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.Lat, Valid: true}, sql.NullFloat64{Float64: c.Lng, Valid: true}
}

func coordinates(lat, lng sql.NullFloat64) *domain.Coordinates {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	return &domain.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
}

func (r *ParcelRepository) ListHistory(ctx context.Context, parcelID string, limit int) ([]domain.TrackingEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `SELECT id, parcel_id, status, location, description, lat, lng, recorded_at, updated_by
		FROM tracking_entries WHERE parcel_id = $1 ORDER BY seq DESC`
	args := []any{parcelID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	entries := []domain.TrackingEntry{}
	for rows.Next() {
		var (
			e        domain.TrackingEntry
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &e.ParcelID, &e.Status, &e.Location, &e.Description, &lat, &lng, &e.Timestamp, &e.UpdatedBy); err != nil {
			return nil, err
		}
		e.Coordinates = coordinates(lat, lng)
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *ParcelRepository) ListAttempts(ctx context.Context, parcelID string) ([]domain.DeliveryAttempt, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT id, parcel_id, courier_id, attempt_number, status, courier_notes,
			lat, lng, proof_of_delivery_url, attempted_at, next_attempt
		FROM delivery_attempts WHERE parcel_id = $1 ORDER BY attempt_number`, parcelID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	attempts := []domain.DeliveryAttempt{}
	for rows.Next() {
		var (
			a        domain.DeliveryAttempt
			lat, lng sql.NullFloat64
			next     sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.ParcelID, &a.CourierID, &a.AttemptNumber, &a.Status, &a.CourierNotes,
			&lat, &lng, &a.ProofOfDeliveryURL, &a.AttemptedAt, &next); err != nil {
			return nil, err
		}
		a.Coordinates = coordinates(lat, lng)
		a.AttemptedAt = a.AttemptedAt.UTC()
		a.NextAttempt = timePtr(next)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
