package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

// ParcelRepository implements ports.ParcelRepository and
// ports.TrackingRepository. Writes that touch more than one collection run in
// a transaction.
type ParcelRepository struct {
	client      *mongo.Client
	parcels     *mongo.Collection
	tracking    *mongo.Collection
	attempts    *mongo.Collection
	assignments *mongo.Collection
}

func NewParcelRepository(client *mongo.Client, db *mongo.Database) *ParcelRepository {
	return &ParcelRepository{
		client:      client,
		parcels:     db.Collection(collectionParcels),
		tracking:    db.Collection(collectionTracking),
		attempts:    db.Collection(collectionAttempts),
		assignments: db.Collection(collectionAssignments),
	}
}

// live excludes soft-deleted parcels.
func live(filter bson.M) bson.M {
	filter["deleted_at"] = nil
	return filter
}

// Create inserts the parcel and its first tracking entry.
func (r *ParcelRepository) Create(ctx context.Context, p *domain.Parcel, initial domain.TrackingEntry) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err := inTransaction(ctx, r.client, func(sc mongo.SessionContext) error {
		if _, err := r.parcels.InsertOne(sc, toParcelDoc(p)); err != nil {
			return err
		}
		_, err := r.tracking.InsertOne(sc, toTrackingDoc(initial, p.Version))
		return err
	})
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrDuplicateParcel
	}
	if err != nil {
		return fmt.Errorf("insert parcel: %w", err)
	}
	return nil
}

func (r *ParcelRepository) findOne(ctx context.Context, filter bson.M) (*domain.Parcel, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc parcelDoc
	err := r.parcels.FindOne(ctx, live(filter)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrParcelNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *ParcelRepository) FindByID(ctx context.Context, id string) (*domain.Parcel, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *ParcelRepository) FindByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Parcel, error) {
	return r.findOne(ctx, bson.M{"tracking_number": trackingNumber})
}

func (r *ParcelRepository) FindByIdempotencyKey(ctx context.Context, senderID, key string) (*domain.Parcel, error) {
	return r.findOne(ctx, bson.M{"sender_id": senderID, "idempotency_key": key})
}

// TrackingNumberExists also counts soft-deleted parcels.
func (r *ParcelRepository) TrackingNumberExists(ctx context.Context, trackingNumber string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	n, err := r.parcels.CountDocuments(ctx, bson.M{"tracking_number": trackingNumber}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns a page of parcels matching q, newest first, with the total count.
func (r *ParcelRepository) List(ctx context.Context, q ports.ParcelQuery) ([]*domain.Parcel, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := buildFilter(q.Filters)

	total, err := r.parcels.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(q.Skip()))
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := r.parcels.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var docs []parcelDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	parcels := make([]*domain.Parcel, len(docs))
	for i, d := range docs {
		parcels[i] = d.toDomain()
	}
	return parcels, total, nil
}

// buildFilter translates typed filters into a single $and query.
func buildFilter(filters []ports.ParcelFilter) bson.M {
	clauses := []bson.M{{"deleted_at": nil}}
	for _, f := range filters {
		switch f := f.(type) {
		case ports.StatusFilter:
			clauses = append(clauses, bson.M{"status": bson.M{"$in": f.Statuses}})
		case ports.DeliveryTypeFilter:
			clauses = append(clauses, bson.M{"delivery_type": bson.M{"$in": f.Types}})
		case ports.TextSearch:
			pattern := bson.M{"$regex": regexp.QuoteMeta(f.Text), "$options": "i"}
			clauses = append(clauses, bson.M{"$or": []bson.M{
				{"tracking_number": pattern},
				{"description": pattern},
			}})
		case ports.CreatedRange:
			rng := bson.M{}
			if !f.From.IsZero() {
				rng["$gte"] = f.From.UTC()
			}
			if !f.To.IsZero() {
				rng["$lte"] = f.To.UTC()
			}
			if len(rng) > 0 {
				clauses = append(clauses, bson.M{"created_at": rng})
			}
		case ports.ParticipantFilter:
			switch f.Role {
			case ports.ParticipantSender:
				clauses = append(clauses, bson.M{"sender_id": f.UserID})
			case ports.ParticipantRecipient:
				clauses = append(clauses, bson.M{"recipient_id": f.UserID})
			default:
				clauses = append(clauses, bson.M{"$or": []bson.M{
					{"sender_id": f.UserID},
					{"recipient_id": f.UserID},
				}})
			}
		}
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return bson.M{"$and": clauses}
}

func (r *ParcelRepository) SoftDelete(ctx context.Context, id, deletedBy string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.parcels.UpdateOne(ctx, live(bson.M{"_id": id}), bson.M{
		"$set": bson.M{"deleted_at": at.UTC(), "deleted_by": deletedBy, "updated_at": at.UTC(), "updated_by": deletedBy},
		"$inc": bson.M{"version": 1},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrParcelNotFound
	}
	return nil
}

// RecordTransition applies the status change, appends the ledgers and
// completes the assignment in one transaction. A stale status or version on
// the parcel, or an assignment that is no longer ACTIVE, aborts everything.
func (r *ParcelRepository) RecordTransition(ctx context.Context, rec ports.TransitionRecord) (*domain.Parcel, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var updated parcelDoc
	err := inTransaction(ctx, r.client, func(sc mongo.SessionContext) error {
		set := bson.M{
			"status":     string(rec.ToStatus),
			"updated_by": rec.UpdatedBy,
			"updated_at": rec.At.UTC(),
		}
		if rec.ActualDelivery != nil {
			set["actual_delivery"] = rec.ActualDelivery.UTC()
		}

		filter := live(bson.M{
			"_id":     rec.ParcelID,
			"status":  string(rec.FromStatus),
			"version": rec.ExpectedVersion,
		})
		err := r.parcels.FindOneAndUpdate(sc, filter,
			bson.M{"$set": set, "$inc": bson.M{"version": 1}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&updated)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrConcurrentUpdate
		}
		if err != nil {
			return err
		}

		if _, err := r.tracking.InsertOne(sc, toTrackingDoc(rec.Entry, updated.Version)); err != nil {
			return fmt.Errorf("insert tracking entry: %w", err)
		}

		if rec.Attempt != nil {
			if _, err := r.attempts.InsertOne(sc, toAttemptDoc(rec.Attempt)); err != nil {
				return fmt.Errorf("insert delivery attempt: %w", err)
			}
		}

		if c := rec.Completion; c != nil {
			res, err := r.assignments.UpdateOne(sc,
				bson.M{"_id": c.AssignmentID, "status": string(domain.AssignmentActive)},
				bson.M{"$set": bson.M{
					"status":       string(domain.AssignmentCompleted),
					"completed_at": c.CompletedAt.UTC(),
					"earnings":     toDecimal128(c.Earnings),
				}},
			)
			if err != nil {
				return fmt.Errorf("complete assignment: %w", err)
			}
			if res.MatchedCount == 0 {
				return domain.ErrConcurrentUpdate
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated.toDomain(), nil
}

// ListHistory returns entries newest first.
func (r *ParcelRepository) ListHistory(ctx context.Context, parcelID string, limit int) ([]domain.TrackingEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.tracking.Find(ctx, bson.M{"parcel_id": parcelID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []trackingDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.TrackingEntry, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out, nil
}

func (r *ParcelRepository) ListAttempts(ctx context.Context, parcelID string) ([]domain.DeliveryAttempt, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cursor, err := r.attempts.Find(ctx, bson.M{"parcel_id": parcelID},
		options.Find().SetSort(bson.D{{Key: "attempt_number", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []attemptDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.DeliveryAttempt, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out, nil
}
