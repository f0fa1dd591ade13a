package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

type AssignmentRepository struct {
	col *mongo.Collection
}

func NewAssignmentRepository(db *mongo.Database) *AssignmentRepository {
	return &AssignmentRepository{col: db.Collection(collectionAssignments)}
}

// Create relies on the partial unique index on ACTIVE assignments.
func (r *AssignmentRepository) Create(ctx context.Context, a *domain.CourierAssignment) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.InsertOne(ctx, toAssignmentDoc(a))
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrAssignmentExists
	}
	if err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

func (r *AssignmentRepository) findOne(ctx context.Context, filter bson.M) (*domain.CourierAssignment, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc assignmentDoc
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAssignmentNotFound
		}
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*domain.CourierAssignment, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *AssignmentRepository) FindActiveByParcel(ctx context.Context, parcelID string) (*domain.CourierAssignment, error) {
	return r.findOne(ctx, bson.M{"parcel_id": parcelID, "status": string(domain.AssignmentActive)})
}

func (r *AssignmentRepository) List(ctx context.Context, q ports.AssignmentQuery) ([]*domain.CourierAssignment, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{}
	if q.CourierID != "" {
		filter["courier_id"] = q.CourierID
	}
	if q.Status != "" {
		filter["status"] = string(q.Status)
	}
	if !q.CompletedFrom.IsZero() {
		filter["completed_at"] = bson.M{"$gte": q.CompletedFrom.UTC()}
	}

	cursor, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "assigned_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []assignmentDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domain.CourierAssignment, len(docs))
	for i, d := range docs {
		out[i] = d.toDomain()
	}
	return out, nil
}

func (r *AssignmentRepository) Cancel(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(domain.AssignmentActive)},
		bson.M{"$set": bson.M{"status": string(domain.AssignmentCancelled), "cancelled_at": at.UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := r.col.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrAssignmentNotFound
	}
	return domain.ErrConcurrentUpdate
}
