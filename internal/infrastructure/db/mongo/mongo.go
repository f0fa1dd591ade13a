package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const defaultTimeout = 10 * time.Second

const (
	collectionParcels       = "parcels"
	collectionTracking      = "tracking_entries"
	collectionAttempts      = "delivery_attempts"
	collectionAssignments   = "courier_assignments"
	collectionUsers         = "users"
	collectionNotifications = "notifications"
)

// Config captures the minimal settings required to establish a MongoDB connection.
type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// Connect establishes a MongoDB client, verifies connectivity with a ping, and
// returns both the client and the selected database. A default timeout is
// applied when none is provided.
//
// Status transitions use multi-document transactions, so the deployment must
// be a replica set or sharded cluster.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(cfg.Database)
	return client, db, nil
}

// inTransaction runs fn inside a multi-document transaction. Errors returned
// by fn abort the transaction and are returned unchanged.
func inTransaction(ctx context.Context, client *mongo.Client, fn func(sc mongo.SessionContext) error) error {
	session, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// EnsureIndexes creates every index the repositories rely on, including the
// unique constraints that back duplicate detection.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	unique := func() *options.IndexOptions { return options.Index().SetUnique(true) }

	specs := map[string][]mongo.IndexModel{
		collectionParcels: {
			{Keys: bsonKeys("tracking_number"), Options: unique()},
			{
				Keys: bsonKeys("sender_id", "idempotency_key"),
				Options: unique().SetPartialFilterExpression(
					bsonDoc("idempotency_key", bsonDoc("$gt", "")),
				),
			},
			{Keys: bsonKeys("sender_id", "-created_at")},
			{Keys: bsonKeys("recipient_id", "-created_at")},
			{Keys: bsonKeys("status")},
		},
		collectionTracking: {
			{Keys: bsonKeys("parcel_id", "-seq")},
		},
		collectionAttempts: {
			{Keys: bsonKeys("parcel_id", "attempt_number")},
		},
		collectionAssignments: {
			// At most one ACTIVE assignment per parcel.
			{
				Keys: bsonKeys("parcel_id"),
				Options: unique().SetPartialFilterExpression(
					bsonDoc("status", "ACTIVE"),
				),
			},
			{Keys: bsonKeys("courier_id", "status", "completed_at")},
		},
		collectionUsers: {
			{Keys: bsonKeys("email"), Options: unique()},
		},
		collectionNotifications: {
			{Keys: bsonKeys("user_id", "-created_at")},
		},
	}

	for name, models := range specs {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}
