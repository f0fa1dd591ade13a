package ports

import (
	"context"
	"io"
)

// TrackingCache caches the public tracking view by tracking number.
type TrackingCache interface {
	// Get returns (nil, false, nil) on a miss.
	Get(ctx context.Context, trackingNumber string) (*TrackingView, bool, error)
	// Set stores view unless its Version is below the floor left by
	// Invalidate. A skipped write is not an error.
	Set(ctx context.Context, view *TrackingView) error
	// Invalidate drops the cached view and raises the floor to minVersion so
	// a reader that loaded an older parcel cannot cache it afterwards.
	Invalidate(ctx context.Context, trackingNumber string, minVersion int64) error
}

// PhotoStore keeps proof-of-delivery images and returns a URL for each.
type PhotoStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	// Delete removes an object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// RatingsProvider reports a courier's average customer rating.
type RatingsProvider interface {
	AverageRating(ctx context.Context, courierID string) (float64, error)
}
