package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sendit/parcel-service/internal/core/domain"
)

const defaultDedupTTL = 24 * time.Hour

// NotificationDedup remembers which notifications were already sent. A
// notification is one user hearing about one transition, and the parcel version
// the transition produced identifies it.
// Key format: sendit:notify:<parcel_id>:<version>:<status>:<user_id>
type NotificationDedup struct {
	client *redis.Client
	ttl    time.Duration
}

// NewNotificationDedup wraps client. A non-positive ttl uses the default.
func NewNotificationDedup(client *redis.Client, ttl time.Duration) *NotificationDedup {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &NotificationDedup{client: client, ttl: ttl}
}

// Claim atomically marks the notification as sent and reports whether this
// caller was the first.
func (d *NotificationDedup) Claim(ctx context.Context, parcelID string, version int64, status domain.ParcelStatus, userID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(parcelID, version, status, userID), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim: %w", err)
	}
	return ok, nil
}

func (d *NotificationDedup) key(parcelID string, version int64, status domain.ParcelStatus, userID string) string {
	return key("notify", parcelID, strconv.FormatInt(version, 10), string(status), userID)
}
