package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sendit/parcel-service/internal/core/ports"
)

const defaultTrackingTTL = 5 * time.Minute

// setAboveFloor writes the view unless its version is below the floor.
// KEYS: view, floor. ARGV: version, payload, ttl ms.
var setAboveFloor = redis.NewScript(`
local floor = tonumber(redis.call('GET', KEYS[2]) or '0')
if tonumber(ARGV[1]) < floor then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// raiseFloor deletes the view and raises the floor to at least ARGV[1].
// KEYS: view, floor. ARGV: version, ttl ms.
var raiseFloor = redis.NewScript(`
local floor = tonumber(redis.call('GET', KEYS[2]) or '0')
if tonumber(ARGV[1]) > floor then
	floor = tonumber(ARGV[1])
end
redis.call('SET', KEYS[2], tostring(floor), 'PX', ARGV[2])
redis.call('DEL', KEYS[1])
return floor
`)

// TrackingCache stores public tracking views as JSON. Each tracking number
// also carries a version floor so a slow reader cannot overwrite a newer
// invalidation with the view it loaded earlier.
// Key format: sendit:track:<tracking_number> and sendit:track:<tracking_number>:floor
type TrackingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTrackingCache wraps client. A non-positive ttl uses the default.
func NewTrackingCache(client *redis.Client, ttl time.Duration) *TrackingCache {
	if ttl <= 0 {
		ttl = defaultTrackingTTL
	}
	return &TrackingCache{client: client, ttl: ttl}
}

func (c *TrackingCache) Get(ctx context.Context, trackingNumber string) (*ports.TrackingView, bool, error) {
	raw, err := c.client.Get(ctx, c.key(trackingNumber)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("tracking cache get: %w", err)
	}

	var view ports.TrackingView
	if err := json.Unmarshal(raw, &view); err != nil {
		// A corrupt entry is treated as a miss and overwritten on the next Set.
		return nil, false, nil
	}
	return &view, true, nil
}

func (c *TrackingCache) Set(ctx context.Context, view *ports.TrackingView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("tracking cache encode: %w", err)
	}
	keys := []string{c.key(view.TrackingNumber), c.floorKey(view.TrackingNumber)}
	if err := setAboveFloor.Run(ctx, c.client, keys, view.Version, raw, c.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("tracking cache set: %w", err)
	}
	return nil
}

func (c *TrackingCache) Invalidate(ctx context.Context, trackingNumber string, minVersion int64) error {
	keys := []string{c.key(trackingNumber), c.floorKey(trackingNumber)}
	if err := raiseFloor.Run(ctx, c.client, keys, minVersion, c.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("tracking cache invalidate: %w", err)
	}
	return nil
}

func (c *TrackingCache) key(trackingNumber string) string {
	return key("track", trackingNumber)
}

func (c *TrackingCache) floorKey(trackingNumber string) string {
	return key("track", trackingNumber, "floor")
}
