// Package redis holds the Redis-backed tracking cache and notification dedup.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dialTimeout = 5 * time.Second
	// keyspace prefixes every key this service writes, so a shared instance
	// can be flushed per service.
	keyspace = "sendit"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	// PoolSize caps open connections. Zero keeps the go-redis default.
	PoolSize int
	Timeout  time.Duration
}

// Connect opens a client and pings it. The client is closed again when the
// ping fails.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	opTimeout := cfg.Timeout
	if opTimeout <= 0 {
		opTimeout = dialTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  opTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
	})

	if err := Ping(client)(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connect %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Ping returns a readiness check for client bounded by dialTimeout.
func Ping(client *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		return client.Ping(ctx).Err()
	}
}

// key joins parts under the service keyspace: sendit:<part>:<part>...
func key(parts ...string) string {
	return keyspace + ":" + strings.Join(parts, ":")
}
