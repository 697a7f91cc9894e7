// Package revoke keeps a deny-list of login token ids until they expire.
package revoke

import (
	"context"
	"time"

	"github.com/eventdesk/apiserver/config"
	"github.com/redis/go-redis/v9"
)

// Store records revoked token ids. An id stays revoked until the token it
// names would have expired anyway.
type Store interface {
	Revoke(ctx context.Context, id string, until time.Time) error
	Revoked(ctx context.Context, id string) (bool, error)
}

// New returns a Redis store when cfg.RedisAddr is set, so every server
// instance sees a logout, and an in-process store otherwise.
func New(ctx context.Context, cfg config.ThrottleConfig) (Store, func() error, error) {
	if cfg.RedisAddr == "" {
		return NewMemory(), func() error { return nil }, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return NewRedis(rdb), rdb.Close, nil
}
