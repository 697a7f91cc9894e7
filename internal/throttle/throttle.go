// Package throttle rate limits anonymous endpoints per client.
package throttle

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/eventdesk/apiserver/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter decides whether one more request for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// New returns a Redis fixed-window limiter when cfg.RedisAddr is set and a
// local token bucket limiter otherwise. The returned close func releases the
// Redis connection.
func New(ctx context.Context, cfg config.ThrottleConfig) (Limiter, func() error, error) {
	if cfg.RedisAddr == "" {
		return NewLocal(cfg.RPS, cfg.Burst, 10*time.Minute), func() error { return nil }, nil
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
	return NewRedis(rdb, cfg.Limit, cfg.Window), rdb.Close, nil
}

// Middleware rejects requests with 429 once the client's key is exhausted.
// Keys combine scope with the client IP. Limiter errors fail open.
func Middleware(limiter Limiter, scope string, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "throttle:" + scope + ":" + clientIP(r)
			ok, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logger.Warn("throttle unavailable", zap.String("scope", scope), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "too many requests, please try again later",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
