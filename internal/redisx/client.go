package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrInFlight = errors.New("request with the same idempotency key is in flight")

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Claim sets key only if absent and reports whether this caller owns it.
func Claim(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (bool, error) {
	return rdb.SetNX(ctx, key, "1", ttl).Result()
}

// BeginIdempotent reserves key for a new request. When a previous request
// already finished under the same key its stored response is returned with
// replay=true. A request still in flight yields ErrInFlight.
func BeginIdempotent(ctx context.Context, rdb *redis.Client, key string) (stored string, replay bool, err error) {
	ok, err := rdb.SetNX(ctx, key, pendingMarker, TTLIdempotency).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", false, nil
	}
	v, err := rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, ErrInFlight
		}
		return "", false, err
	}
	if v == pendingMarker {
		return "", false, ErrInFlight
	}
	return v, true, nil
}

// FinishIdempotent stores the response for replays.
func FinishIdempotent(ctx context.Context, rdb *redis.Client, key, response string) error {
	return rdb.Set(ctx, key, response, TTLIdempotency).Err()
}

// AbortIdempotent releases the key so the client can retry after a failure.
func AbortIdempotent(ctx context.Context, rdb *redis.Client, key string) error {
	return rdb.Del(ctx, key).Err()
}
