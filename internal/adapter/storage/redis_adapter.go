package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-deduct/internal/core/domain"
)

var decrementStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current or current == '' then
	return 0
end

local n = tonumber(current)
if not n then
	return -1
end
if n >= quantity then
	redis.call('DECRBY', key, quantity)
	return 1
end

return 0
`)

var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

var renewLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readCount(ctx context.Context, g stringGetter, key string) (int64, bool, error) {
	raw, err := g.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("get "+key, err)
	}
	if raw == "" {
		return 0, false, nil
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s=%q", domain.ErrMalformedCounter, key, raw)
	}
	return n, true, nil
}

func (r *RedisAdapter) GetCount(ctx context.Context, key string) (int64, bool, error) {
	return readCount(ctx, r.client, key)
}

func (r *RedisAdapter) SetCount(ctx context.Context, key string, count int64) error {
	if err := r.client.Set(ctx, key, strconv.FormatInt(count, 10), 0).Err(); err != nil {
		return unavailable("set "+key, err)
	}
	return nil
}

func (r *RedisAdapter) TryAcquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, unavailable("acquire "+key, err)
	}
	return ok, nil
}

func (r *RedisAdapter) Renew(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	n, err := renewLockScript.Run(ctx, r.client, []string{key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, unavailable("renew "+key, err)
	}
	return n == 1, nil
}

func (r *RedisAdapter) Release(ctx context.Context, key, token string) (bool, error) {
	n, err := releaseLockScript.Run(ctx, r.client, []string{key}, token).Int64()
	if err != nil {
		return false, unavailable("release "+key, err)
	}
	return n == 1, nil
}

func (r *RedisAdapter) DecrementWatched(ctx context.Context, key string) (bool, error) {
	decremented := false

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, ok, err := readCount(ctx, tx, key)
		if err != nil {
			return err
		}
		if !ok || current <= 0 {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, strconv.FormatInt(current-1, 10), 0)
			return nil
		})
		if err != nil {
			return err
		}
		decremented = true
		return nil
	}, key)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		return false, domain.ErrConflict
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrMalformedCounter):
		return false, err
	case err != nil:
		return false, unavailable("watch "+key, err)
	}
	return decremented, nil
}

func (r *RedisAdapter) DecrementStock(ctx context.Context, key string, quantity int) (bool, error) {
	result, err := decrementStockScript.Run(ctx, r.client, []string{key}, quantity).Int()
	if err != nil {
		return false, unavailable("decrement "+key, err)
	}
	if result == -1 {
		return false, fmt.Errorf("%w: %s is not an integer", domain.ErrMalformedCounter, key)
	}

	return result == 1, nil
}

// SetStock seeds the counter.
func (r *RedisAdapter) SetStock(ctx context.Context, key string, quantity int64) error {
	return r.SetCount(ctx, key, quantity)
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping redis", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
