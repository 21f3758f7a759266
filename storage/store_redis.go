package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// casScript compares the current value and sets the new one atomically
// ARGV: expectAbsent("1"/"0"), expected, value, ttlMillis
var casScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if ARGV[1] == '1' then
  if cur then return 0 end
else
  if (not cur) or cur ~= ARGV[2] then return 0 end
end
local ttl = tonumber(ARGV[4])
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[3], 'PX', ttl)
else
  redis.call('SET', KEYS[1], ARGV[3])
end
return 1
`)

// RedisStore remote shared store, safe across processes
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a Redis store; Close does not close the shared client
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get", key, err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

func (s *RedisStore) CompareAndSet(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (bool, error) {
	expectAbsent := "0"
	if expected == nil {
		expectAbsent = "1"
	}

	res, err := casScript.Run(ctx, s.client, []string{key},
		expectAbsent, expected, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, unavailable("cas", key, err)
	}
	return res == 1, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	// 逐个删除, cluster 模式下多 key DEL 可能跨 slot
	for _, k := range keys {
		if err := s.client.Del(ctx, k).Err(); err != nil {
			return unavailable("delete", k, err)
		}
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", "", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return nil
}
