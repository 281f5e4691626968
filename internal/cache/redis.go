package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// versionTTL bounds how long a key's generation is remembered after its last Delete.
// An expired generation reads as zero, which no in-flight reader can still hold unless
// its load took longer than this.
const versionTTL = 24 * time.Hour

// setIfVersion writes KEYS[1] only while the generation in KEYS[2] equals ARGV[1].
// ARGV[3] is the TTL in milliseconds; zero means no expiry.
var setIfVersion = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
  return 0
end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// Redis is a Cache shared by every API process.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ Cache = (*Redis)(nil)

// NewRedis connects to url and verifies the connection with a PING.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisWithClient(client), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "archery:"}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) versionKey(key string) string { return r.prefix + "gen:" + key }

// Delete removes keys and bumps their generations in one MULTI/EXEC, so no reader sees
// the value gone while the old generation still stands.
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix + k
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, full...)
		for _, k := range keys {
			pipe.Incr(ctx, r.versionKey(k))
			pipe.Expire(ctx, r.versionKey(k), versionTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *Redis) Version(ctx context.Context, key string) (uint64, error) {
	v, err := r.client.Get(ctx, r.versionKey(key)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation %s: %w", key, err)
	}
	return v, nil
}

func (r *Redis) SetIfVersion(ctx context.Context, key string, version uint64, value []byte, ttl time.Duration) (bool, error) {
	n, err := setIfVersion.Run(ctx, r.client,
		[]string{r.prefix + key, r.versionKey(key)},
		strconv.FormatUint(version, 10), value, ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis set %s: %w", key, err)
	}
	return n == 1, nil
}

// Health checks the connection.
func (r *Redis) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
