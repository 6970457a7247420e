package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tenant-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// windowScript faz o read-modify-write da janela em uma única operação no Redis.
//
// KEYS[1] = hash {start, count}; ARGV[1] = now (ms); ARGV[2] = comprimento (ms).
// A chave expira junto com a janela, então o Redis não acumula tenants inativos.
var windowScript = redis.NewScript(`
local start = redis.call('HGET', KEYS[1], 'start')
local now = tonumber(ARGV[1])
local length = tonumber(ARGV[2])
if (not start) or (now - tonumber(start) >= length) then
  redis.call('HSET', KEYS[1], 'start', now, 'count', 1)
  redis.call('PEXPIRE', KEYS[1], length)
  return {now, 1}
end
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {tonumber(start), count}
`)

// RedisWindowStore é o CounterStore compartilhado entre instâncias do gateway.
type RedisWindowStore struct {
	rdb    redis.UniversalClient
	prefix string
}

type RedisWindowOption func(*RedisWindowStore)

func WithWindowPrefix(prefix string) RedisWindowOption {
	return func(s *RedisWindowStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisWindowStore(rdb redis.UniversalClient, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{rdb: rdb, prefix: "ratelimit:window"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Increment implementa domain.CounterStore.
func (s *RedisWindowStore) Increment(ctx context.Context, key domain.Key, now time.Time, length time.Duration) (domain.Window, error) {
	res, err := windowScript.Run(ctx, s.rdb, []string{s.redisKey(key)}, now.UnixMilli(), length.Milliseconds()).Int64Slice()
	if err != nil {
		return domain.Window{}, fmt.Errorf("redis window script: %w", err)
	}
	if len(res) != 2 {
		return domain.Window{}, fmt.Errorf("redis window script: unexpected reply %v", res)
	}
	return domain.Window{Start: time.UnixMilli(res[0]), Count: res[1]}, nil
}

// Peek implementa domain.WindowReader.
func (s *RedisWindowStore) Peek(ctx context.Context, key domain.Key, now time.Time, length time.Duration) (domain.Window, bool, error) {
	vals, err := s.rdb.HMGet(ctx, s.redisKey(key), "start", "count").Result()
	if err != nil {
		return domain.Window{}, false, fmt.Errorf("redis window peek: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return domain.Window{}, false, nil
	}

	start, err := strconv.ParseInt(fmt.Sprint(vals[0]), 10, 64)
	if err != nil {
		return domain.Window{}, false, fmt.Errorf("redis window peek: bad start: %w", err)
	}
	count, err := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64)
	if err != nil {
		return domain.Window{}, false, fmt.Errorf("redis window peek: bad count: %w", err)
	}

	w := domain.Window{Start: time.UnixMilli(start), Count: count}
	if w.Expired(now, length) {
		return domain.Window{}, false, nil
	}
	return w, true, nil
}

func (s *RedisWindowStore) redisKey(key domain.Key) string {
	return s.prefix + ":" + string(key)
}
