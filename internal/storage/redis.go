package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kovalyov-valentin/news-post-drafter/internal/model"
)

const (
	quotaKeyPrefix    = "quota:"
	dispatchKeyPrefix = "dispatch:"
)

// GET, сравнение и INCR выполняются одним скриптом, поэтому резерв атомарен между процессами.
// -1 означает отказ, ключ при этом не трогаем
var reserveScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
	return -1
end
local n = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return n
`)

// Хранилище журнала и счетчиков в redis. Старые счетчики удаляет сам redis по TTL
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func OpenRedis(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisStore(client), nil
}

func (s *RedisStore) HasBeenDispatched(ctx context.Context, itemID string) (bool, error) {
	n, err := s.client.Exists(ctx, dispatchKeyPrefix+itemID).Result()
	if err != nil {
		return false, fmt.Errorf("check dispatch %s: %w", itemID, err)
	}

	return n > 0, nil
}

func (s *RedisStore) RecordDispatch(ctx context.Context, record model.DispatchRecord) (bool, error) {
	value := record.DayKey + " " + record.DispatchedAt.UTC().Format(time.RFC3339)

	ok, err := s.client.SetNX(ctx, dispatchKeyPrefix+record.ItemID, value, 0).Result()
	if err != nil {
		return false, fmt.Errorf("record dispatch %s: %w", record.ItemID, err)
	}

	return ok, nil
}

func (s *RedisStore) ReserveSlot(ctx context.Context, dayKey string, limit int) (Reservation, error) {
	if limit <= 0 {
		return Reservation{}, nil
	}

	n, err := reserveScript.Run(
		ctx,
		s.client,
		[]string{quotaKeyPrefix + dayKey},
		limit,
		int64(CounterTTL/time.Second),
	).Int64()
	if err != nil {
		return Reservation{}, fmt.Errorf("reserve slot %s: %w", dayKey, err)
	}

	if n < 0 {
		return Reservation{}, nil
	}

	return Reservation{Granted: true, Count: int(n)}, nil
}

func (s *RedisStore) DailyCount(ctx context.Context, dayKey string) (int, error) {
	raw, err := s.client.Get(ctx, quotaKeyPrefix+dayKey).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("daily count %s: %w", dayKey, err)
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("daily count %s: bad value %q: %w", dayKey, raw, err)
	}

	return n, nil
}

// PurgeExpired ничего не делает: счетчики истекают по TTL
func (s *RedisStore) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
