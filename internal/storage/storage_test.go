package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kovalyov-valentin/news-post-drafter/internal/model"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()

	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client), mr
}

// Общие свойства, которые должны выполняться для любого хранилища
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("absent counter reads zero", func(t *testing.T) {
		s := newStore(t)

		n, err := s.DailyCount(ctx, "2026-01-14")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("reserve up to limit then deny", func(t *testing.T) {
		s := newStore(t)

		for i := 1; i <= 3; i++ {
			r, err := s.ReserveSlot(ctx, "2026-01-14", 3)
			require.NoError(t, err)
			assert.Equal(t, Reservation{Granted: true, Count: i}, r)
		}

		r, err := s.ReserveSlot(ctx, "2026-01-14", 3)
		require.NoError(t, err)
		assert.False(t, r.Granted)

		// Отказ не меняет счетчик
		n, err := s.DailyCount(ctx, "2026-01-14")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		// Другой день считается отдельно
		r, err = s.ReserveSlot(ctx, "2026-01-15", 3)
		require.NoError(t, err)
		assert.Equal(t, Reservation{Granted: true, Count: 1}, r)
	})

	t.Run("non positive limit denies", func(t *testing.T) {
		s := newStore(t)

		r, err := s.ReserveSlot(ctx, "2026-01-14", 0)
		require.NoError(t, err)
		assert.False(t, r.Granted)
	})

	t.Run("concurrent reservations never exceed limit", func(t *testing.T) {
		const (
			limit    = 5
			preset   = 2
			attempts = 20
			dayKey   = "2026-02-01"
		)
		s := newStore(t)

		for i := 0; i < preset; i++ {
			_, err := s.ReserveSlot(ctx, dayKey, limit)
			require.NoError(t, err)
		}

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			granted int
		)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, err := s.ReserveSlot(ctx, dayKey, limit)
				if !assert.NoError(t, err) {
					return
				}
				if r.Granted {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, limit-preset, granted)
		n, err := s.DailyCount(ctx, dayKey)
		require.NoError(t, err)
		assert.Equal(t, limit, n)
	})

	t.Run("dispatch record is inserted once", func(t *testing.T) {
		s := newStore(t)
		rec := model.DispatchRecord{ItemID: "guid-1", DispatchedAt: time.Now(), DayKey: "2026-01-14"}

		seen, err := s.HasBeenDispatched(ctx, rec.ItemID)
		require.NoError(t, err)
		assert.False(t, seen)

		ok, err := s.RecordDispatch(ctx, rec)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.RecordDispatch(ctx, rec)
		require.NoError(t, err)
		assert.False(t, ok)

		seen, err = s.HasBeenDispatched(ctx, rec.ItemID)
		require.NoError(t, err)
		assert.True(t, seen)
	})

	t.Run("concurrent records have one winner", func(t *testing.T) {
		s := newStore(t)

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := s.RecordDispatch(ctx, model.DispatchRecord{
					ItemID:       "guid-race",
					DispatchedAt: time.Now(),
					DayKey:       fmt.Sprintf("2026-01-%02d", i+1),
				})
				if assert.NoError(t, err) && ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
	})
}

func TestSQLStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store { return newSQLiteStore(t) })
}

func TestRedisStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		s, _ := newRedisStore(t)
		return s
	})
}

func TestSQLStorePurgeExpired(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	past := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return past }
	_, err := s.ReserveSlot(ctx, "2026-01-01", 5)
	require.NoError(t, err)

	s.now = time.Now
	_, err = s.ReserveSlot(ctx, "2026-01-20", 5)
	require.NoError(t, err)

	// Через 7 дней и секунду после первого резерва старый счетчик уже истек
	purged, err := s.PurgeExpired(ctx, past.Add(CounterTTL+time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)

	n, err := s.DailyCount(ctx, "2026-01-01")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.DailyCount(ctx, "2026-01-20")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLStoreMigrateIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestRedisStoreCounterExpires(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	_, err := s.ReserveSlot(ctx, "2026-01-14", 5)
	require.NoError(t, err)
	assert.Equal(t, CounterTTL, mr.TTL(quotaKeyPrefix+"2026-01-14"))

	mr.FastForward(CounterTTL + time.Second)

	n, err := s.DailyCount(ctx, "2026-01-14")
	require.NoError(t, err)
	assert.Zero(t, n)

	purged, err := s.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, purged)
}

func TestRedisStoreDeniedReservationKeepsState(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	require.NoError(t, mr.Set(quotaKeyPrefix+"2026-01-14", "5"))

	r, err := s.ReserveSlot(ctx, "2026-01-14", 5)
	require.NoError(t, err)
	assert.False(t, r.Granted)

	got, err := mr.Get(quotaKeyPrefix + "2026-01-14")
	require.NoError(t, err)
	assert.Equal(t, "5", got)
	// TTL не выставляется при отказе
	assert.Zero(t, mr.TTL(quotaKeyPrefix+"2026-01-14"))
}

func TestRedisStoreBadCounterValue(t *testing.T) {
	s, mr := newRedisStore(t)
	require.NoError(t, mr.Set(quotaKeyPrefix+"2026-01-14", "oops"))

	_, err := s.DailyCount(context.Background(), "2026-01-14")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite", func(t *testing.T) {
		s, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "open.db"))
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &SQLStore{}, s)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		s, err := Open(ctx, "redis://"+mr.Addr())
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &RedisStore{}, s)
	})

	t.Run("unknown scheme", func(t *testing.T) {
		_, err := Open(ctx, "mysql://localhost/db")
		assert.Error(t, err)
	})
}
