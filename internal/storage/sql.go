package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/kovalyov-valentin/news-post-drafter/internal/model"
)

func init() {
	// modernc регистрирует драйвер как "sqlite", sqlx о нем не знает
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Схема одна для postgres и sqlite. Время храним в unix секундах, чтобы сравнение работало одинаково
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS dispatch_records (
		item_id       TEXT PRIMARY KEY,
		dispatched_at BIGINT NOT NULL,
		day_key       TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS daily_counters (
		day_key    TEXT PRIMARY KEY,
		sent_count INTEGER NOT NULL,
		expires_at BIGINT NOT NULL
	)`,
}

const (
	reserveQuery = `INSERT INTO daily_counters (day_key, sent_count, expires_at) VALUES (?, 1, ?)
		ON CONFLICT (day_key) DO UPDATE
		SET sent_count = daily_counters.sent_count + 1, expires_at = excluded.expires_at
		WHERE daily_counters.sent_count < ?
		RETURNING sent_count`
	recordQuery = `INSERT INTO dispatch_records (item_id, dispatched_at, day_key) VALUES (?, ?, ?)
		ON CONFLICT (item_id) DO NOTHING`
)

// Хранилище журнала и счетчиков в postgres или sqlite
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return migrated(ctx, db)
}

// OpenSQLite открывает файл базы. busy_timeout нужен, если с файлом работают несколько процессов
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite", path+sep+"_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Внутри процесса пишем через одно соединение
	db.SetMaxOpenConns(1)

	return migrated(ctx, db)
}

func migrated(ctx context.Context, db *sqlx.DB) (*SQLStore, error) {
	s := NewSQLStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}

func (s *SQLStore) HasBeenDispatched(ctx context.Context, itemID string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM dispatch_records WHERE item_id = ?`), itemID); err != nil {
		return false, fmt.Errorf("check dispatch %s: %w", itemID, err)
	}

	return n > 0, nil
}

func (s *SQLStore) RecordDispatch(ctx context.Context, record model.DispatchRecord) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		s.db.Rebind(recordQuery),
		record.ItemID,
		record.DispatchedAt.Unix(),
		record.DayKey,
	)
	if err != nil {
		return false, fmt.Errorf("record dispatch %s: %w", record.ItemID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record dispatch %s: %w", record.ItemID, err)
	}

	return affected == 1, nil
}

func (s *SQLStore) ReserveSlot(ctx context.Context, dayKey string, limit int) (Reservation, error) {
	if limit <= 0 {
		return Reservation{}, nil
	}

	var count int
	err := s.db.GetContext(
		ctx,
		&count,
		s.db.Rebind(reserveQuery),
		dayKey,
		s.now().Add(CounterTTL).Unix(),
		limit,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Условие WHERE не выполнилось: лимит уже выбран
		return Reservation{}, nil
	case err != nil:
		return Reservation{}, fmt.Errorf("reserve slot %s: %w", dayKey, err)
	}

	return Reservation{Granted: true, Count: count}, nil
}

func (s *SQLStore) DailyCount(ctx context.Context, dayKey string) (int, error) {
	var counter dbCounter
	err := s.db.GetContext(ctx, &counter, s.db.Rebind(`SELECT day_key, sent_count, expires_at FROM daily_counters WHERE day_key = ?`), dayKey)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("daily count %s: %w", dayKey, err)
	}

	return counter.toModel().Count, nil
}

func (s *SQLStore) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM daily_counters WHERE expires_at < ?`), now.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge counters: %w", err)
	}

	return res.RowsAffected()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type dbCounter struct {
	DayKey    string `db:"day_key"`
	Count     int    `db:"sent_count"`
	ExpiresAt int64  `db:"expires_at"`
}

func (c dbCounter) toModel() model.DailyCounter {
	return model.DailyCounter{
		DayKey:    c.DayKey,
		Count:     c.Count,
		ExpiresAt: time.Unix(c.ExpiresAt, 0).UTC(),
	}
}
