package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/kovalyov-valentin/news-post-drafter/internal/config"
	"github.com/kovalyov-valentin/news-post-drafter/internal/model"
)

// Сколько живет дневной счетчик после последнего изменения
const CounterTTL = 7 * 24 * time.Hour

// Результат попытки занять слот в дневном лимите
type Reservation struct {
	Granted bool
	// Значение счетчика после успешного резерва, при отказе - 0
	Count int
}

// Журнал отправок. Запись вставляется только если ее еще нет
type Ledger interface {
	HasBeenDispatched(ctx context.Context, itemID string) (bool, error)
	// Возвращает false, если запись для этого id уже есть: отправлять повторно нельзя
	RecordDispatch(ctx context.Context, record model.DispatchRecord) (bool, error)
}

// Дневной лимит. ReserveSlot - атомарный compare-and-increment, при отказе состояние не меняется
type Quota interface {
	ReserveSlot(ctx context.Context, dayKey string, limit int) (Reservation, error)
	DailyCount(ctx context.Context, dayKey string) (int, error)
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

type Store interface {
	Ledger
	Quota
	Close() error
}

// Open выбирает хранилище по схеме DSN
func Open(ctx context.Context, dsn string) (Store, error) {
	kind, conn, err := config.ParseStoreDSN(dsn)
	if err != nil {
		return nil, err
	}

	switch kind {
	case config.StorePostgres:
		return OpenPostgres(ctx, conn)
	case config.StoreSQLite:
		return OpenSQLite(ctx, conn)
	case config.StoreRedis:
		return OpenRedis(ctx, conn)
	}

	return nil, fmt.Errorf("%w: %q", config.ErrInvalidStoreDSN, dsn)
}
