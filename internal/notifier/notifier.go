package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kovalyov-valentin/news-post-drafter/internal/logger"
	"github.com/kovalyov-valentin/news-post-drafter/internal/model"
)

// ErrDispatchExhausted означает, что черновик так и не ушел в канал. Запись в журнал отправок не делается
var ErrDispatchExhausted = errors.New("dispatch exhausted")

// Канал доставки черновиков
type Publisher interface {
	Name() string
	Publish(ctx context.Context, msg Message) error
}

type Retrier interface {
	Do(ctx context.Context, name string, operation func(ctx context.Context) error) error
}

type Dispatcher struct {
	// Куда отправляем
	publisher Publisher
	// Повторы временных ошибок канала
	retrier Retrier
	logger  *slog.Logger
	// Ограничение на одну попытку отправки
	timeout time.Duration
	now     func() time.Time
	newID   func() string
}

func New(publisher Publisher, retrier Retrier, logger *slog.Logger, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		retrier:   retrier,
		logger:    logger,
		timeout:   timeout,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Dispatch отправляет черновик на ревью. id сообщения один на все попытки,
// чтобы получатель мог отбросить дубли.
func (d *Dispatcher) Dispatch(ctx context.Context, draft model.Draft) error {
	msg := FormatMessage(draft, d.newID(), d.now())

	err := d.retrier.Do(ctx, "dispatch draft", func(ctx context.Context) error {
		if d.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}

		return d.publisher.Publish(ctx, msg)
	})
	if err == nil {
		d.logger.Info("draft dispatched",
			"item_id", draft.SourceItemID,
			"channel", d.publisher.Name(),
			"message_id", msg.Metadata["message_id"],
		)
		return nil
	}

	// Запуск остановлен снаружи, это не отказ канала
	if ctx.Err() != nil {
		return fmt.Errorf("dispatch %s: %w", draft.SourceItemID, err)
	}

	logger.Critical(ctx, d.logger, "draft dispatch failed, requires manual attention",
		"item_id", draft.SourceItemID,
		"title", draft.SourceTitle,
		"channel", d.publisher.Name(),
		"error", err,
	)

	return fmt.Errorf("%w: %s: %w", ErrDispatchExhausted, draft.SourceItemID, err)
}
