package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kovalyov-valentin/news-post-drafter/internal/model"
	"github.com/kovalyov-valentin/news-post-drafter/internal/source"
)

// ErrFeedUnavailable означает, что ленту не удалось получить после всех попыток
var ErrFeedUnavailable = errors.New("feed unavailable")

// Источник сырого документа ленты. Реализован у RSS источника
type Source interface {
	Name() string
	Load(ctx context.Context) ([]byte, error)
}

type Retrier interface {
	Do(ctx context.Context, name string, operation func(ctx context.Context) error) error
}

// Структура сборщика: загружает ленту с повторами и нормализует записи
type Fetcher struct {
	source  Source
	retrier Retrier
	logger  *slog.Logger
	now     func() time.Time
}

func NewFetcher(src Source, retrier Retrier, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		source:  src,
		retrier: retrier,
		logger:  logger,
		now:     time.Now,
	}
}

// Результат загрузки ленты
type Result struct {
	Items    []model.FeedItem
	Rejected []source.Rejected
}

// Fetch возвращает новости ленты от самой свежей к самой старой.
// Загрузка и разбор повторяются вместе, после исчерпания попыток возвращается ErrFeedUnavailable.
func (f *Fetcher) Fetch(ctx context.Context) (Result, error) {
	var res Result

	err := f.retrier.Do(ctx, "fetch feed", func(ctx context.Context) error {
		payload, err := f.source.Load(ctx)
		if err != nil {
			return err
		}

		items, rejected, err := source.Normalize(payload, f.now())
		if err != nil {
			return err
		}

		res = Result{Items: items, Rejected: rejected}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrFeedUnavailable, f.source.Name(), err)
	}

	// Битые записи не ломают пачку, но о каждой пишем отдельно
	for _, r := range res.Rejected {
		f.logger.Warn("feed entry rejected",
			"index", r.Index,
			"title", r.Title,
			"reason", r.Reason,
		)
	}

	f.logger.Info("feed fetched",
		"source", f.source.Name(),
		"items", len(res.Items),
		"rejected", len(res.Rejected),
	)

	return res, nil
}
