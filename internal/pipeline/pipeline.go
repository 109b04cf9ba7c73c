// Package pipeline проводит один запуск: лента, фильтр, дедупликация, лимит, черновик, отправка.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kovalyov-valentin/news-post-drafter/internal/draft"
	"github.com/kovalyov-valentin/news-post-drafter/internal/fetcher"
	"github.com/kovalyov-valentin/news-post-drafter/internal/filter"
	"github.com/kovalyov-valentin/news-post-drafter/internal/logger"
	"github.com/kovalyov-valentin/news-post-drafter/internal/metrics"
	"github.com/kovalyov-valentin/news-post-drafter/internal/model"
	"github.com/kovalyov-valentin/news-post-drafter/internal/storage"
)

// Причины досрочного завершения запуска
const (
	ReasonFeedUnavailable = "feed-unavailable"
	ReasonTimeout         = "timeout"
)

const dayKeyLayout = "2006-01-02"

type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateFiltering   State = "filtering"
	StateDispatching State = "dispatching"
	StateDone        State = "done"
	StateAborted     State = "aborted"
)

type Fetcher interface {
	Fetch(ctx context.Context) (fetcher.Result, error)
}

type Store interface {
	storage.Ledger
	storage.Quota
}

type Enricher interface {
	Enrich(ctx context.Context, item model.FeedItem) model.FeedItem
}

type Dispatcher interface {
	Dispatch(ctx context.Context, d model.Draft) error
}

type Retrier interface {
	Do(ctx context.Context, name string, operation func(ctx context.Context) error) error
}

type Config struct {
	Keywords   []string
	DailyLimit int
	// Часовой пояс, в котором считается ключ дня
	Location *time.Location
	// Общий бюджет времени на запуск
	RunTimeout time.Duration
	// Бюджет на одно обращение к хранилищу
	StoreTimeout time.Duration
}

type Orchestrator struct {
	fetcher    Fetcher
	store      Store
	enricher   Enricher
	dispatcher Dispatcher
	// Повторы для идемпотентных обращений к хранилищу. Резерв слота не повторяется
	storeRetrier Retrier
	config       Config
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
}

func New(
	fetcher Fetcher,
	store Store,
	enricher Enricher,
	dispatcher Dispatcher,
	storeRetrier Retrier,
	config Config,
	logger *slog.Logger,
) *Orchestrator {
	if config.Location == nil {
		config.Location = time.UTC
	}

	return &Orchestrator{
		fetcher:      fetcher,
		store:        store,
		enricher:     enricher,
		dispatcher:   dispatcher,
		storeRetrier: storeRetrier,
		config:       config,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// DayKey возвращает ключ календарного дня в настроенном часовом поясе
func (o *Orchestrator) DayKey() string {
	return o.now().In(o.config.Location).Format(dayKeyLayout)
}

// DailyCount отдает сколько черновиков уже ушло сегодня
func (o *Orchestrator) DailyCount(ctx context.Context) (string, int, error) {
	dayKey := o.DayKey()

	var count int
	err := o.storeRetrier.Do(ctx, "daily count", func(ctx context.Context) error {
		ctx, cancel := o.storeContext(ctx)
		defer cancel()

		var err error
		count, err = o.store.DailyCount(ctx, dayKey)
		return err
	})

	return dayKey, count, err
}

// Run выполняет один запуск. Ошибки отдельных новостей попадают в сводку и не прерывают запуск
func (o *Orchestrator) Run(ctx context.Context) model.RunSummary {
	started := o.now()

	if o.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.RunTimeout)
		defer cancel()
	}

	r := &run{
		Orchestrator: o,
		summary: model.RunSummary{
			RunID:  o.newID(),
			DayKey: o.DayKey(),
		},
	}
	r.logger = o.logger.With("run_id", r.summary.RunID, "day_key", r.summary.DayKey)

	r.execute(ctx)

	if !r.summary.Aborted {
		o.purgeExpired(ctx, r.logger)
	}
	metrics.RecordRun(r.summary, o.now().Sub(started))

	r.logger.Info("run finished",
		"state", r.state,
		"items_seen", r.summary.ItemsSeen,
		"items_filtered", r.summary.ItemsFiltered,
		"items_dispatched", r.summary.ItemsDispatched,
		"items_failed", r.summary.ItemsFailed,
		"items_unprocessed", r.summary.ItemsUnprocessed,
		"quota_exhausted", r.summary.QuotaExhausted,
		"aborted", r.summary.Aborted,
		"reason", r.summary.Reason,
	)

	return r.summary
}

// Состояние одного запуска
type run struct {
	*Orchestrator
	state   State
	summary model.RunSummary
	logger  *slog.Logger
}

func (r *run) transition(s State) {
	r.state = s
	r.logger.Debug("run state changed", "state", s)
}

func (r *run) abort(reason string) {
	r.summary.Aborted = true
	r.summary.Reason = reason
	r.transition(StateAborted)
}

func (r *run) execute(ctx context.Context) {
	r.transition(StateIdle)

	// Если лимит на сегодня уже выбран, в ленту даже не ходим
	_, count, err := r.DailyCount(ctx)
	switch {
	case err != nil:
		// Решение все равно примет атомарный резерв, поэтому продолжаем
		r.logger.Warn("failed to read daily count", "error", err)
	case count >= r.config.DailyLimit:
		r.logger.Info("daily limit already reached", "count", count, "limit", r.config.DailyLimit)
		r.summary.QuotaExhausted = true
		r.transition(StateDone)
		return
	default:
		r.logger.Info("daily quota available", "count", count, "limit", r.config.DailyLimit)
	}

	r.transition(StateFetching)
	res, err := r.fetcher.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			r.logger.Error("run timed out while fetching feed", "error", err)
			r.abort(ReasonTimeout)
			return
		}

		r.logger.Error("feed unavailable, nothing to do", "error", err)
		r.abort(ReasonFeedUnavailable)
		return
	}

	r.summary.ItemsRejected = len(res.Rejected)
	r.summary.ItemsSeen = len(res.Items) + len(res.Rejected)

	r.transition(StateFiltering)
	items := filter.ByKeywords(res.Items, r.config.Keywords)
	r.summary.ItemsFiltered = len(items)

	r.transition(StateDispatching)
	for i, item := range items {
		if ctx.Err() != nil {
			r.logger.Error("run timed out", "processed", i, "remaining", len(items)-i)
			r.summary.ItemsUnprocessed += len(items) - i
			r.abort(ReasonTimeout)
			return
		}

		result := r.processItem(ctx, item)
		r.summary.Results = append(r.summary.Results, result)

		switch result.Outcome {
		case model.OutcomeDispatched:
			r.summary.ItemsDispatched++
		case model.OutcomeDuplicate:
			r.summary.ItemsSkippedDuplicate++
		case model.OutcomeFailed:
			r.summary.ItemsFailed++
		case model.OutcomeQuotaDenied:
			// Первый отказ завершает запуск, остальные новости дождутся следующего дня
			r.summary.QuotaExhausted = true
			r.summary.ItemsUnprocessed += len(items) - i
			r.logger.Info("daily limit reached", "unprocessed", len(items)-i)
			r.transition(StateDone)
			return
		}
	}

	// Время могло выйти на последней новости
	if ctx.Err() != nil {
		r.logger.Error("run timed out", "processed", len(items), "remaining", 0)
		r.abort(ReasonTimeout)
		return
	}

	r.transition(StateDone)
}

func (r *run) processItem(ctx context.Context, item model.FeedItem) model.ItemResult {
	result := model.ItemResult{ItemID: item.ID, Title: item.Title}
	log := r.logger.With("item_id", item.ID)

	fail := func(stage string, err error) model.ItemResult {
		log.Error("item failed", "stage", stage, "error", err)
		result.Outcome = model.OutcomeFailed
		result.Error = fmt.Sprintf("%s: %v", stage, err)
		return result
	}

	var seen bool
	err := r.storeRetrier.Do(ctx, "dedup check", func(ctx context.Context) error {
		ctx, cancel := r.storeContext(ctx)
		defer cancel()

		var err error
		seen, err = r.store.HasBeenDispatched(ctx, item.ID)
		return err
	})
	if err != nil {
		return fail("dedup check", err)
	}
	if seen {
		log.Debug("item already dispatched")
		result.Outcome = model.OutcomeDuplicate
		return result
	}

	// Обогащение и сборка до резерва: между резервом и отправкой нет других сетевых вызовов
	if r.enricher != nil {
		item = r.enricher.Enrich(ctx, item)
	}
	post := draft.Compose(item)

	// Резерв не повторяем: при потерянном ответе слот мог уже списаться
	storeCtx, cancel := r.storeContext(ctx)
	reservation, err := r.store.ReserveSlot(storeCtx, r.summary.DayKey, r.config.DailyLimit)
	cancel()
	if err != nil {
		return fail("reserve slot", err)
	}
	if !reservation.Granted {
		result.Outcome = model.OutcomeQuotaDenied
		return result
	}
	log.Debug("slot reserved", "count", reservation.Count)

	// Слот не возвращается, даже если отправка не удалась
	if err := r.dispatcher.Dispatch(ctx, post); err != nil {
		return fail("dispatch", err)
	}
	result.Outcome = model.OutcomeDispatched

	// Черновик уже ушел, поэтому фиксируем отправку даже если время запуска вышло
	record := model.DispatchRecord{
		ItemID:       item.ID,
		DispatchedAt: r.now().UTC(),
		DayKey:       r.summary.DayKey,
	}

	var recorded bool
	err = r.storeRetrier.Do(context.WithoutCancel(ctx), "ledger commit", func(ctx context.Context) error {
		ctx, cancel := r.storeContext(ctx)
		defer cancel()

		var err error
		recorded, err = r.store.RecordDispatch(ctx, record)
		return err
	})
	switch {
	case err != nil:
		logger.Critical(ctx, log, "draft dispatched but not recorded, may be sent again", "error", err)
		result.Error = fmt.Sprintf("ledger commit: %v", err)
	case !recorded:
		log.Warn("item was recorded by a concurrent run")
	}

	return result
}

func (o *Orchestrator) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.config.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, o.config.StoreTimeout)
}

// Чистка старых счетчиков. Не влияет на итог запуска
func (o *Orchestrator) purgeExpired(ctx context.Context, log *slog.Logger) {
	ctx, cancel := o.storeContext(context.WithoutCancel(ctx))
	defer cancel()

	n, err := o.store.PurgeExpired(ctx, o.now())
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("failed to purge expired counters", "error", err)
		return
	}
	if n > 0 {
		log.Info("expired counters purged", "count", n)
	}
}
