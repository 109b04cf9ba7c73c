package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Запускает пайплайн по расписанию. Пересекающиеся запуски внутри процесса пропускаются,
// между процессами их разруливают хранилища.
type Scheduler struct {
	cron    *cron.Cron
	entryID cron.EntryID
	job     func(ctx context.Context)
	// Контекст, который получает каждый запуск. Не меняется после New
	ctx    context.Context
	logger *slog.Logger

	// Внеплановые запуски из RunNow, их Run тоже дожидается
	mu      sync.Mutex
	stopped bool
	manual  sync.WaitGroup
}

// New проверяет расписание (стандартный формат из 5 полей или @every/@daily).
// Отмена ctx останавливает планировщик и отменяет идущие запуски
func New(ctx context.Context, spec string, loc *time.Location, job func(ctx context.Context), logger *slog.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger}

	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		job:    job,
		ctx:    ctx,
		logger: logger,
	}

	id, err := s.cron.AddFunc(spec, func() { s.job(s.ctx) })
	if err != nil {
		return nil, fmt.Errorf("bad schedule %q: %w", spec, err)
	}
	s.entryID = id

	return s, nil
}

// Run работает до отмены контекста из New и дожидается завершения текущих запусков
func (s *Scheduler) Run() error {
	s.cron.Start()
	s.logger.Info("scheduler started", "next_run", s.Next())

	<-s.ctx.Done()

	s.logger.Info("scheduler stopping")
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.manual.Wait()

	return nil
}

// RunNow запускает задачу вне расписания. Если задача уже идет или планировщик
// останавливается, запуск пропускается
func (s *Scheduler) RunNow() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.ctx.Err() != nil {
		s.logger.Info("scheduler is stopping, manual run skipped")
		return
	}

	s.manual.Add(1)
	go func() {
		defer s.manual.Done()
		s.cron.Entry(s.entryID).WrappedJob.Run()
	}()
}

func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Адаптер логгера cron к slog
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
