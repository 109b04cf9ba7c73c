// Package retry оборачивает внешние вызовы в повторы с экспоненциальной задержкой.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrExhausted возвращается, когда все попытки исчерпаны на временной ошибке
var ErrExhausted = errors.New("retry attempts exhausted")

// Classifier решает, имеет ли смысл повторять вызов
type Classifier func(error) bool

// Always считает любую ошибку временной
func Always(error) bool { return true }

type Config struct {
	MaxAttempts int
	// Задержка перед второй попыткой, дальше удваивается
	BaseDelay time.Duration
}

type Retrier struct {
	config      Config
	isRetryable Classifier
	logger      *slog.Logger
}

func New(config Config, classifier Classifier, logger *slog.Logger) *Retrier {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if classifier == nil {
		classifier = Always
	}

	return &Retrier{
		config:      config,
		isRetryable: classifier,
		logger:      logger,
	}
}

// Do выполняет operation до успеха, постоянной ошибки или исчерпания попыток.
// Задержка перед попыткой n (начиная с 0) равна BaseDelay * 2^(n-1).
// Если попытки кончились на временной ошибке, результат оборачивает ErrExhausted.
func (r *Retrier) Do(ctx context.Context, name string, operation func(ctx context.Context) error) error {
	attempt := 0
	permanent := false

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++

		err := operation(ctx)
		if err == nil {
			return struct{}{}, nil
		}

		if !r.isRetryable(err) {
			permanent = true
			return struct{}{}, backoff.Permanent(err)
		}

		r.logger.Warn("operation attempt failed",
			"operation", name,
			"attempt", attempt,
			"max_attempts", r.config.MaxAttempts,
			"error", err,
		)
		return struct{}{}, err
	},
		backoff.WithBackOff(r.backOff()),
		backoff.WithMaxTries(uint(r.config.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err == nil {
		if attempt > 1 {
			r.logger.Info("operation succeeded after retry", "operation", name, "attempt", attempt)
		}
		return nil
	}

	var perr *backoff.PermanentError
	if errors.As(err, &perr) {
		err = perr.Unwrap()
	}

	if permanent || ctx.Err() != nil {
		return err
	}

	return fmt.Errorf("%s: %w after %d attempts: %w", name, ErrExhausted, attempt, err)
}

func (r *Retrier) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.config.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = r.config.BaseDelay << r.config.MaxAttempts

	return b
}
