package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"

	"github.com/kovalyov-valentin/news-post-drafter/internal/bot"
	"github.com/kovalyov-valentin/news-post-drafter/internal/bot/middleware"
	"github.com/kovalyov-valentin/news-post-drafter/internal/botkit"
	"github.com/kovalyov-valentin/news-post-drafter/internal/config"
	"github.com/kovalyov-valentin/news-post-drafter/internal/enrich"
	"github.com/kovalyov-valentin/news-post-drafter/internal/fetcher"
	"github.com/kovalyov-valentin/news-post-drafter/internal/logger"
	"github.com/kovalyov-valentin/news-post-drafter/internal/metrics"
	"github.com/kovalyov-valentin/news-post-drafter/internal/notifier"
	"github.com/kovalyov-valentin/news-post-drafter/internal/pipeline"
	"github.com/kovalyov-valentin/news-post-drafter/internal/retry"
	"github.com/kovalyov-valentin/news-post-drafter/internal/scheduler"
	"github.com/kovalyov-valentin/news-post-drafter/internal/source"
	"github.com/kovalyov-valentin/news-post-drafter/internal/storage"
	"github.com/kovalyov-valentin/news-post-drafter/internal/summary"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		// Уровень из конфига неизвестен, пишем с уровнем по умолчанию
		logger.Critical(context.Background(), logger.New("info", os.Stderr), "failed to load configuration", "error", err)
		os.Exit(2)
	}

	log := logger.New(cfg.LogLevel, os.Stderr)
	slog.SetDefault(log)

	// Ошибка конфигурации - ничего не трогаем и выходим
	if err := cfg.Validate(); err != nil {
		logger.Critical(context.Background(), log, "invalid configuration", "error", err)
		os.Exit(2)
	}

	//Graceful Shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		logger.Critical(ctx, log, "drafter failed", "error", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	store, err := storage.Open(ctx, cfg.StoreDSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	// Клиент телеграма нужен и для канала доставки, и для бота оператора
	var botAPI *tgbotapi.BotAPI
	if cfg.TelegramBotToken != "" {
		botAPI, err = tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			return fmt.Errorf("create bot: %w", err)
		}
	}

	publisher, closePublisher, err := newPublisher(cfg, botAPI)
	if err != nil {
		return err
	}
	defer closePublisher()

	retryConfig := retry.Config{MaxAttempts: cfg.RetryMaxAttempts, BaseDelay: cfg.RetryBaseDelay}

	// Инициализируем зависимости
	var (
		feedFetcher = fetcher.NewFetcher(
			source.NewRSSSource(cfg.FeedURL, cfg.FetchTimeout),
			retry.New(retryConfig, source.IsTransient, log),
			log,
		)
		enricher = enrich.New(
			summary.NewOpenAISummarizer(cfg.OpenAIKey, cfg.OpenAIPrompt, log),
			cfg.EnrichEmptySummaries,
			cfg.FetchTimeout,
			log,
		)
		dispatcher = notifier.New(
			publisher,
			retry.New(retryConfig, notifier.IsTransient, log),
			log,
			cfg.PublishTimeout,
		)
		orchestrator = pipeline.New(
			feedFetcher,
			store,
			enricher,
			dispatcher,
			retry.New(retryConfig, retry.Always, log),
			pipeline.Config{
				Keywords:     cfg.KeywordList(),
				DailyLimit:   cfg.DailyLimit,
				Location:     loc,
				RunTimeout:   cfg.RunTimeout,
				StoreTimeout: cfg.StoreTimeout,
			},
			log,
		)
	)

	// Без расписания - один запуск, сводка в stdout
	if cfg.Schedule == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(orchestrator.Run(ctx))
	}

	sched, err := scheduler.New(ctx, cfg.Schedule, loc, func(ctx context.Context) { orchestrator.Run(ctx) }, log)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		go func(ctx context.Context) {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, log); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}(ctx)
	}

	// Бот оператора
	if botAPI != nil && cfg.TelegramAdminChatID != 0 {
		operatorBot := botkit.New(botAPI, log)
		operatorBot.RegisterCmdView("start", bot.ViewCmdStart())
		operatorBot.RegisterCmdView("quota", bot.ViewCmdQuota(orchestrator, cfg.DailyLimit))
		operatorBot.RegisterCmdView(
			"run",
			middleware.AdminOnly(
				cfg.TelegramAdminChatID,
				bot.ViewCmdRun(sched),
			),
		)

		go func(ctx context.Context) {
			if err := operatorBot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("bot stopped", "error", err)
				return
			}
			log.Info("bot stopped")
		}(ctx)
	}

	return sched.Run()
}

func newPublisher(cfg config.Config, botAPI *tgbotapi.BotAPI) (notifier.Publisher, func(), error) {
	channel, err := cfg.Channel()
	if err != nil {
		return nil, nil, err
	}

	switch channel.Kind {
	case config.ChannelStream:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		return notifier.NewStreamPublisher(client, channel.Target), func() { client.Close() }, nil
	case config.ChannelTelegram:
		chatID, err := channel.ChatID()
		if err != nil {
			return nil, nil, err
		}
		return notifier.NewTelegramPublisher(botAPI, chatID), func() {}, nil
	}

	return nil, nil, fmt.Errorf("%w: %q", config.ErrInvalidDeliveryChannel, cfg.DeliveryChannel)
}
