package botkit

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Часть BotAPI, которой пользуются бот и view. Позволяет подменить телеграм в тестах
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetChatAdministrators(config tgbotapi.ChatAdministratorsConfig) ([]tgbotapi.ChatMember, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	// Клиент апи телеграма
	api API
	// Мапа команда -> view
	cmdViews map[string]ViewFunc
	logger   *slog.Logger
}

// Update здесь это любой эвент, который приходит от телеграма при взаимодействии пользователя с ботом.
// ViewFunc реагирует на определенную команду
type ViewFunc func(ctx context.Context, bot API, update tgbotapi.Update) error

func New(api API, logger *slog.Logger) *Bot {
	return &Bot{
		api:    api,
		logger: logger,
	}
}

// Метод для регистрации View для команды
func (b *Bot) RegisterCmdView(cmd string, view ViewFunc) {
	if b.cmdViews == nil {
		b.cmdViews = make(map[string]ViewFunc)
	}

	b.cmdViews[cmd] = view
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			updateCtx, updateCancel := context.WithTimeout(ctx, 5*time.Second)
			b.handleUpdate(updateCtx, update)
			updateCancel()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Метод, который обрабатывает update и роутит команды на соответствующие view
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	// В каких то view может произойти паника, ее нужно перехватить
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("panic recovered", "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
		}
	}()

	if update.Message == nil || !update.Message.IsCommand() {
		return
	}

	// Сообщение может содержать не только команду, поэтому вытаскиваем ее
	cmd := update.Message.Command()

	view, ok := b.cmdViews[cmd]
	if !ok {
		return
	}

	if err := view(ctx, b.api, update); err != nil {
		b.logger.Error("failed to handle update", "command", cmd, "error", err)

		if _, err := b.api.Send(
			tgbotapi.NewMessage(update.Message.Chat.ID, "internal error"),
		); err != nil {
			b.logger.Error("failed to send message", "error", err)
		}
	}
}
