package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kovalyov-valentin/news-post-drafter/internal/botkit"
)

type Trigger interface {
	RunNow()
}

// Внеплановый запуск пайплайна. Если запуск уже идет, новый будет пропущен
func ViewCmdRun(trigger Trigger) botkit.ViewFunc {
	return func(ctx context.Context, bot botkit.API, update tgbotapi.Update) error {
		trigger.RunNow()

		if _, err := bot.Send(tgbotapi.NewMessage(update.Message.Chat.ID, "Запуск начат, итог будет в логах")); err != nil {
			return err
		}
		return nil
	}
}
