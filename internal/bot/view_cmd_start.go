package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kovalyov-valentin/news-post-drafter/internal/botkit"
)

const helpText = `Бот готовит черновики постов из новостей AWS.

/quota - сколько черновиков отправлено сегодня
/run - запустить обработку ленты сейчас (только для админов)`

func ViewCmdStart() botkit.ViewFunc {
	return func(ctx context.Context, bot botkit.API, update tgbotapi.Update) error {
		if _, err := bot.Send(tgbotapi.NewMessage(update.Message.Chat.ID, helpText)); err != nil {
			return err
		}
		return nil
	}
}
