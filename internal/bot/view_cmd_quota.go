package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kovalyov-valentin/news-post-drafter/internal/botkit"
	"github.com/kovalyov-valentin/news-post-drafter/internal/botkit/markup"
)

type QuotaReader interface {
	DailyCount(ctx context.Context) (string, int, error)
}

// Показывает, сколько черновиков уже ушло сегодня
func ViewCmdQuota(reader QuotaReader, limit int) botkit.ViewFunc {
	return func(ctx context.Context, bot botkit.API, update tgbotapi.Update) error {
		dayKey, count, err := reader.DailyCount(ctx)
		if err != nil {
			return err
		}

		left := limit - count
		if left < 0 {
			left = 0
		}

		msgText := fmt.Sprintf(
			"Черновики за *%s*: отправлено %d из %d, осталось %d\\.",
			markup.EscapeForMarkdown(dayKey),
			count,
			limit,
			left,
		)

		reply := tgbotapi.NewMessage(update.Message.Chat.ID, msgText)
		reply.ParseMode = tgbotapi.ModeMarkdownV2

		if _, err := bot.Send(reply); err != nil {
			return err
		}
		return nil
	}
}
