package middleware

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kovalyov-valentin/news-post-drafter/internal/botkit"
)

// AdminOnly пропускает команду только от администраторов чата chatID
func AdminOnly(chatID int64, next botkit.ViewFunc) botkit.ViewFunc {
	return func(ctx context.Context, bot botkit.API, update tgbotapi.Update) error {
		if update.Message.From == nil {
			return nil
		}

		admins, err := bot.GetChatAdministrators(
			tgbotapi.ChatAdministratorsConfig{
				ChatConfig: tgbotapi.ChatConfig{
					ChatID: chatID,
				},
			},
		)
		if err != nil {
			return err
		}

		// Проверка на то, что тот кто отправил команду находится в списке администраторов
		for _, admin := range admins {
			if admin.User != nil && admin.User.ID == update.Message.From.ID {
				return next(ctx, bot, update)
			}
		}

		if _, err := bot.Send(tgbotapi.NewMessage(update.Message.Chat.ID, "У вас нет прав для выполнения этой команды")); err != nil {
			return err
		}
		return nil
	}
}
