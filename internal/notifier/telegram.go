package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kovalyov-valentin/news-post-drafter/internal/botkit/markup"
)

// Часть BotAPI, которая нужна для отправки
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Публикация черновика в один телеграм чат
type TelegramPublisher struct {
	bot    Sender
	chatID int64
}

func NewTelegramPublisher(bot Sender, chatID int64) *TelegramPublisher {
	return &TelegramPublisher{bot: bot, chatID: chatID}
}

func (p *TelegramPublisher) Name() string {
	return "telegram:" + strconv.FormatInt(p.chatID, 10)
}

func (p *TelegramPublisher) Publish(ctx context.Context, msg Message) error {
	// Клиент телеграма не принимает контекст, поэтому проверяем его сами
	if err := ctx.Err(); err != nil {
		return err
	}

	// Сначала жирным тема, потом текст поста, в конце id новости. Ссылка уже есть в тексте поста
	const msgFormat = "*%s*\n\n%s\n\n`%s`"

	tgMsg := tgbotapi.NewMessage(p.chatID, fmt.Sprintf(
		msgFormat,
		markup.EscapeForMarkdown(msg.Subject),
		markup.EscapeForMarkdown(msg.Post),
		markup.EscapeForCode(msg.Metadata["item_id"]),
	))
	tgMsg.ParseMode = tgbotapi.ModeMarkdownV2
	tgMsg.DisableWebPagePreview = true

	if _, err := p.bot.Send(tgMsg); err != nil {
		return fmt.Errorf("send to chat %d: %w", p.chatID, err)
	}

	return nil
}

// IsTransient решает, стоит ли повторять отправку.
// Ошибки API телеграма повторяем только для 429 и 5xx, остальное - ошибки запроса.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}

	return true
}
