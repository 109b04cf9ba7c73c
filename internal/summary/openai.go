package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
)

var errNoChoices = errors.New("openai returned no choices")

// Переписывает описание новости в пару законченных предложений для поста
type OpenAISummarizer struct {
	// sdk для openai
	client *openai.Client
	// Инструкция, которую gpt получает вместе с текстом
	prompt string
	// Без ключа summarizer выключен и возвращает пустую строку
	enabled bool
	mu      sync.Mutex
}

func NewOpenAISummarizer(apiKey, prompt string, logger *slog.Logger) *OpenAISummarizer {
	return NewOpenAISummarizerWithConfig(openai.DefaultConfig(apiKey), apiKey != "", prompt, logger)
}

// Конструктор с конфигом клиента, нужен чтобы подменить адрес api
func NewOpenAISummarizerWithConfig(cfg openai.ClientConfig, enabled bool, prompt string, logger *slog.Logger) *OpenAISummarizer {
	logger.Info("openai summarizer configured", "enabled", enabled)

	return &OpenAISummarizer{
		client:  openai.NewClientWithConfig(cfg),
		prompt:  prompt,
		enabled: enabled,
	}
}

func (s *OpenAISummarizer) Enabled() bool {
	return s.enabled
}

func (s *OpenAISummarizer) Summarize(ctx context.Context, text string) (string, error) {
	// Запросы идут по одному
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return "", nil
	}

	request := openai.ChatCompletionRequest{
		Model: openai.GPT3Dot5Turbo,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: s.prompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
		MaxTokens:   256,
		Temperature: 0.7,
		TopP:        1,
	}

	resp, err := s.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", fmt.Errorf("create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}

	// openai отправляет несколько вариантов, берем первый
	return completeSentences(resp.Choices[0].Message.Content), nil
}

// Ответ может оборваться на лимите токенов. Отбрасываем недописанное последнее предложение
func completeSentences(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasSuffix(raw, ".") {
		return raw
	}

	idx := strings.LastIndex(raw, ".")
	if idx < 0 {
		return raw
	}

	return raw[:idx+1]
}
