package filter

import (
	"strings"

	"github.com/samber/lo"

	"github.com/kovalyov-valentin/news-post-drafter/internal/model"
)

// ByKeywords оставляет новости, у которых заголовок или описание содержит хотя бы одно ключевое слово.
// Сравнение без учета регистра, порядок сохраняется.
// Пустой список ключевых слов ничего не пропускает, чтобы случайно не разослать всю ленту.
func ByKeywords(items []model.FeedItem, keywords []string) []model.FeedItem {
	lowered := lo.Compact(lo.Map(keywords, func(kw string, _ int) string {
		return strings.ToLower(strings.TrimSpace(kw))
	}))
	if len(lowered) == 0 {
		return nil
	}

	return lo.Filter(items, func(item model.FeedItem, _ int) bool {
		return matches(item, lowered)
	})
}

func matches(item model.FeedItem, keywords []string) bool {
	title := strings.ToLower(item.Title)
	summary := strings.ToLower(item.Summary)

	for _, keyword := range keywords {
		if strings.Contains(title, keyword) || strings.Contains(summary, keyword) {
			return true
		}
	}

	return false
}
