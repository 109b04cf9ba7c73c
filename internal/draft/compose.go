package draft

import (
	"strings"
	"unicode/utf8"

	"github.com/kovalyov-valentin/news-post-drafter/internal/model"
)

// Ограничение длины поста в LinkedIn, в символах
const MaxBodyLength = 3000

const (
	header    = "🚀 AWS News Update!\n\n"
	titleMark = "📢 "
	linkMark  = "🔗 Read more: "
	ellipsis  = "..."
)

// Compose собирает черновик поста из новости. Чистая функция.
func Compose(item model.FeedItem) model.Draft {
	return ComposeWithLimit(item, MaxBodyLength)
}

// ComposeWithLimit собирает текст не длиннее limit символов.
// Первым сокращается описание, потом убираются теги и шапка.
// Ссылка присутствует всегда, заголовок режется только если вместе со ссылкой он не влезает целиком.
func ComposeWithLimit(item model.FeedItem, limit int) model.Draft {
	tags := Tags(item)

	return model.Draft{
		Body:         body(item, tags, limit),
		Tags:         tags,
		SourceItemID: item.ID,
		SourceLink:   item.Link,
		SourceTitle:  item.Title,
		PublishedAt:  item.PublishedAt,
	}
}

func body(item model.FeedItem, tags []string, limit int) string {
	tagLine := strings.Join(tags, " ")

	// Пробуем варианты от полного к минимальному, пока фиксированная часть не влезет
	layouts := []struct {
		head string
		tags string
	}{
		{header, tagLine},
		{header, ""},
		{"", ""},
	}

	for _, l := range layouts {
		fixed := runes(l.head) + runes(titleMark+item.Title) + runes(linkSection(item.Link, l.tags))
		if fixed > limit {
			continue
		}

		summary := fitSummary(item.Summary, limit-fixed)
		return l.head + titleMark + item.Title + summary + linkSection(item.Link, l.tags)
	}

	// Даже без шапки и тегов не влезает - жертвуем заголовком, но не ссылкой
	link := linkSection(item.Link, "")
	title := truncate(item.Title, limit-runes(link)-runes(titleMark))
	if title == "" {
		return strings.TrimSpace(link)
	}

	return titleMark + title + link
}

func linkSection(link, tagLine string) string {
	s := "\n\n" + linkMark + link
	if tagLine != "" {
		s += "\n\n" + tagLine
	}
	return s
}

// fitSummary возвращает блок описания вместе с разделителем, укладываясь в available символов
func fitSummary(summary string, available int) string {
	const sep = "\n\n"

	if summary == "" || available <= runes(sep) {
		return ""
	}

	if runes(sep+summary) <= available {
		return sep + summary
	}

	cut := truncate(summary, available-runes(sep))
	if cut == "" {
		return ""
	}

	return sep + cut
}

// truncate режет текст по границе слова и добавляет многоточие, результат не длиннее max символов
func truncate(s string, max int) string {
	if runes(s) <= max {
		return s
	}
	if max <= runes(ellipsis) {
		return ""
	}

	r := []rune(s)[:max-runes(ellipsis)]
	cut := string(r)
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}

	cut = strings.TrimRight(cut, " ,.;:")
	if cut == "" {
		return ""
	}

	return cut + ellipsis
}

func runes(s string) int {
	return utf8.RuneCountInString(s)
}
