package source

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/kovalyov-valentin/news-post-drafter/internal/model"
)

var (
	errMissingTitle = errors.New("missing title")
	errMissingLink  = errors.New("missing link")
	errLinkTooLong  = errors.New("link is too long")
)

// Ссылки длиннее этого не помещаются в черновик, такие записи отбрасываем
const MaxLinkLength = 2048

// Запись ленты, которую пришлось выбросить
type Rejected struct {
	Index  int
	Title  string
	Reason string
}

var (
	// StrictPolicy вырезает все теги и оставляет только текст
	stripPolicy = bluemonday.StrictPolicy()
	spaces      = regexp.MustCompile(`\s+`)
)

// Normalize разбирает документ ленты (RSS, Atom или JSON Feed) в список новостей,
// отсортированный от самой свежей к самой старой.
// Битые записи не прерывают разбор, а возвращаются в rejected.
func Normalize(payload []byte, now time.Time) ([]model.FeedItem, []Rejected, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("parse feed: %w", err)
	}

	var (
		items    = make([]model.FeedItem, 0, len(feed.Items))
		rejected []Rejected
	)

	for idx, entry := range feed.Items {
		if entry == nil {
			rejected = append(rejected, Rejected{Index: idx, Reason: "empty entry"})
			continue
		}

		item, err := normalizeEntry(entry, now)
		if err != nil {
			rejected = append(rejected, Rejected{Index: idx, Title: entry.Title, Reason: err.Error()})
			continue
		}

		items = append(items, item)
	}

	// Порядок в ленте не гарантирован, поэтому сортируем явно
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PublishedAt.After(items[j].PublishedAt)
	})

	return items, rejected, nil
}

func normalizeEntry(entry *gofeed.Item, now time.Time) (model.FeedItem, error) {
	title := CleanText(entry.Title)
	if title == "" {
		return model.FeedItem{}, errMissingTitle
	}

	link := strings.TrimSpace(entry.Link)
	if link == "" && len(entry.Links) > 0 {
		link = strings.TrimSpace(entry.Links[0])
	}
	if link == "" {
		return model.FeedItem{}, errMissingLink
	}
	if utf8.RuneCountInString(link) > MaxLinkLength {
		return model.FeedItem{}, errLinkTooLong
	}

	summary := entry.Description
	if strings.TrimSpace(summary) == "" {
		summary = entry.Content
	}

	publishedAt := now
	switch {
	case entry.PublishedParsed != nil:
		publishedAt = *entry.PublishedParsed
	case entry.UpdatedParsed != nil:
		publishedAt = *entry.UpdatedParsed
	}

	id := strings.TrimSpace(entry.GUID)
	if id == "" {
		id = ItemID(link, title)
	}

	return model.FeedItem{
		ID:          id,
		Title:       title,
		Summary:     CleanText(summary),
		Link:        link,
		PublishedAt: publishedAt.UTC(),
	}, nil
}

// ItemID строит стабильный идентификатор для записей без guid
func ItemID(link, title string) string {
	sum := sha256.Sum256([]byte(link + "\n" + title))
	return hex.EncodeToString(sum[:])
}

// CleanText убирает html разметку, сущности и лишние пробелы
func CleanText(s string) string {
	s = stripPolicy.Sanitize(s)
	s = html.UnescapeString(s)

	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}
