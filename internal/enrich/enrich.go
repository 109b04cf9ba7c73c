// Package enrich дополняет новость перед сборкой черновика.
// Ошибки обогащения не мешают отправке: новость просто идет как есть.
package enrich

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/kovalyov-valentin/news-post-drafter/internal/model"
	"github.com/kovalyov-valentin/news-post-drafter/internal/source"
)

// Больше со страницы статьи не читаем
const maxPageSize = 5 << 20

type Summarizer interface {
	Enabled() bool
	Summarize(ctx context.Context, text string) (string, error)
}

type Enricher struct {
	client *http.Client
	// Может быть nil, тогда описание не переписывается
	summarizer Summarizer
	// Забирать текст со страницы статьи, если в ленте нет описания
	fetchEmpty bool
	logger     *slog.Logger
}

func New(summarizer Summarizer, fetchEmpty bool, timeout time.Duration, logger *slog.Logger) *Enricher {
	return &Enricher{
		client:     &http.Client{Timeout: timeout},
		summarizer: summarizer,
		fetchEmpty: fetchEmpty,
		logger:     logger,
	}
}

// Enrich возвращает копию новости с дополненным описанием
func (e *Enricher) Enrich(ctx context.Context, item model.FeedItem) model.FeedItem {
	if item.Summary == "" && e.fetchEmpty {
		text, err := e.extractText(ctx, item.Link)
		if err != nil {
			e.logger.Warn("failed to extract article text", "item_id", item.ID, "link", item.Link, "error", err)
		} else {
			item.Summary = text
		}
	}

	if item.Summary == "" || e.summarizer == nil || !e.summarizer.Enabled() {
		return item
	}

	summary, err := e.summarizer.Summarize(ctx, item.Summary)
	if err != nil {
		e.logger.Warn("failed to summarize item", "item_id", item.ID, "error", err)
		return item
	}
	if summary != "" {
		item.Summary = summary
	}

	return item
}

// Идем по ссылке, получаем html страницы со статьей и вытаскиваем из него текст
func (e *Enricher) extractText(ctx context.Context, link string) (string, error) {
	pageURL, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parse link: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := readability.FromReader(io.LimitReader(resp.Body, maxPageSize), pageURL)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}

	return source.CleanText(cleanText(doc.TextContent)), nil
}

// readability оставляет много пустых строк, схлопываем их
var redundantNewLines = regexp.MustCompile(`\n{3,}`)

func cleanText(text string) string {
	return redundantNewLines.ReplaceAllString(text, "\n")
}
