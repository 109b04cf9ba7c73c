package notifier

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kovalyov-valentin/news-post-drafter/internal/model"
)

const (
	subjectPrefix = "LinkedIn Post Draft: "
	// Длинные темы письма почтовые клиенты обрезают
	maxSubjectTitle = 60
)

// Сообщение для человека, который проверит и опубликует черновик
type Message struct {
	Subject string
	// Полное письмо с разделами
	Body string
	// Только текст поста
	Post     string
	Metadata map[string]string
}

// FormatMessage собирает тему, тело с разделами DRAFT CONTENT и METADATA и метаданные для канала
func FormatMessage(d model.Draft, messageID string, createdAt time.Time) Message {
	published := d.PublishedAt.UTC().Format(time.RFC3339)

	return Message{
		Subject: Subject(d.SourceTitle),
		Body:    formatBody(d, createdAt),
		Post:    d.Body,
		Metadata: map[string]string{
			"message_id":   messageID,
			"item_id":      d.SourceItemID,
			"source_title": d.SourceTitle,
			"source_link":  d.SourceLink,
			"published_at": published,
			"tags":         strings.Join(d.Tags, ","),
		},
	}
}

func Subject(title string) string {
	if utf8.RuneCountInString(title) > maxSubjectTitle {
		title = string([]rune(title)[:maxSubjectTitle-3]) + "..."
	}

	return subjectPrefix + title
}

func formatBody(d model.Draft, createdAt time.Time) string {
	var (
		thick = strings.Repeat("=", 70)
		thin  = strings.Repeat("-", 70)
	)

	lines := []string{
		thick,
		"LINKEDIN POST DRAFT",
		thick,
		"",
		"DRAFT CONTENT:",
		thin,
		d.Body,
		"",
		thick,
		"METADATA",
		thick,
		"",
		"Original Title: " + d.SourceTitle,
		"Source Link: " + d.SourceLink,
		"Hashtags: " + strings.Join(d.Tags, ", "),
		"Published: " + d.PublishedAt.UTC().Format("2006-01-02 15:04:05 UTC"),
		"Draft Created: " + createdAt.UTC().Format("2006-01-02 15:04:05 UTC"),
		"Item ID: " + d.SourceItemID,
		"",
		thick,
		"",
		"To publish this post:",
		"1. Review the content above",
		"2. Copy the draft content section",
		"3. Paste into LinkedIn",
		"4. Make any final adjustments",
		"5. Publish!",
		"",
		thick,
	}

	return strings.Join(lines, "\n")
}
