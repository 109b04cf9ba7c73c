package model

import "time"

// Новость из ленты после нормализации.
// После создания не меняется, обогащение возвращает копию.
type FeedItem struct {
	// Стабильный идентификатор: guid из ленты или хеш link+title
	ID      string
	Title   string
	Summary string
	Link    string
	// Время публикации в источнике, если его нет - время загрузки
	PublishedAt time.Time
}

// Черновик поста, который уходит на ревью человеку
type Draft struct {
	Body         string
	Tags         []string
	SourceItemID string
	SourceLink   string
	SourceTitle  string
	PublishedAt  time.Time
}

// Запись об успешной отправке. Для одного ItemID существует не больше одной записи
type DispatchRecord struct {
	ItemID       string
	DispatchedAt time.Time
	DayKey       string
}

// Счетчик отправок за день
type DailyCounter struct {
	DayKey    string
	Count     int
	ExpiresAt time.Time
}

// Результат обработки одной новости
type Outcome string

const (
	OutcomeDispatched  Outcome = "dispatched"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeFailed      Outcome = "failed"
	OutcomeQuotaDenied Outcome = "quota_denied"
)

type ItemResult struct {
	ItemID  string  `json:"item_id"`
	Title   string  `json:"title"`
	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error,omitempty"`
}

// Итог одного запуска пайплайна
type RunSummary struct {
	RunID                 string       `json:"run_id"`
	DayKey                string       `json:"day_key"`
	ItemsSeen             int          `json:"items_seen"`
	ItemsRejected         int          `json:"items_rejected"`
	ItemsFiltered         int          `json:"items_filtered"`
	ItemsDispatched       int          `json:"items_dispatched"`
	ItemsSkippedDuplicate int          `json:"items_skipped_duplicate"`
	ItemsFailed           int          `json:"items_failed"`
	ItemsUnprocessed      int          `json:"items_unprocessed"`
	QuotaExhausted        bool         `json:"quota_exhausted"`
	Aborted               bool         `json:"aborted"`
	Reason                string       `json:"reason,omitempty"`
	Results               []ItemResult `json:"results,omitempty"`
}
