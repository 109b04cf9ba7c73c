package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Ограничение на размер ленты, чтобы не читать в память что попало
const maxPayloadSize = 10 << 20

// Ответ сервера, который не имеет смысла повторять
var ErrPermanent = errors.New("permanent feed error")

// HTTPStatusError содержит код ответа источника
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// RSS клиент. Отвечает только за получение сырого документа ленты
type RSSSource struct {
	// URL откуда мы забираем данные
	URL    string
	client *http.Client
}

func NewRSSSource(url string, timeout time.Duration) RSSSource {
	return RSSSource{
		URL:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Load делает одну попытку загрузить ленту. Повторы делает вызывающий код
func (s RSSSource) Load(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrPermanent, err)
	}
	req.Header.Set("User-Agent", "news-post-drafter/1.0")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, application/json;q=0.9, */*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize))
	if err != nil {
		return nil, err
	}

	return payload, nil
}

// IsTransient решает, стоит ли повторять загрузку после ошибки
func IsTransient(err error) bool {
	if errors.Is(err, ErrPermanent) || errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		code := statusErr.StatusCode
		return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
	}

	// Сетевые ошибки и ошибки разбора повторяем: обрезанный ответ при следующей попытке может прийти целиком
	return true
}

func (s RSSSource) Name() string {
	return s.URL
}
