package notifier

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Публикация в redis stream. Из стрима черновики забирает почтовый релей
type StreamPublisher struct {
	client redis.Cmdable
	stream string
}

func NewStreamPublisher(client redis.Cmdable, stream string) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream}
}

func (p *StreamPublisher) Name() string {
	return "stream:" + p.stream
}

func (p *StreamPublisher) Publish(ctx context.Context, msg Message) error {
	values := map[string]any{
		"subject": msg.Subject,
		"body":    msg.Body,
	}
	for k, v := range msg.Metadata {
		values[k] = v
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{Stream: p.stream, Values: values}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}

	return nil
}
