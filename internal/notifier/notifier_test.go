package notifier

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kovalyov-valentin/news-post-drafter/internal/logger"
	"github.com/kovalyov-valentin/news-post-drafter/internal/model"
	"github.com/kovalyov-valentin/news-post-drafter/internal/retry"
)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Name() string {
	return "mock"
}

func (m *publisherMock) Publish(ctx context.Context, msg Message) error {
	return m.Called(msg).Error(0)
}

func testDraft() model.Draft {
	return model.Draft{
		Body:         "🚀 AWS News Update!\n\n📢 Lambda news\n\n🔗 Read more: https://aws.example/lambda\n\n#AWS #Lambda",
		Tags:         []string{"#AWS", "#Lambda"},
		SourceItemID: "guid-1",
		SourceLink:   "https://aws.example/lambda",
		SourceTitle:  "Lambda news",
		PublishedAt:  time.Date(2026, 1, 14, 9, 30, 0, 0, time.UTC),
	}
}

func newTestDispatcher(p Publisher, log *bytes.Buffer) *Dispatcher {
	l := logger.New("debug", log)
	r := retry.New(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond}, IsTransient, l)

	d := New(p, r, l, time.Second)
	d.newID = func() string { return "msg-1" }
	d.now = func() time.Time { return time.Date(2026, 1, 14, 10, 0, 0, 0, time.UTC) }

	return d
}

func TestDispatchSuccess(t *testing.T) {
	var log bytes.Buffer
	p := &publisherMock{}
	p.On("Publish", mock.MatchedBy(func(m Message) bool {
		return m.Subject == "LinkedIn Post Draft: Lambda news" && m.Metadata["message_id"] == "msg-1"
	})).Return(nil).Once()

	err := newTestDispatcher(p, &log).Dispatch(context.Background(), testDraft())

	require.NoError(t, err)
	p.AssertExpectations(t)
	assert.NotContains(t, log.String(), "CRITICAL")
}

func TestDispatchRetriesWithSameMessageID(t *testing.T) {
	var (
		log bytes.Buffer
		ids []string
	)
	p := &publisherMock{}
	p.On("Publish", mock.Anything).Return(errors.New("connection reset")).Twice().Run(func(args mock.Arguments) {
		ids = append(ids, args.Get(0).(Message).Metadata["message_id"])
	})
	p.On("Publish", mock.Anything).Return(nil).Once()

	err := newTestDispatcher(p, &log).Dispatch(context.Background(), testDraft())

	require.NoError(t, err)
	p.AssertNumberOfCalls(t, "Publish", 3)
	assert.Equal(t, []string{"msg-1", "msg-1"}, ids)
	assert.NotContains(t, log.String(), "CRITICAL")
}

func TestDispatchExhausted(t *testing.T) {
	var log bytes.Buffer
	p := &publisherMock{}
	p.On("Publish", mock.Anything).Return(errors.New("connection refused"))

	err := newTestDispatcher(p, &log).Dispatch(context.Background(), testDraft())

	require.ErrorIs(t, err, ErrDispatchExhausted)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	p.AssertNumberOfCalls(t, "Publish", 3)
	assert.Contains(t, log.String(), `"level":"CRITICAL"`)
	assert.Contains(t, log.String(), "requires manual attention")
	assert.Contains(t, log.String(), "guid-1")
}

func TestDispatchPermanentFailureIsNotRetried(t *testing.T) {
	var log bytes.Buffer
	p := &publisherMock{}
	p.On("Publish", mock.Anything).Return(&tgbotapiError400)

	err := newTestDispatcher(p, &log).Dispatch(context.Background(), testDraft())

	require.ErrorIs(t, err, ErrDispatchExhausted)
	p.AssertNumberOfCalls(t, "Publish", 1)
	assert.Contains(t, log.String(), "CRITICAL")
}

func TestDispatchCanceledRun(t *testing.T) {
	var log bytes.Buffer
	p := &publisherMock{}
	p.On("Publish", mock.Anything).Return(context.Canceled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestDispatcher(p, &log).Dispatch(ctx, testDraft())

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDispatchExhausted)
	assert.NotContains(t, log.String(), "CRITICAL")
}

func TestFormatMessage(t *testing.T) {
	created := time.Date(2026, 1, 14, 10, 0, 0, 0, time.UTC)
	msg := FormatMessage(testDraft(), "msg-1", created)

	assert.Equal(t, "LinkedIn Post Draft: Lambda news", msg.Subject)
	assert.Equal(t, testDraft().Body, msg.Post)
	assert.Equal(t, map[string]string{
		"message_id":   "msg-1",
		"item_id":      "guid-1",
		"source_title": "Lambda news",
		"source_link":  "https://aws.example/lambda",
		"published_at": "2026-01-14T09:30:00Z",
		"tags":         "#AWS,#Lambda",
	}, msg.Metadata)

	for _, want := range []string{
		"DRAFT CONTENT:",
		"METADATA",
		testDraft().Body,
		"Original Title: Lambda news",
		"Source Link: https://aws.example/lambda",
		"Hashtags: #AWS, #Lambda",
		"Published: 2026-01-14 09:30:00 UTC",
		"Draft Created: 2026-01-14 10:00:00 UTC",
		"Item ID: guid-1",
		"1. Review the content above",
	} {
		assert.Contains(t, msg.Body, want)
	}
	assert.Less(t, strings.Index(msg.Body, "DRAFT CONTENT:"), strings.Index(msg.Body, "METADATA"))
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "LinkedIn Post Draft: short", Subject("short"))

	long := strings.Repeat("я", 100)
	got := Subject(long)
	assert.Equal(t, "LinkedIn Post Draft: "+strings.Repeat("я", 57)+"...", got)
}
