package enrich

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/kovalyov-valentin/news-post-drafter/internal/logger"
	"github.com/kovalyov-valentin/news-post-drafter/internal/model"
)

const articlePage = `<!DOCTYPE html>
<html><head><title>Lambda news</title></head>
<body>
<nav><a href="/">Home</a> <a href="/blog">Blog</a></nav>
<article>
<h1>AWS Lambda adds a new runtime</h1>
<p>Starting today you can build serverless functions on the new managed runtime in every commercial region.
The runtime ships with the latest security patches and performance improvements for cold starts.</p>
<p>To get started, choose the runtime in the console or update your infrastructure templates.
Existing functions keep working without any changes, and you can migrate them at your own pace.</p>
<p>The new runtime is available at no additional cost. You pay only for the requests and compute time
your functions consume, exactly as before. See the documentation for the full list of supported regions,
the migration guide, and the list of deprecated runtimes that reach end of support later this year.</p>
</article>
<footer>Copyright</footer>
</body></html>`

type summarizerMock struct {
	mock.Mock
}

func (m *summarizerMock) Enabled() bool {
	return m.Called().Bool(0)
}

func (m *summarizerMock) Summarize(ctx context.Context, text string) (string, error) {
	args := m.Called(text)
	return args.String(0), args.Error(1)
}

func page(t *testing.T, status int, body string) string {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv.URL + "/lambda"
}

func TestEnrichFetchesEmptySummary(t *testing.T) {
	e := New(nil, true, time.Second, logger.Discard())
	item := model.FeedItem{ID: "1", Title: "Lambda news", Link: page(t, http.StatusOK, articlePage)}

	got := e.Enrich(context.Background(), item)

	assert.Contains(t, got.Summary, "serverless functions on the new managed runtime")
	assert.NotContains(t, got.Summary, "\n")
	assert.Empty(t, item.Summary, "input must not change")
}

func TestEnrichKeepsItemOnPageError(t *testing.T) {
	e := New(nil, true, time.Second, logger.Discard())
	item := model.FeedItem{ID: "1", Title: "Lambda news", Link: page(t, http.StatusNotFound, "nope")}

	assert.Equal(t, item, e.Enrich(context.Background(), item))
}

func TestEnrichSkipsFetchWhenDisabled(t *testing.T) {
	e := New(nil, false, time.Second, logger.Discard())
	item := model.FeedItem{ID: "1", Title: "Lambda news", Link: "http://127.0.0.1:1/unreachable"}

	assert.Equal(t, item, e.Enrich(context.Background(), item))
}

func TestEnrichSummarizes(t *testing.T) {
	s := &summarizerMock{}
	s.On("Enabled").Return(true)
	s.On("Summarize", "Long original description.").Return("Short rewrite.", nil).Once()

	e := New(s, false, time.Second, logger.Discard())
	got := e.Enrich(context.Background(), model.FeedItem{ID: "1", Summary: "Long original description."})

	assert.Equal(t, "Short rewrite.", got.Summary)
	s.AssertExpectations(t)
}

func TestEnrichSummarizerFailureKeepsSummary(t *testing.T) {
	s := &summarizerMock{}
	s.On("Enabled").Return(true)
	s.On("Summarize", mock.Anything).Return("", errors.New("rate limited"))

	e := New(s, false, time.Second, logger.Discard())
	got := e.Enrich(context.Background(), model.FeedItem{ID: "1", Summary: "Original."})

	assert.Equal(t, "Original.", got.Summary)
}

func TestEnrichDisabledSummarizerIsNotCalled(t *testing.T) {
	s := &summarizerMock{}
	s.On("Enabled").Return(false)

	e := New(s, false, time.Second, logger.Discard())
	got := e.Enrich(context.Background(), model.FeedItem{ID: "1", Summary: "Original."})

	assert.Equal(t, "Original.", got.Summary)
	s.AssertNotCalled(t, "Summarize", mock.Anything)
}
