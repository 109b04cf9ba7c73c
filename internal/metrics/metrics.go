// Package metrics - счетчики запусков для prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kovalyov-valentin/news-post-drafter/internal/model"
)

var (
	// Запуски по итоговому статусу: done, quota_exhausted, aborted
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drafter",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "drafter",
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// Новости по результату обработки
	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drafter",
			Name:      "items_total",
			Help:      "Total number of feed items by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordRun учитывает итог одного запуска
func RecordRun(summary model.RunSummary, duration time.Duration) {
	status := "done"
	switch {
	case summary.Aborted:
		status = "aborted"
	case summary.QuotaExhausted:
		status = "quota_exhausted"
	}

	RunsTotal.WithLabelValues(status).Inc()
	RunDuration.Observe(duration.Seconds())

	ItemsTotal.WithLabelValues("rejected").Add(float64(summary.ItemsRejected))
	ItemsTotal.WithLabelValues("filtered").Add(float64(summary.ItemsFiltered))
	ItemsTotal.WithLabelValues(string(model.OutcomeDispatched)).Add(float64(summary.ItemsDispatched))
	ItemsTotal.WithLabelValues(string(model.OutcomeDuplicate)).Add(float64(summary.ItemsSkippedDuplicate))
	ItemsTotal.WithLabelValues(string(model.OutcomeFailed)).Add(float64(summary.ItemsFailed))
	ItemsTotal.WithLabelValues("unprocessed").Add(float64(summary.ItemsUnprocessed))
}

// Serve отдает /metrics, пока не отменят ctx
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
