// Package metrics exposes Prometheus counters for ingestion and the daily
// digest run, plus the HTTP endpoint that serves them.
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
)

var (
	// Ingestion
	MessagesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatdigest_messages_recorded_total",
			Help: "Messages written to the store",
		},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdigest_messages_dropped_total",
			Help: "Inbound messages that could not be stored",
		},
		[]string{"code"},
	)

	// Daily run
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdigest_runs_total",
			Help: "Daily digest runs by outcome",
		},
		[]string{"outcome"}, // "completed" or "skipped"
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatdigest_run_duration_seconds",
			Help:    "Duration of completed digest runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	DigestsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdigest_digests_delivered_total",
			Help: "Digests delivered to conversations",
		},
		[]string{"kind"}, // "single" or "merged"
	)

	DigestFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdigest_digest_failures_total",
			Help: "Per-conversation digest failures",
		},
		[]string{"stage", "code"},
	)

	MessagesPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatdigest_messages_pruned_total",
			Help: "Messages removed by retention pruning",
		},
	)
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	log := logger.With("component", "metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Metrics endpoint shutdown failed", "error", err)
		return err
	}
	log.Info("Metrics endpoint stopped")
	return nil
}
