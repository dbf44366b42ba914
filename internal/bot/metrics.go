package bot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var ticksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rikipost_ticks_total",
	Help: "Number of ticks, by final stage (done or the stage that failed)",
}, []string{"stage"})

var tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "rikipost_tick_duration_sec",
	Help:    "Duration of a whole tick",
	Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
})

var publishedTiers = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "rikipost_published_tier_total",
	Help: "Number of published statuses, by text tier",
}, []string{"tier"})

var ledgerSize = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "rikipost_ledger_size",
	Help: "Number of images in the dedup ledger",
})

var lastPublished = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "rikipost_last_published_timestamp_seconds",
	Help: "Unix time of the last successful publish",
})

// RunMetrics serves /metrics on listen until ctx is done.
func RunMetrics(ctx context.Context, listen string) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen metrics: %w", err)
	}
	return serveMetrics(ctx, ln)
}

func serveMetrics(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}
