// Package metrics contains the prometheus collectors for reconciliation runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every orgsync collector.
var Registry = prometheus.NewRegistry()

var (
	// Account metrics
	accountsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orgsync",
			Subsystem: "reconciler",
			Name:      "accounts_total",
			Help:      "Total number of account reconciliations by outcome",
		},
		[]string{"outcome"},
	)

	accountDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orgsync",
			Subsystem: "reconciler",
			Name:      "account_duration_seconds",
			Help:      "Duration of one account reconciliation in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 11), // 1s to ~17m
		},
		[]string{"outcome"},
	)

	regionsAdded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "orgsync",
			Subsystem: "reconciler",
			Name:      "regions_added_total",
			Help:      "Total number of regions added to account region sets",
		},
	)

	// Stack metrics
	stacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orgsync",
			Subsystem: "deploy",
			Name:      "stacks_total",
			Help:      "Total number of stack deployments by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	stackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orgsync",
			Subsystem: "deploy",
			Name:      "stack_duration_seconds",
			Help:      "Time from stack submission to a terminal status",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 8), // 5s to ~10m
		},
		[]string{"kind"},
	)

	// Control plane metrics
	statusWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orgsync",
			Subsystem: "controlplane",
			Name:      "status_wait_seconds",
			Help:      "Time spent waiting for an account status transition",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"result"},
	)
)

func init() {
	Registry.MustRegister(
		accountsTotal,
		accountDuration,
		regionsAdded,
		stacksTotal,
		stackDuration,
		statusWaitDuration,
	)
}

// RecordAccount records the outcome of one account reconciliation.
func RecordAccount(outcome string, duration time.Duration, added int) {
	accountsTotal.WithLabelValues(outcome).Inc()
	accountDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if added > 0 {
		regionsAdded.Add(float64(added))
	}
}

// RecordStack records the outcome of one stack deployment.
func RecordStack(kind, outcome string, duration time.Duration) {
	stacksTotal.WithLabelValues(kind, outcome).Inc()
	stackDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordStatusWait records one account status wait.
func RecordStatusWait(result string, duration time.Duration) {
	statusWaitDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// Serve exposes Registry on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
