// Package metrics exposes Prometheus collectors for job runs and outbound
// fetches.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TargetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadgen_targets_total",
			Help: "Targets handled by the job, by outcome",
		},
		[]string{"status"},
	)

	TargetFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadgen_target_failures_total",
			Help: "Failed targets by failing step",
		},
		[]string{"kind"},
	)

	LeadsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadgen_leads_inserted_total",
			Help: "Leads written to the lead store",
		},
	)

	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadgen_step_duration_seconds",
			Help:    "Duration of each per-target step",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"step"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leadgen_run_duration_seconds",
			Help:    "Duration of a full job run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadgen_fetch_requests_total",
			Help: "HTML search fetches by host, status and bot wall detection",
		},
		[]string{"host", "status", "blocked", "block_src"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadgen_fetch_duration_seconds",
			Help:    "Duration of HTML search fetches",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadgen_proxy_failures_total",
			Help: "Requests that failed through a proxy",
		},
		[]string{"proxy"},
	)
)

// RecordTarget counts one handled target. kind is empty unless status is
// "failed".
func RecordTarget(status, kind string) {
	TargetsTotal.WithLabelValues(status).Inc()
	if kind != "" {
		TargetFailures.WithLabelValues(kind).Inc()
	}
}

// ObserveStep records how long a per-target step took.
func ObserveStep(step string, d time.Duration) {
	StepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// RecordFetch records one outbound fetch. A negative status means the
// request never produced a response.
func RecordFetch(host string, status int, blocked bool, blockSrc string, d time.Duration) {
	statusStr := "error"
	if status >= 0 {
		statusStr = strconv.Itoa(status)
	}
	FetchRequestsTotal.WithLabelValues(host, statusStr, strconv.FormatBool(blocked), blockSrc).Inc()
	FetchDuration.WithLabelValues(host).Observe(d.Seconds())
}

// Server serves /metrics.
type Server struct {
	srv *http.Server
}

// Start listens on port in the background. Listen errors other than a
// clean shutdown are logged.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "port", port, "error", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop shuts the server down, waiting at most five seconds.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// Prometheus adapts the package collectors to the runner's recorder.
type Prometheus struct{}

func (Prometheus) RecordTarget(status, kind string)         { RecordTarget(status, kind) }
func (Prometheus) ObserveStep(step string, d time.Duration) { ObserveStep(step, d) }
func (Prometheus) AddLeads(n int)                           { LeadsInserted.Add(float64(n)) }
func (Prometheus) ObserveRun(d time.Duration)               { RunDuration.Observe(d.Seconds()) }
