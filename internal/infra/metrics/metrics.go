// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tokenledger"

var (
	// Registry holds the application collectors plus Go and process stats.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	ledgerOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by operation and outcome.",
		},
		[]string{"op", "result"},
	)

	ledgerTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tokens_total",
			Help:      "Tokens moved by committed ledger entries, by entry kind.",
		},
		[]string{"kind"},
	)

	txRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tx_retries_total",
			Help:      "Transactions retried after a serialization failure or deadlock.",
		},
	)

	auditDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "dropped_events_total",
			Help:      "Audit events dropped because the dispatch buffer was full.",
		},
	)

	posterJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "posters",
			Name:      "jobs_total",
			Help:      "Poster jobs finished by the worker pool, by final status.",
		},
		[]string{"status"},
	)

	posterRender = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "posters",
			Name:      "render_duration_seconds",
			Help:      "Duration of renderer calls.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	awardTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "awards",
			Name:      "transitions_total",
			Help:      "Award status transitions by target status and trigger.",
		},
		[]string{"to", "trigger"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ledgerOps,
		ledgerTokens,
		txRetries,
		auditDropped,
		posterJobs,
		posterRender,
		awardTransitions,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler records request count, latency and in-flight gauge. The
// route label is the chi pattern so ids don't explode cardinality.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordLedgerOp counts one orchestrator call. result is "ok", "duplicate" or
// an error class such as "insufficient_funds".
func RecordLedgerOp(op, result string) {
	ledgerOps.WithLabelValues(op, result).Inc()
}

// RecordTokens adds the absolute amount of a committed entry.
func RecordTokens(kind string, amount int64) {
	if amount < 0 {
		amount = -amount
	}

	ledgerTokens.WithLabelValues(kind).Add(float64(amount))
}

func RecordTxRetry() { txRetries.Inc() }

func RecordAuditDrop() { auditDropped.Inc() }

func RecordPosterJob(status string, renderTime time.Duration) {
	posterJobs.WithLabelValues(status).Inc()

	if renderTime > 0 {
		posterRender.Observe(renderTime.Seconds())
	}
}

func RecordAwardTransition(to, trigger string) {
	awardTransitions.WithLabelValues(to, trigger).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
