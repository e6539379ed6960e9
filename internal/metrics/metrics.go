// Package metrics exposes the coordinator's Prometheus collectors: HTTP request
// instrumentation plus day-lifecycle and submission counters. Grounded on the
// teacher's internal/app/metrics package (own Registry, promhttp.HandlerFor,
// an HTTP-instrumenting middleware with a canonicalized path label, and
// subsystem-scoped counters/histograms for domain operations), generalized from
// its oracle/automation/gasbank subsystems to the coordinator's day/work/reward
// operations.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the coordinator's Prometheus collectors, separate from the
// global default registry. It is one package-level instance, filled in init.
var Registry = prometheus.NewRegistry()

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ai4all",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ai4all",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ai4all",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "path"})

	dayPhase = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ai4all",
		Subsystem: "day",
		Name:      "phase",
		Help:      "Current day phase: 0=IDLE, 1=ACTIVE, 2=FINALIZING.",
	})

	submissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ai4all",
		Subsystem: "work",
		Name:      "submissions_total",
		Help:      "Total block submissions processed, by outcome.",
	}, []string{"outcome"})

	canaryOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ai4all",
		Subsystem: "work",
		Name:      "canary_outcomes_total",
		Help:      "Total canary checks, by result.",
	}, []string{"result"})

	dayFinalizations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ai4all",
		Subsystem: "day",
		Name:      "finalizations_total",
		Help:      "Total day finalize attempts, by outcome.",
	}, []string{"outcome"})

	rewardsDistributedMicro = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ai4all",
		Subsystem: "rewards",
		Name:      "distributed_micro_total",
		Help:      "Cumulative reward micro-units credited across all finalized days.",
	})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		dayPhase,
		submissions,
		canaryOutcomes,
		dayFinalizations,
		rewardsDistributedMicro,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler serves the registered collectors for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with request-count and latency collection.
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

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// SetDayPhase records the coordinator's current phase as a small integer code.
func SetDayPhase(code int) {
	dayPhase.Set(float64(code))
}

// RecordSubmission increments the submission outcome counter.
func RecordSubmission(outcome string) {
	submissions.WithLabelValues(outcome).Inc()
}

// RecordCanaryOutcome increments the canary result counter.
func RecordCanaryOutcome(result string) {
	canaryOutcomes.WithLabelValues(result).Inc()
}

// RecordFinalization increments the day-finalize outcome counter and, on
// success, adds distributedMicro to the cumulative rewards counter.
func RecordFinalization(outcome string, distributedMicro int64) {
	dayFinalizations.WithLabelValues(outcome).Inc()
	if distributedMicro > 0 {
		rewardsDistributedMicro.Add(float64(distributedMicro))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses path-parameter segments so request-count cardinality
// stays bounded regardless of how many distinct accountIds are served.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "accounts" {
		return "/" + strings.Join(parts, "/")
	}
	if len(parts) == 1 {
		return "/accounts"
	}
	if len(parts) == 2 {
		return "/accounts/:id"
	}
	return "/accounts/:id/" + parts[2]
}
