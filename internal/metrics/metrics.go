// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trafficwatch"

// Registry holds every trafficwatch collector.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// Requests counts interceptor outcomes: admitted, blocked.
	Requests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Requests seen by the interceptor by outcome.",
	}, []string{"outcome"})

	RateLimitDecisions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ratelimit_decisions_total",
		Help:      "Rate limit decisions by group and result.",
	}, []string{"group", "result"})

	RateLimitStoreErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ratelimit_store_errors_total",
		Help:      "Counter store failures that were allowed through.",
	})

	GeoLookups = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "geolocation_lookups_total",
		Help:      "Geolocation resolutions by result (skipped, hit, negative_hit, success, failure).",
	}, []string{"result"})

	GeoProviderDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "geolocation_provider_seconds",
		Help:      "Latency of geolocation provider calls.",
		Buckets:   prometheus.DefBuckets,
	})

	TrafficLogFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "traffic_log_failures_total",
		Help:      "Traffic records that could not be written.",
	})

	BlockCheckFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "block_check_failures_total",
		Help:      "Block list lookups that failed and were admitted.",
	})

	ScanDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "anomaly_scan_seconds",
		Help:      "Duration of anomaly scans.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	})

	ScanFlagged = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "anomaly_flagged_total",
		Help:      "Addresses flagged by the anomaly scanner by reason.",
	}, []string{"reason"})

	ActiveSuspicions = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_suspicions",
		Help:      "Active suspicion records after the last scan.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
