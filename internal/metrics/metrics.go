// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchPagesTotal            *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	entitiesMergedTotal        *prometheus.CounterVec
	edgesLinkedTotal           *prometheus.CounterVec
	resolverOutcomesTotal      *prometheus.CounterVec
	crawlStepsTotal            *prometheus.CounterVec
	newsSavedTotal             *prometheus.CounterVec
	activeSources              prometheus.Gauge
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times.
func Init() {
	once.Do(func() {
		fetchPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "politylink_fetch_pages_total",
				Help: "Total number of pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "politylink_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "politylink_http_requests_total",
				Help: "Total number of HTTP requests served, labeled by method, route and code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "politylink_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		entitiesMergedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "politylink_entities_merged_total",
				Help: "Total number of entities merged into the graph, labeled by kind.",
			},
			[]string{"kind"},
		)

		edgesLinkedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "politylink_edges_linked_total",
				Help: "Total number of relationships merged, labeled by relation.",
			},
			[]string{"relation"},
		)

		resolverOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "politylink_resolver_outcomes_total",
				Help: "Resolver lookups, labeled by registry kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		crawlStepsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "politylink_crawl_steps_total",
				Help: "Crawl steps executed, labeled by source and status.",
			},
			[]string{"source", "status"},
		)

		newsSavedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "politylink_news_saved_total",
				Help: "News articles processed by the dual-sink writer, labeled by status.",
			},
			[]string{"status"},
		)

		activeSources = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "politylink_active_sources",
				Help: "Number of source loops currently running.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "politylink_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch counts a fetched page and its size.
func ObserveFetch(site string, status string, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	fetchPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics. route is the
// matched pattern, never the raw path, to bound label cardinality.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveMerged adds n merged entities of kind.
func ObserveMerged(kind string, n int) {
	Init()
	if n > 0 {
		entitiesMergedTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// ObserveLinked adds n merged relationships of relation.
func ObserveLinked(relation string, n int) {
	Init()
	if n > 0 {
		edgesLinkedTotal.WithLabelValues(relation).Add(float64(n))
	}
}

// ObserveResolve counts one resolver outcome.
func ObserveResolve(kind, outcome string) {
	Init()
	resolverOutcomesTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveStep counts one crawl step of source.
func ObserveStep(source, status string) {
	Init()
	crawlStepsTotal.WithLabelValues(source, status).Inc()
}

// ObserveNews counts one dual-sink save attempt.
func ObserveNews(status string) {
	Init()
	newsSavedTotal.WithLabelValues(status).Inc()
}

// IncActiveSources increments the running sources gauge.
func IncActiveSources() {
	Init()
	activeSources.Inc()
}

// DecActiveSources decrements the running sources gauge.
func DecActiveSources() {
	Init()
	activeSources.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
