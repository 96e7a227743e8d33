// Package metrics exposes Prometheus collectors for the profile crawler.
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
	crawlerPostsVisitedTotal   *prometheus.CounterVec
	crawlerPostsRecordedTotal  *prometheus.CounterVec
	crawlerCommentsTotal       *prometheus.CounterVec
	crawlerFieldsAbsentTotal   *prometheus.CounterVec
	crawlerStopsTotal          *prometheus.CounterVec
	crawlerDurationSeconds     *prometheus.HistogramVec
	crawlerLoadMoreRounds      prometheus.Histogram
	crawlerRunsTotal           *prometheus.CounterVec
	crawlerRateLimitDelay      prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPostsVisitedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_posts_visited_total",
				Help: "Total number of posts opened, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerPostsRecordedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_posts_recorded_total",
				Help: "Total number of post records emitted, labeled by site and window membership.",
			},
			[]string{"site", "in_window"},
		)

		crawlerCommentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_comments_total",
				Help: "Total number of comments collected, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerFieldsAbsentTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fields_absent_total",
				Help: "Total number of post fields that could not be extracted, labeled by field.",
			},
			[]string{"field"},
		)

		crawlerStopsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_stops_total",
				Help: "Total number of finished walks, labeled by stop reason.",
			},
			[]string{"reason"},
		)

		crawlerDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_walk_duration_seconds",
				Help:    "Histogram of profile walk durations, labeled by stop reason.",
				Buckets: []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"reason"},
		)

		crawlerLoadMoreRounds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_load_more_rounds",
				Help:    "Histogram of load-more clicks needed to exhaust a comment list.",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
			},
		)

		crawlerRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_runs_total",
				Help: "Total number of runs processed, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerRateLimitDelay = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delay_seconds",
				Help:    "Histogram of time spent waiting for the page action budget.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
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

// ObservePostVisited counts a post opened during a walk.
func ObservePostVisited(postURL string) {
	Init()
	crawlerPostsVisitedTotal.WithLabelValues(SanitizeSite(postURL)).Inc()
}

// ObservePostRecorded counts an emitted record and its comments.
func ObservePostRecorded(postURL string, inWindow bool, comments int) {
	Init()
	site := SanitizeSite(postURL)
	crawlerPostsRecordedTotal.WithLabelValues(site, strconv.FormatBool(inWindow)).Inc()
	if comments > 0 {
		crawlerCommentsTotal.WithLabelValues(site).Add(float64(comments))
	}
}

// ObserveFieldAbsent counts a field that fell back to its sentinel.
func ObserveFieldAbsent(field string) {
	Init()
	crawlerFieldsAbsentTotal.WithLabelValues(field).Inc()
}

// ObserveCrawlStop records why and after how long a walk ended.
func ObserveCrawlStop(reason string, duration time.Duration) {
	Init()
	crawlerStopsTotal.WithLabelValues(reason).Inc()
	crawlerDurationSeconds.WithLabelValues(reason).Observe(duration.Seconds())
}

// ObserveLoadMoreRounds records how many load-more clicks a comment list took.
func ObserveLoadMoreRounds(rounds int) {
	Init()
	crawlerLoadMoreRounds.Observe(float64(rounds))
}

// ObserveRun increments the run counter for the given status.
func ObserveRun(status string) {
	Init()
	crawlerRunsTotal.WithLabelValues(status).Inc()
}

// ObserveRateLimitDelay records how long an action waited for its token.
func ObserveRateLimitDelay(d time.Duration) {
	Init()
	crawlerRateLimitDelay.Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
