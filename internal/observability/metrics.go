// Package observability provides Prometheus metrics for the connector.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the connector.
type Metrics struct {
	// Session metrics
	Logins           *prometheus.CounterVec
	SessionRefreshes *prometheus.CounterVec

	// Search metrics
	PagesFetched *prometheus.CounterVec
	PostsFetched prometheus.Counter
	ParseErrors  prometheus.Counter
	PollDuration prometheus.Histogram

	// Buffer metrics
	BufferSize prometheus.Gauge
	Watermark  prometheus.Gauge

	// Emission metrics
	RecordsEmitted prometheus.Counter
	CursorCommits  *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "skytap"
	}

	return &Metrics{
		Logins: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "logins_total",
			Help:      "Total number of login attempts by result",
		}, []string{"result"}),
		SessionRefreshes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refreshes_total",
			Help:      "Total number of access token refreshes by result",
		}, []string{"result"}),

		PagesFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "pages_fetched_total",
			Help:      "Total number of search pages requested by result",
		}, []string{"result"}),
		PostsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "posts_fetched_total",
			Help:      "Total number of new posts accepted from search results",
		}),
		ParseErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "parse_errors_total",
			Help:      "Total number of posts skipped because they could not be parsed",
		}),
		PollDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "poll_duration_seconds",
			Help:      "Duration of a full paginated poll in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		BufferSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "buffer_size",
			Help:      "Number of fetched posts waiting to be drained",
		}),
		Watermark: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fetcher",
			Name:      "watermark_timestamp_seconds",
			Help:      "Creation time of the newest processed post as a unix timestamp",
		}),

		RecordsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "records_emitted_total",
			Help:      "Total number of records handed to the sink",
		}),
		CursorCommits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "cursor_commits_total",
			Help:      "Total number of cursor commits by result",
		}, []string{"result"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordLogin counts a login attempt.
func RecordLogin(result string) {
	DefaultMetrics.Logins.WithLabelValues(result).Inc()
}

// RecordSessionRefresh counts a background token refresh.
func RecordSessionRefresh(result string) {
	DefaultMetrics.SessionRefreshes.WithLabelValues(result).Inc()
}

// RecordPage counts a search page request.
func RecordPage(result string) {
	DefaultMetrics.PagesFetched.WithLabelValues(result).Inc()
}

// RecordPostsFetched adds n accepted posts.
func RecordPostsFetched(n int) {
	DefaultMetrics.PostsFetched.Add(float64(n))
}

// RecordParseError counts a skipped post.
func RecordParseError() {
	DefaultMetrics.ParseErrors.Inc()
}

// RecordPollDuration records how long a paginated poll took.
func RecordPollDuration(d time.Duration) {
	DefaultMetrics.PollDuration.Observe(d.Seconds())
}

// UpdateBufferSize sets the buffered post gauge.
func UpdateBufferSize(n int) {
	DefaultMetrics.BufferSize.Set(float64(n))
}

// UpdateWatermark sets the watermark gauge.
func UpdateWatermark(t time.Time) {
	DefaultMetrics.Watermark.Set(float64(t.Unix()))
}

// RecordEmitted adds n records handed to the sink.
func RecordEmitted(n int) {
	DefaultMetrics.RecordsEmitted.Add(float64(n))
}

// RecordCursorCommit counts a cursor commit.
func RecordCursorCommit(result string) {
	DefaultMetrics.CursorCommits.WithLabelValues(result).Inc()
}
