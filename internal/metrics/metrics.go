// Package metrics declares the Prometheus collectors of the service. They are
// registered on the default registry and exposed by the HTTP server on
// /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline record outcomes.
const (
	ResultDelivered = "delivered"
	ResultNoMatch   = "no_match"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
)

var (
	// SlackUsers counts Slack users seen for the first time.
	SlackUsers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "slack_users_total",
		Help: "Slack users inserted into the store.",
	})

	// PipelineRecords counts consumed event records by outcome.
	PipelineRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_records_total",
		Help: "Event records processed by the notification pipeline.",
	}, []string{"result"})

	// PipelineNotifications counts notifications acknowledged by the broker.
	PipelineNotifications = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_notifications_total",
		Help: "Notifications produced to the notification topic.",
	})

	// PipelineRecordDuration observes fetch-to-commit time of one record.
	PipelineRecordDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_record_duration_seconds",
		Help:    "Time spent matching, producing and committing one event record.",
		Buckets: prometheus.DefBuckets,
	})

	// LifecycleEvents counts watch lifecycle events by kind.
	LifecycleEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_events_total",
		Help: "Repository watch lifecycle events published.",
	}, []string{"kind"})

	// GitHubRequests counts repository lookups by outcome.
	GitHubRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "github_requests_total",
		Help: "GitHub repository lookups by outcome.",
	}, []string{"outcome"})

	httpReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	httpLat = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

func init() {
	prometheus.MustRegister(
		SlackUsers,
		PipelineRecords,
		PipelineNotifications,
		PipelineRecordDuration,
		LifecycleEvents,
		GitHubRequests,
		httpReqs,
		httpLat,
	)
}

// HTTP instruments requests by chi route pattern, which keeps the path label
// bounded. Unmatched requests fall back to the raw path.
func HTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpReqs.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpLat.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
