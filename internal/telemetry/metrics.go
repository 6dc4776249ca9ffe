package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration records request latency by method/route/status.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "vqueue",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// SessionsEnqueuedTotal counts successful enqueue operations by queue.
var SessionsEnqueuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vqueue",
		Subsystem: "sessions",
		Name:      "enqueued_total",
		Help:      "Total number of sessions admitted to Waiting.",
	},
	[]string{"queue_id"},
)

// SessionsReleasedTotal counts sessions transitioned to Released by the releaser.
var SessionsReleasedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vqueue",
		Subsystem: "sessions",
		Name:      "released_total",
		Help:      "Total number of sessions released by the queue engine.",
	},
	[]string{"queue_id"},
)

// SessionsDroppedTotal counts sessions transitioned to Dropped, by reason.
var SessionsDroppedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vqueue",
		Subsystem: "sessions",
		Name:      "dropped_total",
		Help:      "Total number of sessions dropped, by reason.",
	},
	[]string{"queue_id", "reason"},
)

// QueueDepth reports the current Waiting count per queue.
var QueueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "vqueue",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Current number of Waiting sessions in the queue.",
	},
	[]string{"queue_id"},
)

// ReleaseLagSeconds reports how far last_release_at has drifted from now.
var ReleaseLagSeconds = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "vqueue",
		Subsystem: "queue",
		Name:      "release_lag_seconds",
		Help:      "Seconds since the releaser last advanced last_release_at.",
	},
	[]string{"queue_id"},
)

// NotificationsDeliveredTotal counts fan-out attempts by channel and outcome.
var NotificationsDeliveredTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vqueue",
		Subsystem: "notify",
		Name:      "delivered_total",
		Help:      "Total notification delivery attempts by channel and outcome.",
	},
	[]string{"channel", "outcome"},
)

// RateLimitDeniedTotal counts requests denied by the rate limiter.
var RateLimitDeniedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vqueue",
		Subsystem: "ratelimit",
		Name:      "denied_total",
		Help:      "Total number of requests denied by the rate limiter.",
	},
	[]string{"scope"},
)

// All returns every vqueue-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		SessionsEnqueuedTotal,
		SessionsReleasedTotal,
		SessionsDroppedTotal,
		QueueDepth,
		ReleaseLagSeconds,
		NotificationsDeliveredTotal,
		RateLimitDeniedTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process
// collectors plus the given application collectors.
func NewMetricsRegistry(collectors ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	for _, c := range collectors {
		reg.MustRegister(c)
	}
	return reg
}
