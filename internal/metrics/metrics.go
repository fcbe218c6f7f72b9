package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caretalk_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "caretalk_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Routing metrics
	SessionsLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "caretalk_sessions_live",
			Help: "Currently registered connection sessions",
		},
	)

	EventsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caretalk_events_routed_total",
			Help: "Inbound events accepted by the router",
		},
		[]string{"kind"},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caretalk_events_rejected_total",
			Help: "Inbound events rejected by the router",
		},
		[]string{"reason"},
	)

	BroadcastsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "caretalk_broadcast_deliveries_total",
			Help: "Envelope deliveries enqueued to subscribers",
		},
	)

	SubscribersDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "caretalk_subscribers_dropped_total",
			Help: "Subscribers disconnected for overflowing their outbound queue",
		},
	)

	CallTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caretalk_call_transitions_total",
			Help: "Call signaling state transitions",
		},
		[]string{"state"},
	)

	// Persistence metrics
	EnvelopesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "caretalk_envelopes_persisted_total",
			Help: "Envelopes written to the history store",
		},
	)

	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "caretalk_persist_failures_total",
			Help: "Envelope history writes that failed (degraded durability)",
		},
	)

	// Upload metrics
	UploadsStaged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "caretalk_uploads_staged_total",
			Help: "Upload tickets staged",
		},
	)

	UploadsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "caretalk_uploads_completed_total",
			Help: "Uploads acknowledged by the media store",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caretalk_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
