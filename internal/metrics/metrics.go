package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatcore_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Rooms and messages
	RoomsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_rooms_created_total",
			Help: "Rooms created",
		},
		[]string{"scope"},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_messages_sent_total",
			Help: "Messages committed together with their room preview",
		},
		[]string{"content_type"},
	)

	SendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_send_failures_total",
			Help: "Failed message sends",
		},
		[]string{"reason"}, // "conflict", "upload", "room_missing", "other"
	)

	Uploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_uploads_total",
			Help: "Attachment uploads",
		},
		[]string{"result"},
	)

	// Live queries
	ActiveSubscriptions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chatcore_active_subscriptions",
			Help: "Live subscriptions currently open",
		},
		[]string{"kind"},
	)

	SnapshotsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_snapshots_delivered_total",
			Help: "Snapshots handed to subscribers",
		},
		[]string{"kind"},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatcore_ws_connections",
			Help: "Open websocket connections",
		},
	)

	PushNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatcore_push_notifications_total",
			Help: "Push notification envelopes published",
		},
		[]string{"result"},
	)
)
