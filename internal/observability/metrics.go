package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Control API metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Control API request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of control API requests",
		},
		[]string{"method", "path", "status"},
	)

	// Backend API metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_request_duration_seconds",
			Help:    "Backend API request latency in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path", "outcome"},
	)

	APIInlineRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_inline_refresh_total",
			Help: "Inline token refreshes triggered by 401 responses",
		},
		[]string{"result"},
	)

	// Session metrics
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_token_refresh_total",
			Help: "Token refresh attempts by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	SessionAuthenticated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_authenticated",
			Help: "1 while the session is authenticated",
		},
	)

	// Notification channel metrics
	ChannelState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notification_channel_state",
			Help: "1 for the channel's current state, 0 otherwise",
		},
		[]string{"state"},
	)

	ChannelReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_channel_reconnects_total",
			Help: "Scheduled reconnect attempts of the notification channel",
		},
	)

	ChannelMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_channel_messages_total",
			Help: "Inbound channel messages by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	NotificationsUnread = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifications_unread",
			Help: "Number of unread notifications",
		},
	)

	// UI push metrics
	StateSubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "state_subscribers_active",
			Help: "Number of UI clients subscribed to state pushes",
		},
	)
)
