package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the signaling service
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Signaling relay metrics
	signalsRelayedTotal  *prometheus.CounterVec
	signalsRejectedTotal *prometheus.CounterVec

	// WebSocket / realtime metrics
	websocketConnections prometheus.Gauge
	channelSubscriptions *prometheus.GaugeVec
	messagesDelivered    *prometheus.CounterVec

	// Call metrics
	callOutcomesTotal *prometheus.CounterVec
	callDuration      prometheus.Histogram

	// Push notification metrics
	pushSentTotal   *prometheus.CounterVec
	pushFailedTotal *prometheus.CounterVec
}

// NewMetrics creates all metrics on a dedicated registry
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": serviceName}

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: constLabels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: constLabels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: constLabels,
			},
		),
		signalsRelayedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signals_relayed_total",
				Help:        "Signaling messages accepted and published, by type",
				ConstLabels: constLabels,
			},
			[]string{"signal_type", "call_type"},
		),
		signalsRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signals_rejected_total",
				Help:        "Signaling requests rejected by the relay, by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		websocketConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Currently open realtime WebSocket connections",
				ConstLabels: constLabels,
			},
		),
		channelSubscriptions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "channel_subscriptions",
				Help:        "Active broadcast channel subscriptions, by channel kind",
				ConstLabels: constLabels,
			},
			[]string{"kind"},
		),
		messagesDelivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "realtime_messages_delivered_total",
				Help:        "Broadcast messages delivered to subscribers",
				ConstLabels: constLabels,
			},
			[]string{"event"},
		),
		callOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_outcomes_total",
				Help:        "Recorded call outcomes",
				ConstLabels: constLabels,
			},
			[]string{"outcome", "call_type"},
		),
		callDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:        "call_duration_seconds",
				Help:        "Duration of completed calls in seconds",
				ConstLabels: constLabels,
				Buckets:     []float64{10, 30, 60, 180, 600, 1800, 3600},
			},
		),
		pushSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_notifications_sent_total",
				Help:        "Push notifications sent, by platform",
				ConstLabels: constLabels,
			},
			[]string{"platform"},
		),
		pushFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_notifications_failed_total",
				Help:        "Push notifications that failed to send, by platform",
				ConstLabels: constLabels,
			},
			[]string{"platform"},
		),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.httpRequestsInFlight,
		m.signalsRelayedTotal,
		m.signalsRejectedTotal,
		m.websocketConnections,
		m.channelSubscriptions,
		m.messagesDelivered,
		m.callOutcomesTotal,
		m.callDuration,
		m.pushSentTotal,
		m.pushFailedTotal,
	)

	return m
}

// GetRegistry returns the dedicated registry for the /metrics endpoint
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records one completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the in-flight request gauge
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the in-flight request gauge
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// RecordSignalRelayed records one accepted relay publish
func (m *Metrics) RecordSignalRelayed(signalType, callType string) {
	m.signalsRelayedTotal.WithLabelValues(signalType, callType).Inc()
}

// RecordSignalRejected records one rejected relay request
func (m *Metrics) RecordSignalRejected(reason string) {
	m.signalsRejectedTotal.WithLabelValues(reason).Inc()
}

// WebSocketConnected tracks an opened realtime connection
func (m *Metrics) WebSocketConnected() {
	m.websocketConnections.Inc()
}

// WebSocketDisconnected tracks a closed realtime connection
func (m *Metrics) WebSocketDisconnected() {
	m.websocketConnections.Dec()
}

// ChannelSubscribed tracks a new channel subscription
func (m *Metrics) ChannelSubscribed(kind string) {
	m.channelSubscriptions.WithLabelValues(kind).Inc()
}

// ChannelUnsubscribed tracks a dropped channel subscription
func (m *Metrics) ChannelUnsubscribed(kind string) {
	m.channelSubscriptions.WithLabelValues(kind).Dec()
}

// RecordMessageDelivered records one broadcast delivery to a subscriber
func (m *Metrics) RecordMessageDelivered(event string) {
	m.messagesDelivered.WithLabelValues(event).Inc()
}

// RecordCallOutcome records a finished call and its duration
func (m *Metrics) RecordCallOutcome(outcome, callType string, duration time.Duration) {
	m.callOutcomesTotal.WithLabelValues(outcome, callType).Inc()
	if duration > 0 {
		m.callDuration.Observe(duration.Seconds())
	}
}

// RecordPushSent records a successfully sent push notification
func (m *Metrics) RecordPushSent(platform string) {
	m.pushSentTotal.WithLabelValues(platform).Inc()
}

// RecordPushFailed records a failed push notification
func (m *Metrics) RecordPushFailed(platform string) {
	m.pushFailedTotal.WithLabelValues(platform).Inc()
}
