package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metrics for the broadcast hub.
var (
	ConnectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_connections_total",
		Help: "Total number of WebSocket connections admitted",
	})

	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hub_connections_active",
		Help: "Current number of live WebSocket connections",
	})

	ConnectionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_connections_rejected_total",
		Help: "Total connection rejections by reason",
	}, []string{"reason"})

	ConnectionsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_connections_evicted_total",
		Help: "Total connections evicted to make room under the per-address quota",
	})

	MessagesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_messages_received_total",
		Help: "Total inbound frames received from clients",
	})

	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_messages_sent_total",
		Help: "Total frames written to clients",
	})

	RateLimitedMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_rate_limited_messages_total",
		Help: "Total inbound frames dropped by the message rate limiter",
	})

	EventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_events_published_total",
		Help: "Total domain events published by event type",
	}, []string{"type"})

	EventsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_events_delivered_total",
		Help: "Total event envelopes delivered to subscribers by event type",
	}, []string{"type"})

	DroppedDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_deliveries_total",
		Help: "Total deliveries dropped because a client send buffer was full",
	})

	DeadConnectionsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_dead_connections_swept_total",
		Help: "Total connections removed by the liveness sweep",
	})

	MemoryPressureWarnings = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_memory_pressure_warnings_total",
		Help: "Total memory pressure warnings emitted by the resource monitor",
	})

	MemoryHeapBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hub_memory_heap_bytes",
		Help: "Current Go heap usage in bytes",
	})

	MemoryRSSBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hub_memory_rss_bytes",
		Help: "Current process resident set size in bytes",
	})

	FeedConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hub_feed_connected",
		Help: "Event feed connection status (1=connected, 0=disconnected)",
	})

	FeedEventsReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_feed_events_received_total",
		Help: "Total events received from the event feed",
	})

	FeedEventsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hub_feed_events_rejected_total",
		Help: "Total feed messages dropped because they failed to decode",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		ConnectionsActive,
		ConnectionsRejected,
		ConnectionsEvicted,
		MessagesReceived,
		MessagesSent,
		RateLimitedMessages,
		EventsPublished,
		EventsDelivered,
		DroppedDeliveries,
		DeadConnectionsSwept,
		MemoryPressureWarnings,
		MemoryHeapBytes,
		MemoryRSSBytes,
		FeedConnected,
		FeedEventsReceived,
		FeedEventsRejected,
	)
}

// Handler returns the Prometheus scrape handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
