// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery results recorded by RealtimeDeliveries.
const (
	DeliveryDelivered = "delivered"
	DeliveryOffline   = "offline"
	DeliveryDropped   = "dropped"
)

// Presence and realtime metrics
var (
	// PresenceOnlineUsers is the number of user ids currently registered in presence.
	PresenceOnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_online_users",
			Help: "Number of users with a registered realtime connection",
		},
	)

	// RealtimeConnections counts live WebSocket connections, registered or anonymous.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections",
			Help: "Number of live realtime connections",
		},
	)

	// RealtimeDeliveries counts Deliver calls by outcome.
	RealtimeDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_deliveries_total",
			Help: "Targeted event deliveries by result (delivered/offline/dropped)",
		},
		[]string{"result"},
	)

	// RealtimeBroadcasts counts online-set broadcasts.
	RealtimeBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_broadcasts_total",
			Help: "Total broadcasts fanned out to all connections",
		},
	)

	// RealtimePushFailures counts frames that could not be queued on a connection.
	RealtimePushFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_push_failures_total",
			Help: "Frames dropped because the connection queue was full or closed",
		},
	)
)

// Message metrics
var (
	// MessagesSent counts messages persisted through the send endpoint.
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Total direct messages persisted",
		},
	)
)
