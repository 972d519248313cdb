// Package metrics defines the TalkDesk Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesSent counts persisted messages by addressing mode
	// ("direct" or "conversation").
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "talkdesk",
		Subsystem: "chat",
		Name:      "messages_sent_total",
		Help:      "Messages persisted, by addressing mode.",
	}, []string{"mode"})

	// PushesDelivered counts envelopes enqueued to a live connection.
	PushesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "talkdesk",
		Subsystem: "realtime",
		Name:      "pushes_delivered_total",
		Help:      "Envelopes enqueued to live connections.",
	})

	// PushesDropped counts envelopes dropped due to backpressure or a
	// connection shutting down mid-push.
	PushesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "talkdesk",
		Subsystem: "realtime",
		Name:      "pushes_dropped_total",
		Help:      "Envelopes dropped instead of blocking a fan-out.",
	})

	// OpenConnections tracks currently open websocket connections.
	OpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "talkdesk",
		Subsystem: "realtime",
		Name:      "open_connections",
		Help:      "Currently open websocket connections.",
	})

	// OnlineUsers tracks users with at least one open connection.
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "talkdesk",
		Subsystem: "presence",
		Name:      "online_users",
		Help:      "Users with at least one open connection.",
	})

	// ThreadsMarkedSeen counts read-marker mutations by thread kind.
	ThreadsMarkedSeen = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "talkdesk",
		Subsystem: "chat",
		Name:      "threads_marked_seen_total",
		Help:      "Thread read-marker mutations, by thread kind.",
	}, []string{"kind"})
)
