// Package metrics exposes the relay's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cipherroom_relay"

var (
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections",
		Help:      "Open websocket connections.",
	})

	MessagesInserted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_inserted_total",
		Help:      "Messages stored.",
	})

	RoomsCleared = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rooms_cleared_total",
		Help:      "Room-wide history deletions.",
	})

	Broadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcasts_total",
		Help:      "Ephemeral broadcasts relayed, by event name.",
	}, []string{"event"})

	SlowConsumers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "slow_consumers_total",
		Help:      "Connections dropped because their send queue was full.",
	})

	PresenceMembers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "presence_members",
		Help:      "Members attached to presence channels on this node.",
	})
)
