package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscriberGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_subscribers",
		Help: "Currently connected conversation subscribers.",
	})
	connectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_connects_total",
		Help: "Accepted conversation subscriptions, reconnects included.",
	})
	messagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_published_total",
		Help: "Messages accepted and broadcast by conversation rooms.",
	})
	publishRejectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_publish_rejects_total",
		Help: "Publishes rejected by validation or authorization.",
	})
)
