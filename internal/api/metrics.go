package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics
var (
	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_webhook_events_total",
		Help: "Webhook deliveries by event type and outcome",
	}, []string{"event_type", "outcome"})

	webhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payments_webhook_duration_seconds",
		Help:    "Webhook processing latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"event_type"})

	paymentIntentsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_intents_created_total",
		Help: "Payment intents created by outcome",
	}, []string{"outcome"})
)
