package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livetix",
		Name:      "messages_processed_total",
		Help:      "Total number of messages processed",
	}, []string{"topic", "handler"})

	MessagesProcessingFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livetix",
		Name:      "messages_processing_failed_total",
		Help:      "Total number of messages processing failures",
	}, []string{"topic", "handler"})

	MessagesProcessingDuration = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Namespace:  "livetix",
		Name:       "messages_processing_duration_seconds",
		Help:       "Duration of message processing in seconds",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"topic", "handler"})

	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livetix",
		Name:      "ticket_scans_total",
		Help:      "Ticket scans by result",
	}, []string{"result"})

	WebhooksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livetix",
		Name:      "stripe_webhooks_total",
		Help:      "Stripe webhooks by event type and outcome",
	}, []string{"type", "outcome"})

	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livetix",
		Name:      "orders_total",
		Help:      "Order placement attempts by outcome",
	}, []string{"outcome"})

	EmailsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "livetix",
		Name:      "emails_sent_total",
		Help:      "Emails handed to the email provider by kind",
	}, []string{"kind"})

	ReservationsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "livetix",
		Name:      "reservations_expired_total",
		Help:      "Pending orders expired by the reservation sweeper",
	})
)
