package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentOrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_orders_created_total",
		Help: "Total number of gateway orders created for checkout",
	})

	PaymentOrdersRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_orders_rejected_total",
		Help: "Total number of checkout attempts rejected before a gateway order was created",
	}, []string{"reason"})

	PaymentVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_verifications_total",
		Help: "Total number of payment verification attempts by outcome",
	}, []string{"outcome"})

	PaymentSignatureFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_signature_failures_total",
		Help: "Total number of payment callbacks with an invalid signature",
	})

	EnrollmentsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enrollments_created_total",
		Help: "Total number of completed enrollments written",
	})

	DuplicateEnrollmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_enrollments_total",
		Help: "Total number of enrollment writes rejected by the uniqueness guard",
	})

	GatewayRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_request_latency_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})

	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_refunds_total",
		Help: "Total number of refund requests by outcome",
	}, []string{"outcome"})

	NotificationsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_dispatched_total",
		Help: "Total number of notification events handled by the dispatcher by outcome",
	}, []string{"outcome"})

	NotificationQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notification_queue_depth",
		Help: "Number of notification events waiting to be published",
	})

	EmailsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emails_sent_total",
		Help: "Total number of notification emails by outcome",
	}, []string{"outcome"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
