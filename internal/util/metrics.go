package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuotesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pricing_quotes_total",
		Help: "Total number of pricing quotes computed",
	})

	QuotesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_quotes_failed_total",
		Help: "Total number of failed pricing quotes",
	}, []string{"reason"})

	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	}, []string{"path"})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	OversellAbortsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_oversell_aborts_total",
		Help: "Order transactions aborted by the conditional stock decrement",
	})

	PaymentVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_verifications_total",
		Help: "Signature verifications on the synchronous gateway",
	}, []string{"result"})

	CallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callbacks_total",
		Help: "Asynchronous gateway callbacks handled",
	}, []string{"outcome"})

	DuplicateCallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_callbacks_duplicate_total",
		Help: "Callbacks that found the order already finalized",
	})

	RefundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refunds_total",
		Help: "Refunds processed",
	}, []string{"result"})

	PendingOrdersSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pending_orders_swept_total",
		Help: "Stale pending orders cancelled by the sweeper",
	})

	GatewayRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_latency_seconds",
		Help:    "Latency of outbound payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"gateway", "operation"})

	NotificationsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_published_total",
		Help: "Notification events published to the broker",
	}, []string{"type"})

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
