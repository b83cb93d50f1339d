package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_total",
		Help: "Total number of committed order status transitions",
	}, []string{"from", "to"})

	OrderTransitionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_transitions_rejected_total",
		Help: "Total number of rejected order lifecycle operations",
	}, []string{"reason"})

	OrdersCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	}, []string{"actor_kind"})

	OrdersReturnedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_returned_total",
		Help: "Total number of returned orders",
	})

	StockRestoredUnits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_restored_units_total",
		Help: "Total units returned to inventory by cancellations and returns",
	})

	StockAdjustmentsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_adjustments_failed_total",
		Help: "Total number of failed stock adjustments",
	}, []string{"reason"})

	StockAdjustLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_adjust_latency_seconds",
		Help:    "Latency of stock adjustments",
		Buckets: prometheus.DefBuckets,
	})

	AutoCancelRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auto_cancel_runs_total",
		Help: "Total number of auto-cancel sweeps",
	}, []string{"result"})

	AutoCancelOrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auto_cancel_orders_total",
		Help: "Orders processed by auto-cancel sweeps",
	}, []string{"outcome"})

	PaymentUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_payment_updates_total",
		Help: "Total number of payment status updates",
	}, []string{"status"})

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
