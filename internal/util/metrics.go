package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_created_total",
		Help: "Total number of sales created",
	})

	SalesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_deleted_total",
		Help: "Total number of sales reversed and deleted",
	})

	SalesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_failed_total",
		Help: "Total number of rejected or failed sale creations",
	}, []string{"reason"})

	SaleRevenueTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sale_revenue_total",
		Help: "Sum of the totals of created sales",
	})

	SaleUnitsSoldTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sale_units_sold_total",
		Help: "Total number of stock units debited by sales",
	})

	SaleTransactionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sale_transaction_latency_seconds",
		Help:    "Latency of sale create/delete transactions",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	OtpIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otp_issued_total",
		Help: "Total number of one-time codes issued",
	}, []string{"purpose"})

	OtpVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "otp_verifications_total",
		Help: "Total number of one-time code verifications",
	}, []string{"purpose", "result"})

	OtpDeliveryFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otp_delivery_failed_total",
		Help: "Total number of one-time codes that could not be handed to the notification sink",
	})

	OtpPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "otp_purged_total",
		Help: "Total number of expired or used one-time codes removed by housekeeping",
	})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Total number of notification emails by outcome",
	}, []string{"result"})

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
