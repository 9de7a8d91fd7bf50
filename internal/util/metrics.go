package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UsersRegisteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookstore_users_registered_total",
		Help: "Total number of accounts registered",
	})

	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_logins_total",
		Help: "Login attempts by outcome",
	}, []string{"outcome"})

	BookCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_book_cache_total",
		Help: "Book detail cache lookups by result",
	}, []string{"result"})

	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_cart_mutations_total",
		Help: "Cart mutations by operation",
	}, []string{"operation"})

	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_orders_created_total",
		Help: "Total number of orders created, by source",
	}, []string{"source"})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_orders_failed_total",
		Help: "Total number of rejected order attempts",
	}, []string{"reason"})

	StockConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookstore_stock_conflicts_total",
		Help: "Orders or payments rejected for insufficient stock",
	})

	PaymentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookstore_payment_attempts_total",
		Help: "Total number of payment attempts",
	})

	PaymentSuccessTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_payment_success_total",
		Help: "Total number of successful payments, by method",
	}, []string{"method"})

	PaymentFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_payment_failed_total",
		Help: "Total number of failed payments",
	}, []string{"reason"})

	PaymentProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bookstore_payment_processing_latency_seconds",
		Help:    "Latency of payment processing",
		Buckets: prometheus.DefBuckets,
	})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_notifications_sent_total",
		Help: "Emails sent by kind and outcome",
	}, []string{"kind", "outcome"})

	SweptRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookstore_swept_records_total",
		Help: "Rows removed by the expiry sweeper",
	}, []string{"kind"})

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
