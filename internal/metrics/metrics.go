// Package metrics содержит метрики Prometheus сервиса проката.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal счётчик HTTP-запросов по маршруту, методу и статусу.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hireme_http_requests_total",
		Help: "The total number of HTTP requests",
	}, []string{"route", "method", "status"})

	// HTTPRequestDuration гистограмма времени обработки HTTP-запросов.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hireme_http_request_duration_seconds",
		Help:    "The HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	// LoginAttemptsTotal счётчик попыток входа по результату.
	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hireme_login_attempts_total",
		Help: "The total number of login attempts",
	}, []string{"result"})

	// OrdersCreatedTotal счётчик оформленных заказов по способу оплаты.
	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hireme_orders_created_total",
		Help: "The total number of created orders",
	}, []string{"payment_method"})

	// STKPushTotal счётчик запросов STK push по результату.
	STKPushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hireme_mpesa_stk_push_total",
		Help: "The total number of STK push requests",
	}, []string{"result"})

	// PaymentUpdatesTotal счётчик применённых результатов платежей по источнику и статусу.
	PaymentUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hireme_payment_updates_total",
		Help: "The total number of payment results applied to orders",
	}, []string{"source", "status"})

	// CallbacksTotal счётчик входящих callback M-Pesa по исходу обработки.
	CallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hireme_mpesa_callbacks_total",
		Help: "The total number of M-Pesa callbacks",
	}, []string{"outcome"})

	// NotificationsTotal счётчик попыток отправки писем по результату.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hireme_notifications_total",
		Help: "The total number of notification delivery attempts",
	}, []string{"kind", "result"})
)
