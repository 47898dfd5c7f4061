package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Predictions counts completed predictions by predicted class and
	// by source (model|fallback).
	Predictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dermalens_predictions_total",
			Help: "Total number of completed predictions",
		},
		[]string{"class", "source"},
	)

	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dermalens_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// NotificationsSent counts outbound notifications by channel (email|sms)
	// and result (success|failure).
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dermalens_notifications_sent_total",
			Help: "Total number of notification delivery attempts",
		},
		[]string{"channel", "result"},
	)

	// OTPVerifications counts OTP verification attempts by outcome.
	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dermalens_otp_verifications_total",
			Help: "Total number of OTP verification attempts",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dermalens_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
