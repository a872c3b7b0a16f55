package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "keyforge", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "keyforge", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
	KeysGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "keyforge", Name: "keys_generated_total", Help: "Number of license keys inserted into external collections."},
	)
	IntegrationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "keyforge", Name: "integration_errors_total", Help: "Number of failed external database operations by kind."},
		[]string{"kind"},
	)
	GatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "keyforge", Name: "gateway_requests_total", Help: "Number of payment gateway calls by operation and outcome."},
		[]string{"operation", "outcome"},
	)
	PushDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "keyforge", Name: "push_deliveries_total", Help: "Number of web push sends by outcome."},
		[]string{"outcome"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(KeysGenerated)
	reg.MustRegister(IntegrationErrors)
	reg.MustRegister(GatewayRequests)
	reg.MustRegister(PushDeliveries)
}
