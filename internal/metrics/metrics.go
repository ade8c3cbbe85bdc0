package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "sirihub"

var (
	MessagesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of inbound protocol messages, labeled by payload variant.",
		},
		[]string{"variant"},
	)

	ObjectsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_ingested_total",
			Help:      "Total number of records added or updated in the data stores, labeled by data kind.",
		},
		[]string{"kind"},
	)

	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of outbound protocol requests, labeled by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	DeliveryErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_errors_total",
			Help:      "Total number of per-kind deliveries that reported a failed status.",
		},
		[]string{"kind"},
	)

	RateLimitHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of inbound messages rejected by the rate limiter, labeled by subscription.",
		},
		[]string{"subscription"},
	)

	SubscriptionHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscription_healthy",
			Help:      "Health of each active subscription as evaluated on the last trigger tick (1 healthy, 0 unhealthy).",
		},
		[]string{"subscription", "vendor"},
	)
)

func init() {
	prometheus.MustRegister(
		MessagesReceivedTotal,
		ObjectsIngestedTotal,
		ProviderRequestsTotal,
		DeliveryErrorsTotal,
		RateLimitHitsTotal,
		SubscriptionHealthy,
	)
}
