package rate

import "github.com/prometheus/client_golang/prometheus"

var (
	blockedRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "honairco_rate_blocked_total",
			Help: "Requests blocked by the client-side request budget",
		},
		[]string{"upstream", "reason"},
	)
	cooldownSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "honairco_rate_cooldown_seconds",
			Help: "Length of the most recent upstream-imposed cooldown",
		},
		[]string{"upstream"},
	)
)

// MetricsCollectors exposes the request-budget collectors.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		blockedRequests,
		cooldownSeconds,
	}
}
