package hon

import "github.com/prometheus/client_golang/prometheus"

var apiRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "honairco_api_requests_total",
		Help: "hOn API requests by endpoint and status class",
	},
	[]string{"endpoint", "status"},
)

// MetricsCollectors returns collectors for the cloud client.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{apiRequests}
}
