package poll

import "github.com/prometheus/client_golang/prometheus"

var (
	pollSuccess = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "honairco_poll_success_total",
			Help: "Successful state polls per device",
		},
		[]string{"mac"},
	)
	pollFailure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "honairco_poll_failure_total",
			Help: "Failed state polls per device by reason",
		},
		[]string{"mac", "reason"},
	)
	pollSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "honairco_poll_suppressed_total",
			Help: "Polls skipped inside a command settle window",
		},
		[]string{"mac"},
	)
	deviceAvailable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "honairco_device_available",
			Help: "Device availability (1=available, 0=unavailable)",
		},
		[]string{"mac"},
	)
)

// MetricsCollectors returns collectors for the poll coordinators.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		pollSuccess,
		pollFailure,
		pollSuppressed,
		deviceAvailable,
	}
}
