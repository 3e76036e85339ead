package auth

import "github.com/prometheus/client_golang/prometheus"

var (
	refreshSuccess = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "honairco_auth_refresh_success_total",
			Help: "Successful session refreshes",
		},
	)
	refreshFailure = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "honairco_auth_refresh_failure_total",
			Help: "Failed session refreshes",
		},
	)
	exchangeFailure = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "honairco_auth_exchange_failure_total",
			Help: "Failed token-exchange calls",
		},
	)
	tokenValid = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "honairco_auth_token_valid",
			Help: "Session token validity (1=valid, 0=invalid)",
		},
	)
	remotePersistOK = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "honairco_auth_remote_persist_ok",
			Help: "Remote blob persistence health (1=ok, 0=error)",
		},
	)
)

// MetricsCollectors returns collectors for the session module.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		refreshSuccess,
		refreshFailure,
		exchangeFailure,
		tokenValid,
		remotePersistOK,
	}
}
