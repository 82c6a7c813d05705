package dhcp

import "github.com/prometheus/client_golang/prometheus"

var (
	enableCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ncp_dhcp_enable_total",
			Help: "Count of DHCP enable sequences started.",
		},
	)
	enableFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ncp_dhcp_enable_failures_total",
			Help: "Count of DHCP enable sequences that failed and were compensated.",
		},
	)
	disableCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ncp_dhcp_disable_total",
			Help: "Count of completed DHCP disable sequences.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		enableCount,
		enableFailures,
		disableCount,
	)
}
