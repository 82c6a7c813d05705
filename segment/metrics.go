package segment

import "github.com/prometheus/client_golang/prometheus"

const physicalNetworkLabel = "physical_network"

var (
	vlanPoolSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ncp_vlan_pool_size",
			Help: "Number of VLAN tags configured for the physical network.",
		},
		[]string{physicalNetworkLabel},
	)
	vlanUsedCount = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ncp_vlan_used_tags",
			Help: "Number of VLAN tags currently bound on the physical network.",
		},
		[]string{physicalNetworkLabel},
	)
	allocationCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ncp_vlan_allocations_total",
			Help: "Count of successful VLAN tag allocations.",
		},
		[]string{physicalNetworkLabel},
	)
	allocationExhausted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ncp_vlan_allocation_exhausted_total",
			Help: "Count of allocations that failed with an exhausted pool.",
		},
		[]string{physicalNetworkLabel},
	)
)

func init() {
	prometheus.MustRegister(
		vlanPoolSize,
		vlanUsedCount,
		allocationCount,
		allocationExhausted,
	)
}

func observePool(physicalNetwork string, pool, used int) {
	vlanPoolSize.WithLabelValues(physicalNetwork).Set(float64(pool))
	vlanUsedCount.WithLabelValues(physicalNetwork).Set(float64(used))
}
