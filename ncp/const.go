package ncp

// Network types accepted through the provider-network API.
const (
	NetworkTypeFlat       = "flat"
	NetworkTypeVLAN       = "vlan"
	NetworkTypeGeneve     = "geneve"
	NetworkTypeL3Ext      = "l3_ext"
	NetworkTypeNsxNetwork = "nsx-net"
)

// Legal VLAN tag bounds. Flat networks are recorded with tag 0 so that the
// binding row still reserves the switch.
const (
	MinVlanTag  = 1
	MaxVlanTag  = 4094
	FlatVlanTag = 0
)

// Device owners. Ports owned by anything under the network prefix are
// trusted and never carry port security.
const (
	DeviceOwnerNetworkPrefix   = "network:"
	DeviceOwnerComputePrefix   = "compute:"
	DeviceOwnerRouterInterface = "network:router_interface"
	DeviceOwnerRouterGateway   = "network:router_gateway"
	DeviceOwnerDHCP            = "network:dhcp"
	DeviceOwnerFloatingIP      = "network:floatingip"
	DeviceOwnerLoadBalancer    = "neutron:LOADBALANCERV2"
	DeviceOwnerVPN             = "neutron:VPNSERVICE"
)

// VNIC types. Direct and direct-physical passthrough ports cannot have
// security features applied on the backend.
const (
	VnicTypeNormal         = "normal"
	VnicTypeDirect         = "direct"
	VnicTypeDirectPhysical = "direct-physical"
)

// Transport zone metadata as reported by the backend.
const (
	TransportTypeVlan    = "VLAN"
	TransportTypeOverlay = "OVERLAY"

	HostSwitchModeStandard = "STANDARD"
	HostSwitchModeEns      = "ENS"
)

// IsTrustedOwner reports whether the device owner denotes a plugin-managed
// service port (router interface/gateway, DHCP, floating IP).
func IsTrustedOwner(deviceOwner string) bool {
	return len(deviceOwner) >= len(DeviceOwnerNetworkPrefix) &&
		deviceOwner[:len(DeviceOwnerNetworkPrefix)] == DeviceOwnerNetworkPrefix
}

// IsComputeOwner reports whether the device owner denotes an instance port.
func IsComputeOwner(deviceOwner string) bool {
	return len(deviceOwner) >= len(DeviceOwnerComputePrefix) &&
		deviceOwner[:len(DeviceOwnerComputePrefix)] == DeviceOwnerComputePrefix
}

// IsDirectVnic reports whether the vnic type requires port security to be
// forced off.
func IsDirectVnic(vnicType string) bool {
	return vnicType == VnicTypeDirect || vnicType == VnicTypeDirectPhysical
}
