package nsx

// TransportZone is the backend-side grouping of hypervisors sharing a
// fabric. TransportType is VLAN or OVERLAY; HostSwitchMode STANDARD or ENS.
type TransportZone struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	TransportType  string `json:"transport_type"`
	HostSwitchMode string `json:"host_switch_mode"`
}

// LogicalSwitch is the backend realization of a network.
type LogicalSwitch struct {
	ID              string `json:"id"`
	DisplayName     string `json:"display_name"`
	TransportZoneID string `json:"transport_zone_id"`
	AdminState      string `json:"admin_state"`
	VlanID          *int   `json:"vlan,omitempty"`
}

// LogicalPort is a port on a logical switch.
type LogicalPort struct {
	ID              string `json:"id"`
	LogicalSwitchID string `json:"logical_switch_id"`
}

// DhcpServer is a backend-hosted DHCP service.
type DhcpServer struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// DhcpStaticBinding is a per-port binding under a DHCP server.
type DhcpStaticBinding struct {
	ID string `json:"id"`
}
