package nsx

import "github.com/pkg/errors"

// CreateLogicalSwitchRequest realizes a network on the backend fabric.
type CreateLogicalSwitchRequest struct {
	DisplayName     string `json:"display_name"`
	TransportZoneID string `json:"transport_zone_id"`
	AdminState      string `json:"admin_state"`
	VlanID          *int   `json:"vlan,omitempty"`
}

// Validate ensures the request is suitable for submission.
func (c CreateLogicalSwitchRequest) Validate() error {
	if c.TransportZoneID == "" {
		return errors.New("transport zone id must not be empty")
	}
	return nil
}

// CreateLogicalPortRequest attaches an entity to a logical switch. For DHCP
// server attachments, AttachmentType is "DHCP_SERVICE" and AttachmentID the
// server id.
type CreateLogicalPortRequest struct {
	LogicalSwitchID string `json:"logical_switch_id"`
	DisplayName     string `json:"display_name"`
	AdminState      string `json:"admin_state"`
	AttachmentType  string `json:"attachment_type,omitempty"`
	AttachmentID    string `json:"attachment_id,omitempty"`
}

func (c CreateLogicalPortRequest) Validate() error {
	if c.LogicalSwitchID == "" {
		return errors.New("logical switch id must not be empty")
	}
	return nil
}

// CreateDhcpServerRequest provisions a logical DHCP server from network,
// subnet and DNS attributes.
type CreateDhcpServerRequest struct {
	DisplayName    string   `json:"display_name"`
	DhcpProfileID  string   `json:"dhcp_profile_id"`
	ServerIP       string   `json:"server_ip"`
	CIDR           string   `json:"cidr"`
	GatewayIP      string   `json:"gateway_ip,omitempty"`
	DNSDomain      string   `json:"domain_name,omitempty"`
	DNSNameservers []string `json:"dns_nameservers,omitempty"`
	HostRoutes     []string `json:"host_routes,omitempty"`
}

func (c CreateDhcpServerRequest) Validate() error {
	if c.ServerIP == "" {
		return errors.New("server ip must not be empty")
	}
	if c.CIDR == "" {
		return errors.New("cidr must not be empty")
	}
	return nil
}

// CreateDhcpStaticBindingRequest pins a port's IP/MAC under a DHCP server.
type CreateDhcpStaticBindingRequest struct {
	MACAddress string `json:"mac_address"`
	IPAddress  string `json:"ip_address"`
	HostName   string `json:"host_name,omitempty"`
}

func (c CreateDhcpStaticBindingRequest) Validate() error {
	if c.IPAddress == "" {
		return errors.New("ip address must not be empty")
	}
	return nil
}
