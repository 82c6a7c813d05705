package ncp

// NetworkRequest is the provider-network portion of a network create request
// after the API layer has parsed it. Pointer fields distinguish "not
// specified" from an explicit zero value.
type NetworkRequest struct {
	NetworkID       string  `json:"networkID"`
	Name            string  `json:"name"`
	External        bool    `json:"external"`
	VlanTransparent bool    `json:"vlanTransparent"`
	QoSPolicyID     string  `json:"qosPolicyID,omitempty"`
	NetworkType     *string `json:"networkType,omitempty"`
	PhysicalNetwork *string `json:"physicalNetwork,omitempty"`
	SegmentationID  *int    `json:"segmentationID,omitempty"`
}

// IsProviderRequest reports whether any provider attribute was specified.
func (r NetworkRequest) IsProviderRequest() bool {
	return r.NetworkType != nil || r.PhysicalNetwork != nil || r.SegmentationID != nil
}

// ResolvedBinding is the outcome of planning a provider network: the concrete
// type, transport zone and tag the network will be bound to. SegmentationID
// is nil for overlay networks and 0 for flat ones.
type ResolvedBinding struct {
	IsProviderNetwork bool
	NetworkType       string
	PhysicalNetwork   string
	SegmentationID    *int
	SwitchMode        string
}

// NetworkBinding is the stored binding row. Plain overlay networks have no
// row at all; a tag is in use iff a row references it.
type NetworkBinding struct {
	NetworkID       string `json:"networkID"`
	BindingType     string `json:"bindingType"`
	PhysicalNetwork string `json:"physicalNetwork"`
	SegmentationID  int    `json:"segmentationID"`
}

// Network is the local snapshot of a network needed by the core.
type Network struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	External        bool   `json:"external"`
	VlanTransparent bool   `json:"vlanTransparent"`
	DNSDomain       string `json:"dnsDomain,omitempty"`
	QoSPolicyID     string `json:"qosPolicyID,omitempty"`
}

// Subnet is the local snapshot of a subnet needed by the core.
type Subnet struct {
	ID             string   `json:"id"`
	NetworkID      string   `json:"networkID"`
	CIDR           string   `json:"cidr"`
	GatewayIP      string   `json:"gatewayIP,omitempty"`
	EnableDHCP     bool     `json:"enableDHCP"`
	IPVersion      int      `json:"ipVersion"`
	DNSNameservers []string `json:"dnsNameservers,omitempty"`
	HostRoutes     []string `json:"hostRoutes,omitempty"`
}

// GatewayState is the derived external-gateway state of a router. It is
// never stored; old and new values are compared only during an update.
// Empty strings mean unset.
type GatewayState struct {
	Tier0ID         string `json:"tier0ID,omitempty"`
	Address         string `json:"address,omitempty"`
	SNATEnabled     bool   `json:"snatEnabled"`
	HasLoadBalancer bool   `json:"hasLoadBalancer"`
	HasFirewall     bool   `json:"hasFirewall"`
}

// FixedIP is one IP assignment on a port.
type FixedIP struct {
	SubnetID  string `json:"subnetID"`
	IPAddress string `json:"ipAddress"`
}

// AddressPair is one allowed address pair on a port.
type AddressPair struct {
	IPAddress  string `json:"ipAddress"`
	MACAddress string `json:"macAddress,omitempty"`
}

// PortData is the full port snapshot the validator operates on.
type PortData struct {
	ID                     string        `json:"id"`
	NetworkID              string        `json:"networkID"`
	Name                   string        `json:"name,omitempty"`
	MACAddress             string        `json:"macAddress,omitempty"`
	AdminStateUp           bool          `json:"adminStateUp"`
	DeviceID               string        `json:"deviceID,omitempty"`
	DeviceOwner            string        `json:"deviceOwner,omitempty"`
	VnicType               string        `json:"vnicType,omitempty"`
	QoSPolicyID            string        `json:"qosPolicyID,omitempty"`
	MacLearning            bool          `json:"macLearning"`
	PortSecurityEnabled    bool          `json:"portSecurityEnabled"`
	FixedIPs               []FixedIP     `json:"fixedIPs,omitempty"`
	AllowedAddressPairs    []AddressPair `json:"allowedAddressPairs,omitempty"`
	SecurityGroups         []string      `json:"securityGroups,omitempty"`
	ProviderSecurityGroups []string      `json:"providerSecurityGroups,omitempty"`
}

// HasFixedIP reports whether the port has at least one IP assigned.
func (p PortData) HasFixedIP() bool {
	return len(p.FixedIPs) > 0
}

// PortUpdate is the delta of a port update request. Nil fields were not part
// of the request; a non-nil empty slice is an explicit clear.
type PortUpdate struct {
	Name                   *string        `json:"name,omitempty"`
	AdminStateUp           *bool          `json:"adminStateUp,omitempty"`
	DeviceOwner            *string        `json:"deviceOwner,omitempty"`
	QoSPolicyID            *string        `json:"qosPolicyID,omitempty"`
	MacLearning            *bool          `json:"macLearning,omitempty"`
	PortSecurityEnabled    *bool          `json:"portSecurityEnabled,omitempty"`
	FixedIPs               *[]FixedIP     `json:"fixedIPs,omitempty"`
	AllowedAddressPairs    *[]AddressPair `json:"allowedAddressPairs,omitempty"`
	SecurityGroups         *[]string      `json:"securityGroups,omitempty"`
	ProviderSecurityGroups *[]string      `json:"providerSecurityGroups,omitempty"`
}

// SecurityPlan is the accepted outcome of a port create/update validation.
// Result is the merged port; the Reapply flags tell the caller which of the
// three security aspects must be written back.
type SecurityPlan struct {
	Result                PortData
	PortSecurityEnabled   bool
	HasFixedIP            bool
	ReapplyAddressPairs   bool
	ReapplySecurityGroups bool
	ReapplyPortSecurity   bool
}

// DhcpBinding ties a network to its backend DHCP server and the local port
// the server answers on. At most one live row per network.
type DhcpBinding struct {
	NetworkID       string `json:"networkID"`
	PortID          string `json:"portID"`
	BackendServerID string `json:"backendServerID"`
}

// PortMapping mirrors the backend logical port created for a local port.
type PortMapping struct {
	PortID          string `json:"portID"`
	BackendSwitchID string `json:"backendSwitchID"`
	BackendPortID   string `json:"backendPortID"`
}

// PortDhcpBinding is the per-port static binding under a DHCP server.
type PortDhcpBinding struct {
	PortID           string `json:"portID"`
	BackendServerID  string `json:"backendServerID"`
	BackendBindingID string `json:"backendBindingID"`
}

// NetworkMapping mirrors the backend logical switch realized for a network.
type NetworkMapping struct {
	NetworkID       string `json:"networkID"`
	BackendSwitchID string `json:"backendSwitchID"`
}
