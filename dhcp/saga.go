// Package dhcp coordinates enabling and disabling the backend-hosted DHCP
// service for a subnet. The sequence spans the local store and the remote
// backend, so every step is a candidate failure point with an explicit
// compensation; enable/disable for one network is serialized by a named
// lock while other networks proceed concurrently.
package dhcp

import (
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/vnetops/nsx-control-plane/logger"
	"github.com/vnetops/nsx-control-plane/namedlock"
	"github.com/vnetops/nsx-control-plane/ncp"
	"github.com/vnetops/nsx-control-plane/ncp/types"
	"github.com/vnetops/nsx-control-plane/nsx"
	"github.com/vnetops/nsx-control-plane/store"
)

// Backend is the slice of the backend client the saga needs.
type Backend interface {
	CreateDhcpServer(ctx context.Context, req nsx.CreateDhcpServerRequest) (nsx.DhcpServer, error)
	DeleteDhcpServer(ctx context.Context, id string) error
	CreateLogicalPort(ctx context.Context, req nsx.CreateLogicalPortRequest) (nsx.LogicalPort, error)
	DeleteLogicalPort(ctx context.Context, id string) error
	CreateDhcpStaticBinding(ctx context.Context, serverID string, req nsx.CreateDhcpStaticBindingRequest) (string, error)
}

// Store is the slice of the Binding Store the saga needs.
type Store interface {
	GetNetwork(id string) (ncp.Network, error)
	GetNetworkBinding(networkID string) (ncp.NetworkBinding, error)
	GetSubnet(id string) (ncp.Subnet, error)
	SubnetsByNetwork(networkID string) ([]ncp.Subnet, error)
	PortsOnSubnet(networkID, subnetID string) ([]ncp.PortData, error)
	CreatePort(p ncp.PortData) error
	DeletePort(id string) error
	NetworkBackendID(networkID string) (string, error)
	GetDhcpBinding(networkID string) (ncp.DhcpBinding, error)
	CreateDhcpBinding(b ncp.DhcpBinding) error
	DeleteDhcpBinding(networkID string) error
	CreatePortMapping(m ncp.PortMapping) error
	GetPortMapping(portID string) (ncp.PortMapping, error)
	DeletePortMapping(portID string) error
	CreatePortDhcpBinding(b ncp.PortDhcpBinding) error
	DeletePortDhcpBindingsByServer(serverID string) error
}

// AttachmentDhcp is the backend attachment type for DHCP service ports.
const AttachmentDhcp = "DHCP_SERVICE"

// Config carries the deployment attributes of the DHCP service.
type Config struct {
	DhcpProfileID  string
	DNSDomain      string
	DNSNameservers []string
	// NativeDhcpVlan allows native DHCP on VLAN-backed networks; flat and
	// vlan-transparent networks never support it.
	NativeDhcpVlan  bool
	VlanTransparent bool
}

// Saga drives the enable/disable sequences.
type Saga struct {
	store   Store
	backend Backend
	locks   *namedlock.LockManager
	cfg     Config
	log     *logger.Logger
}

func New(st Store, backend Backend, locks *namedlock.LockManager, cfg Config, log *logger.Logger) *Saga {
	return &Saga{store: st, backend: backend, locks: locks, cfg: cfg, log: log}
}

// EnableSubnet validates that the subnet may carry native DHCP and runs the
// enable sequence. The network lock covers validation and all steps, backend
// calls included.
func (s *Saga) EnableSubnet(ctx context.Context, networkID, subnetID string) error {
	network, err := s.store.GetNetwork(networkID)
	if err != nil {
		return errors.Wrapf(err, "reading network %s", networkID)
	}
	subnet, err := s.store.GetSubnet(subnetID)
	if err != nil {
		return errors.Wrapf(err, "reading subnet %s", subnetID)
	}

	unlock := s.locks.Lock(networkID)
	defer unlock()

	if err := s.validateSupported(network); err != nil {
		return err
	}
	subnets, err := s.store.SubnetsByNetwork(networkID)
	if err != nil {
		return errors.Wrap(err, "listing subnets")
	}
	for _, sub := range subnets {
		if sub.EnableDHCP && sub.ID != subnetID {
			return types.NewErrorf(types.MultipleDhcpSubnetsNotAllowed,
				"can not create more than one DHCP-enabled subnet in network %s", networkID)
		}
	}

	enableCount.Inc()
	if err := s.enableLocked(ctx, network, subnet); err != nil {
		enableFailures.Inc()
		return err
	}
	return nil
}

// OnSubnetDelete runs the disable path when the subnet being removed is the
// network's last DHCP-enabled subnet. The caller removes the subnet row
// afterwards.
func (s *Saga) OnSubnetDelete(ctx context.Context, subnetID string) error {
	subnet, err := s.store.GetSubnet(subnetID)
	if err != nil {
		return errors.Wrapf(err, "reading subnet %s", subnetID)
	}
	if !subnet.EnableDHCP {
		return nil
	}

	unlock := s.locks.Lock(subnet.NetworkID)
	defer unlock()

	subnets, err := s.store.SubnetsByNetwork(subnet.NetworkID)
	if err != nil {
		return errors.Wrap(err, "listing subnets")
	}
	dhcpEnabled := 0
	for _, sub := range subnets {
		if sub.EnableDHCP {
			dhcpEnabled++
		}
	}
	if dhcpEnabled != 1 {
		return nil
	}
	return s.disableLocked(ctx, subnet.NetworkID)
}

// Disable tears down the network's DHCP service. A network without a live
// binding is a no-op.
func (s *Saga) Disable(ctx context.Context, networkID string) error {
	unlock := s.locks.Lock(networkID)
	defer unlock()
	return s.disableLocked(ctx, networkID)
}

func (s *Saga) enableLocked(ctx context.Context, network ncp.Network, subnet ncp.Subnet) error {
	// A previous failed attempt may have left a half-finished binding;
	// clearing it first makes enable idempotent.
	if err := s.disableLocked(ctx, network.ID); err != nil {
		return errors.Wrap(err, "cleaning up obsolete dhcp state")
	}

	backendNetID, err := s.store.NetworkBackendID(network.ID)
	if err != nil {
		return types.NewErrorf(types.InternalInconsistency,
			"unable to obtain backend network id for logical DHCP server for network %s", network.ID)
	}

	// Existing ports need bindings once the server exists.
	existing, err := s.store.PortsOnSubnet(network.ID, subnet.ID)
	if err != nil {
		return errors.Wrap(err, "snapshotting subnet ports")
	}

	serverIP, err := serverAddress(subnet)
	if err != nil {
		return err
	}
	port := ncp.PortData{
		ID:           uuid.NewString(),
		NetworkID:    network.ID,
		Name:         dhcpPortName(network),
		AdminStateUp: true,
		DeviceID:     s.cfg.DhcpProfileID,
		DeviceOwner:  ncp.DeviceOwnerDHCP,
		FixedIPs:     []ncp.FixedIP{{SubnetID: subnet.ID, IPAddress: serverIP}},
	}
	if err := s.store.CreatePort(port); err != nil {
		return errors.Wrap(err, "creating local dhcp port")
	}

	server, err := s.backend.CreateDhcpServer(ctx, s.serverRequest(network, subnet, serverIP))
	if err != nil {
		s.compensatePort(port.ID)
		return types.NewErrorf(types.BackendUnavailable,
			"unable to create logical DHCP server for network %s: %v", network.ID, err)
	}
	s.log.Debugf("created logical DHCP server %s for network %s", server.ID, network.ID)

	lport, err := s.backend.CreateLogicalPort(ctx, nsx.CreateLogicalPortRequest{
		LogicalSwitchID: backendNetID,
		DisplayName:     port.Name,
		AdminState:      "UP",
		AttachmentType:  AttachmentDhcp,
		AttachmentID:    server.ID,
	})
	if err != nil {
		s.compensateServer(ctx, server.ID)
		s.compensatePort(port.ID)
		return types.NewErrorf(types.BackendUnavailable,
			"unable to attach DHCP server %s to network %s: %v", server.ID, network.ID, err)
	}
	s.log.Debugf("created DHCP logical port %s for network %s", lport.ID, network.ID)

	// Persist the mappings; a store failure here must not leave an orphaned
	// backend server behind.
	err = s.store.CreatePortMapping(ncp.PortMapping{
		PortID:          port.ID,
		BackendSwitchID: backendNetID,
		BackendPortID:   lport.ID,
	})
	if err == nil {
		err = s.store.CreateDhcpBinding(ncp.DhcpBinding{
			NetworkID:       network.ID,
			PortID:          port.ID,
			BackendServerID: server.ID,
		})
	}
	if err != nil {
		s.log.Errorf("failed to persist mapping for DHCP port %s, deleting port and logical DHCP server", port.ID)
		s.compensateLogicalPort(ctx, lport.ID)
		s.compensateServer(ctx, server.ID)
		s.compensatePort(port.ID)
		if derr := s.store.DeletePortMapping(port.ID); derr != nil {
			s.log.Errorf("compensation: deleting port mapping %s: %v", port.ID, derr)
		}
		return types.NewErrorf(types.InternalInconsistency,
			"persisting dhcp mappings for network %s: %v", network.ID, err)
	}

	// Configure existing ports to work with the new server. Failures are
	// non-fatal; housekeeping reconciles missing bindings later.
	for _, existingPort := range existing {
		if err := s.addPortBinding(ctx, server.ID, subnet.ID, existingPort); err != nil {
			s.log.Errorf("unable to create DHCP binding for port %s on subnet %s: %v",
				existingPort.ID, subnet.ID, err)
		}
	}
	return nil
}

func (s *Saga) disableLocked(ctx context.Context, networkID string) error {
	binding, err := s.store.GetDhcpBinding(networkID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "reading dhcp binding")
	}

	if binding.PortID != "" {
		mapping, err := s.store.GetPortMapping(binding.PortID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.log.Errorf("no backend mapping for DHCP port %s on network %s", binding.PortID, networkID)
		case err != nil:
			return errors.Wrap(err, "reading dhcp port mapping")
		default:
			if err := s.backend.DeleteLogicalPort(ctx, mapping.BackendPortID); err != nil {
				if !nsx.IsNotFound(err) {
					return types.NewErrorf(types.BackendUnavailable,
						"deleting DHCP logical port %s for network %s: %v",
						mapping.BackendPortID, networkID, err)
				}
				// Tolerated: the port may have been removed manually.
				s.log.Errorf("DHCP logical port %s for network %s already gone",
					mapping.BackendPortID, networkID)
			}
			if err := s.store.DeletePortMapping(binding.PortID); err != nil {
				return types.NewErrorf(types.InternalInconsistency,
					"deleting dhcp port mapping for network %s: %v", networkID, err)
			}
		}
		if err := s.store.DeletePort(binding.PortID); err != nil {
			return types.NewErrorf(types.InternalInconsistency,
				"deleting local dhcp port %s: %v", binding.PortID, err)
		}
	} else {
		s.log.Errorf("DHCP port is not configured for network %s", networkID)
	}

	if err := s.backend.DeleteDhcpServer(ctx, binding.BackendServerID); err != nil {
		if !nsx.IsNotFound(err) {
			// Fatal: the binding stays for a later retry.
			return types.NewErrorf(types.BackendUnavailable,
				"unable to delete logical DHCP server %s for network %s: %v",
				binding.BackendServerID, networkID, err)
		}
		s.log.Errorf("logical DHCP server %s for network %s already gone",
			binding.BackendServerID, networkID)
	}
	s.log.Debugf("deleted logical DHCP server %s for network %s", binding.BackendServerID, networkID)

	if err := s.store.DeleteDhcpBinding(networkID); err != nil {
		return types.NewErrorf(types.InternalInconsistency,
			"deleting dhcp binding for network %s: %v", networkID, err)
	}
	if err := s.store.DeletePortDhcpBindingsByServer(binding.BackendServerID); err != nil {
		return types.NewErrorf(types.InternalInconsistency,
			"deleting port dhcp bindings for network %s: %v", networkID, err)
	}
	disableCount.Inc()
	return nil
}

// validateSupported rejects networks whose type cannot carry native DHCP.
func (s *Saga) validateSupported(network ncp.Network) error {
	if s.cfg.VlanTransparent && network.VlanTransparent {
		return types.NewErrorf(types.DhcpNotSupportedOnNetwork,
			"native DHCP is not supported for VLAN transparent network %s", network.ID)
	}
	binding, err := s.store.GetNetworkBinding(network.ID)
	if errors.Is(err, store.ErrNotFound) {
		// Plain overlay network.
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "reading network binding")
	}
	switch binding.BindingType {
	case ncp.NetworkTypeFlat:
		return types.NewErrorf(types.DhcpNotSupportedOnNetwork,
			"native DHCP is not supported for flat network %s", network.ID)
	case ncp.NetworkTypeVLAN:
		if !s.cfg.NativeDhcpVlan {
			return types.NewErrorf(types.DhcpNotSupportedOnNetwork,
				"native DHCP is not supported for non-overlay network %s", network.ID)
		}
	}
	return nil
}

func (s *Saga) serverRequest(network ncp.Network, subnet ncp.Subnet, serverIP string) nsx.CreateDhcpServerRequest {
	dnsDomain := network.DNSDomain
	if dnsDomain == "" {
		dnsDomain = s.cfg.DNSDomain
	}
	nameservers := subnet.DNSNameservers
	if len(nameservers) == 0 {
		nameservers = s.cfg.DNSNameservers
	}
	return nsx.CreateDhcpServerRequest{
		DisplayName:    dhcpPortName(network),
		DhcpProfileID:  s.cfg.DhcpProfileID,
		ServerIP:       serverIP,
		CIDR:           subnet.CIDR,
		GatewayIP:      subnet.GatewayIP,
		DNSDomain:      dnsDomain,
		DNSNameservers: nameservers,
		HostRoutes:     subnet.HostRoutes,
	}
}

func (s *Saga) addPortBinding(ctx context.Context, serverID, subnetID string, port ncp.PortData) error {
	var address string
	for _, fip := range port.FixedIPs {
		if fip.SubnetID == subnetID {
			address = fip.IPAddress
			break
		}
	}
	if address == "" {
		return nil
	}
	bindingID, err := s.backend.CreateDhcpStaticBinding(ctx, serverID, nsx.CreateDhcpStaticBindingRequest{
		MACAddress: port.MACAddress,
		IPAddress:  address,
		HostName:   fmt.Sprintf("host-%s", port.ID),
	})
	if err != nil {
		return errors.Wrap(err, "creating backend dhcp binding")
	}
	return s.store.CreatePortDhcpBinding(ncp.PortDhcpBinding{
		PortID:           port.ID,
		BackendServerID:  serverID,
		BackendBindingID: bindingID,
	})
}

// compensation helpers: deletes tolerate missing resources and log their own
// failures so the original error propagates unmasked.

func (s *Saga) compensatePort(portID string) {
	if err := s.store.DeletePort(portID); err != nil {
		s.log.Errorf("compensation: deleting local dhcp port %s: %v", portID, err)
	}
}

func (s *Saga) compensateServer(ctx context.Context, serverID string) {
	if err := s.backend.DeleteDhcpServer(ctx, serverID); err != nil && !nsx.IsNotFound(err) {
		s.log.Errorf("compensation: deleting dhcp server %s: %v", serverID, err)
	}
}

func (s *Saga) compensateLogicalPort(ctx context.Context, portID string) {
	if err := s.backend.DeleteLogicalPort(ctx, portID); err != nil && !nsx.IsNotFound(err) {
		s.log.Errorf("compensation: deleting logical port %s: %v", portID, err)
	}
}

func dhcpPortName(network ncp.Network) string {
	name := network.Name
	if name == "" {
		name = "network"
	}
	return fmt.Sprintf("dhcp-%s-%s", name, network.ID)
}

// serverAddress picks the DHCP server address on the subnet: the first
// usable host that is not the gateway.
func serverAddress(subnet ncp.Subnet) (string, error) {
	ip, ipnet, err := net.ParseCIDR(subnet.CIDR)
	if err != nil {
		return "", types.NewErrorf(types.InvalidInput,
			"subnet %s has invalid cidr %q", subnet.ID, subnet.CIDR)
	}
	addr := ip.Mask(ipnet.Mask)
	for i := 0; i < 2; i++ {
		addr = nextIP(addr)
		if !ipnet.Contains(addr) {
			return "", types.NewErrorf(types.InvalidInput,
				"subnet %s is too small for a DHCP server address", subnet.ID)
		}
		if addr.String() != subnet.GatewayIP {
			return addr.String(), nil
		}
	}
	return "", types.NewErrorf(types.InvalidInput,
		"subnet %s is too small for a DHCP server address", subnet.ID)
}

func nextIP(ip net.IP) net.IP {
	out := make(net.IP, len(ip))
	copy(out, ip)
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			break
		}
	}
	return out
}
