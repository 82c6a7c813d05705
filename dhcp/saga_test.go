package dhcp

import (
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnetops/nsx-control-plane/logger"
	"github.com/vnetops/nsx-control-plane/namedlock"
	"github.com/vnetops/nsx-control-plane/ncp"
	"github.com/vnetops/nsx-control-plane/ncp/types"
	"github.com/vnetops/nsx-control-plane/nsx"
	"github.com/vnetops/nsx-control-plane/store"
)

type fakeStore struct {
	networks         map[string]ncp.Network
	bindings         map[string]ncp.NetworkBinding
	subnets          map[string]ncp.Subnet
	ports            map[string]ncp.PortData
	dhcpBindings     map[string]ncp.DhcpBinding
	portMappings     map[string]ncp.PortMapping
	portDhcpBindings map[string]ncp.PortDhcpBinding
	backendIDs       map[string]string

	failCreateDhcpBinding bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		networks:         map[string]ncp.Network{},
		bindings:         map[string]ncp.NetworkBinding{},
		subnets:          map[string]ncp.Subnet{},
		ports:            map[string]ncp.PortData{},
		dhcpBindings:     map[string]ncp.DhcpBinding{},
		portMappings:     map[string]ncp.PortMapping{},
		portDhcpBindings: map[string]ncp.PortDhcpBinding{},
		backendIDs:       map[string]string{},
	}
}

func (f *fakeStore) GetNetwork(id string) (ncp.Network, error) {
	n, ok := f.networks[id]
	if !ok {
		return ncp.Network{}, store.ErrNotFound
	}
	return n, nil
}

func (f *fakeStore) GetNetworkBinding(networkID string) (ncp.NetworkBinding, error) {
	b, ok := f.bindings[networkID]
	if !ok {
		return ncp.NetworkBinding{}, store.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) GetSubnet(id string) (ncp.Subnet, error) {
	s, ok := f.subnets[id]
	if !ok {
		return ncp.Subnet{}, store.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) SubnetsByNetwork(networkID string) ([]ncp.Subnet, error) {
	var out []ncp.Subnet
	for _, s := range f.subnets {
		if s.NetworkID == networkID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) PortsOnSubnet(networkID, subnetID string) ([]ncp.PortData, error) {
	var out []ncp.PortData
	for _, p := range f.ports {
		if p.NetworkID != networkID {
			continue
		}
		for _, fip := range p.FixedIPs {
			if fip.SubnetID == subnetID {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) CreatePort(p ncp.PortData) error {
	f.ports[p.ID] = p
	return nil
}

func (f *fakeStore) DeletePort(id string) error {
	delete(f.ports, id)
	return nil
}

func (f *fakeStore) NetworkBackendID(networkID string) (string, error) {
	id, ok := f.backendIDs[networkID]
	if !ok {
		return "", store.ErrNotFound
	}
	return id, nil
}

func (f *fakeStore) GetDhcpBinding(networkID string) (ncp.DhcpBinding, error) {
	b, ok := f.dhcpBindings[networkID]
	if !ok {
		return ncp.DhcpBinding{}, store.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) CreateDhcpBinding(b ncp.DhcpBinding) error {
	if f.failCreateDhcpBinding {
		f.failCreateDhcpBinding = false
		return errors.New("dhcp binding insert failed")
	}
	f.dhcpBindings[b.NetworkID] = b
	return nil
}

func (f *fakeStore) DeleteDhcpBinding(networkID string) error {
	delete(f.dhcpBindings, networkID)
	return nil
}

func (f *fakeStore) CreatePortMapping(m ncp.PortMapping) error {
	f.portMappings[m.PortID] = m
	return nil
}

func (f *fakeStore) GetPortMapping(portID string) (ncp.PortMapping, error) {
	m, ok := f.portMappings[portID]
	if !ok {
		return ncp.PortMapping{}, store.ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) DeletePortMapping(portID string) error {
	delete(f.portMappings, portID)
	return nil
}

func (f *fakeStore) CreatePortDhcpBinding(b ncp.PortDhcpBinding) error {
	f.portDhcpBindings[b.PortID] = b
	return nil
}

func (f *fakeStore) DeletePortDhcpBindingsByServer(serverID string) error {
	for id, b := range f.portDhcpBindings {
		if b.BackendServerID == serverID {
			delete(f.portDhcpBindings, id)
		}
	}
	return nil
}

// dhcpPorts counts the local ports owned by the DHCP service.
func (f *fakeStore) dhcpPorts() int {
	n := 0
	for _, p := range f.ports {
		if p.DeviceOwner == ncp.DeviceOwnerDHCP {
			n++
		}
	}
	return n
}

type fakeBackend struct {
	servers  map[string]nsx.DhcpServer
	ports    map[string]nsx.LogicalPort
	bindings map[string]nsx.CreateDhcpStaticBindingRequest
	seq      int

	failCreateServer   bool
	failCreatePort     bool
	failCreateBinding  bool
	failDeleteServer   error
	failDeletePort     error
	deletedServerCalls int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		servers:  map[string]nsx.DhcpServer{},
		ports:    map[string]nsx.LogicalPort{},
		bindings: map[string]nsx.CreateDhcpStaticBindingRequest{},
	}
}

func (f *fakeBackend) nextID(prefix string) string {
	f.seq++
	return prefix + "-" + string(rune('0'+f.seq))
}

func (f *fakeBackend) CreateDhcpServer(_ context.Context, req nsx.CreateDhcpServerRequest) (nsx.DhcpServer, error) {
	if f.failCreateServer {
		return nsx.DhcpServer{}, nsx.Error{Code: http.StatusServiceUnavailable}
	}
	id := f.nextID("server")
	server := nsx.DhcpServer{ID: id, DisplayName: req.DisplayName}
	f.servers[id] = server
	return server, nil
}

func (f *fakeBackend) DeleteDhcpServer(_ context.Context, id string) error {
	f.deletedServerCalls++
	if f.failDeleteServer != nil {
		return f.failDeleteServer
	}
	if _, ok := f.servers[id]; !ok {
		return nsx.Error{Code: http.StatusNotFound}
	}
	delete(f.servers, id)
	return nil
}

func (f *fakeBackend) CreateLogicalPort(_ context.Context, req nsx.CreateLogicalPortRequest) (nsx.LogicalPort, error) {
	if f.failCreatePort {
		return nsx.LogicalPort{}, nsx.Error{Code: http.StatusServiceUnavailable}
	}
	id := f.nextID("lport")
	port := nsx.LogicalPort{ID: id, LogicalSwitchID: req.LogicalSwitchID}
	f.ports[id] = port
	return port, nil
}

func (f *fakeBackend) DeleteLogicalPort(_ context.Context, id string) error {
	if f.failDeletePort != nil {
		return f.failDeletePort
	}
	if _, ok := f.ports[id]; !ok {
		return nsx.Error{Code: http.StatusNotFound}
	}
	delete(f.ports, id)
	return nil
}

func (f *fakeBackend) CreateDhcpStaticBinding(_ context.Context, serverID string, req nsx.CreateDhcpStaticBindingRequest) (string, error) {
	if f.failCreateBinding {
		return "", nsx.Error{Code: http.StatusServiceUnavailable}
	}
	id := f.nextID("binding")
	f.bindings[id] = req
	return id, nil
}

func newTestSaga(st *fakeStore, backend *fakeBackend, cfg Config) *Saga {
	if cfg.DhcpProfileID == "" {
		cfg.DhcpProfileID = "profile-1"
	}
	return New(st, backend, namedlock.New(), cfg, logger.NewNop())
}

func seedNetwork(st *fakeStore) (networkID, subnetID string) {
	st.networks["net-1"] = ncp.Network{ID: "net-1", Name: "blue"}
	st.backendIDs["net-1"] = "ls-1"
	st.subnets["sub-1"] = ncp.Subnet{
		ID:         "sub-1",
		NetworkID:  "net-1",
		CIDR:       "10.0.0.0/24",
		GatewayIP:  "10.0.0.1",
		EnableDHCP: true,
	}
	return "net-1", "sub-1"
}

func TestEnableSubnet(t *testing.T) {
	st := newFakeStore()
	networkID, subnetID := seedNetwork(st)
	st.ports["port-1"] = ncp.PortData{
		ID:         "port-1",
		NetworkID:  networkID,
		MACAddress: "fa:16:3e:00:00:01",
		FixedIPs:   []ncp.FixedIP{{SubnetID: subnetID, IPAddress: "10.0.0.5"}},
	}
	backend := newFakeBackend()
	saga := newTestSaga(st, backend, Config{})

	require.NoError(t, saga.EnableSubnet(context.Background(), networkID, subnetID))

	binding, err := st.GetDhcpBinding(networkID)
	require.NoError(t, err)
	assert.NotEmpty(t, binding.BackendServerID)
	assert.Len(t, backend.servers, 1)
	assert.Len(t, backend.ports, 1)
	assert.Equal(t, 1, st.dhcpPorts())

	// The pre-existing port got a static binding under the new server.
	require.Len(t, backend.bindings, 1)
	for _, req := range backend.bindings {
		assert.Equal(t, "10.0.0.5", req.IPAddress)
		assert.Equal(t, "fa:16:3e:00:00:01", req.MACAddress)
	}

	// The server answers on an address distinct from the gateway.
	port := st.ports[binding.PortID]
	require.Len(t, port.FixedIPs, 1)
	assert.NotEqual(t, "10.0.0.1", port.FixedIPs[0].IPAddress)
}

func TestEnableSubnetServerCreateFailure(t *testing.T) {
	st := newFakeStore()
	networkID, subnetID := seedNetwork(st)
	backend := newFakeBackend()
	backend.failCreateServer = true
	saga := newTestSaga(st, backend, Config{})

	err := saga.EnableSubnet(context.Background(), networkID, subnetID)
	require.Error(t, err)
	assert.Equal(t, types.BackendUnavailable, types.CodeOf(err))

	// Nothing survives the failure: no binding row, no local dhcp port.
	assert.Empty(t, st.dhcpBindings)
	assert.Zero(t, st.dhcpPorts())
}

func TestEnableSubnetPortCreateFailure(t *testing.T) {
	st := newFakeStore()
	networkID, subnetID := seedNetwork(st)
	backend := newFakeBackend()
	backend.failCreatePort = true
	saga := newTestSaga(st, backend, Config{})

	err := saga.EnableSubnet(context.Background(), networkID, subnetID)
	require.Error(t, err)
	assert.Equal(t, types.BackendUnavailable, types.CodeOf(err))

	// The half-created server was torn down with the local port.
	assert.Empty(t, backend.servers)
	assert.Empty(t, st.dhcpBindings)
	assert.Zero(t, st.dhcpPorts())
}

func TestEnableSubnetMappingPersistFailure(t *testing.T) {
	st := newFakeStore()
	networkID, subnetID := seedNetwork(st)
	st.failCreateDhcpBinding = true
	backend := newFakeBackend()
	saga := newTestSaga(st, backend, Config{})

	err := saga.EnableSubnet(context.Background(), networkID, subnetID)
	require.Error(t, err)
	assert.Equal(t, types.InternalInconsistency, types.CodeOf(err))

	assert.Empty(t, backend.servers)
	assert.Empty(t, backend.ports)
	assert.Empty(t, st.portMappings)
	assert.Zero(t, st.dhcpPorts())
}

func TestEnableSubnetStaticBindingFailureIsNonFatal(t *testing.T) {
	st := newFakeStore()
	networkID, subnetID := seedNetwork(st)
	st.ports["port-1"] = ncp.PortData{
		ID:        "port-1",
		NetworkID: networkID,
		FixedIPs:  []ncp.FixedIP{{SubnetID: subnetID, IPAddress: "10.0.0.5"}},
	}
	backend := newFakeBackend()
	backend.failCreateBinding = true
	saga := newTestSaga(st, backend, Config{})

	require.NoError(t, saga.EnableSubnet(context.Background(), networkID, subnetID))
	assert.Len(t, st.dhcpBindings, 1)
	assert.Empty(t, backend.bindings)
}

func TestEnableSubnetRetriesAfterFailure(t *testing.T) {
	st := newFakeStore()
	networkID, subnetID := seedNetwork(st)
	backend := newFakeBackend()
	saga := newTestSaga(st, backend, Config{})

	backend.failCreateServer = true
	require.Error(t, saga.EnableSubnet(context.Background(), networkID, subnetID))

	backend.failCreateServer = false
	require.NoError(t, saga.EnableSubnet(context.Background(), networkID, subnetID))
	assert.Len(t, backend.servers, 1)
	assert.Equal(t, 1, st.dhcpPorts())
}

func TestEnableSubnetValidation(t *testing.T) {
	t.Run("second dhcp subnet rejected", func(t *testing.T) {
		st := newFakeStore()
		networkID, _ := seedNetwork(st)
		st.subnets["sub-2"] = ncp.Subnet{
			ID: "sub-2", NetworkID: networkID,
			CIDR: "10.0.1.0/24", EnableDHCP: true,
		}
		saga := newTestSaga(st, newFakeBackend(), Config{})

		err := saga.EnableSubnet(context.Background(), networkID, "sub-2")
		assert.Equal(t, types.MultipleDhcpSubnetsNotAllowed, types.CodeOf(err))
	})

	t.Run("flat network rejected", func(t *testing.T) {
		st := newFakeStore()
		networkID, subnetID := seedNetwork(st)
		st.bindings[networkID] = ncp.NetworkBinding{
			NetworkID: networkID, BindingType: ncp.NetworkTypeFlat,
			PhysicalNetwork: "vlan-tz",
		}
		saga := newTestSaga(st, newFakeBackend(), Config{})

		err := saga.EnableSubnet(context.Background(), networkID, subnetID)
		assert.Equal(t, types.DhcpNotSupportedOnNetwork, types.CodeOf(err))
	})

	t.Run("vlan network gated on configuration", func(t *testing.T) {
		st := newFakeStore()
		networkID, subnetID := seedNetwork(st)
		st.bindings[networkID] = ncp.NetworkBinding{
			NetworkID: networkID, BindingType: ncp.NetworkTypeVLAN,
			PhysicalNetwork: "vlan-tz", SegmentationID: 100,
		}
		saga := newTestSaga(st, newFakeBackend(), Config{NativeDhcpVlan: false})
		err := saga.EnableSubnet(context.Background(), networkID, subnetID)
		assert.Equal(t, types.DhcpNotSupportedOnNetwork, types.CodeOf(err))

		saga = newTestSaga(st, newFakeBackend(), Config{NativeDhcpVlan: true})
		assert.NoError(t, saga.EnableSubnet(context.Background(), networkID, subnetID))
	})

	t.Run("vlan transparent network rejected", func(t *testing.T) {
		st := newFakeStore()
		networkID, subnetID := seedNetwork(st)
		st.networks[networkID] = ncp.Network{ID: networkID, VlanTransparent: true}
		saga := newTestSaga(st, newFakeBackend(), Config{VlanTransparent: true})

		err := saga.EnableSubnet(context.Background(), networkID, subnetID)
		assert.Equal(t, types.DhcpNotSupportedOnNetwork, types.CodeOf(err))
	})
}

func TestDisable(t *testing.T) {
	st := newFakeStore()
	networkID, subnetID := seedNetwork(st)
	backend := newFakeBackend()
	saga := newTestSaga(st, backend, Config{})
	require.NoError(t, saga.EnableSubnet(context.Background(), networkID, subnetID))

	require.NoError(t, saga.Disable(context.Background(), networkID))
	assert.Empty(t, backend.servers)
	assert.Empty(t, backend.ports)
	assert.Empty(t, st.dhcpBindings)
	assert.Zero(t, st.dhcpPorts())
}

func TestDisableIdempotent(t *testing.T) {
	st := newFakeStore()
	networkID, _ := seedNetwork(st)
	saga := newTestSaga(st, newFakeBackend(), Config{})

	// No binding exists; disable is a no-op without error, twice.
	require.NoError(t, saga.Disable(context.Background(), networkID))
	require.NoError(t, saga.Disable(context.Background(), networkID))
}

func TestDisableToleratesMissingBackendResources(t *testing.T) {
	st := newFakeStore()
	networkID, subnetID := seedNetwork(st)
	backend := newFakeBackend()
	saga := newTestSaga(st, backend, Config{})
	require.NoError(t, saga.EnableSubnet(context.Background(), networkID, subnetID))

	// Simulate manual cleanup on the backend.
	backend.ports = map[string]nsx.LogicalPort{}
	backend.servers = map[string]nsx.DhcpServer{}

	require.NoError(t, saga.Disable(context.Background(), networkID))
	assert.Empty(t, st.dhcpBindings)
}

func TestDisableServerDeleteFailureIsFatal(t *testing.T) {
	st := newFakeStore()
	networkID, subnetID := seedNetwork(st)
	backend := newFakeBackend()
	saga := newTestSaga(st, backend, Config{})
	require.NoError(t, saga.EnableSubnet(context.Background(), networkID, subnetID))

	backend.failDeleteServer = nsx.Error{Code: http.StatusServiceUnavailable}
	err := saga.Disable(context.Background(), networkID)
	require.Error(t, err)
	assert.Equal(t, types.BackendUnavailable, types.CodeOf(err))

	// The binding row survives so a later retry can finish the teardown.
	assert.Len(t, st.dhcpBindings, 1)
}

func TestOnSubnetDelete(t *testing.T) {
	st := newFakeStore()
	networkID, subnetID := seedNetwork(st)
	backend := newFakeBackend()
	saga := newTestSaga(st, backend, Config{})
	require.NoError(t, saga.EnableSubnet(context.Background(), networkID, subnetID))

	require.NoError(t, saga.OnSubnetDelete(context.Background(), subnetID))
	assert.Empty(t, st.dhcpBindings)
	assert.Empty(t, backend.servers)
}

func TestOnSubnetDeleteSkipsNonDhcpSubnets(t *testing.T) {
	st := newFakeStore()
	networkID, subnetID := seedNetwork(st)
	st.subnets["sub-2"] = ncp.Subnet{ID: "sub-2", NetworkID: networkID, CIDR: "10.0.1.0/24"}
	backend := newFakeBackend()
	saga := newTestSaga(st, backend, Config{})
	require.NoError(t, saga.EnableSubnet(context.Background(), networkID, subnetID))

	// Removing the non-DHCP subnet leaves the service alone.
	require.NoError(t, saga.OnSubnetDelete(context.Background(), "sub-2"))
	assert.Len(t, st.dhcpBindings, 1)
	assert.Len(t, backend.servers, 1)
}
