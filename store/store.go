// Package store is the Binding Store: the local, transactional source of
// truth for networks, subnets, ports and the binding rows the control-plane
// core reconciles against the backend.
package store

import (
	"fmt"

	memdb "github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	"github.com/vnetops/nsx-control-plane/ncp"
	"github.com/vnetops/nsx-control-plane/ncp/types"
)

// Errors returned by Store methods.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrAlreadyExists = fmt.Errorf("already exists")
)

// Store is an indexed in-memory implementation. All methods are safe for
// concurrent use; each is a single transaction.
type Store struct {
	db *memdb.MemDB
}

// New builds an empty store.
func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, errors.Wrap(err, "building store schema")
	}
	return &Store{db: db}, nil
}

func first[T any](txn *memdb.Txn, table, index string, args ...any) (T, error) {
	var zero T
	raw, err := txn.First(table, index, args...)
	if err != nil {
		return zero, errors.Wrapf(err, "querying %s", table)
	}
	if raw == nil {
		return zero, ErrNotFound
	}
	return raw.(T), nil
}

// --- networks ---

func (s *Store) CreateNetwork(n ncp.Network) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tableNetwork, n); err != nil {
		return errors.Wrap(err, "inserting network")
	}
	txn.Commit()
	return nil
}

func (s *Store) GetNetwork(id string) (ncp.Network, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	return first[ncp.Network](txn, tableNetwork, indexID, id)
}

func (s *Store) UpdateNetwork(n ncp.Network) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if raw, err := txn.First(tableNetwork, indexID, n.ID); err != nil {
		return errors.Wrap(err, "querying networks")
	} else if raw == nil {
		return ErrNotFound
	}
	if err := txn.Insert(tableNetwork, n); err != nil {
		return errors.Wrap(err, "updating network")
	}
	txn.Commit()
	return nil
}

func (s *Store) DeleteNetwork(id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if _, err := txn.DeleteAll(tableNetwork, indexID, id); err != nil {
		return errors.Wrap(err, "deleting network")
	}
	txn.Commit()
	return nil
}

// --- subnets ---

func (s *Store) CreateSubnet(sub ncp.Subnet) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tableSubnet, sub); err != nil {
		return errors.Wrap(err, "inserting subnet")
	}
	txn.Commit()
	return nil
}

func (s *Store) GetSubnet(id string) (ncp.Subnet, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	return first[ncp.Subnet](txn, tableSubnet, indexID, id)
}

func (s *Store) DeleteSubnet(id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if _, err := txn.DeleteAll(tableSubnet, indexID, id); err != nil {
		return errors.Wrap(err, "deleting subnet")
	}
	txn.Commit()
	return nil
}

func (s *Store) SubnetsByNetwork(networkID string) ([]ncp.Subnet, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(tableSubnet, indexNetwork, networkID)
	if err != nil {
		return nil, errors.Wrap(err, "querying subnets")
	}
	var out []ncp.Subnet
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(ncp.Subnet))
	}
	return out, nil
}

// --- ports ---

func (s *Store) CreatePort(p ncp.PortData) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if raw, err := txn.First(tablePort, indexID, p.ID); err != nil {
		return errors.Wrap(err, "querying ports")
	} else if raw != nil {
		return ErrAlreadyExists
	}
	if err := txn.Insert(tablePort, p); err != nil {
		return errors.Wrap(err, "inserting port")
	}
	txn.Commit()
	return nil
}

func (s *Store) GetPort(id string) (ncp.PortData, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	return first[ncp.PortData](txn, tablePort, indexID, id)
}

func (s *Store) UpdatePort(p ncp.PortData) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if raw, err := txn.First(tablePort, indexID, p.ID); err != nil {
		return errors.Wrap(err, "querying ports")
	} else if raw == nil {
		return ErrNotFound
	}
	if err := txn.Insert(tablePort, p); err != nil {
		return errors.Wrap(err, "updating port")
	}
	txn.Commit()
	return nil
}

func (s *Store) DeletePort(id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if _, err := txn.DeleteAll(tablePort, indexID, id); err != nil {
		return errors.Wrap(err, "deleting port")
	}
	txn.Commit()
	return nil
}

// PortsOnSubnet returns the ports of networkID with a fixed IP on subnetID.
func (s *Store) PortsOnSubnet(networkID, subnetID string) ([]ncp.PortData, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(tablePort, indexNetwork, networkID)
	if err != nil {
		return nil, errors.Wrap(err, "querying ports")
	}
	var out []ncp.PortData
	for raw := it.Next(); raw != nil; raw = it.Next() {
		p := raw.(ncp.PortData)
		for _, fip := range p.FixedIPs {
			if fip.SubnetID == subnetID {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

// ReplaceAddressPairs swaps the allowed address pairs of a port.
func (s *Store) ReplaceAddressPairs(portID string, pairs []ncp.AddressPair) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	p, err := first[ncp.PortData](txn, tablePort, indexID, portID)
	if err != nil {
		return err
	}
	p.AllowedAddressPairs = pairs
	if err := txn.Insert(tablePort, p); err != nil {
		return errors.Wrap(err, "updating port address pairs")
	}
	txn.Commit()
	return nil
}

// ReplaceSecurityGroups swaps the security-group bindings of a port.
func (s *Store) ReplaceSecurityGroups(portID string, sgs, providerSGs []string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	p, err := first[ncp.PortData](txn, tablePort, indexID, portID)
	if err != nil {
		return err
	}
	p.SecurityGroups = sgs
	p.ProviderSecurityGroups = providerSGs
	if err := txn.Insert(tablePort, p); err != nil {
		return errors.Wrap(err, "updating port security groups")
	}
	txn.Commit()
	return nil
}

// --- network bindings ---

// CreateNetworkBinding persists a binding row. For VLAN-carrying bindings it
// performs the commit-time uniqueness check on (physical network, tag), so a
// lost allocation race still surfaces as VlanIDInUse rather than drift.
func (s *Store) CreateNetworkBinding(b ncp.NetworkBinding) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if b.BindingType == ncp.NetworkTypeVLAN {
		raw, err := txn.First(tableNetworkBinding, indexPhyVlan, b.PhysicalNetwork, b.SegmentationID)
		if err != nil {
			return errors.Wrap(err, "querying bindings")
		}
		if raw != nil {
			return types.NewErrorf(types.VlanIDInUse,
				"vlan %d already bound on physical network %s", b.SegmentationID, b.PhysicalNetwork)
		}
	}
	if err := txn.Insert(tableNetworkBinding, b); err != nil {
		return errors.Wrap(err, "inserting network binding")
	}
	txn.Commit()
	return nil
}

// GetNetworkBinding returns the binding row for a network, ErrNotFound for
// plain overlay networks.
func (s *Store) GetNetworkBinding(networkID string) (ncp.NetworkBinding, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	return first[ncp.NetworkBinding](txn, tableNetworkBinding, indexID, networkID)
}

func (s *Store) DeleteNetworkBinding(networkID string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if _, err := txn.DeleteAll(tableNetworkBinding, indexID, networkID); err != nil {
		return errors.Wrap(err, "deleting network binding")
	}
	txn.Commit()
	return nil
}

func (s *Store) BindingsByPhysicalNetwork(physicalNetwork string) ([]ncp.NetworkBinding, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(tableNetworkBinding, indexPhysical, physicalNetwork)
	if err != nil {
		return nil, errors.Wrap(err, "querying bindings")
	}
	var out []ncp.NetworkBinding
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(ncp.NetworkBinding))
	}
	return out, nil
}

func (s *Store) BindingsByPhysicalNetworkAndTag(physicalNetwork string, tag int) ([]ncp.NetworkBinding, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get(tableNetworkBinding, indexPhyVlan, physicalNetwork, tag)
	if err != nil {
		return nil, errors.Wrap(err, "querying bindings")
	}
	var out []ncp.NetworkBinding
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(ncp.NetworkBinding))
	}
	return out, nil
}

// --- dhcp bindings and backend mappings ---

func (s *Store) CreateDhcpBinding(b ncp.DhcpBinding) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tableDhcpBinding, b); err != nil {
		return errors.Wrap(err, "inserting dhcp binding")
	}
	txn.Commit()
	return nil
}

func (s *Store) GetDhcpBinding(networkID string) (ncp.DhcpBinding, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	return first[ncp.DhcpBinding](txn, tableDhcpBinding, indexID, networkID)
}

func (s *Store) DeleteDhcpBinding(networkID string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if _, err := txn.DeleteAll(tableDhcpBinding, indexID, networkID); err != nil {
		return errors.Wrap(err, "deleting dhcp binding")
	}
	txn.Commit()
	return nil
}

func (s *Store) CreatePortMapping(m ncp.PortMapping) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tablePortMapping, m); err != nil {
		return errors.Wrap(err, "inserting port mapping")
	}
	txn.Commit()
	return nil
}

func (s *Store) GetPortMapping(portID string) (ncp.PortMapping, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	return first[ncp.PortMapping](txn, tablePortMapping, indexID, portID)
}

func (s *Store) DeletePortMapping(portID string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if _, err := txn.DeleteAll(tablePortMapping, indexID, portID); err != nil {
		return errors.Wrap(err, "deleting port mapping")
	}
	txn.Commit()
	return nil
}

func (s *Store) CreatePortDhcpBinding(b ncp.PortDhcpBinding) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tablePortDhcpBinding, b); err != nil {
		return errors.Wrap(err, "inserting port dhcp binding")
	}
	txn.Commit()
	return nil
}

// DeletePortDhcpBindingsByServer drops all per-port bindings under a DHCP
// server, used when the server itself is decommissioned.
func (s *Store) DeletePortDhcpBindingsByServer(serverID string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if _, err := txn.DeleteAll(tablePortDhcpBinding, indexServer, serverID); err != nil {
		return errors.Wrap(err, "deleting port dhcp bindings")
	}
	txn.Commit()
	return nil
}

func (s *Store) CreateNetworkMapping(m ncp.NetworkMapping) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tableNetworkMapping, m); err != nil {
		return errors.Wrap(err, "inserting network mapping")
	}
	txn.Commit()
	return nil
}

func (s *Store) DeleteNetworkMapping(networkID string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	if _, err := txn.DeleteAll(tableNetworkMapping, indexID, networkID); err != nil {
		return errors.Wrap(err, "deleting network mapping")
	}
	txn.Commit()
	return nil
}

// NetworkBackendID returns the backend logical-switch id realized for a
// network.
func (s *Store) NetworkBackendID(networkID string) (string, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	m, err := first[ncp.NetworkMapping](txn, tableNetworkMapping, indexID, networkID)
	if err != nil {
		return "", err
	}
	return m.BackendSwitchID, nil
}
