package store

import memdb "github.com/hashicorp/go-memdb"

const (
	tableNetwork         = "network"
	tableSubnet          = "subnet"
	tablePort            = "port"
	tableNetworkBinding  = "networkBinding"
	tableDhcpBinding     = "dhcpBinding"
	tablePortMapping     = "portMapping"
	tablePortDhcpBinding = "portDhcpBinding"
	tableNetworkMapping  = "networkMapping"

	indexID       = "id"
	indexNetwork  = "network"
	indexPhysical = "physical_network"
	indexPhyVlan  = "phy_vlan"
	indexServer   = "server"
)

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableNetwork: {
				Name: tableNetwork,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
			tableSubnet: {
				Name: tableSubnet,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					indexNetwork: {
						Name:    indexNetwork,
						Indexer: &memdb.StringFieldIndex{Field: "NetworkID"},
					},
				},
			},
			tablePort: {
				Name: tablePort,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					indexNetwork: {
						Name:    indexNetwork,
						Indexer: &memdb.StringFieldIndex{Field: "NetworkID"},
					},
				},
			},
			tableNetworkBinding: {
				Name: tableNetworkBinding,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "NetworkID"},
					},
					indexPhysical: {
						Name:    indexPhysical,
						Indexer: &memdb.StringFieldIndex{Field: "PhysicalNetwork"},
					},
					indexPhyVlan: {
						Name: indexPhyVlan,
						Indexer: &memdb.CompoundIndex{
							Indexes: []memdb.Indexer{
								&memdb.StringFieldIndex{Field: "PhysicalNetwork"},
								&memdb.IntFieldIndex{Field: "SegmentationID"},
							},
						},
					},
				},
			},
			tableDhcpBinding: {
				Name: tableDhcpBinding,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "NetworkID"},
					},
				},
			},
			tablePortMapping: {
				Name: tablePortMapping,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "PortID"},
					},
				},
			},
			tablePortDhcpBinding: {
				Name: tablePortDhcpBinding,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "PortID"},
					},
					indexServer: {
						Name:    indexServer,
						Indexer: &memdb.StringFieldIndex{Field: "BackendServerID"},
					},
				},
			},
			tableNetworkMapping: {
				Name: tableNetworkMapping,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:    indexID,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "NetworkID"},
					},
				},
			},
		},
	}
}
