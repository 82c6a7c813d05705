package provider

import (
	"github.com/vnetops/nsx-control-plane/ncp"
	"github.com/vnetops/nsx-control-plane/ncp/types"
)

// ValidateNetworkCreate holds the general network validations that do not
// depend on provider attributes.
func ValidateNetworkCreate(req ncp.NetworkRequest) error {
	if req.QoSPolicyID != "" && req.External {
		return types.NewErrorf(types.QosNotAllowedHere,
			"QoS is not supported on external network %s", req.NetworkID)
	}
	return nil
}

// NetworkUpdate is the delta of a network update request. Nil fields are
// untouched.
type NetworkUpdate struct {
	Name        *string `json:"name,omitempty"`
	External    *bool   `json:"external,omitempty"`
	QoSPolicyID *string `json:"qosPolicyID,omitempty"`
}

// ValidateNetworkUpdate rejects updates that would flip the external flag or
// put QoS on an external network.
func ValidateNetworkUpdate(original ncp.Network, update NetworkUpdate) error {
	if update.QoSPolicyID != nil && *update.QoSPolicyID != "" && original.External {
		return types.NewErrorf(types.QosNotAllowedHere,
			"QoS is not supported on external network %s", original.ID)
	}
	if update.External != nil && *update.External != original.External {
		return types.NewErrorf(types.InvalidInput,
			"cannot change the router:external flag of network %s", original.ID)
	}
	return nil
}

// ExternalBinding is the resolved form of an external network: the tier0 it
// uplinks through, never a VLAN tag.
type ExternalBinding struct {
	Tier0ID string
}

// ValidateExternalNetworkCreate resolves an external network request. The
// physical_network attribute carries the tier0 id, defaulting to the
// deployment-wide one; a network type other than l3_ext or a segmentation id
// is rejected.
func ValidateExternalNetworkCreate(req ncp.NetworkRequest, defaultTier0 string) (ExternalBinding, error) {
	tier0 := defaultTier0
	if req.PhysicalNetwork != nil {
		tier0 = *req.PhysicalNetwork
	}
	if req.SegmentationID != nil ||
		(req.NetworkType != nil && *req.NetworkType != ncp.NetworkTypeL3Ext) {
		return ExternalBinding{}, types.NewErrorf(types.InvalidInput,
			"external network cannot be created with provider network type or segmentation id")
	}
	return ExternalBinding{Tier0ID: tier0}, nil
}
