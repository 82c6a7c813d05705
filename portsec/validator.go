// Package portsec enforces the port-level consistency rules on every create
// and update: security groups require port security plus an IP, address
// pairs require port security, trusted and passthrough ports never carry
// security features. A successful update yields a SecurityPlan; applying it
// is compensated by Applier.Rollback.
package portsec

import (
	"net"

	"github.com/vnetops/nsx-control-plane/ncp"
	"github.com/vnetops/nsx-control-plane/ncp/types"
)

// Options describes the network context the port lives in.
type Options struct {
	NetworkExternal bool
	// EnsPort is whether the port's network lives in an ENS transport zone.
	EnsPort bool
	// EnsPortSecurity is whether the backend build supports port security
	// on ENS switches.
	EnsPortSecurity bool
}

// ValidateCreate checks a new port against the invariants and returns the
// plan to apply. Validation happens before any side effect.
func ValidateCreate(port ncp.PortData, opts Options) (ncp.SecurityPlan, error) {
	if ncp.IsDirectVnic(port.VnicType) {
		if port.PortSecurityEnabled {
			return ncp.SecurityPlan{}, types.NewErrorf(types.DirectVnicPortSecurity,
				"security features are not supported for ports with direct/direct-physical VNIC type")
		}
		port.PortSecurityEnabled = false
	}

	if err := validateCommon(port, opts); err != nil {
		return ncp.SecurityPlan{}, err
	}

	return ncp.SecurityPlan{
		Result:                port,
		PortSecurityEnabled:   port.PortSecurityEnabled,
		HasFixedIP:            port.HasFixedIP(),
		ReapplyAddressPairs:   true,
		ReapplySecurityGroups: true,
		ReapplyPortSecurity:   true,
	}, nil
}

// ValidateUpdate checks a port update against the invariants, including the
// transition rules between old and new, and returns the merged result plus
// which security aspects must be written back.
func ValidateUpdate(old ncp.PortData, delta ncp.PortUpdate, opts Options) (ncp.SecurityPlan, error) {
	if err := validateTransitions(old, delta); err != nil {
		return ncp.SecurityPlan{}, err
	}

	merged := merge(old, delta)

	forcedPortSec := false
	if ncp.IsDirectVnic(merged.VnicType) {
		if delta.PortSecurityEnabled != nil && *delta.PortSecurityEnabled {
			return ncp.SecurityPlan{}, types.NewErrorf(types.DirectVnicPortSecurity,
				"security features are not supported for ports with direct/direct-physical VNIC type")
		}
		if merged.PortSecurityEnabled {
			merged.PortSecurityEnabled = false
			forcedPortSec = true
		}
	}

	if err := validateCommon(merged, opts); err != nil {
		return ncp.SecurityPlan{}, err
	}

	return ncp.SecurityPlan{
		Result:                merged,
		PortSecurityEnabled:   merged.PortSecurityEnabled,
		HasFixedIP:            merged.HasFixedIP(),
		ReapplyAddressPairs:   delta.AllowedAddressPairs != nil,
		ReapplySecurityGroups: delta.SecurityGroups != nil || delta.ProviderSecurityGroups != nil,
		ReapplyPortSecurity:   delta.PortSecurityEnabled != nil || forcedPortSec,
	}, nil
}

// validateCommon holds the checks shared by create and update, evaluated on
// the (merged) target state.
func validateCommon(port ncp.PortData, opts Options) error {
	// QoS is rejected on service-owned ports and on external networks.
	if port.QoSPolicyID != "" {
		if port.DeviceOwner == ncp.DeviceOwnerRouterInterface ||
			port.DeviceOwner == ncp.DeviceOwnerDHCP {
			return types.NewErrorf(types.QosNotAllowedHere,
				"unable to create or update %s port with a QoS policy", port.DeviceOwner)
		}
		if opts.NetworkExternal {
			return types.NewErrorf(types.QosNotAllowedHere,
				"QoS is not supported on external networks")
		}
	}

	if opts.NetworkExternal && ncp.IsComputeOwner(port.DeviceOwner) {
		return types.NewErrorf(types.InvalidInput,
			"unable to create a compute port on an external network")
	}

	if !port.AdminStateUp &&
		(port.DeviceOwner == ncp.DeviceOwnerRouterInterface ||
			port.DeviceOwner == ncp.DeviceOwnerRouterGateway) {
		return types.NewErrorf(types.AdminStateNotSupported,
			"admin_state_up=false router ports are not supported")
	}

	// Trusted ports are created with security off and it must not change.
	if ncp.IsTrustedOwner(port.DeviceOwner) {
		if port.PortSecurityEnabled {
			return types.NewErrorf(types.TrustedPortSecurityConflict,
				"port_security_enabled=true is not supported for trusted ports")
		}
		if port.MacLearning {
			return types.NewErrorf(types.TrustedPortSecurityConflict,
				"mac_learning_enabled=true is not supported for trusted ports")
		}
	}

	if port.PortSecurityEnabled && opts.EnsPort && !opts.EnsPortSecurity {
		return types.NewErrorf(types.EnsUnsupportedOption,
			"port security is not supported on ENS transport zones")
	}

	if len(port.AllowedAddressPairs) > 0 {
		if !port.PortSecurityEnabled {
			return types.NewErrorf(types.AddressPairRequiresPortSecurity,
				"allowed address pairs require port security to be enabled")
		}
		if err := validateIPv4Pairs(port.AllowedAddressPairs); err != nil {
			return err
		}
	}

	if len(port.SecurityGroups) > 0 || len(port.ProviderSecurityGroups) > 0 {
		if !port.PortSecurityEnabled || !port.HasFixedIP() {
			return types.NewErrorf(types.PortSecurityAndIPRequired,
				"port has conflicting port security status and security groups")
		}
	}

	return validateFixedIPCount(port)
}

// validateTransitions holds the update-only rules about what a port may
// change into.
func validateTransitions(old ncp.PortData, delta ncp.PortUpdate) error {
	if old.DeviceOwner == ncp.DeviceOwnerVPN {
		return types.NewErrorf(types.InvalidInput,
			"cannot update VPN service port %s", old.ID)
	}

	if old.DeviceOwner == ncp.DeviceOwnerLoadBalancer {
		if delta.FixedIPs != nil && len(*delta.FixedIPs) > 0 {
			return types.NewErrorf(types.LoadBalancerPortConstraint,
				"cannot update load balancer port %s with fixed IPs", old.ID)
		}
		if delta.AllowedAddressPairs != nil && len(*delta.AllowedAddressPairs) > 0 {
			return types.NewErrorf(types.LoadBalancerPortConstraint,
				"cannot update load balancer port %s with address pairs", old.ID)
		}
	}

	if delta.DeviceOwner == nil || *delta.DeviceOwner == old.DeviceOwner {
		return nil
	}
	newOwner := *delta.DeviceOwner

	// The compute and network owner namespaces never exchange ports.
	if (ncp.IsComputeOwner(old.DeviceOwner) && ncp.IsTrustedOwner(newOwner)) ||
		(ncp.IsTrustedOwner(old.DeviceOwner) && ncp.IsComputeOwner(newOwner)) {
		return types.NewErrorf(types.ImmutableDeviceOwner,
			"changing port device owner %q to %q is not allowed", old.DeviceOwner, newOwner)
	}

	// A DHCP port keeps its owner for life.
	if old.DeviceOwner == ncp.DeviceOwnerDHCP {
		return types.NewErrorf(types.ImmutableDeviceOwner,
			"changing port device owner %q to %q is not allowed", old.DeviceOwner, newOwner)
	}
	return nil
}

func merge(old ncp.PortData, delta ncp.PortUpdate) ncp.PortData {
	out := old
	if delta.Name != nil {
		out.Name = *delta.Name
	}
	if delta.AdminStateUp != nil {
		out.AdminStateUp = *delta.AdminStateUp
	}
	if delta.DeviceOwner != nil {
		out.DeviceOwner = *delta.DeviceOwner
	}
	if delta.QoSPolicyID != nil {
		out.QoSPolicyID = *delta.QoSPolicyID
	}
	if delta.MacLearning != nil {
		out.MacLearning = *delta.MacLearning
	}
	if delta.PortSecurityEnabled != nil {
		out.PortSecurityEnabled = *delta.PortSecurityEnabled
	}
	if delta.FixedIPs != nil {
		out.FixedIPs = *delta.FixedIPs
	}
	if delta.AllowedAddressPairs != nil {
		out.AllowedAddressPairs = *delta.AllowedAddressPairs
	}
	if delta.SecurityGroups != nil {
		out.SecurityGroups = *delta.SecurityGroups
	}
	if delta.ProviderSecurityGroups != nil {
		out.ProviderSecurityGroups = *delta.ProviderSecurityGroups
	}
	return out
}

func validateIPv4Pairs(pairs []ncp.AddressPair) error {
	for _, pair := range pairs {
		ip := net.ParseIP(pair.IPAddress)
		if ip == nil || ip.To4() == nil {
			return types.NewErrorf(types.InvalidInput,
				"address pair %q is not a valid IPv4 address", pair.IPAddress)
		}
	}
	return nil
}

// validateFixedIPCount limits untrusted ports to one address per family.
func validateFixedIPCount(port ncp.PortData) error {
	if ncp.IsTrustedOwner(port.DeviceOwner) {
		return nil
	}
	v4, v6 := 0, 0
	for _, fip := range port.FixedIPs {
		ip := net.ParseIP(fip.IPAddress)
		if ip != nil && ip.To4() == nil {
			v6++
		} else {
			v4++
		}
	}
	if v4 > 1 || v6 > 1 {
		return types.NewErrorf(types.InvalidInput,
			"port %s exceeds the maximum of one fixed IP per address family", port.ID)
	}
	return nil
}
