// Package gateway computes the backend actions needed to move a router's
// external gateway from one state to another. The transition is a set of
// independently evaluated flags rather than a state-machine edge, so each
// side effect can be applied or skipped on its own and re-running the
// planner with the same inputs is idempotent.
package gateway

import (
	"github.com/vnetops/nsx-control-plane/ncp"
	"github.com/vnetops/nsx-control-plane/ncp/types"
)

// ActionSet is the ordered set of backend actions for one gateway update.
// The Advertise fields describe the route-advertisement mode the router ends
// up in; they are modes, not add/remove actions.
type ActionSet struct {
	RemoveRouterLinkPort bool
	AddRouterLinkPort    bool
	RemoveSnatRules      bool
	AddSnatRules         bool
	RemoveNoDnatRules    bool
	AddNoDnatRules       bool
	RevokeBgpAnnounce    bool
	BgpAnnounce          bool
	AddServiceRouter     bool
	RemoveServiceRouter  bool

	AdvertiseNatRoutes       bool
	AdvertiseConnectedRoutes bool
}

// PlanTransition returns the actions required to move a router gateway from
// old to new. SNAT is considered effective only when both the flag and an
// address are present; a service router is never added or removed while a
// load balancer or firewall still depends on it.
func PlanTransition(old, new ncp.GatewayState) ActionSet {
	var a ActionSet

	// Remove the tier1-tier0 link port if the tier0 is removed or changed.
	a.RemoveRouterLinkPort = old.Tier0ID != "" &&
		(new.Tier0ID == "" || new.Tier0ID != old.Tier0ID)

	// Add the link port if the tier0 is added or changed to a new one.
	a.AddRouterLinkPort = new.Tier0ID != "" &&
		(old.Tier0ID == "" || old.Tier0ID != new.Tier0ID)

	// SNAT rules follow the gateway address while snat is enabled.
	a.RemoveSnatRules = old.SNATEnabled && old.Address != "" &&
		(new.Address != old.Address || !new.SNATEnabled)
	a.AddSnatRules = new.SNATEnabled && new.Address != "" &&
		(new.Address != old.Address || !old.SNATEnabled)

	// No-DNAT rules exist only while a gateway address is present with snat.
	a.RemoveNoDnatRules = old.Address != "" && old.SNATEnabled &&
		(new.Address == "" || !new.SNATEnabled)
	a.AddNoDnatRules = new.SNATEnabled && new.Address != "" &&
		(old.Address == "" || !old.SNATEnabled)

	// BGP announcement covers no-NAT subnets while snat is off: revoke when
	// the tier0 changes or snat turns on, announce when the tier0 changes or
	// snat turns off.
	a.RevokeBgpAnnounce = !old.SNATEnabled && old.Tier0ID != "" &&
		(new.Tier0ID != old.Tier0ID || new.SNATEnabled)
	a.BgpAnnounce = !new.SNATEnabled && new.Tier0ID != "" &&
		(new.Tier0ID != old.Tier0ID || old.SNATEnabled)

	// The service router follows the effective snat transition: the flag
	// alone means nothing without an address to NAT to.
	effectiveOld := old.SNATEnabled && old.Address != ""
	effectiveNew := new.SNATEnabled && new.Address != ""
	serviceShared := new.HasLoadBalancer || new.HasFirewall
	a.AddServiceRouter = effectiveNew && !effectiveOld && !serviceShared
	a.RemoveServiceRouter = !effectiveNew && effectiveOld && !serviceShared

	a.AdvertiseNatRoutes = new.SNATEnabled
	a.AdvertiseConnectedRoutes = !new.SNATEnabled

	return a
}

// HasActions reports whether any add/remove action is set.
func (a ActionSet) HasActions() bool {
	return a.RemoveRouterLinkPort || a.AddRouterLinkPort ||
		a.RemoveSnatRules || a.AddSnatRules ||
		a.RemoveNoDnatRules || a.AddNoDnatRules ||
		a.RevokeBgpAnnounce || a.BgpAnnounce ||
		a.AddServiceRouter || a.RemoveServiceRouter
}

// Inverse returns the action set with every add/remove flag swapped;
// PlanTransition(new, old) produces an action set whose add/remove flags
// match this one.
func (a ActionSet) Inverse() ActionSet {
	return ActionSet{
		RemoveRouterLinkPort: a.AddRouterLinkPort,
		AddRouterLinkPort:    a.RemoveRouterLinkPort,
		RemoveSnatRules:      a.AddSnatRules,
		AddSnatRules:         a.RemoveSnatRules,
		RemoveNoDnatRules:    a.AddNoDnatRules,
		AddNoDnatRules:       a.RemoveNoDnatRules,
		RevokeBgpAnnounce:    a.BgpAnnounce,
		BgpAnnounce:          a.RevokeBgpAnnounce,
		AddServiceRouter:     a.RemoveServiceRouter,
		RemoveServiceRouter:  a.AddServiceRouter,

		AdvertiseNatRoutes:       a.AdvertiseNatRoutes,
		AdvertiseConnectedRoutes: a.AdvertiseConnectedRoutes,
	}
}

// ValidateGatewayUpdate rejects gateway updates the backend cannot honor.
// hasFloatingIPs is whether floating IPs are bound to the gateway;
// hasVlanInterface is whether the router keeps an interface on a
// VLAN-backed (non-overlay) network after the update.
func ValidateGatewayUpdate(old, new ncp.GatewayState, hasFloatingIPs, hasVlanInterface bool) error {
	if old.SNATEnabled && !new.SNATEnabled && hasFloatingIPs {
		return types.NewErrorf(types.SnatDisableWithFloatingIPs,
			"unable to set SNAT disabled: floating IPs assigned")
	}
	if new.Tier0ID == "" && hasVlanInterface {
		return types.NewErrorf(types.VlanRequiresExternalGateway,
			"a router attached to a VLAN backed network must have an external network assigned")
	}
	return nil
}
