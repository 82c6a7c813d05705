package gateway

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnetops/nsx-control-plane/ncp"
	"github.com/vnetops/nsx-control-plane/ncp/types"
)

func TestPlanTransition(t *testing.T) {
	tests := []struct {
		name string
		old  ncp.GatewayState
		new  ncp.GatewayState
		want ActionSet
	}{
		{
			name: "attach gateway with snat",
			old:  ncp.GatewayState{},
			new:  ncp.GatewayState{Tier0ID: "t0-a", Address: "10.0.0.1", SNATEnabled: true},
			want: ActionSet{
				AddRouterLinkPort:  true,
				AddSnatRules:       true,
				AddNoDnatRules:     true,
				AddServiceRouter:   true,
				AdvertiseNatRoutes: true,
			},
		},
		{
			name: "detach gateway with snat",
			old:  ncp.GatewayState{Tier0ID: "t0-a", Address: "10.0.0.1", SNATEnabled: true},
			new:  ncp.GatewayState{},
			want: ActionSet{
				RemoveRouterLinkPort:     true,
				RemoveSnatRules:          true,
				RemoveNoDnatRules:        true,
				RemoveServiceRouter:      true,
				AdvertiseConnectedRoutes: true,
			},
		},
		{
			name: "tier0 swap while snat stays enabled moves only the link port",
			old:  ncp.GatewayState{Tier0ID: "t0-a", Address: "10.0.0.1", SNATEnabled: true},
			new:  ncp.GatewayState{Tier0ID: "t0-b", Address: "10.0.0.1", SNATEnabled: true},
			want: ActionSet{
				RemoveRouterLinkPort: true,
				AddRouterLinkPort:    true,
				AdvertiseNatRoutes:   true,
			},
		},
		{
			name: "tier0 swap while snat disabled moves the bgp announcement",
			old:  ncp.GatewayState{Tier0ID: "t0-a", Address: "10.0.0.1"},
			new:  ncp.GatewayState{Tier0ID: "t0-b", Address: "10.0.0.1"},
			want: ActionSet{
				RemoveRouterLinkPort:     true,
				AddRouterLinkPort:        true,
				RevokeBgpAnnounce:        true,
				BgpAnnounce:              true,
				AdvertiseConnectedRoutes: true,
			},
		},
		{
			name: "tier0 swap with a new address rewires the link port and snat rules",
			old:  ncp.GatewayState{Tier0ID: "t0-a", Address: "10.0.0.5", SNATEnabled: true},
			new:  ncp.GatewayState{Tier0ID: "t0-b", Address: "10.0.0.6", SNATEnabled: true},
			want: ActionSet{
				RemoveRouterLinkPort: true,
				AddRouterLinkPort:    true,
				RemoveSnatRules:      true,
				AddSnatRules:         true,
				AdvertiseNatRoutes:   true,
			},
		},
		{
			name: "disable snat on an attached gateway",
			old:  ncp.GatewayState{Tier0ID: "t0-a", Address: "10.0.0.1", SNATEnabled: true},
			new:  ncp.GatewayState{Tier0ID: "t0-a", Address: "10.0.0.1"},
			want: ActionSet{
				RemoveSnatRules:          true,
				RemoveNoDnatRules:        true,
				BgpAnnounce:              true,
				RemoveServiceRouter:      true,
				AdvertiseConnectedRoutes: true,
			},
		},
		{
			name: "enable snat on an attached gateway",
			old:  ncp.GatewayState{Tier0ID: "t0-a", Address: "10.0.0.1"},
			new:  ncp.GatewayState{Tier0ID: "t0-a", Address: "10.0.0.1", SNATEnabled: true},
			want: ActionSet{
				AddSnatRules:       true,
				AddNoDnatRules:     true,
				RevokeBgpAnnounce:  true,
				AddServiceRouter:   true,
				AdvertiseNatRoutes: true,
			},
		},
		{
			name: "address change with snat enabled rewrites the snat rules",
			old:  ncp.GatewayState{Tier0ID: "t0-a", Address: "10.0.0.1", SNATEnabled: true},
			new:  ncp.GatewayState{Tier0ID: "t0-a", Address: "10.0.0.2", SNATEnabled: true},
			want: ActionSet{
				RemoveSnatRules:    true,
				AddSnatRules:       true,
				AdvertiseNatRoutes: true,
			},
		},
		{
			name: "snat flag without an address is not effective",
			old:  ncp.GatewayState{Tier0ID: "t0-a", SNATEnabled: true},
			new:  ncp.GatewayState{Tier0ID: "t0-a", Address: "10.0.0.1", SNATEnabled: true},
			want: ActionSet{
				AddSnatRules:       true,
				AddNoDnatRules:     true,
				AddServiceRouter:   true,
				AdvertiseNatRoutes: true,
			},
		},
		{
			name: "service router untouched while a load balancer depends on it",
			old:  ncp.GatewayState{Tier0ID: "t0-a", Address: "10.0.0.1", SNATEnabled: true, HasLoadBalancer: true},
			new:  ncp.GatewayState{Tier0ID: "t0-a", HasLoadBalancer: true},
			want: ActionSet{
				RemoveSnatRules:          true,
				RemoveNoDnatRules:        true,
				BgpAnnounce:              true,
				AdvertiseConnectedRoutes: true,
			},
		},
		{
			name: "service router untouched while a firewall depends on it",
			old:  ncp.GatewayState{Tier0ID: "t0-a", HasFirewall: true},
			new:  ncp.GatewayState{Tier0ID: "t0-a", Address: "10.0.0.1", SNATEnabled: true, HasFirewall: true},
			want: ActionSet{
				AddSnatRules:       true,
				AddNoDnatRules:     true,
				RevokeBgpAnnounce:  true,
				AdvertiseNatRoutes: true,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanTransition(tt.old, tt.new)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("PlanTransition mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// Planning a transition from a state to itself must produce no actions at
// all, whatever the state.
func TestPlanTransitionNoChange(t *testing.T) {
	states := []ncp.GatewayState{
		{},
		{Tier0ID: "t0-a"},
		{Tier0ID: "t0-a", Address: "10.0.0.1"},
		{Tier0ID: "t0-a", Address: "10.0.0.1", SNATEnabled: true},
		{Tier0ID: "t0-a", SNATEnabled: true},
		{Tier0ID: "t0-a", Address: "10.0.0.1", SNATEnabled: true, HasLoadBalancer: true},
	}
	for _, s := range states {
		got := PlanTransition(s, s)
		assert.False(t, got.HasActions(), "state %+v produced actions %+v", s, got)
	}
}

// The reverse transition must undo exactly what the forward one did.
func TestPlanTransitionRoundTrip(t *testing.T) {
	states := []ncp.GatewayState{
		{},
		{Tier0ID: "t0-a"},
		{Tier0ID: "t0-a", Address: "10.0.0.1"},
		{Tier0ID: "t0-a", Address: "10.0.0.1", SNATEnabled: true},
		{Tier0ID: "t0-b", Address: "10.0.0.2", SNATEnabled: true},
		{Tier0ID: "t0-b", Address: "10.0.0.2"},
	}
	for _, old := range states {
		for _, new := range states {
			forward := PlanTransition(old, new)
			backward := PlanTransition(new, old)
			want := forward.Inverse()
			// Advertise fields are terminal modes, not actions; they follow
			// the destination state instead of swapping.
			want.AdvertiseNatRoutes = old.SNATEnabled
			want.AdvertiseConnectedRoutes = !old.SNATEnabled
			if diff := cmp.Diff(want, backward); diff != "" {
				t.Errorf("round trip %+v -> %+v (-want +got):\n%s", old, new, diff)
			}
		}
	}
}

func TestValidateGatewayUpdate(t *testing.T) {
	tests := []struct {
		name             string
		old              ncp.GatewayState
		new              ncp.GatewayState
		hasFloatingIPs   bool
		hasVlanInterface bool
		wantCode         types.Code
	}{
		{
			name: "snat disable with floating ips rejected",
			old:  ncp.GatewayState{Tier0ID: "t0-a", Address: "10.0.0.1", SNATEnabled: true},
			new:  ncp.GatewayState{Tier0ID: "t0-a", Address: "10.0.0.1"},
			hasFloatingIPs: true,
			wantCode:       types.SnatDisableWithFloatingIPs,
		},
		{
			name: "snat disable without floating ips allowed",
			old:  ncp.GatewayState{Tier0ID: "t0-a", Address: "10.0.0.1", SNATEnabled: true},
			new:  ncp.GatewayState{Tier0ID: "t0-a", Address: "10.0.0.1"},
		},
		{
			name:             "gateway removal with a vlan interface rejected",
			old:              ncp.GatewayState{Tier0ID: "t0-a"},
			new:              ncp.GatewayState{},
			hasVlanInterface: true,
			wantCode:         types.VlanRequiresExternalGateway,
		},
		{
			name: "gateway removal without vlan interfaces allowed",
			old:  ncp.GatewayState{Tier0ID: "t0-a"},
			new:  ncp.GatewayState{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGatewayUpdate(tt.old, tt.new, tt.hasFloatingIPs, tt.hasVlanInterface)
			if tt.wantCode != types.Success {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, types.CodeOf(err))
				return
			}
			require.NoError(t, err)
		})
	}
}
