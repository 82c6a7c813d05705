// Package provider resolves and validates provider-network requests into
// concrete bindings: which transport zone, which network type, which VLAN
// tag. It consults the backend for transport-zone metadata and the Binding
// Store for tag usage; it performs no mutation itself.
package provider

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/vnetops/nsx-control-plane/ncp"
	"github.com/vnetops/nsx-control-plane/ncp/types"
	"github.com/vnetops/nsx-control-plane/nsx"
	"github.com/vnetops/nsx-control-plane/segment"
)

// Backend is the slice of the backend client the planner needs.
type Backend interface {
	GetTransportZone(ctx context.Context, id string) (nsx.TransportZone, error)
	GetLogicalSwitch(ctx context.Context, id string) (nsx.LogicalSwitch, error)
}

// BindingReader is the slice of the Binding Store the planner needs.
type BindingReader interface {
	BindingsByPhysicalNetworkAndTag(physicalNetwork string, tag int) ([]ncp.NetworkBinding, error)
}

// Defaults carries the deployment-wide provider configuration.
type Defaults struct {
	OverlayTransportZone string
	VlanTransportZone    string
	EnsSupport           bool
	VlanTransparent      bool
}

// Transport-zone metadata is immutable on the backend in practice, so
// lookups are cached briefly to keep network creation off the manager's hot
// path.
const (
	tzCacheTTL     = 5 * time.Minute
	tzCacheCleanup = 10 * time.Minute
)

// Planner validates and resolves provider-network requests.
type Planner struct {
	backend  Backend
	store    BindingReader
	alloc    *segment.Allocator
	defaults Defaults
	tzCache  *gocache.Cache
}

// New builds a planner.
func New(backend Backend, store BindingReader, alloc *segment.Allocator, defaults Defaults) *Planner {
	return &Planner{
		backend:  backend,
		store:    store,
		alloc:    alloc,
		defaults: defaults,
		tzCache:  gocache.New(tzCacheTTL, tzCacheCleanup),
	}
}

// Plan resolves req into a concrete binding or a typed rejection. It is
// idempotent: identical input against identical store/backend state yields
// an identical binding.
func (p *Planner) Plan(ctx context.Context, req ncp.NetworkRequest) (ncp.ResolvedBinding, error) {
	var out ncp.ResolvedBinding

	physical := ""
	if req.PhysicalNetwork != nil {
		physical = *req.PhysicalNetwork
	}

	if req.SegmentationID != nil && req.VlanTransparent {
		return out, types.NewErrorf(types.SegmentationIDNotAllowed,
			"segmentation id cannot be set with transparent vlan")
	}

	if !req.IsProviderRequest() {
		// Plain tenant network: overlay on the default transport zone.
		out = ncp.ResolvedBinding{PhysicalNetwork: p.defaults.OverlayTransportZone}
		return p.checkSwitchMode(ctx, req, out, false)
	}

	if req.NetworkType == nil {
		return out, types.NewErrorf(types.ProviderAttributesIncomplete,
			"network type is required for creating a provider network")
	}

	switch *req.NetworkType {
	case ncp.NetworkTypeFlat:
		resolved, err := p.planFlat(req, physical)
		if err != nil {
			return out, err
		}
		return p.checkTransportZone(ctx, req, resolved)

	case ncp.NetworkTypeVLAN:
		resolved, err := p.planVlan(req, physical)
		if err != nil {
			return out, err
		}
		return p.checkTransportZone(ctx, req, resolved)

	case ncp.NetworkTypeGeneve:
		if req.SegmentationID != nil {
			return out, types.NewErrorf(types.SegmentationIDNotAllowed,
				"segmentation id cannot be specified with %s network type", ncp.NetworkTypeGeneve)
		}
		if physical == "" {
			physical = p.defaults.OverlayTransportZone
		}
		resolved := ncp.ResolvedBinding{
			IsProviderNetwork: true,
			NetworkType:       ncp.NetworkTypeGeneve,
			PhysicalNetwork:   physical,
		}
		return p.checkTransportZone(ctx, req, resolved)

	case ncp.NetworkTypeNsxNetwork:
		return p.planNsxNetwork(ctx, req, physical)

	default:
		return out, types.NewErrorf(types.NetworkTypeNotSupported,
			"network type %s not supported", *req.NetworkType)
	}
}

func (p *Planner) planFlat(req ncp.NetworkRequest, physical string) (ncp.ResolvedBinding, error) {
	if req.SegmentationID != nil {
		return ncp.ResolvedBinding{}, types.NewErrorf(types.SegmentationIDNotAllowed,
			"segmentation id cannot be specified with %s network type", ncp.NetworkTypeFlat)
	}
	if physical == "" {
		physical = p.defaults.VlanTransportZone
	}
	out := ncp.ResolvedBinding{
		IsProviderNetwork: true,
		NetworkType:       ncp.NetworkTypeFlat,
		PhysicalNetwork:   physical,
	}
	if !p.defaults.VlanTransparent {
		tag := ncp.FlatVlanTag
		out.SegmentationID = &tag
	}
	return out, nil
}

func (p *Planner) planVlan(req ncp.NetworkRequest, physical string) (ncp.ResolvedBinding, error) {
	if physical == "" {
		physical = p.defaults.VlanTransportZone
	}
	out := ncp.ResolvedBinding{
		IsProviderNetwork: true,
		NetworkType:       ncp.NetworkTypeVLAN,
		PhysicalNetwork:   physical,
	}
	if p.defaults.VlanTransparent {
		out.SegmentationID = req.SegmentationID
		return out, nil
	}

	if req.SegmentationID == nil {
		tag, err := p.alloc.Allocate(physical)
		if err != nil {
			return out, err
		}
		out.SegmentationID = &tag
		return out, nil
	}

	tag := *req.SegmentationID
	if tag < ncp.MinVlanTag || tag > ncp.MaxVlanTag {
		return out, types.NewErrorf(types.SegmentationIDOutOfRange,
			"segmentation id %d out of range (%d through %d)", tag, ncp.MinVlanTag, ncp.MaxVlanTag)
	}
	if err := p.alloc.AssertTagFree(physical, tag); err != nil {
		return out, err
	}
	out.SegmentationID = &tag
	return out, nil
}

// planNsxNetwork links a network to an existing backend logical switch named
// by the physical_network attribute.
func (p *Planner) planNsxNetwork(ctx context.Context, req ncp.NetworkRequest, physical string) (ncp.ResolvedBinding, error) {
	var out ncp.ResolvedBinding
	if physical == "" {
		return out, types.NewErrorf(types.ProviderAttributesIncomplete,
			"physical network must be specified with %s network type", ncp.NetworkTypeNsxNetwork)
	}

	ls, err := p.backend.GetLogicalSwitch(ctx, physical)
	if err != nil {
		if nsx.IsNotFound(err) {
			return out, types.NewErrorf(types.LogicalSwitchNotFound,
				"logical switch %s does not exist", physical)
		}
		return out, types.NewErrorf(types.BackendUnavailable,
			"looking up logical switch %s: %v", physical, err)
	}

	// Make sure no other local network already linked it. Linked networks
	// are recorded with tag 0 against the switch id.
	bindings, err := p.store.BindingsByPhysicalNetworkAndTag(physical, ncp.FlatVlanTag)
	if err != nil {
		return out, errors.Wrap(err, "querying bindings")
	}
	if len(bindings) > 0 {
		return out, types.NewErrorf(types.LogicalSwitchInUse,
			"logical switch %s is already used by network %s", physical, bindings[0].NetworkID)
	}

	mode, err := p.switchMode(ctx, ls.TransportZoneID)
	if err != nil {
		return out, err
	}
	out = ncp.ResolvedBinding{
		IsProviderNetwork: true,
		NetworkType:       ncp.NetworkTypeNsxNetwork,
		PhysicalNetwork:   physical,
		SwitchMode:        mode,
	}
	return out, p.checkEns(req, out.SwitchMode)
}

// checkTransportZone validates the resolved transport zone exists and its
// transport type matches the network type, then applies the ENS rules.
func (p *Planner) checkTransportZone(ctx context.Context, req ncp.NetworkRequest, resolved ncp.ResolvedBinding) (ncp.ResolvedBinding, error) {
	wantType := ncp.TransportTypeVlan
	if resolved.NetworkType == ncp.NetworkTypeGeneve {
		wantType = ncp.TransportTypeOverlay
	}

	tz, err := p.transportZone(ctx, resolved.PhysicalNetwork)
	if err != nil {
		if nsx.IsNotFound(err) {
			return resolved, types.NewErrorf(types.TransportZoneNotFound,
				"transport zone %s does not exist", resolved.PhysicalNetwork)
		}
		return resolved, types.NewErrorf(types.BackendUnavailable,
			"looking up transport zone %s: %v", resolved.PhysicalNetwork, err)
	}
	if tz.TransportType != wantType {
		return resolved, types.NewErrorf(types.TransportZoneTypeMismatch,
			"%s transport zone is required for creating a %s provider network",
			wantType, resolved.NetworkType)
	}

	resolved.SwitchMode = tz.HostSwitchMode
	return resolved, p.checkEns(req, resolved.SwitchMode)
}

// checkSwitchMode fetches the switch mode for non-provider networks, where
// the transport type is not constrained.
func (p *Planner) checkSwitchMode(ctx context.Context, req ncp.NetworkRequest, resolved ncp.ResolvedBinding, required bool) (ncp.ResolvedBinding, error) {
	tz, err := p.transportZone(ctx, resolved.PhysicalNetwork)
	if err != nil {
		if nsx.IsNotFound(err) && !required {
			return resolved, nil
		}
		if nsx.IsNotFound(err) {
			return resolved, types.NewErrorf(types.TransportZoneNotFound,
				"transport zone %s does not exist", resolved.PhysicalNetwork)
		}
		return resolved, types.NewErrorf(types.BackendUnavailable,
			"looking up transport zone %s: %v", resolved.PhysicalNetwork, err)
	}
	resolved.SwitchMode = tz.HostSwitchMode
	return resolved, p.checkEns(req, resolved.SwitchMode)
}

// checkEns enforces the reduced feature set of ENS transport zones.
func (p *Planner) checkEns(req ncp.NetworkRequest, switchMode string) error {
	if switchMode != ncp.HostSwitchModeEns {
		return nil
	}
	if !p.defaults.EnsSupport {
		return types.NewErrorf(types.EnsDisabled, "ENS support is disabled")
	}
	if req.QoSPolicyID != "" {
		return types.NewErrorf(types.EnsUnsupportedOption,
			"cannot configure QoS on ENS networks")
	}
	return nil
}

func (p *Planner) transportZone(ctx context.Context, id string) (nsx.TransportZone, error) {
	if cached, ok := p.tzCache.Get(id); ok {
		return cached.(nsx.TransportZone), nil
	}
	tz, err := p.backend.GetTransportZone(ctx, id)
	if err != nil {
		return tz, err
	}
	p.tzCache.SetDefault(id, tz)
	return tz, nil
}

func (p *Planner) switchMode(ctx context.Context, tzID string) (string, error) {
	tz, err := p.transportZone(ctx, tzID)
	if err != nil {
		if nsx.IsNotFound(err) {
			return "", types.NewErrorf(types.TransportZoneNotFound,
				"transport zone %s does not exist", tzID)
		}
		return "", types.NewErrorf(types.BackendUnavailable,
			"looking up transport zone %s: %v", tzID, err)
	}
	return tz.HostSwitchMode, nil
}
