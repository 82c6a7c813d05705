package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vnetops/nsx-control-plane/configuration"
	"github.com/vnetops/nsx-control-plane/dhcp"
	"github.com/vnetops/nsx-control-plane/gateway"
	"github.com/vnetops/nsx-control-plane/logger"
	"github.com/vnetops/nsx-control-plane/ncp"
	"github.com/vnetops/nsx-control-plane/ncp/types"
	"github.com/vnetops/nsx-control-plane/nsx"
	"github.com/vnetops/nsx-control-plane/portsec"
	"github.com/vnetops/nsx-control-plane/provider"
	"github.com/vnetops/nsx-control-plane/store"
)

// switchBackend is the slice of the backend client the network handlers use.
type switchBackend interface {
	CreateLogicalSwitch(ctx context.Context, req nsx.CreateLogicalSwitchRequest) (nsx.LogicalSwitch, error)
	DeleteLogicalSwitch(ctx context.Context, id string) error
}

// apiServer exposes the planners and the saga over HTTP. Handlers translate
// JSON payloads to core types and typed errors to status codes; all domain
// decisions live in the core packages.
type apiServer struct {
	cfg     configuration.Config
	store   *store.Store
	backend switchBackend
	planner *provider.Planner
	applier *portsec.Applier
	saga    *dhcp.Saga
	log     *logger.Logger
}

func (s *apiServer) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/networks", s.createNetwork).Methods(http.MethodPost)
	v1.HandleFunc("/networks/{id}", s.updateNetwork).Methods(http.MethodPut)
	v1.HandleFunc("/networks/{id}", s.deleteNetwork).Methods(http.MethodDelete)
	v1.HandleFunc("/subnets", s.createSubnet).Methods(http.MethodPost)
	v1.HandleFunc("/subnets/{id}", s.deleteSubnet).Methods(http.MethodDelete)
	v1.HandleFunc("/ports", s.createPort).Methods(http.MethodPost)
	v1.HandleFunc("/ports/{id}", s.updatePort).Methods(http.MethodPut)
	v1.HandleFunc("/routers/{id}/gateway-plan", s.planGateway).Methods(http.MethodPost)
	return r
}

func (s *apiServer) createNetwork(w http.ResponseWriter, r *http.Request) {
	var req ncp.NetworkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewErrorf(types.InvalidInput, "decoding request: %v", err))
		return
	}
	if err := provider.ValidateNetworkCreate(req); err != nil {
		writeError(w, err)
		return
	}

	if req.External {
		ext, err := provider.ValidateExternalNetworkCreate(req, s.cfg.DefaultTier0Router)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.store.CreateNetwork(networkFromRequest(req)); err != nil {
			writeError(w, err)
			return
		}
		if err := s.store.CreateNetworkBinding(ncp.NetworkBinding{
			NetworkID:       req.NetworkID,
			BindingType:     ncp.NetworkTypeL3Ext,
			PhysicalNetwork: ext.Tier0ID,
		}); err != nil {
			s.compensateNetwork(r.Context(), req.NetworkID, "")
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, ncp.ResolvedBinding{
			IsProviderNetwork: true,
			NetworkType:       ncp.NetworkTypeL3Ext,
			PhysicalNetwork:   ext.Tier0ID,
		})
		return
	}

	plan, err := s.planner.Plan(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	// For nsx-net networks the switch already exists and is never ours to
	// delete; createdSwitch stays empty so compensation leaves it alone.
	backendID := plan.PhysicalNetwork
	createdSwitch := ""
	if plan.NetworkType != ncp.NetworkTypeNsxNetwork {
		lsReq := nsx.CreateLogicalSwitchRequest{
			DisplayName:     req.Name,
			TransportZoneID: plan.PhysicalNetwork,
			AdminState:      "UP",
			VlanID:          plan.SegmentationID,
		}
		ls, err := s.backend.CreateLogicalSwitch(r.Context(), lsReq)
		if err != nil {
			writeError(w, types.NewErrorf(types.BackendUnavailable,
				"creating logical switch for network %s: %v", req.NetworkID, err))
			return
		}
		backendID = ls.ID
		createdSwitch = ls.ID
	}

	if err := s.store.CreateNetwork(networkFromRequest(req)); err != nil {
		s.compensateNetwork(r.Context(), req.NetworkID, createdSwitch)
		writeError(w, err)
		return
	}
	if plan.IsProviderNetwork {
		tag := ncp.FlatVlanTag
		if plan.SegmentationID != nil {
			tag = *plan.SegmentationID
		}
		// The store re-checks (physical network, tag) uniqueness at commit,
		// so a concurrent allocation of the same tag fails here.
		if err := s.store.CreateNetworkBinding(ncp.NetworkBinding{
			NetworkID:       req.NetworkID,
			BindingType:     plan.NetworkType,
			PhysicalNetwork: plan.PhysicalNetwork,
			SegmentationID:  tag,
		}); err != nil {
			s.compensateNetwork(r.Context(), req.NetworkID, createdSwitch)
			writeError(w, err)
			return
		}
	}
	if err := s.store.CreateNetworkMapping(ncp.NetworkMapping{
		NetworkID:       req.NetworkID,
		BackendSwitchID: backendID,
	}); err != nil {
		s.compensateNetwork(r.Context(), req.NetworkID, createdSwitch)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}

func (s *apiServer) updateNetwork(w http.ResponseWriter, r *http.Request) {
	networkID := mux.Vars(r)["id"]
	network, err := s.store.GetNetwork(networkID)
	if err != nil {
		writeError(w, err)
		return
	}
	var delta provider.NetworkUpdate
	if err := json.NewDecoder(r.Body).Decode(&delta); err != nil {
		writeError(w, types.NewErrorf(types.InvalidInput, "decoding request: %v", err))
		return
	}
	if err := provider.ValidateNetworkUpdate(network, delta); err != nil {
		writeError(w, err)
		return
	}
	if delta.Name != nil {
		network.Name = *delta.Name
	}
	if delta.QoSPolicyID != nil {
		network.QoSPolicyID = *delta.QoSPolicyID
	}
	if err := s.store.UpdateNetwork(network); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, network)
}

func (s *apiServer) deleteNetwork(w http.ResponseWriter, r *http.Request) {
	networkID := mux.Vars(r)["id"]
	if err := s.saga.Disable(r.Context(), networkID); err != nil {
		writeError(w, err)
		return
	}
	if backendID, err := s.store.NetworkBackendID(networkID); err == nil {
		if err := s.backend.DeleteLogicalSwitch(r.Context(), backendID); err != nil && !nsx.IsNotFound(err) {
			writeError(w, types.NewErrorf(types.BackendUnavailable,
				"deleting logical switch for network %s: %v", networkID, err))
			return
		}
	}
	// The binding row must die with the network or its tag stays allocated.
	if err := s.store.DeleteNetworkBinding(networkID); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteNetworkMapping(networkID); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteNetwork(networkID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) createSubnet(w http.ResponseWriter, r *http.Request) {
	var sub ncp.Subnet
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, types.NewErrorf(types.InvalidInput, "decoding request: %v", err))
		return
	}
	if err := s.store.CreateSubnet(sub); err != nil {
		writeError(w, err)
		return
	}
	if sub.EnableDHCP {
		if err := s.saga.EnableSubnet(r.Context(), sub.NetworkID, sub.ID); err != nil {
			if derr := s.store.DeleteSubnet(sub.ID); derr != nil {
				s.log.Errorf("removing subnet %s after failed dhcp enable: %v", sub.ID, derr)
			}
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *apiServer) deleteSubnet(w http.ResponseWriter, r *http.Request) {
	subnetID := mux.Vars(r)["id"]
	if err := s.saga.OnSubnetDelete(r.Context(), subnetID); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeleteSubnet(subnetID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) createPort(w http.ResponseWriter, r *http.Request) {
	var port ncp.PortData
	if err := json.NewDecoder(r.Body).Decode(&port); err != nil {
		writeError(w, types.NewErrorf(types.InvalidInput, "decoding request: %v", err))
		return
	}
	opts, err := s.portOptions(port.NetworkID)
	if err != nil {
		writeError(w, err)
		return
	}
	plan, err := portsec.ValidateCreate(port, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.CreatePort(plan.Result); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan.Result)
}

func (s *apiServer) updatePort(w http.ResponseWriter, r *http.Request) {
	portID := mux.Vars(r)["id"]
	old, err := s.store.GetPort(portID)
	if err != nil {
		writeError(w, err)
		return
	}
	var delta ncp.PortUpdate
	if err := json.NewDecoder(r.Body).Decode(&delta); err != nil {
		writeError(w, types.NewErrorf(types.InvalidInput, "decoding request: %v", err))
		return
	}
	opts, err := s.portOptions(old.NetworkID)
	if err != nil {
		writeError(w, err)
		return
	}
	plan, err := portsec.ValidateUpdate(old, delta, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.applier.Apply(old, plan); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan.Result)
}

// gatewayPlanRequest carries both gateway states plus the router facts the
// validation needs.
type gatewayPlanRequest struct {
	Old              ncp.GatewayState `json:"old"`
	New              ncp.GatewayState `json:"new"`
	HasFloatingIPs   bool             `json:"hasFloatingIPs"`
	HasVlanInterface bool             `json:"hasVlanInterface"`
}

func (s *apiServer) planGateway(w http.ResponseWriter, r *http.Request) {
	var req gatewayPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewErrorf(types.InvalidInput, "decoding request: %v", err))
		return
	}
	if err := gateway.ValidateGatewayUpdate(req.Old, req.New, req.HasFloatingIPs, req.HasVlanInterface); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gateway.PlanTransition(req.Old, req.New))
}

// portOptions derives the validation context for ports on networkID.
// TODO: resolve EnsPort from the network's transport zone once switch modes
// are recorded in the store.
func (s *apiServer) portOptions(networkID string) (portsec.Options, error) {
	network, err := s.store.GetNetwork(networkID)
	if err != nil {
		return portsec.Options{}, err
	}
	return portsec.Options{
		NetworkExternal: network.External,
		EnsPortSecurity: s.cfg.EnsPortSecurity,
	}, nil
}

// compensateNetwork unwinds a partially created network: the binding row,
// the network row and, when this request created one, the backend logical
// switch. Failures are logged so the original error propagates unmasked.
func (s *apiServer) compensateNetwork(ctx context.Context, networkID, switchID string) {
	if err := s.store.DeleteNetworkBinding(networkID); err != nil {
		s.log.Errorf("compensation: deleting binding of network %s: %v", networkID, err)
	}
	if err := s.store.DeleteNetworkMapping(networkID); err != nil {
		s.log.Errorf("compensation: deleting mapping of network %s: %v", networkID, err)
	}
	if err := s.store.DeleteNetwork(networkID); err != nil {
		s.log.Errorf("compensation: deleting network %s: %v", networkID, err)
	}
	if switchID == "" {
		return
	}
	if err := s.backend.DeleteLogicalSwitch(ctx, switchID); err != nil && !nsx.IsNotFound(err) {
		s.log.Errorf("compensation: deleting logical switch %s: %v", switchID, err)
	}
}

func networkFromRequest(req ncp.NetworkRequest) ncp.Network {
	return ncp.Network{
		ID:              req.NetworkID,
		Name:            req.Name,
		External:        req.External,
		VlanTransparent: req.VlanTransparent,
		QoSPolicyID:     req.QoSPolicyID,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the typed error classification to an HTTP status. The
// response body carries the code name so callers can branch without parsing
// messages.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch types.KindOf(err) {
	case types.KindValidation:
		status = http.StatusBadRequest
	case types.KindConflict, types.KindExhausted:
		status = http.StatusConflict
	case types.KindBackendUnavailable:
		status = http.StatusBadGateway
	}
	if errors.Is(err, store.ErrNotFound) {
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{
		"code":    types.CodeOf(err).String(),
		"message": err.Error(),
	})
}
