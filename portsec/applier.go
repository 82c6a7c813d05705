package portsec

import (
	"github.com/pkg/errors"

	"github.com/vnetops/nsx-control-plane/logger"
	"github.com/vnetops/nsx-control-plane/ncp"
)

// PortWriter is the slice of the Binding Store the applier mutates.
type PortWriter interface {
	UpdatePort(p ncp.PortData) error
	ReplaceAddressPairs(portID string, pairs []ncp.AddressPair) error
	ReplaceSecurityGroups(portID string, sgs, providerSGs []string) error
}

// Applier writes an accepted SecurityPlan to the store and compensates on
// failure. Partial application is never a terminal state: any failure rolls
// back port attributes, address pairs and security-group bindings together.
type Applier struct {
	store PortWriter
	log   *logger.Logger
}

func NewApplier(store PortWriter, log *logger.Logger) *Applier {
	return &Applier{store: store, log: log}
}

// Apply writes the plan. On failure the original port state is restored
// before the error propagates, so concurrent readers never observe a
// half-applied update.
func (a *Applier) Apply(old ncp.PortData, plan ncp.SecurityPlan) error {
	if err := a.store.UpdatePort(plan.Result); err != nil {
		a.Rollback(old)
		return errors.Wrapf(err, "updating port %s", old.ID)
	}
	if plan.ReapplyAddressPairs {
		if err := a.store.ReplaceAddressPairs(old.ID, plan.Result.AllowedAddressPairs); err != nil {
			a.Rollback(old)
			return errors.Wrapf(err, "replacing address pairs on port %s", old.ID)
		}
	}
	if plan.ReapplySecurityGroups {
		if err := a.store.ReplaceSecurityGroups(old.ID,
			plan.Result.SecurityGroups, plan.Result.ProviderSecurityGroups); err != nil {
			a.Rollback(old)
			return errors.Wrapf(err, "replacing security groups on port %s", old.ID)
		}
	}
	return nil
}

// Rollback restores the port to its pre-update state: attributes, address
// pairs and security-group bindings, all three regardless of which step
// failed. Callers invoke it after downstream (backend) failures as well.
// Restore failures are logged, never raised, so they cannot mask the
// original error.
func (a *Applier) Rollback(old ncp.PortData) {
	if err := a.store.UpdatePort(old); err != nil {
		a.log.Errorf("rollback: restoring port %s attributes: %v", old.ID, err)
	}
	if err := a.store.ReplaceAddressPairs(old.ID, old.AllowedAddressPairs); err != nil {
		a.log.Errorf("rollback: restoring port %s address pairs: %v", old.ID, err)
	}
	if err := a.store.ReplaceSecurityGroups(old.ID,
		old.SecurityGroups, old.ProviderSecurityGroups); err != nil {
		a.log.Errorf("rollback: restoring port %s security groups: %v", old.ID, err)
	}
}
