// Package segment manages the VLAN tag id space of each VLAN-backed
// transport zone. The pool is recomputed from the Binding Store on every
// call so there is no separate counter to drift; callers serialize the
// allocate-then-persist critical section per physical network (see the
// namedlock package) or rely on the store's commit-time uniqueness check.
package segment

import (
	"sort"

	"github.com/vnetops/nsx-control-plane/ncp"
	"github.com/vnetops/nsx-control-plane/ncp/types"
)

// BindingReader is the slice of the Binding Store the allocator needs.
type BindingReader interface {
	BindingsByPhysicalNetwork(physicalNetwork string) ([]ncp.NetworkBinding, error)
}

// Allocator hands out free VLAN tags per physical network.
type Allocator struct {
	store BindingReader
	// ranges as parsed from configuration; physical networks without an
	// entry fall back to the full legal range.
	ranges map[string][][2]int
}

// New builds an allocator over the given store and configured ranges.
func New(store BindingReader, ranges map[string][][2]int) *Allocator {
	if ranges == nil {
		ranges = map[string][][2]int{}
	}
	return &Allocator{store: store, ranges: ranges}
}

// Allocate returns the lowest free tag on the physical network, or a
// NoAvailableVlan error when the range is exhausted. It does not persist a
// reservation; the caller must durably record the binding.
func (a *Allocator) Allocate(physicalNetwork string) (int, error) {
	used, err := a.usedTags(physicalNetwork)
	if err != nil {
		return 0, err
	}

	candidates := a.candidateTags(physicalNetwork)
	free := 0
	for _, tag := range candidates {
		if !used[tag] {
			free = tag
			break
		}
	}
	observePool(physicalNetwork, len(candidates), len(used))
	if free == 0 {
		allocationExhausted.WithLabelValues(physicalNetwork).Inc()
		return 0, types.NewErrorf(types.NoAvailableVlan,
			"no free vlan tag on physical network %s", physicalNetwork)
	}
	allocationCount.WithLabelValues(physicalNetwork).Inc()
	return free, nil
}

// IsTagFree reports whether tag is currently unbound on the physical
// network.
func (a *Allocator) IsTagFree(physicalNetwork string, tag int) (bool, error) {
	used, err := a.usedTags(physicalNetwork)
	if err != nil {
		return false, err
	}
	return !used[tag], nil
}

// AssertTagFree fails with VlanIDInUse when a caller-supplied tag is already
// bound on the physical network.
func (a *Allocator) AssertTagFree(physicalNetwork string, tag int) error {
	free, err := a.IsTagFree(physicalNetwork, tag)
	if err != nil {
		return err
	}
	if !free {
		return types.NewErrorf(types.VlanIDInUse,
			"vlan %d already bound on physical network %s", tag, physicalNetwork)
	}
	return nil
}

func (a *Allocator) usedTags(physicalNetwork string) (map[int]bool, error) {
	bindings, err := a.store.BindingsByPhysicalNetwork(physicalNetwork)
	if err != nil {
		return nil, err
	}
	used := make(map[int]bool, len(bindings))
	for _, b := range bindings {
		used[b.SegmentationID] = true
	}
	return used, nil
}

// candidateTags expands the configured ranges into a sorted tag list so the
// lowest-free pick is deterministic.
func (a *Allocator) candidateTags(physicalNetwork string) []int {
	ranges := a.ranges[physicalNetwork]
	if len(ranges) == 0 {
		ranges = [][2]int{{ncp.MinVlanTag, ncp.MaxVlanTag}}
	}
	seen := make(map[int]bool)
	var tags []int
	for _, r := range ranges {
		for tag := r[0]; tag <= r[1]; tag++ {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	sort.Ints(tags)
	return tags
}
