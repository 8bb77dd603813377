package rain1

import (
	"github.com/exanodes/vrtcore/pkg/vrt/storage"
)

// Admissibility checks the three RAIN-1 rules against a storage's current
// SPOF group layout (spec.md §4.E "Admissibility"). All three must hold at
// group creation and after every membership change.
type Admissibility struct {
	Replication      bool
	Administrability bool
	Quorum           bool
}

// OK reports whether all three rules passed.
func (a Admissibility) OK() bool {
	return a.Replication && a.Administrability && a.Quorum
}

// CheckAdmissibility evaluates the three rules for a group with the given
// slotWidth and nbSpare over st's current SPOF groups.
func CheckAdmissibility(st *storage.Storage, slotWidth, nbSpare uint32) Admissibility {
	return Admissibility{
		Replication:      checkReplication(slotWidth, nbSpare),
		Administrability: checkAdministrability(st, nbSpare),
		Quorum:           checkQuorum(st, nbSpare),
	}
}

// checkReplication is rule 1: slot_width >= 2 + nb_spare.
func checkReplication(slotWidth, nbSpare uint32) bool {
	return slotWidth >= 2+nbSpare
}

// checkAdministrability is rule 2. The "involved" node set here is every
// SPOF group that holds at least one rdev, sorted descending by size
// (rdev count as a stand-in for node count, since one rdev is attached to
// exactly one node in this model). After removing the `1+nb_spare` largest
// SPOFs, the sum of the rest must be strictly greater than the sum of the
// removed ones. Minimum SPOF count is 2*nb_spare+2.
func checkAdministrability(st *storage.Storage, nbSpare uint32) bool {
	k := 1 + nbSpare
	sizes := spofSizes(st)
	for len(sizes) > 0 && sizes[len(sizes)-1] == 0 {
		sizes = sizes[:len(sizes)-1]
	}

	if uint32(len(sizes)) < 2*nbSpare+2 {
		return false
	}
	if uint32(len(sizes)) <= k {
		return false
	}

	var removed, rest uint64
	for i, sz := range sizes {
		if uint32(i) < k {
			removed += sz
		} else {
			rest += sz
		}
	}

	return rest > removed
}

// checkQuorum is rule 3: for ALL SPOFs (not just involved ones), after
// removing any 1+nb_spare of them, the remaining node count must be
// strictly more than half of the cluster's total node count.
func checkQuorum(st *storage.Storage, nbSpare uint32) bool {
	k := 1 + nbSpare
	sizes := spofSizes(st)

	var total uint64
	for _, sz := range sizes {
		total += sz
	}
	if total == 0 {
		return false
	}

	// The worst case removes the `k` largest SPOFs (sizes are already
	// sorted descending by spofSizes), which minimizes the remainder.
	var removed uint64
	for i := uint32(0); i < k && int(i) < len(sizes); i++ {
		removed += sizes[i]
	}

	remaining := total - removed
	return 2*remaining > total
}

// spofSizes returns each SPOF group's rdev count, sorted descending (ties
// broken by SPOF id ascending, matching the ordering used elsewhere).
func spofSizes(st *storage.Storage) []uint64 {
	groups := st.SpofsByRdevCountDescending()
	sizes := make([]uint64, len(groups))
	for i, g := range groups {
		sizes[i] = uint64(len(g.Rdevs))
	}
	return sizes
}
