// Package layout defines the contract every VRT layout (sstriping, rain1)
// implements on top of an assembly group (spec.md §4.E).
package layout

import (
	"github.com/exanodes/vrtcore/pkg/vrt/assembly"
	"github.com/exanodes/vrtcore/pkg/vrt/realdev"
)

// RW selects the direction of an I/O request.
type RW int

const (
	Read RW = iota
	Write
)

// SubRequest is one (rdev, sector range) fragment of a mapped I/O request.
// Sector is the volume logical sector this fragment starts at (callers
// subtract the request's own start sector to find its buffer offset); mirrored layouts emit two sub-requests
// sharing the same Sector/Length against different rdevs, so callers must
// slice their buffer by Sector rather than by summing prior Lengths.
type SubRequest struct {
	Rdev    *realdev.Rdev
	RSector uint64
	Length  uint64
	Sector  uint64
}

// GroupStatus is the compound health of a vrt_group (spec.md §4.F).
type GroupStatus int

const (
	StatusOK GroupStatus = iota
	StatusDegraded
	StatusOffline
)

func (s GroupStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusDegraded:
		return "DEGRADED"
	case StatusOffline:
		return "OFFLINE"
	default:
		return "UNKNOWN"
	}
}

// IsUp reports whether rdev is currently reachable. The vrt_group runtime
// supplies one backed by the up-nodes set it receives from the cluster
// supervisor (spec.md §4.F "Membership reaction").
type IsUp func(rdev *realdev.Rdev) bool

// Layout is the contract a layout group (rain1.Group, sstriping.Group)
// offers to the vrt_group runtime: mapping I/O to sub-requests, and
// folding rdev reachability into a compound status (spec.md §4.E, §4.F).
type Layout interface {
	IOMap(av *assembly.Volume, rw RW, sector, count uint64) ([]SubRequest, error)
	Status(up IsUp) GroupStatus
}

// DirtyClearer is implemented by layouts that track a dirty-zone bitmap
// across a redundant write (rain1.Group). The vrt_group runtime calls
// ClearWriteDirty only after the transport has acknowledged every
// sub-request IOMap produced for a write, never as part of mapping itself
// (spec.md §5 "Ordering guarantees"). Layouts with no redundancy to track
// (sstriping.Group) simply don't implement this.
type DirtyClearer interface {
	ClearWriteDirty(sector, count uint64)
}
