// Package rain1 implements the RAIN-1 layout: mirrored columns with
// spares, dirty-zone tracked resync, and the three admissibility rules
// that gate group creation and membership changes (spec.md §4.E).
package rain1

import (
	"github.com/exanodes/vrtcore/pkg/vrt/assembly"
	"github.com/exanodes/vrtcore/pkg/vrt/layout"
	"github.com/exanodes/vrtcore/pkg/vrt/realdev"
	"github.com/exanodes/vrtcore/pkg/vrt/storage"
	"github.com/exanodes/vrtcore/pkg/vrterr"
)

const (
	HeaderMagic  uint32 = 0xA2A3A4A5
	HeaderFormat uint32 = 1
)

// SyncTag is a monotonically increasing resync generation counter, carried
// per-rdev and at the group level (spec.md §4.E "Resync state").
type SyncTag uint64

// NodeSet is a small fixed-capacity bitmap of cluster node ids.
type NodeSet uint64

func (n NodeSet) Has(id uint32) bool { return n&(1<<id) != 0 }
func (n *NodeSet) Add(id uint32)     { *n |= 1 << id }
func (n *NodeSet) Remove(id uint32)  { *n &^= 1 << id }

// DirtyZones is an in-memory bitmap of dirty-zone-granularity regions that
// have been written but not yet confirmed in sync on both mirror halves.
type DirtyZones struct {
	ZoneSizeKiB uint32
	bits        map[uint64]bool
}

// NewDirtyZones returns an empty bitmap with the given zone granularity.
func NewDirtyZones(zoneSizeKiB uint32) *DirtyZones {
	return &DirtyZones{ZoneSizeKiB: zoneSizeKiB, bits: make(map[uint64]bool)}
}

// zoneOf returns the dirty-zone index covering sector.
func (d *DirtyZones) zoneOf(sector uint64) uint64 {
	sectorsPerZone := uint64(d.ZoneSizeKiB) * 1024 / 512
	return sector / sectorsPerZone
}

// MarkDirty marks every zone touched by [sector, sector+count) as dirty,
// ahead of issuing the mirrored write (spec.md §4.E "Write path").
func (d *DirtyZones) MarkDirty(sector, count uint64) {
	if count == 0 {
		return
	}
	first := d.zoneOf(sector)
	last := d.zoneOf(sector + count - 1)
	for z := first; z <= last; z++ {
		d.bits[z] = true
	}
}

// ClearDirty marks the zones covering [sector, sector+count) as in sync,
// called once both mirror halves have completed the write.
func (d *DirtyZones) ClearDirty(sector, count uint64) {
	if count == 0 {
		return
	}
	first := d.zoneOf(sector)
	last := d.zoneOf(sector + count - 1)
	for z := first; z <= last; z++ {
		delete(d.bits, z)
	}
}

// IsDirty reports whether the zone covering sector needs re-mirroring.
func (d *DirtyZones) IsDirty(sector uint64) bool {
	return d.bits[d.zoneOf(sector)]
}

// RdevState is the per-rdev resync bookkeeping carried in a rain1_rdev_header.
type RdevState struct {
	SyncTag SyncTag
}

// Group is the per-group RAIN-1 layout state (spec.md §4.E, grounded on
// lay_rain1_superblock.h's rain1_header_t).
type Group struct {
	SlotWidth      uint32
	ChunkSize      uint64 // sectors
	SUSize         uint64 // stripe unit, sectors
	NbSpare        uint32
	DirtyZoneSize  uint32 // KiB
	SyncTag        SyncTag
	NodesResync    NodeSet
	NodesUpdate    NodeSet

	Dirty    *DirtyZones
	RdevSync map[string]*RdevState // keyed by rdev uuid string

	Assembly *assembly.Group
}

// Create validates admissibility and builds a new RAIN-1 group
// (spec.md §4.E, "group_create"). ag.SlotWidth is taken as the number of
// mirror + spare columns per slot.
func Create(st *storage.Storage, ag *assembly.Group, suSize uint64, dirtyZoneSize uint32, nbSpare uint32) (*Group, error) {
	adm := CheckAdmissibility(st, ag.SlotWidth, nbSpare)
	if !adm.OK() {
		return nil, vrterr.ErrInvalid
	}

	return &Group{
		SlotWidth:     ag.SlotWidth,
		ChunkSize:     ag.ChunkSize,
		SUSize:        suSize,
		NbSpare:       nbSpare,
		DirtyZoneSize: dirtyZoneSize,
		Dirty:         NewDirtyZones(dirtyZoneSize),
		RdevSync:      make(map[string]*RdevState),
		Assembly:      ag,
	}, nil
}

// mirrorColumns returns the two columns forming the mirror pair for a
// given logical column index: 0 and 1 are the first mirror pair; columns
// beyond 2*(mirror pairs) up to SlotWidth are reserved spares. RAIN-1 as
// specified is a single mirrored pair (not N-way), so column 0 mirrors
// column 1; any additional columns are spares.
func (g *Group) mirrorColumns() (int, int) {
	return 0, 1
}

func (g *Group) logicalSlotSize() uint64 {
	return g.ChunkSize
}

// IOMap maps a (rw, sector, count) request to sub-requests against both
// mirror halves for a write, or one half for a read, marking the
// dirty-zone bitmap ahead of the write (spec.md §4.E "Write path", §4.F
// "Volume request dispatch"). The dirty bits this marks are only cleared
// once the caller's transport has actually acknowledged both mirror
// halves — see ClearWriteDirty — never inside this pure mapping step.
func (g *Group) IOMap(av *assembly.Volume, rw layout.RW, sector, count uint64) ([]layout.SubRequest, error) {
	slotSize := g.logicalSlotSize()
	if slotSize == 0 {
		return nil, vrterr.ErrInvalid
	}

	if rw == layout.Write {
		g.Dirty.MarkDirty(sector, count)
	}

	var subs []layout.SubRequest
	remaining := count
	cur := sector

	colA, colB := g.mirrorColumns()

	for remaining > 0 {
		slotIndex := cur / slotSize
		chunkSector := cur % slotSize
		if slotIndex >= uint64(len(av.Slots)) {
			return nil, vrterr.ErrInvalid
		}

		runLen := slotSize - chunkSector
		if runLen > remaining {
			runLen = remaining
		}

		slot := av.Slots[slotIndex]

		rdevA, rsectorA, err := slot.MapSectorToRdev(colA, chunkSector)
		if err != nil {
			return nil, err
		}
		subs = append(subs, layout.SubRequest{Rdev: rdevA, RSector: rsectorA, Length: runLen, Sector: cur})

		if rw == layout.Write {
			rdevB, rsectorB, err := slot.MapSectorToRdev(colB, chunkSector)
			if err != nil {
				return nil, err
			}
			subs = append(subs, layout.SubRequest{Rdev: rdevB, RSector: rsectorB, Length: runLen, Sector: cur})
		}

		cur += runLen
		remaining -= runLen
	}

	return subs, nil
}

// ClearWriteDirty marks [sector, sector+count) back in sync, called by the
// group runtime only after both mirror halves have acknowledged the write
// (spec.md §5 "Ordering guarantees"). Implements layout.DirtyClearer.
func (g *Group) ClearWriteDirty(sector, count uint64) {
	g.Dirty.ClearDirty(sector, count)
}

// AdvanceSyncTag bumps the group's sync tag on a metadata checkpoint. Any
// rdev whose own tag trails the new value must be resynced from the start
// of the zones it missed (spec.md §4.E "Resync state").
func (g *Group) AdvanceSyncTag() SyncTag {
	g.SyncTag++
	return g.SyncTag
}

// NeedsResync reports whether the rdev identified by key (its uuid string)
// is behind the group's current sync tag.
func (g *Group) NeedsResync(rdevKey string) bool {
	st, ok := g.RdevSync[rdevKey]
	if !ok {
		return true
	}
	return st.SyncTag < g.SyncTag
}

// Status folds rdev reachability and resync state into the group's
// compound status: a slot whose both mirror halves are down or resyncing
// takes the whole group OFFLINE; a slot with exactly one half down or
// still resyncing leaves it admissible but DEGRADED (spec.md §4.F
// "Compound group status").
func (g *Group) Status(up layout.IsUp) layout.GroupStatus {
	colA, colB := g.mirrorColumns()
	degraded := false

	for _, slot := range g.Assembly.Slots {
		if colA >= slot.Width() || colB >= slot.Width() {
			continue
		}
		aUp := g.halfInSync(up, slot.Chunks[colA].Rdev)
		bUp := g.halfInSync(up, slot.Chunks[colB].Rdev)

		if !aUp && !bUp {
			return layout.StatusOffline
		}
		if !aUp || !bUp {
			degraded = true
		}
	}

	if degraded {
		return layout.StatusDegraded
	}
	return layout.StatusOK
}

// halfInSync reports whether a mirror half is both reachable and caught up
// with the group's sync tag; a reachable-but-resyncing rdev still counts
// as not fully available (spec.md §4.F, §4.E "Resync state"). A column
// never tracked in RdevSync is a column the group has never had reason to
// resync (e.g. freshly created), so it is assumed in sync rather than
// falling back to NeedsResync's conservative "unknown means resync" rule,
// which is meant for admin-time scheduling queries, not status folding.
func (g *Group) halfInSync(up layout.IsUp, rdev *realdev.Rdev) bool {
	if !up(rdev) {
		return false
	}
	st, tracked := g.RdevSync[rdev.UUID.String()]
	if !tracked {
		return true
	}
	return st.SyncTag >= g.SyncTag
}
