// Package sstriping implements the SSTRIPING layout: concatenation of
// slots with striping inside each slot, no redundancy (spec.md §4.E).
package sstriping

import (
	"github.com/exanodes/vrtcore/pkg/vrt/assembly"
	"github.com/exanodes/vrtcore/pkg/vrt/layout"
	"github.com/exanodes/vrtcore/pkg/vrterr"
)

const (
	HeaderMagic  uint32 = 0x53535401 // "SST\x01"
	HeaderFormat uint32 = 1
)

// Group is the per-group layout state for SSTRIPING: just the striping
// parameters, since there is no redundancy bookkeeping to carry.
type Group struct {
	SlotWidth uint32
	ChunkSize uint64 // sectors
	SUSize    uint64 // stripe unit size, sectors

	Assembly *assembly.Group
}

// Create sets up a new SSTRIPING group: slot_width is simply the number of
// SPOF groups available (spec.md §4.E "slot_width = num_spof_groups").
func Create(ag *assembly.Group, suSize uint64) *Group {
	return &Group{
		SlotWidth: ag.SlotWidth,
		ChunkSize: ag.ChunkSize,
		SUSize:    suSize,
		Assembly:  ag,
	}
}

// logicalSlotSize is the number of logical sectors addressable within one
// slot: chunk_size sectors per column, slot_width columns.
func (g *Group) logicalSlotSize() uint64 {
	return g.ChunkSize * uint64(g.SlotWidth)
}

// mapSector resolves a logical sector to (slot_index, column,
// chunk-relative sector), per spec.md §4.E's SSTRIPING formulas.
func (g *Group) mapSector(logicalSector uint64) (slotIndex int, column int, chunkSector uint64) {
	slotSize := g.logicalSlotSize()
	si := logicalSector / slotSize
	offset := logicalSector % slotSize

	col := (offset / g.SUSize) % uint64(g.SlotWidth)
	chunkRelative := (offset/(g.SUSize*uint64(g.SlotWidth)))*g.SUSize + offset%g.SUSize

	return int(si), int(col), chunkRelative
}

// IOMap splits one (rw, sector, count) request into per-rdev sub-requests.
// SSTRIPING never needs more than one sub-request per stripe-unit-aligned
// run since there is no mirroring, but a request spanning a stripe unit
// boundary is split at each boundary it crosses.
func (g *Group) IOMap(av *assembly.Volume, rw layout.RW, sector, count uint64) ([]layout.SubRequest, error) {
	var subs []layout.SubRequest

	remaining := count
	cur := sector

	for remaining > 0 {
		slotIndex, column, chunkSector := g.mapSector(cur)
		if slotIndex >= len(av.Slots) {
			return nil, vrterr.ErrInvalid
		}

		suOffset := chunkSector % g.SUSize
		runLen := g.SUSize - suOffset
		if runLen > remaining {
			runLen = remaining
		}

		slot := av.Slots[slotIndex]
		rdev, rsector, err := slot.MapSectorToRdev(column, chunkSector)
		if err != nil {
			return nil, err
		}

		subs = append(subs, layout.SubRequest{Rdev: rdev, RSector: rsector, Length: runLen, Sector: cur})

		cur += runLen
		remaining -= runLen
	}

	return subs, nil
}

// Status reports OFFLINE as soon as any rdev backing the group is
// unreachable: striping carries no redundancy, so there is no DEGRADED
// state to land in (spec.md §4.F "Compound group status").
func (g *Group) Status(up layout.IsUp) layout.GroupStatus {
	for _, slot := range g.Assembly.Slots {
		for _, chunk := range slot.Chunks {
			if !up(chunk.Rdev) {
				return layout.StatusOffline
			}
		}
	}
	return layout.StatusOK
}
