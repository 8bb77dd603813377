package assembly

import (
	"github.com/exanodes/vrtcore/pkg/uuid"
	"github.com/exanodes/vrtcore/pkg/vrt/storage"
	"github.com/exanodes/vrtcore/pkg/vrterr"
)

// Volume is a sequence of slots forming one logical volume's address space
// (spec.md §4.D "assembly_volume").
type Volume struct {
	UUID  uuid.UUID
	Slots []*Slot
}

// SizeInSlots returns the number of slots making up the volume.
func (v *Volume) SizeInSlots() int {
	return len(v.Slots)
}

// Equals is a deep comparison over slot contents (assembly_volume_equals).
func (v *Volume) Equals(o *Volume) bool {
	if len(v.Slots) != len(o.Slots) {
		return false
	}
	for i := range v.Slots {
		if !v.Slots[i].Equals(o.Slots[i]) {
			return false
		}
	}
	return true
}

// Group owns the slot width/chunk size parameters and every slot and
// volume built from a Storage (spec.md §4.D "assembly_group").
type Group struct {
	SlotWidth uint32
	ChunkSize uint64 // sectors, mirrors storage.ChunkSize once cut
	Volumes   []*Volume
	Slots     []*Slot

	storage *storage.Storage
}

// Setup records the placement parameters for a freshly created group
// (assembly_group_setup).
func Setup(st *storage.Storage, slotWidth uint32, chunkSize uint64) *Group {
	return &Group{SlotWidth: slotWidth, ChunkSize: chunkSize, storage: st}
}

// ReserveVolume constructs nSlots new slots using the placement rule and
// atomically appends a new assembly_volume (spec.md §4.D "reserve_volume").
// If storage runs out of SPOF groups with a free chunk partway through,
// every slot already built for this call is torn down and its chunks
// returned to the free pool before ENOSPC is returned.
func (g *Group) ReserveVolume(id uuid.UUID, nSlots uint32) (*Volume, error) {
	built := make([]*Slot, 0, nSlots)

	for i := uint32(0); i < nSlots; i++ {
		slot, err := MakeSlot(g.storage, g.SlotWidth)
		if err != nil {
			for _, s := range built {
				releaseAll(s.Chunks)
			}
			return nil, vrterr.ErrNoSpace
		}
		built = append(built, slot)
	}

	v := &Volume{UUID: id, Slots: built}
	g.Volumes = append(g.Volumes, v)
	g.Slots = append(g.Slots, built...)

	return v, nil
}

// Map resolves a logical sector of volume av to (slot index, offset within
// the slot), in units of sectors, given the group's chunk size
// (spec.md §4.D "assembly_map").
func (g *Group) Map(av *Volume, logicalSector uint64) (slotIndex int, offsetInSlot uint64, err error) {
	slotSectors := g.ChunkSize
	if slotSectors == 0 {
		return 0, 0, vrterr.ErrInvalid
	}

	idx := logicalSector / slotSectors
	if idx >= uint64(len(av.Slots)) {
		return 0, 0, vrterr.ErrInvalid
	}

	return int(idx), logicalSector % slotSectors, nil
}
