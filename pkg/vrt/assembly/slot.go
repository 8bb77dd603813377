// Package assembly implements the placement of volumes onto chunks: slots
// (one column per SPOF group), assembly volumes (sequences of slots), and
// the assembly group that owns them all (spec.md §4.D).
package assembly

import (
	"github.com/exanodes/vrtcore/pkg/vrt/realdev"
	"github.com/exanodes/vrtcore/pkg/vrt/storage"
	"github.com/exanodes/vrtcore/pkg/vrterr"
)

// Slot is one row of chunks, one per column, spread across distinct SPOF
// groups by construction (spec.md §4.D "slot_make").
type Slot struct {
	Chunks []storage.ChunkRef
}

// Width returns the number of columns in the slot.
func (s *Slot) Width() int {
	return len(s.Chunks)
}

// MapSectorToRdev resolves (column, offset within the chunk) to a concrete
// (rdev, absolute sector), grounded on assembly_slot_map_sector_to_rdev.
func (s *Slot) MapSectorToRdev(column int, offsetInChunk uint64) (*realdev.Rdev, uint64, error) {
	if column < 0 || column >= len(s.Chunks) {
		return nil, 0, vrterr.ErrInvalid
	}
	c := s.Chunks[column]
	return c.Rdev, c.Rdev.ChunkOffset(c.Index) + offsetInChunk, nil
}

// Equals performs a deep comparison: same width, same ordered chunks
// (rdev uuid + offset), matching slot_equals.
func (s *Slot) Equals(o *Slot) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.Chunks) != len(o.Chunks) {
		return false
	}
	for i := range s.Chunks {
		a, b := s.Chunks[i], o.Chunks[i]
		if !a.Rdev.UUID.Equal(b.Rdev.UUID) || a.Index != b.Index {
			return false
		}
	}
	return true
}

// MakeSlot builds one new slot of the given width, taking one chunk from
// each of the `width` SPOF groups with the most free chunks (spec.md §4.D
// "slot_make" steps 1-3, grounded on assembly_slot.c's generic_make_slot).
// On failure, any chunks already taken are returned to their SPOF groups.
func MakeSlot(st *storage.Storage, width uint32) (*Slot, error) {
	ordered := st.SpofsByFreeChunksDescending()
	if uint32(len(ordered)) < width {
		return nil, vrterr.ErrNoSpace
	}

	slot := &Slot{Chunks: make([]storage.ChunkRef, 0, width)}

	for i := uint32(0); i < width; i++ {
		ref, err := ordered[i].GetChunk()
		if err != nil {
			releaseAll(slot.Chunks)
			return nil, vrterr.ErrNoSpace
		}
		slot.Chunks = append(slot.Chunks, ref)
	}

	return slot, nil
}

func releaseAll(refs []storage.ChunkRef) {
	for _, r := range refs {
		r.Rdev.Release(r.Index)
	}
}
