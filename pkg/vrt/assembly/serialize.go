package assembly

import (
	"encoding/binary"

	"github.com/exanodes/vrtcore/pkg/stream"
	"github.com/exanodes/vrtcore/pkg/uuid"
	"github.com/exanodes/vrtcore/pkg/vrt/storage"
	"github.com/exanodes/vrtcore/pkg/vrterr"
)

// Serialize writes the group header, volumes (as slot-index references),
// then the slots themselves (spec.md §4.D "Serialization").
func (g *Group) Serialize(w *stream.Stream) error {
	header := make([]byte, 16)
	binary.LittleEndian.PutUint32(header[0:4], g.SlotWidth)
	binary.LittleEndian.PutUint32(header[4:8], uint32(g.ChunkSize))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(g.Volumes)))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(g.Slots)))
	if _, err := w.Write(header); err != nil {
		return err
	}

	slotIndex := make(map[*Slot]uint32, len(g.Slots))
	for i, s := range g.Slots {
		slotIndex[s] = uint32(i)
	}

	for _, v := range g.Volumes {
		vhdr := make([]byte, 16+8)
		copy(vhdr[0:16], v.UUID.Marshal())
		binary.LittleEndian.PutUint64(vhdr[16:24], uint64(len(v.Slots)))
		if _, err := w.Write(vhdr); err != nil {
			return err
		}

		for _, s := range v.Slots {
			refBuf := make([]byte, 4)
			binary.LittleEndian.PutUint32(refBuf, slotIndex[s])
			if _, err := w.Write(refBuf); err != nil {
				return err
			}
		}
	}

	for _, s := range g.Slots {
		if err := serializeSlot(s, w); err != nil {
			return err
		}
	}

	return nil
}

func serializeSlot(s *Slot, w *stream.Stream) error {
	widthBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(widthBuf, uint32(s.Width()))
	if _, err := w.Write(widthBuf); err != nil {
		return err
	}

	for _, c := range s.Chunks {
		chunkBuf := make([]byte, 16+8)
		copy(chunkBuf[0:16], c.Rdev.UUID.Marshal())
		binary.LittleEndian.PutUint64(chunkBuf[16:24], c.Index)
		if _, err := w.Write(chunkBuf); err != nil {
			return err
		}
	}

	return nil
}

// Deserialize reads a group image written by Serialize. st must already
// contain every rdev referenced by the image's chunks.
func Deserialize(r *stream.Stream, st *storage.Storage) (*Group, error) {
	header := make([]byte, 16)
	if _, err := readFull(r, header); err != nil {
		return nil, err
	}

	slotWidth := binary.LittleEndian.Uint32(header[0:4])
	chunkSize := binary.LittleEndian.Uint32(header[4:8])
	numVolumes := binary.LittleEndian.Uint32(header[8:12])
	numSlots := binary.LittleEndian.Uint32(header[12:16])

	g := &Group{SlotWidth: slotWidth, ChunkSize: uint64(chunkSize), storage: st}

	type volRef struct {
		id    uuid.UUID
		slots []uint32
	}
	volRefs := make([]volRef, 0, numVolumes)

	for i := uint32(0); i < numVolumes; i++ {
		vhdr := make([]byte, 16+8)
		if _, err := readFull(r, vhdr); err != nil {
			return nil, err
		}
		var raw [16]byte
		copy(raw[:], vhdr[0:16])
		id := uuid.Unmarshal(raw)
		n := binary.LittleEndian.Uint64(vhdr[16:24])

		refs := make([]uint32, n)
		for j := uint64(0); j < n; j++ {
			b := make([]byte, 4)
			if _, err := readFull(r, b); err != nil {
				return nil, err
			}
			refs[j] = binary.LittleEndian.Uint32(b)
		}

		volRefs = append(volRefs, volRef{id: id, slots: refs})
	}

	slots := make([]*Slot, numSlots)
	for i := uint32(0); i < numSlots; i++ {
		s, err := deserializeSlot(r, st)
		if err != nil {
			return nil, err
		}
		slots[i] = s
	}
	g.Slots = slots

	for _, vr := range volRefs {
		vslots := make([]*Slot, len(vr.slots))
		for i, idx := range vr.slots {
			if int(idx) >= len(slots) {
				return nil, vrterr.ErrSBCorruption
			}
			vslots[i] = slots[idx]
		}
		g.Volumes = append(g.Volumes, &Volume{UUID: vr.id, Slots: vslots})
	}

	return g, nil
}

func deserializeSlot(r *stream.Stream, st *storage.Storage) (*Slot, error) {
	widthBuf := make([]byte, 4)
	if _, err := readFull(r, widthBuf); err != nil {
		return nil, err
	}
	width := binary.LittleEndian.Uint32(widthBuf)

	slot := &Slot{Chunks: make([]storage.ChunkRef, width)}
	for i := uint32(0); i < width; i++ {
		chunkBuf := make([]byte, 16+8)
		if _, err := readFull(r, chunkBuf); err != nil {
			return nil, err
		}

		var raw [16]byte
		copy(raw[:], chunkBuf[0:16])
		id := uuid.Unmarshal(raw)
		offset := binary.LittleEndian.Uint64(chunkBuf[16:24])

		rdev := st.RdevByUUID(id)
		if rdev == nil {
			return nil, vrterr.ErrSBCorruption
		}

		slot.Chunks[i] = storage.ChunkRef{Rdev: rdev, Index: offset}
	}

	return slot, nil
}

func readFull(s *stream.Stream, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := s.Read(buf[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, vrterr.ErrIO
		}
		total += n
	}
	return total, nil
}
