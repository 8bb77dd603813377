package rain1

import (
	"encoding/binary"

	"github.com/exanodes/vrtcore/pkg/stream"
	"github.com/exanodes/vrtcore/pkg/vrt/assembly"
	"github.com/exanodes/vrtcore/pkg/vrt/storage"
	"github.com/exanodes/vrtcore/pkg/vrterr"
)

const rain1HeaderSize = 4 + 4 + 4 + 4 + 8 + 8 + 4 + 8 + 8 + 4

// Serialize writes the layout-specific header followed by the assembly
// group's own serialization (spec.md §4.E "Layout serialization").
func (g *Group) Serialize(w *stream.Stream) error {
	h := make([]byte, rain1HeaderSize)
	binary.LittleEndian.PutUint32(h[0:4], HeaderMagic)
	binary.LittleEndian.PutUint32(h[4:8], HeaderFormat)
	binary.LittleEndian.PutUint32(h[8:12], uint32(g.SUSize))
	binary.LittleEndian.PutUint32(h[12:16], uint32(g.SlotWidth))
	binary.LittleEndian.PutUint64(h[16:24], uint64(g.SyncTag))
	binary.LittleEndian.PutUint64(h[24:32], g.ChunkSize)
	binary.LittleEndian.PutUint32(h[32:36], g.DirtyZoneSize)
	binary.LittleEndian.PutUint64(h[36:44], uint64(g.NodesResync))
	binary.LittleEndian.PutUint64(h[44:52], uint64(g.NodesUpdate))
	binary.LittleEndian.PutUint32(h[52:56], g.NbSpare)

	if _, err := w.Write(h); err != nil {
		return err
	}

	return g.Assembly.Serialize(w)
}

// Deserialize reads a layout image written by Serialize, rebuilding the
// assembly group against st.
func Deserialize(r *stream.Stream, st *storage.Storage) (*Group, error) {
	h := make([]byte, rain1HeaderSize)
	if _, err := readFull(r, h); err != nil {
		return nil, err
	}

	magic := binary.LittleEndian.Uint32(h[0:4])
	format := binary.LittleEndian.Uint32(h[4:8])
	if magic != HeaderMagic {
		return nil, vrterr.ErrSBMagic
	}
	if format != HeaderFormat {
		return nil, vrterr.ErrSBFormat
	}

	suSize := binary.LittleEndian.Uint32(h[8:12])
	slotWidth := binary.LittleEndian.Uint32(h[12:16])
	syncTag := binary.LittleEndian.Uint64(h[16:24])
	chunkSize := binary.LittleEndian.Uint64(h[24:32])
	dirtyZoneSize := binary.LittleEndian.Uint32(h[32:36])
	nodesResync := binary.LittleEndian.Uint64(h[36:44])
	nodesUpdate := binary.LittleEndian.Uint64(h[44:52])
	nbSpare := binary.LittleEndian.Uint32(h[52:56])

	ag, err := assembly.Deserialize(r, st)
	if err != nil {
		return nil, err
	}

	return &Group{
		SlotWidth:     slotWidth,
		ChunkSize:     chunkSize,
		SUSize:        uint64(suSize),
		NbSpare:       nbSpare,
		DirtyZoneSize: dirtyZoneSize,
		SyncTag:       SyncTag(syncTag),
		NodesResync:   NodeSet(nodesResync),
		NodesUpdate:   NodeSet(nodesUpdate),
		Dirty:         NewDirtyZones(dirtyZoneSize),
		RdevSync:      make(map[string]*RdevState),
		Assembly:      ag,
	}, nil
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
