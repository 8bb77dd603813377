package storage

import (
	"encoding/binary"

	"github.com/exanodes/vrtcore/pkg/stream"
	"github.com/exanodes/vrtcore/pkg/uuid"
	"github.com/exanodes/vrtcore/pkg/vrterr"
)

const (
	// HeaderMagic identifies a serialized storage header.
	HeaderMagic uint32 = 0x7700FFCC
	// HeaderFormat is the only storage header layout version understood.
	HeaderFormat uint32 = 1

	rdevRecordSize = 16 + 8 // uuid + total_chunks_count
)

// Serialize writes {magic, format, chunk_size, nb_rdevs} followed by one
// {rdev_uuid, total_chunks_count} record per rdev (spec.md §4.C "Storage
// serialization", grounded on storage_serialize).
func (s *Storage) Serialize(w *stream.Stream) error {
	hbuf := make([]byte, 16)
	binary.LittleEndian.PutUint32(hbuf[0:4], HeaderMagic)
	binary.LittleEndian.PutUint32(hbuf[4:8], HeaderFormat)
	binary.LittleEndian.PutUint32(hbuf[8:12], uint32(s.ChunkSize))
	binary.LittleEndian.PutUint32(hbuf[12:16], uint32(s.NumRdevs()))

	if _, err := w.Write(hbuf); err != nil {
		return err
	}

	for _, g := range s.SpofGroups {
		for _, r := range g.Rdevs {
			rec := make([]byte, rdevRecordSize)
			copy(rec[0:16], r.UUID.Marshal())
			binary.LittleEndian.PutUint64(rec[16:24], r.Chunks.TotalChunksCount)
			if _, err := w.Write(rec); err != nil {
				return err
			}
		}
	}

	return nil
}

// Deserialize reads a storage image written by Serialize. The target
// Storage must already contain the matching set of rdevs (spec.md §4.C:
// "Deserialization requires the target storage to already contain the
// matching set of rdevs"); each rdev's chunk table is (re)initialized from
// the serialized total_chunks_count.
func (s *Storage) Deserialize(r *stream.Stream) error {
	hbuf := make([]byte, 16)
	if _, err := readFull(r, hbuf); err != nil {
		return err
	}

	magic := binary.LittleEndian.Uint32(hbuf[0:4])
	format := binary.LittleEndian.Uint32(hbuf[4:8])
	chunkSize := binary.LittleEndian.Uint32(hbuf[8:12])
	nbRdevs := binary.LittleEndian.Uint32(hbuf[12:16])

	if magic != HeaderMagic {
		return vrterr.ErrSBMagic
	}
	if format != HeaderFormat {
		return vrterr.ErrSBFormat
	}
	if int(nbRdevs) != s.NumRdevs() {
		return vrterr.ErrSBCorruption
	}

	s.ChunkSize = uint64(chunkSize)

	for i := uint32(0); i < nbRdevs; i++ {
		rec := make([]byte, rdevRecordSize)
		if _, err := readFull(r, rec); err != nil {
			return err
		}

		var raw [16]byte
		copy(raw[:], rec[0:16])
		id := uuid.Unmarshal(raw)
		totalChunks := binary.LittleEndian.Uint64(rec[16:24])

		rdev := s.RdevByUUID(id)
		if rdev == nil {
			return vrterr.ErrSBCorruption
		}

		rdev.InitChunks(kbToSectors(chunkSize), totalChunks)
	}

	return nil
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

// Equals performs the same shallow comparison as storage_equals: chunk
// size, rdev count, and per-rdev total chunk counts.
func (s *Storage) Equals(o *Storage) bool {
	if s.ChunkSize != o.ChunkSize {
		return false
	}
	if s.NumRdevs() != o.NumRdevs() {
		return false
	}

	for _, g := range s.SpofGroups {
		for _, r1 := range g.Rdevs {
			r2 := o.RdevByUUID(r1.UUID)
			if r2 == nil || r1.Chunks.TotalChunksCount != r2.Chunks.TotalChunksCount {
				return false
			}
		}
	}

	return true
}
