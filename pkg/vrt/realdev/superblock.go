// Package realdev models a single underlying block device (rdev) as seen by
// the virtualizer: its identity, its dual-slot metadata superblock area, and
// the chunk table cut out of its usable space (spec.md §4.C).
package realdev

import (
	"encoding/binary"

	"github.com/exanodes/vrtcore/pkg/checksum"
	"github.com/exanodes/vrtcore/pkg/stream"
	"github.com/exanodes/vrtcore/pkg/vrterr"
)

func checksumOf(data []byte) uint16 {
	return uint16(checksum.Compute(data))
}

const (
	// SuperblockHeaderMagic identifies a valid superblock_header.
	SuperblockHeaderMagic uint32 = 0x99033055
	// SuperblockHeaderFormat is the only header layout version understood.
	SuperblockHeaderFormat uint32 = 1

	// headerSize is the on-disk size of a Header: 4*4 + 4*8 + 2 + 6 bytes.
	headerSize = 4 + 4 + 4 + 4 + 8 + 8 + 8 + 8 + 2 + 6

	// SectorSize is the logical sector size assumed throughout the VRT.
	SectorSize = 512

	// SBAreaSize is the reserved area at the start of every rdev, in
	// sectors, holding both superblock slots. Chunk 0 starts right after it.
	SBAreaSize = 2048

	numSlots = 2
)

// Header is the fixed-size prefix of a superblock slot (spec.md §4.C,
// grounded on realdev_superblock.h's superblock_header_t). Fields 'magic'
// and 'format' must stay first and second, matching the original layout.
type Header struct {
	Magic       uint32
	Format      uint32
	Position    uint32
	Reserved1   uint32
	SBVersion   uint64
	DataMaxSize uint64
	DataOffset  uint64
	DataSize    uint64
	Checksum    uint16
	Reserved2   [6]byte
}

func (h *Header) marshal() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Format)
	binary.LittleEndian.PutUint32(buf[8:12], h.Position)
	binary.LittleEndian.PutUint32(buf[12:16], h.Reserved1)
	binary.LittleEndian.PutUint64(buf[16:24], h.SBVersion)
	binary.LittleEndian.PutUint64(buf[24:32], h.DataMaxSize)
	binary.LittleEndian.PutUint64(buf[32:40], h.DataOffset)
	binary.LittleEndian.PutUint64(buf[40:48], h.DataSize)
	binary.LittleEndian.PutUint16(buf[48:50], h.Checksum)
	copy(buf[50:56], h.Reserved2[:])
	return buf
}

func unmarshalHeader(buf []byte) Header {
	var h Header
	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	h.Format = binary.LittleEndian.Uint32(buf[4:8])
	h.Position = binary.LittleEndian.Uint32(buf[8:12])
	h.Reserved1 = binary.LittleEndian.Uint32(buf[12:16])
	h.SBVersion = binary.LittleEndian.Uint64(buf[16:24])
	h.DataMaxSize = binary.LittleEndian.Uint64(buf[24:32])
	h.DataOffset = binary.LittleEndian.Uint64(buf[32:40])
	h.DataSize = binary.LittleEndian.Uint64(buf[40:48])
	h.Checksum = binary.LittleEndian.Uint16(buf[48:50])
	copy(h.Reserved2[:], buf[50:56])
	return h
}

// valid reports whether h has the right magic/format and its data fits the
// slot it claims to belong to.
func (h *Header) valid() bool {
	return h.Magic == SuperblockHeaderMagic &&
		h.Format == SuperblockHeaderFormat &&
		h.DataSize <= h.DataMaxSize
}

// SlotSize is the byte size reserved for one superblock slot: the header
// plus its maximum data payload.
func SlotSize(dataMaxSize uint64) uint64 {
	return headerSize + dataMaxSize
}

// ReadSlot reads and validates the header and (if valid) the data payload
// of slot `position` (0 or 1) from dev, which must be positioned so that
// byte 0 is the start of the superblock area.
func ReadSlot(dev *stream.Stream, dataMaxSize uint64, position int) (Header, []byte, error) {
	slotSize := SlotSize(dataMaxSize)
	if err := dev.Seek(int64(uint64(position)*slotSize), stream.SeekFromBeginning); err != nil {
		return Header{}, nil, err
	}

	hbuf := make([]byte, headerSize)
	if _, err := readFull(dev, hbuf); err != nil {
		return Header{}, nil, err
	}
	h := unmarshalHeader(hbuf)

	if h.Magic != SuperblockHeaderMagic {
		return h, nil, vrterr.ErrSBMagic
	}
	if h.Format != SuperblockHeaderFormat {
		return h, nil, vrterr.ErrSBFormat
	}
	if h.DataSize > h.DataMaxSize {
		return h, nil, vrterr.ErrSBCorruption
	}

	data := make([]byte, h.DataSize)
	if _, err := readFull(dev, data); err != nil {
		return h, nil, err
	}

	sum := checksumOf(data)
	if sum != h.Checksum {
		return h, nil, vrterr.ErrSBCorruption
	}

	return h, data, nil
}

// ReadBoth reads both superblock slots, tolerating per-slot corruption: a
// failing slot is reported via its error but does not prevent reading the
// other.
func ReadBoth(dev *stream.Stream, dataMaxSize uint64) (h [numSlots]Header, data [numSlots][]byte, errs [numSlots]error) {
	for i := 0; i < numSlots; i++ {
		h[i], data[i], errs[i] = ReadSlot(dev, dataMaxSize, i)
	}
	return
}

// SelectActive picks the valid slot with the highest sb_version, matching
// the "readers pick the slot with highest version AND matching checksum"
// rule; a slot that failed to read is never selected. Returns the winning
// position, its data, or ErrSBCorruption if neither slot is valid.
func SelectActive(h [numSlots]Header, data [numSlots][]byte, errs [numSlots]error) (position int, payload []byte, err error) {
	best := -1
	for i := 0; i < numSlots; i++ {
		if errs[i] != nil {
			continue
		}
		if best == -1 || h[i].SBVersion > h[best].SBVersion {
			best = i
		}
	}
	if best == -1 {
		return 0, nil, vrterr.ErrSBCorruption
	}
	return best, data[best], nil
}

// WriteSlot writes data into slot `position`, computing its checksum and
// stamping the header with version. This single call is the Go counterpart
// of begin_superblock_write → stream I/O → end_superblock_write: since the
// header (with the new version) is written only after the data has been
// fully streamed out and flushed, a crash mid-write leaves this slot's old
// header over partly rewritten data, so its checksum no longer matches and
// a reader rejects the slot, while the other slot is never touched at all.
func WriteSlot(dev *stream.Stream, dataMaxSize uint64, position int, data []byte, version uint64) error {
	if uint64(len(data)) > dataMaxSize {
		return vrterr.ErrNoSpace
	}

	slotSize := SlotSize(dataMaxSize)
	base := uint64(position) * slotSize

	if err := dev.Seek(int64(base+headerSize), stream.SeekFromBeginning); err != nil {
		return err
	}
	if _, err := dev.Write(data); err != nil {
		return err
	}
	if err := dev.Flush(); err != nil {
		return err
	}

	h := Header{
		Magic:       SuperblockHeaderMagic,
		Format:      SuperblockHeaderFormat,
		Position:    uint32(position),
		SBVersion:   version,
		DataMaxSize: dataMaxSize,
		DataOffset:  headerSize,
		DataSize:    uint64(len(data)),
		Checksum:    checksumOf(data),
	}

	if err := dev.Seek(int64(base), stream.SeekFromBeginning); err != nil {
		return err
	}
	if _, err := dev.Write(h.marshal()); err != nil {
		return err
	}
	return dev.Flush()
}

// NextSlot returns the slot that the next commit should write to, so that
// the currently active slot (just read) is preserved until the new one is
// durable.
func NextSlot(activePosition int) int {
	return (activePosition + 1) % numSlots
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
