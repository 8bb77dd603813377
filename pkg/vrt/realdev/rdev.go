package realdev

import (
	"github.com/exanodes/vrtcore/pkg/extent"
	"github.com/exanodes/vrtcore/pkg/uuid"
	"github.com/exanodes/vrtcore/pkg/vrterr"
)

// NodeID identifies the cluster node a device is attached to.
type NodeID uint32

// Chunks tracks the free/used chunk set of one rdev (spec.md §4.C).
type Chunks struct {
	ChunkSize        uint64 // sectors
	TotalChunksCount uint64
	Free             *extent.List
}

// FreeCount returns the number of currently free chunks.
func (c *Chunks) FreeCount() uint64 {
	if c.Free == nil {
		return 0
	}
	return c.Free.NumValues()
}

// UsedCount returns the number of currently allocated chunks.
func (c *Chunks) UsedCount() uint64 {
	return c.TotalChunksCount - c.FreeCount()
}

// Rdev is one underlying block device as seen by the virtualizer: its
// identity plus the chunk table cut out of its usable area.
type Rdev struct {
	UUID        uuid.UUID
	NodeID      NodeID
	TotalSectors uint64 // full device size, sectors
	Chunks      Chunks
}

// UsableSectors returns the sector range available for chunk cutting, i.e.
// the device size minus the reserved superblock area.
func (r *Rdev) UsableSectors() uint64 {
	if r.TotalSectors <= SBAreaSize {
		return 0
	}
	return r.TotalSectors - SBAreaSize
}

// CutInChunks divides the rdev's usable area into chunkSize-sector chunks
// and (re)initializes the free set to cover all of them (spec.md §4.C
// "storage_cut_in_chunks", grounded on storage_cut_rdev_in_chunks).
func (r *Rdev) CutInChunks(chunkSize uint64) error {
	total := r.UsableSectors()
	if total == 0 || chunkSize == 0 {
		return vrterr.ErrInvalid
	}
	if chunkSize > total {
		return vrterr.ErrRdevTooSmall
	}

	r.InitChunks(chunkSize, total/chunkSize)
	return nil
}

// InitChunks sets the rdev's chunk size and total count directly and resets
// the free set to cover [0, totalChunks), matching
// storage_initialize_rdev_chunks_info's unconditional re-init (used when
// deserializing a storage image, where totalChunks comes from the wire
// rather than being recomputed from the device's reported size).
func (r *Rdev) InitChunks(chunkSize, totalChunks uint64) {
	free := extent.New()
	for i := uint64(0); i < totalChunks; i++ {
		free.Add(i)
	}

	r.Chunks = Chunks{
		ChunkSize:        chunkSize,
		TotalChunksCount: totalChunks,
		Free:             free,
	}
}

// ChunkOffset returns the starting sector (relative to the device) of
// chunk index i, accounting for the reserved superblock area.
func (r *Rdev) ChunkOffset(index uint64) uint64 {
	return SBAreaSize + index*r.Chunks.ChunkSize
}

// AllocFirstFree takes the lowest-indexed free chunk and returns it,
// mirroring chunk_get_first_free_from_rdev.
func (r *Rdev) AllocFirstFree() (uint64, error) {
	for _, rg := range r.Chunks.Free.Ranges() {
		return rg.Start, r.markUsed(rg.Start)
	}
	return 0, vrterr.ErrNoSpace
}

func (r *Rdev) markUsed(index uint64) error {
	if !r.Chunks.Free.Contains(index) {
		return vrterr.ErrInvalid
	}
	r.Chunks.Free.Remove(index)
	return nil
}

// Release returns a chunk index to the free set (chunk_put_to_rdev).
func (r *Rdev) Release(index uint64) {
	r.Chunks.Free.Add(index)
}
