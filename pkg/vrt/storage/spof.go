// Package storage models a set of rdevs grouped by single-point-of-failure
// (SPOF) domain: the unit the placement algorithm (§3, §4.D) spreads a
// slot's columns across so that no one failure can take out more than one
// column of a slot (spec.md §4.C).
package storage

import (
	"sort"

	"github.com/exanodes/vrtcore/pkg/uuid"
	"github.com/exanodes/vrtcore/pkg/vrt/realdev"
	"github.com/exanodes/vrtcore/pkg/vrterr"
	"github.com/exanodes/vrtcore/pkg/vrtconfig"
)

// SpofID identifies a single-point-of-failure domain. Zero is invalid.
type SpofID uint32

// SpofIDNone is the sentinel for "unset".
const SpofIDNone SpofID = 0

// SpofGroup is a set of rdevs that share a SPOF (spec.md §3 "SPOF group",
// grounded on spof_group.c).
type SpofGroup struct {
	ID    SpofID
	Rdevs []*realdev.Rdev
}

// AddRdev appends rdev to the group.
func (g *SpofGroup) AddRdev(rdev *realdev.Rdev) {
	g.Rdevs = append(g.Rdevs, rdev)
}

// RemoveRdev removes rdev from the group, or returns ErrNotFound.
func (g *SpofGroup) RemoveRdev(rdev *realdev.Rdev) error {
	for i, r := range g.Rdevs {
		if r == rdev {
			g.Rdevs = append(g.Rdevs[:i], g.Rdevs[i+1:]...)
			return nil
		}
	}
	return vrterr.ErrNotFound
}

// FreeChunkCount sums the free chunk count across every rdev in the group.
func (g *SpofGroup) FreeChunkCount() uint64 {
	var sum uint64
	for _, r := range g.Rdevs {
		sum += r.Chunks.FreeCount()
	}
	return sum
}

// TotalChunkCount sums the total chunk count across every rdev in the group.
func (g *SpofGroup) TotalChunkCount() uint64 {
	var sum uint64
	for _, r := range g.Rdevs {
		sum += r.Chunks.TotalChunksCount
	}
	return sum
}

// leastUsedRdev returns the rdev in the group with the fewest used chunks
// that still has at least one free chunk (grounded on spof_group.c's
// least_used_rdev).
func (g *SpofGroup) leastUsedRdev() *realdev.Rdev {
	var best *realdev.Rdev
	var minUsed uint64

	for _, r := range g.Rdevs {
		if r.Chunks.FreeCount() == 0 {
			continue
		}
		used := r.Chunks.UsedCount()
		if best == nil || used < minUsed {
			best, minUsed = r, used
		}
	}
	return best
}

// ChunkRef locates one allocated chunk: the owning rdev and its chunk index.
type ChunkRef struct {
	Rdev  *realdev.Rdev
	Index uint64
}

// GetChunk allocates one chunk from the group's least-used rdev (spec.md
// §4.D step 3, grounded on spof_group_get_chunk).
func (g *SpofGroup) GetChunk() (ChunkRef, error) {
	rdev := g.leastUsedRdev()
	if rdev == nil {
		return ChunkRef{}, vrterr.ErrNoSpace
	}

	index, err := rdev.AllocFirstFree()
	if err != nil {
		return ChunkRef{}, err
	}

	return ChunkRef{Rdev: rdev, Index: index}, nil
}

// PutChunk returns a previously allocated chunk to its rdev's free set.
func (g *SpofGroup) PutChunk(c ChunkRef) {
	c.Rdev.Release(c.Index)
}

// Storage is the full set of SPOF groups backing one vrt_group (spec.md
// §4.C, grounded on storage.c).
type Storage struct {
	ChunkSize  uint64 // KiB, immutable once set
	SpofGroups []*SpofGroup
}

// New returns an empty Storage.
func New() *Storage {
	return &Storage{}
}

// AddSpofGroup registers a new, empty SPOF group, or returns ErrExists if
// one with this id is already present.
func (s *Storage) AddSpofGroup(id SpofID) (*SpofGroup, error) {
	if id == SpofIDNone {
		return nil, vrterr.ErrInvalid
	}
	if s.SpofGroupByID(id) != nil {
		return nil, vrterr.ErrExists
	}

	g := &SpofGroup{ID: id}
	s.SpofGroups = append(s.SpofGroups, g)
	return g, nil
}

// SpofGroupByID looks up a group by id, or returns nil.
func (s *Storage) SpofGroupByID(id SpofID) *SpofGroup {
	for _, g := range s.SpofGroups {
		if g.ID == id {
			return g
		}
	}
	return nil
}

// AddRdev attaches rdev to the SPOF group id, creating the group if needed.
func (s *Storage) AddRdev(id SpofID, rdev *realdev.Rdev) error {
	g := s.SpofGroupByID(id)
	if g == nil {
		var err error
		g, err = s.AddSpofGroup(id)
		if err != nil {
			return err
		}
	}
	g.AddRdev(rdev)
	return nil
}

// NumRdevs returns the total number of rdevs across every SPOF group.
func (s *Storage) NumRdevs() int {
	n := 0
	for _, g := range s.SpofGroups {
		n += len(g.Rdevs)
	}
	return n
}

// RdevByUUID finds the rdev with the given uuid, or nil.
func (s *Storage) RdevByUUID(id uuid.UUID) *realdev.Rdev {
	for _, g := range s.SpofGroups {
		for _, r := range g.Rdevs {
			if r.UUID.Equal(id) {
				return r
			}
		}
	}
	return nil
}

// CutInChunks sets the storage's chunk size (KiB) and cuts every rdev into
// chunks accordingly (spec.md §4.C "storage_cut_in_chunks"). chunkSize must
// not change across calls once set.
func (s *Storage) CutInChunks(chunkSizeKiB uint32) error {
	if chunkSizeKiB == 0 {
		return vrterr.ErrInvalid
	}
	if s.ChunkSize != 0 && s.ChunkSize != uint64(chunkSizeKiB) {
		return vrterr.ErrInvalid
	}
	s.ChunkSize = uint64(chunkSizeKiB)

	chunkSectors := kbToSectors(chunkSizeKiB)

	var total uint64
	for _, g := range s.SpofGroups {
		for _, r := range g.Rdevs {
			if err := r.CutInChunks(chunkSectors); err != nil {
				return err
			}
			total += r.Chunks.TotalChunksCount
		}
	}

	if total > vrtconfig.MaxChunksPerGroup {
		return vrterr.ErrTooManyChunks
	}

	return nil
}

func kbToSectors(kb uint32) uint64 {
	return uint64(kb) * 1024 / realdev.SectorSize
}

// SpofsByFreeChunksDescending snapshots every SPOF group's current free
// chunk count and returns the groups sorted descending by that snapshot,
// tie-broken ascending by id (spec.md §4.D "slot_make" steps 1-2). The
// snapshot is taken once, up front, so the ordering used to pick the first
// `width` groups does not shift as chunks are allocated from the earlier
// ones during the same slot_make call.
func (s *Storage) SpofsByFreeChunksDescending() []*SpofGroup {
	out := make([]*SpofGroup, len(s.SpofGroups))
	copy(out, s.SpofGroups)

	free := make(map[SpofID]uint64, len(out))
	for _, g := range out {
		free[g.ID] = g.FreeChunkCount()
	}

	sort.Slice(out, func(i, j int) bool {
		if free[out[i].ID] != free[out[j].ID] {
			return free[out[i].ID] > free[out[j].ID]
		}
		return out[i].ID < out[j].ID
	})

	return out
}

// SpofsByRdevCountDescending sorts SPOF groups by descending rdev/node
// count, tie-broken ascending by id — the ordering RAIN-1's administrability
// and quorum admissibility rules sort SPOFs by (spec.md §4.E).
func (s *Storage) SpofsByRdevCountDescending() []*SpofGroup {
	out := make([]*SpofGroup, len(s.SpofGroups))
	copy(out, s.SpofGroups)

	sort.Slice(out, func(i, j int) bool {
		if len(out[i].Rdevs) != len(out[j].Rdevs) {
			return len(out[i].Rdevs) > len(out[j].Rdevs)
		}
		return out[i].ID < out[j].ID
	})

	return out
}
