package rain1

import (
	"github.com/exanodes/vrtcore/pkg/vrt/assembly"
	"github.com/exanodes/vrtcore/pkg/vrt/storage"
	"github.com/exanodes/vrtcore/pkg/vrterr"
)

// spofContention counts, for a given slot, how many of its columns already
// sit in each SPOF group — used to pick a spare replacement that does not
// collide with an existing column's SPOF.
func spofContention(st *storage.Storage, slot *assembly.Slot, excludeColumn int) map[storage.SpofID]int {
	contention := make(map[storage.SpofID]int)

	groupOf := func(rdevUUID string) storage.SpofID {
		for _, g := range st.SpofGroups {
			for _, r := range g.Rdevs {
				if r.UUID.String() == rdevUUID {
					return g.ID
				}
			}
		}
		return storage.SpofIDNone
	}

	for i, c := range slot.Chunks {
		if i == excludeColumn {
			continue
		}
		contention[groupOf(c.Rdev.UUID.String())]++
	}

	return contention
}

// ReassignSpare replaces a failed column with a still-free chunk chosen
// from the SPOF group with the lowest contention against the slot's other
// columns, preserving the invariant that no two columns of one slot share
// a SPOF (spec.md §4.E "Spare assignment").
func ReassignSpare(st *storage.Storage, slot *assembly.Slot, failedColumn int) error {
	if failedColumn < 0 || failedColumn >= slot.Width() {
		return vrterr.ErrInvalid
	}

	contention := spofContention(st, slot, failedColumn)

	var best *storage.SpofGroup
	bestScore := -1

	for _, g := range st.SpofsByFreeChunksDescending() {
		if g.FreeChunkCount() == 0 {
			continue
		}
		score := contention[g.ID]
		if score > 0 {
			continue
		}
		if best == nil || score < bestScore {
			best, bestScore = g, score
		}
	}

	if best == nil {
		return vrterr.ErrNoSpace
	}

	old := slot.Chunks[failedColumn]
	ref, err := best.GetChunk()
	if err != nil {
		return err
	}

	old.Rdev.Release(old.Index)
	slot.Chunks[failedColumn] = ref

	return nil
}
