package rain1

import (
	"testing"

	"github.com/exanodes/vrtcore/pkg/uuid"
	"github.com/exanodes/vrtcore/pkg/vrt/assembly"
	"github.com/exanodes/vrtcore/pkg/vrt/layout"
	"github.com/exanodes/vrtcore/pkg/vrt/realdev"
	"github.com/exanodes/vrtcore/pkg/vrt/storage"
	"github.com/stretchr/testify/assert"
)

func buildStorage(t *testing.T, rdevsPerSpof []int) *storage.Storage {
	st := storage.New()
	id := 1
	for _, n := range rdevsPerSpof {
		for i := 0; i < n; i++ {
			rdev := &realdev.Rdev{UUID: uuid.Generate(), TotalSectors: realdev.SBAreaSize + 1000}
			assert.NoError(t, st.AddRdev(storage.SpofID(id), rdev))
		}
		id++
	}
	assert.NoError(t, st.CutInChunks(50))
	return st
}

func TestAdmissibilityReplicationRule(t *testing.T) {

	assert.True(t, checkReplication(2, 0))
	assert.False(t, checkReplication(1, 0))
	assert.True(t, checkReplication(3, 1))
	assert.False(t, checkReplication(2, 1))
}

func TestAdmissibilityQuorumRejectsTooFewSpofs(t *testing.T) {

	st := buildStorage(t, []int{1, 1})
	adm := CheckAdmissibility(st, 2, 0)
	assert.False(t, adm.OK())
}

func TestAdmissibilityAcceptsWellFormedCluster(t *testing.T) {

	st := buildStorage(t, []int{1, 1, 1, 1})
	adm := CheckAdmissibility(st, 2, 0)
	assert.True(t, adm.Replication)
	assert.True(t, adm.Quorum)
}

func TestCreateRejectsInadmissibleGroup(t *testing.T) {

	st := buildStorage(t, []int{1, 1})
	ag := assembly.Setup(st, 2, st.SpofGroups[0].Rdevs[0].Chunks.ChunkSize)

	_, err := Create(st, ag, 8, 64, 0)
	assert.Error(t, err)
}

func TestIOMapWritesBothMirrorHalvesAndMarksDirtyUntilAcknowledged(t *testing.T) {

	st := buildStorage(t, []int{1, 1, 1, 1})
	chunkSize := st.SpofGroups[0].Rdevs[0].Chunks.ChunkSize
	ag := assembly.Setup(st, 2, chunkSize)

	v, err := ag.ReserveVolume(uuid.Generate(), 1)
	assert.NoError(t, err)

	g, err := Create(st, ag, 8, 64, 0)
	assert.NoError(t, err)

	subs, err := g.IOMap(v, layout.Write, 0, 4)
	assert.NoError(t, err)
	assert.Len(t, subs, 2)
	assert.NotEqual(t, subs[0].Rdev.UUID, subs[1].Rdev.UUID)

	// IOMap only marks the dirty zone; it must stay dirty until the caller
	// has the transport's acknowledgement and calls ClearWriteDirty itself.
	assert.True(t, g.Dirty.IsDirty(0))

	g.ClearWriteDirty(0, 4)
	assert.False(t, g.Dirty.IsDirty(0))
}

func TestIOMapReadUsesOnlyOneMirrorHalf(t *testing.T) {

	st := buildStorage(t, []int{1, 1, 1, 1})
	chunkSize := st.SpofGroups[0].Rdevs[0].Chunks.ChunkSize
	ag := assembly.Setup(st, 2, chunkSize)

	v, err := ag.ReserveVolume(uuid.Generate(), 1)
	assert.NoError(t, err)

	g, err := Create(st, ag, 8, 64, 0)
	assert.NoError(t, err)

	subs, err := g.IOMap(v, layout.Read, 0, 4)
	assert.NoError(t, err)
	assert.Len(t, subs, 1)
}

func TestAdvanceSyncTagAndNeedsResync(t *testing.T) {

	st := buildStorage(t, []int{1, 1, 1, 1})
	chunkSize := st.SpofGroups[0].Rdevs[0].Chunks.ChunkSize
	ag := assembly.Setup(st, 2, chunkSize)
	g, err := Create(st, ag, 8, 64, 0)
	assert.NoError(t, err)

	assert.True(t, g.NeedsResync("unknown-rdev"))

	g.AdvanceSyncTag()
	g.RdevSync["rdev-a"] = &RdevState{SyncTag: g.SyncTag}
	assert.False(t, g.NeedsResync("rdev-a"))

	g.AdvanceSyncTag()
	assert.True(t, g.NeedsResync("rdev-a"))
}
