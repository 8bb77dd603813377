package assembly

import (
	"testing"

	"github.com/exanodes/vrtcore/pkg/stream"
	"github.com/exanodes/vrtcore/pkg/uuid"
	"github.com/exanodes/vrtcore/pkg/vrt/realdev"
	"github.com/exanodes/vrtcore/pkg/vrt/storage"
	"github.com/stretchr/testify/assert"
)

func buildStorage(t *testing.T, nSpofs int, sectorsPerRdev uint64, chunkSize uint64) *storage.Storage {
	st := storage.New()
	for i := 0; i < nSpofs; i++ {
		rdev := &realdev.Rdev{UUID: uuid.Generate(), TotalSectors: sectorsPerRdev}
		assert.NoError(t, st.AddRdev(storage.SpofID(i+1), rdev))
	}
	assert.NoError(t, st.CutInChunks(uint32(chunkSize*realdev.SectorSize/1024)))
	return st
}

func TestReserveVolumeBuildsSlotsAcrossDistinctSpofs(t *testing.T) {

	st := buildStorage(t, 3, realdev.SBAreaSize+1000, 100)

	g := Setup(st, 3, st.SpofGroups[0].Rdevs[0].Chunks.ChunkSize)

	v, err := g.ReserveVolume(uuid.Generate(), 2)
	assert.NoError(t, err)
	assert.Equal(t, 2, v.SizeInSlots())

	for _, slot := range v.Slots {
		assert.Equal(t, 3, slot.Width())
		seen := map[string]bool{}
		for _, c := range slot.Chunks {
			assert.False(t, seen[c.Rdev.UUID.String()])
			seen[c.Rdev.UUID.String()] = true
		}
	}
}

func TestReserveVolumeFailsWhenNotEnoughSpofs(t *testing.T) {

	st := buildStorage(t, 2, realdev.SBAreaSize+1000, 100)
	g := Setup(st, 3, st.SpofGroups[0].Rdevs[0].Chunks.ChunkSize)

	_, err := g.ReserveVolume(uuid.Generate(), 1)
	assert.Error(t, err)

	// Chunks taken before the shortfall was discovered must be returned.
	total := uint64(0)
	for _, spof := range st.SpofGroups {
		for _, r := range spof.Rdevs {
			total += r.Chunks.FreeCount()
		}
	}
	assert.Equal(t, uint64(20), total)
}

func TestGroupSerializeRoundTrip(t *testing.T) {

	st := buildStorage(t, 2, realdev.SBAreaSize+1000, 100)
	g := Setup(st, 2, st.SpofGroups[0].Rdevs[0].Chunks.ChunkSize)

	v, err := g.ReserveVolume(uuid.Generate(), 1)
	assert.NoError(t, err)

	buf := make([]byte, 4096)
	w, err := stream.OpenMemory(buf, stream.AccessRW)
	assert.NoError(t, err)
	assert.NoError(t, g.Serialize(w))
	assert.NoError(t, w.Rewind())

	g2, err := Deserialize(w, st)
	assert.NoError(t, err)
	assert.Equal(t, g.SlotWidth, g2.SlotWidth)
	assert.Equal(t, 1, len(g2.Volumes))
	assert.True(t, v.Equals(g2.Volumes[0]))
}
