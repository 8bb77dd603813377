package storage

import (
	"testing"

	"github.com/exanodes/vrtcore/pkg/stream"
	"github.com/exanodes/vrtcore/pkg/uuid"
	"github.com/exanodes/vrtcore/pkg/vrt/realdev"
	"github.com/stretchr/testify/assert"
)

func mkRdev(sectors uint64) *realdev.Rdev {
	return &realdev.Rdev{UUID: uuid.Generate(), TotalSectors: sectors}
}

func TestCutInChunksAcrossSpofGroups(t *testing.T) {

	s := New()
	assert.NoError(t, s.AddRdev(1, mkRdev(realdev.SBAreaSize+1000)))
	assert.NoError(t, s.AddRdev(2, mkRdev(realdev.SBAreaSize+2000)))

	assert.NoError(t, s.CutInChunks(50))

	g1 := s.SpofGroupByID(1)
	g2 := s.SpofGroupByID(2)
	assert.Equal(t, uint64(10), g1.Rdevs[0].Chunks.TotalChunksCount)
	assert.Equal(t, uint64(20), g2.Rdevs[0].Chunks.TotalChunksCount)
}

func TestSpofsByFreeChunksDescendingTiesBreakByID(t *testing.T) {

	s := New()
	r1 := mkRdev(realdev.SBAreaSize + 1000)
	r2 := mkRdev(realdev.SBAreaSize + 1000)
	assert.NoError(t, s.AddRdev(5, r1))
	assert.NoError(t, s.AddRdev(3, r2))
	assert.NoError(t, s.CutInChunks(50))

	ordered := s.SpofsByFreeChunksDescending()
	assert.Equal(t, SpofID(3), ordered[0].ID)
	assert.Equal(t, SpofID(5), ordered[1].ID)
}

func TestGetChunkPicksLeastUsedRdev(t *testing.T) {

	s := New()
	r1 := mkRdev(realdev.SBAreaSize + 500)
	r2 := mkRdev(realdev.SBAreaSize + 500)
	assert.NoError(t, s.AddRdev(1, r1))
	assert.NoError(t, s.AddRdev(1, r2))
	assert.NoError(t, s.CutInChunks(50))

	g := s.SpofGroupByID(1)

	_, err := r1.AllocFirstFree()
	assert.NoError(t, err)

	ref, err := g.GetChunk()
	assert.NoError(t, err)
	assert.Same(t, r2, ref.Rdev)
}

func TestStorageSerializeRoundTrip(t *testing.T) {

	s := New()
	r1 := mkRdev(realdev.SBAreaSize + 1000)
	assert.NoError(t, s.AddRdev(1, r1))
	assert.NoError(t, s.CutInChunks(100))

	buf := make([]byte, 1024)
	w, err := stream.OpenMemory(buf, stream.AccessRW)
	assert.NoError(t, err)
	assert.NoError(t, s.Serialize(w))
	assert.NoError(t, w.Rewind())

	s2 := New()
	r1b := &realdev.Rdev{UUID: r1.UUID, TotalSectors: r1.TotalSectors}
	assert.NoError(t, s2.AddRdev(1, r1b))
	assert.NoError(t, s2.Deserialize(w))

	assert.True(t, s.Equals(s2))
}
