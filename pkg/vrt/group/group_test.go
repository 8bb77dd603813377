package group

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/exanodes/vrtcore/pkg/uuid"
	"github.com/exanodes/vrtcore/pkg/vrt/assembly"
	"github.com/exanodes/vrtcore/pkg/vrt/layout"
	"github.com/exanodes/vrtcore/pkg/vrt/layout/rain1"
	"github.com/exanodes/vrtcore/pkg/vrt/realdev"
	"github.com/exanodes/vrtcore/pkg/vrt/storage"
	"github.com/exanodes/vrtcore/pkg/vrterr"
)

// buildMirroredGroup sets up a 4-SPOF storage (one rdev per SPOF, each on
// its own node id 0..3), cuts it into chunks, and reserves one volume over
// a freshly created RAIN-1 group (slot_width=2, no spares).
func buildMirroredGroup(t *testing.T) (*storage.Storage, *assembly.Group, *rain1.Group, *assembly.Volume) {
	st := storage.New()
	for i := 0; i < 4; i++ {
		rdev := &realdev.Rdev{
			UUID:         uuid.Generate(),
			NodeID:       realdev.NodeID(i),
			TotalSectors: realdev.SBAreaSize + 1000,
		}
		assert.NoError(t, st.AddRdev(storage.SpofID(i+1), rdev))
	}
	assert.NoError(t, st.CutInChunks(50))

	chunkSize := st.SpofGroups[0].Rdevs[0].Chunks.ChunkSize
	ag := assembly.Setup(st, 2, chunkSize)

	vol, err := ag.ReserveVolume(uuid.Generate(), 1)
	assert.NoError(t, err)

	lay, err := rain1.Create(st, ag, 8, 64, 0)
	assert.NoError(t, err)

	return st, ag, lay, vol
}

func allUp(n int) NodeSet {
	var s NodeSet
	for i := 0; i < n; i++ {
		s.Add(uint32(i))
	}
	return s
}

func TestSetUpNodesAllUpIsOK(t *testing.T) {

	_, ag, lay, _ := buildMirroredGroup(t)
	g := New("g1", uuid.Generate(), ag, lay, 0)

	status := g.SetUpNodes(allUp(4))
	assert.Equal(t, layout.StatusOK, status)
}

func TestSetUpNodesOneMirrorHalfDownIsDegraded(t *testing.T) {

	_, ag, lay, _ := buildMirroredGroup(t)
	g := New("g1", uuid.Generate(), ag, lay, 0)

	nodes := allUp(4)
	nodes.Remove(1) // one half of the first slot's mirror pair (column 1)

	status := g.SetUpNodes(nodes)
	assert.Equal(t, layout.StatusDegraded, status)
}

func TestSetUpNodesBothMirrorHalvesDownIsOffline(t *testing.T) {

	_, ag, lay, _ := buildMirroredGroup(t)
	g := New("g1", uuid.Generate(), ag, lay, 0)

	nodes := allUp(4)
	nodes.Remove(0)
	nodes.Remove(1)

	status := g.SetUpNodes(nodes)
	assert.Equal(t, layout.StatusOffline, status)
}

func TestSubmitFailsWhenGroupOffline(t *testing.T) {

	_, ag, lay, vol := buildMirroredGroup(t)
	g := New("g1", uuid.Generate(), ag, lay, 0)
	// never call SetUpNodes: group starts OFFLINE

	buf := make([]byte, 4*realdev.SectorSize)
	err := g.Submit(context.Background(), &recordingTransport{}, vol, layout.Write, 0, 4, buf)
	assert.Equal(t, vrterr.ErrGroupNotStarted, err)
}

// recordingTransport fakes the NBD transport: it records every sub-request
// it receives and never fails.
type recordingTransport struct {
	mu     sync.Mutex
	writes int
	reads  int
}

func (r *recordingTransport) Read(rdev *realdev.Rdev, rsector uint64, buf []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	return nil
}

func (r *recordingTransport) Write(rdev *realdev.Rdev, rsector uint64, buf []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	return nil
}

func TestSubmitWriteFansOutToBothMirrorHalves(t *testing.T) {

	_, ag, lay, vol := buildMirroredGroup(t)
	g := New("g1", uuid.Generate(), ag, lay, 0)
	g.SetUpNodes(allUp(4))

	tr := &recordingTransport{}
	buf := make([]byte, 4*realdev.SectorSize)

	err := g.Submit(context.Background(), tr, vol, layout.Write, 0, 4, buf)
	assert.NoError(t, err)
	assert.Equal(t, 2, tr.writes)
	assert.Equal(t, 0, tr.reads)
}

func TestSubmitReadUsesOnlyOneMirrorHalf(t *testing.T) {

	_, ag, lay, vol := buildMirroredGroup(t)
	g := New("g1", uuid.Generate(), ag, lay, 0)
	g.SetUpNodes(allUp(4))

	tr := &recordingTransport{}
	buf := make([]byte, 4*realdev.SectorSize)

	err := g.Submit(context.Background(), tr, vol, layout.Read, 0, 4, buf)
	assert.NoError(t, err)
	assert.Equal(t, 1, tr.reads)
	assert.Equal(t, 0, tr.writes)
}

func TestSubmitClearsDirtyOnlyAfterTransportAcknowledgesBothHalves(t *testing.T) {

	_, ag, lay, vol := buildMirroredGroup(t)
	g := New("g1", uuid.Generate(), ag, lay, 0)
	g.SetUpNodes(allUp(4))

	tr := &recordingTransport{}
	buf := make([]byte, 4*realdev.SectorSize)

	err := g.Submit(context.Background(), tr, vol, layout.Write, 0, 4, buf)
	assert.NoError(t, err)
	assert.False(t, lay.Dirty.IsDirty(0))
}

func TestSubmitLeavesDirtyZoneMarkedWhenTransportFails(t *testing.T) {

	_, ag, lay, vol := buildMirroredGroup(t)
	g := New("g1", uuid.Generate(), ag, lay, 0)
	g.SetUpNodes(allUp(4))

	tr := &failingTransport{}
	buf := make([]byte, 4*realdev.SectorSize)

	err := g.Submit(context.Background(), tr, vol, layout.Write, 0, 4, buf)
	assert.Error(t, err)
	assert.True(t, lay.Dirty.IsDirty(0))
}

// failingTransport fakes a transport whose writes never reach the disk.
type failingTransport struct{}

func (f *failingTransport) Read(rdev *realdev.Rdev, rsector uint64, buf []byte) error {
	return vrterr.ErrIO
}

func (f *failingTransport) Write(rdev *realdev.Rdev, rsector uint64, buf []byte) error {
	return vrterr.ErrIO
}

func TestSubmitRespectsOutstandingCapWithoutDeadlock(t *testing.T) {

	_, ag, lay, vol := buildMirroredGroup(t)
	g := New("g1", uuid.Generate(), ag, lay, 1)
	g.SetUpNodes(allUp(4))

	tr := &recordingTransport{}
	buf := make([]byte, 4*realdev.SectorSize)

	assert.NoError(t, g.Submit(context.Background(), tr, vol, layout.Write, 0, 4, buf))
	assert.NoError(t, g.Submit(context.Background(), tr, vol, layout.Write, 0, 4, buf))
	assert.Equal(t, 4, tr.writes)
}

func TestReintegrateRecoversOfflineGroup(t *testing.T) {

	_, ag, lay, _ := buildMirroredGroup(t)
	g := New("g1", uuid.Generate(), ag, lay, 0)

	down := allUp(4)
	down.Remove(0)
	down.Remove(1)
	assert.Equal(t, layout.StatusOffline, g.SetUpNodes(down))

	status := g.Reintegrate(allUp(4))
	assert.Equal(t, layout.StatusOK, status)
}
