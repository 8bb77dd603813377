package stream

import (
	"testing"

	"github.com/exanodes/vrtcore/pkg/vrterr"
	"github.com/stretchr/testify/assert"
)

func TestMemoryStreamReadWrite(t *testing.T) {

	buf := make([]byte, 16)
	s, err := OpenMemory(buf, AccessRW)
	assert.NoError(t, err)

	n, err := s.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, uint64(5), s.Tell())

	assert.NoError(t, s.Rewind())
	out := make([]byte, 5)
	n, err = s.Read(out)
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(out))
}

func TestMemoryStreamWritePastCapacityFails(t *testing.T) {

	buf := make([]byte, 4)
	s, err := OpenMemory(buf, AccessWrite)
	assert.NoError(t, err)

	_, err = s.Write([]byte("toolong"))
	assert.ErrorIs(t, err, vrterr.ErrNoSpace)
}

func TestMemoryStreamReadOnlyRejectsWrite(t *testing.T) {

	buf := make([]byte, 4)
	s, err := OpenMemory(buf, AccessRead)
	assert.NoError(t, err)

	_, err = s.Write([]byte("x"))
	assert.ErrorIs(t, err, vrterr.ErrNotSupported)
}

func TestNarrowedStreamBounds(t *testing.T) {

	buf := make([]byte, 32)
	base, err := OpenMemory(buf, AccessRW)
	assert.NoError(t, err)

	ns, err := OpenNarrowed(base, 8, 15, AccessRW)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), ns.Tell())

	n, err := ns.Write([]byte("12345678"))
	assert.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, uint64(8), ns.Tell())

	_, err = ns.Write([]byte("x"))
	assert.ErrorIs(t, err, vrterr.ErrNoSpace)

	assert.Equal(t, "12345678", string(buf[8:16]))

	err = ns.Seek(0, SeekFromBeginning)
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), ns.Tell())

	err = ns.Seek(1, SeekFromEnd)
	assert.Error(t, err)
}

func TestChecksumStreamRewindResets(t *testing.T) {

	buf := make([]byte, 16)
	base, err := OpenMemory(buf, AccessRW)
	assert.NoError(t, err)

	cs, err := OpenChecksum(base)
	assert.NoError(t, err)

	_, err = cs.Write([]byte("abcdefgh"))
	assert.NoError(t, err)
	firstValue := cs.Value()
	assert.Equal(t, 8, cs.Size())

	err = cs.Rewind()
	assert.NoError(t, err)
	assert.Equal(t, 0, cs.Size())

	_, err = cs.Write([]byte("abcdefgh"))
	assert.NoError(t, err)
	assert.Equal(t, firstValue, cs.Value())
}

func TestChecksumStreamRejectsArbitrarySeek(t *testing.T) {

	buf := make([]byte, 16)
	base, err := OpenMemory(buf, AccessRW)
	assert.NoError(t, err)

	cs, err := OpenChecksum(base)
	assert.NoError(t, err)

	err = cs.Seek(4, SeekFromBeginning)
	assert.ErrorIs(t, err, vrterr.ErrInvalid)
}

func TestTeeStreamDuplicatesWrites(t *testing.T) {

	bufA := make([]byte, 16)
	bufB := make([]byte, 16)
	sa, err := OpenMemory(bufA, AccessRW)
	assert.NoError(t, err)
	sb, err := OpenMemory(bufB, AccessRW)
	assert.NoError(t, err)

	tee, err := OpenTee(sa, sb)
	assert.NoError(t, err)

	n, err := tee.Write([]byte("mirror"))
	assert.NoError(t, err)
	assert.Equal(t, 6, n)

	assert.Equal(t, sa.Tell(), sb.Tell())
	assert.Equal(t, bufA[:6], bufB[:6])
	assert.Equal(t, "mirror", string(bufA[:6]))
}

func TestStatStreamCountsOperations(t *testing.T) {

	buf := make([]byte, 16)
	base, err := OpenMemory(buf, AccessRW)
	assert.NoError(t, err)

	ss, err := OpenStat(base)
	assert.NoError(t, err)

	_, err = ss.Write([]byte("hi"))
	assert.NoError(t, err)
	assert.NoError(t, ss.Rewind())

	out := make([]byte, 2)
	_, err = ss.Read(out)
	assert.NoError(t, err)

	stats := ss.Stats()
	assert.Equal(t, uint64(1), stats.Write.Count)
	assert.Equal(t, uint64(2), stats.Write.TotalBytes)
	assert.Equal(t, uint64(1), stats.Read.Count)
	assert.Equal(t, uint64(2), stats.Read.TotalBytes)
	assert.Equal(t, uint64(1), stats.Seek.Count)

	ss.Close()
	stats = ss.Stats()
	assert.Equal(t, uint64(1), stats.Flush.Count)
}

func TestNullStreamDiscardsWrites(t *testing.T) {

	ns, err := OpenNull()
	assert.NoError(t, err)

	n, err := ns.Write([]byte("anything"))
	assert.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, uint64(0), ns.Tell())

	assert.NoError(t, ns.Seek(100, SeekFromBeginning))
}
