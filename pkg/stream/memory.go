package stream

import (
	"github.com/exanodes/vrtcore/pkg/vrterr"
)

// memoryStream streams over a fixed-capacity in-memory buffer (spec.md
// §4.A "memory_stream"). Writing past capacity fails with ErrNoSpace and
// mutates no bytes.
type memoryStream struct {
	bytes []byte
	ofs   uint64
}

// OpenMemory wraps bytes as a stream with the given access mode. The slice
// is used in place (not copied); its length is the stream's fixed capacity.
func OpenMemory(bytes []byte, access Access) (*Stream, error) {
	ms := &memoryStream{bytes: bytes}

	ops := Ops{
		Read:  ms.read,
		Write: ms.write,
		Flush: func() error { return nil },
		Seek:  ms.seek,
		Tell:  func() uint64 { return ms.ofs },
		Close: func() {},
	}

	return Open(ops, access)
}

func (ms *memoryStream) read(buf []byte) (int, error) {
	n := len(buf)
	if ms.ofs+uint64(n) > uint64(len(ms.bytes)) {
		n = int(uint64(len(ms.bytes)) - ms.ofs)
	}
	copy(buf, ms.bytes[ms.ofs:ms.ofs+uint64(n)])
	ms.ofs += uint64(n)
	return n, nil
}

func (ms *memoryStream) write(buf []byte) (int, error) {
	if ms.ofs+uint64(len(buf)) > uint64(len(ms.bytes)) {
		return 0, vrterr.ErrNoSpace
	}
	copy(ms.bytes[ms.ofs:], buf)
	ms.ofs += uint64(len(buf))
	return len(buf), nil
}

func (ms *memoryStream) seek(offset int64, mode SeekMode) error {
	var newOfs int64

	switch mode {
	case SeekFromBeginning:
		newOfs = offset
	case SeekFromEnd:
		newOfs = int64(len(ms.bytes)) + offset
	case SeekFromPos:
		newOfs = int64(ms.ofs) + offset
	}

	if newOfs < 0 || newOfs > int64(len(ms.bytes)) {
		return vrterr.ErrInvalid
	}

	ms.ofs = uint64(newOfs)
	return nil
}
