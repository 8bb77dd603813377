package stream

import (
	"github.com/exanodes/vrtcore/pkg/checksum"
	"github.com/exanodes/vrtcore/pkg/vrterr"
)

// checksumStream passes reads/writes through to a base stream while feeding
// every byte seen into a running checksum (spec.md §4.A "checksum_stream").
// Seeking is only permitted as a rewind, which also resets the checksum.
type checksumStream struct {
	base *Stream
	ctx  checksum.Context
}

// ChecksumStream is a Stream augmented with checksum accessors, returned by
// OpenChecksum in place of the bare *Stream so callers can read the
// accumulated value without reaching into stream internals (the Go
// equivalent of checksum_stream_get_value/get_size/reset).
type ChecksumStream struct {
	*Stream
	cs *checksumStream
}

// Value returns the checksum of all bytes read/written since the last
// reset or rewind.
func (c *ChecksumStream) Value() checksum.Checksum { return c.cs.ctx.Value() }

// Size returns the number of bytes checksummed since the last reset.
func (c *ChecksumStream) Size() int { return c.cs.ctx.Size() }

// ResetChecksum clears the accumulated checksum without touching position.
func (c *ChecksumStream) ResetChecksum() { c.cs.ctx.Reset() }

// OpenChecksum wraps base with checksum accumulation, inheriting base's
// access mode.
func OpenChecksum(base *Stream) (*ChecksumStream, error) {
	if base == nil {
		return nil, vrterr.ErrInvalid
	}

	cs := &checksumStream{base: base}

	ops := Ops{
		Read:  cs.read,
		Write: cs.write,
		Flush: cs.flush,
		Seek:  cs.seek,
		Tell:  cs.tell,
		Close: func() {},
	}

	s, err := Open(ops, base.Access())
	if err != nil {
		return nil, err
	}

	return &ChecksumStream{Stream: s, cs: cs}, nil
}

func (cs *checksumStream) read(buf []byte) (int, error) {
	n, err := cs.base.Read(buf)
	if n > 0 {
		cs.ctx.Feed(buf[:n])
	}
	return n, err
}

func (cs *checksumStream) write(buf []byte) (int, error) {
	n, err := cs.base.Write(buf)
	if n > 0 {
		cs.ctx.Feed(buf[:n])
	}
	return n, err
}

func (cs *checksumStream) flush() error {
	return cs.base.Flush()
}

func (cs *checksumStream) seek(offset int64, mode SeekMode) error {
	if offset != 0 || mode != SeekFromBeginning {
		return vrterr.ErrInvalid
	}

	cs.ctx.Reset()
	return cs.base.Seek(offset, mode)
}

func (cs *checksumStream) tell() uint64 {
	return cs.base.Tell()
}
