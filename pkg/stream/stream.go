// Package stream implements the synchronous, composable byte-stream
// abstraction used throughout the VRT for superblock and metadata I/O
// (spec.md §4.A). A Stream is backed by an Ops tuple, any member of which
// may be nil to mean "not supported" for that operation, exactly mirroring
// vrt_stream.c's stream_ops_t.
package stream

import (
	"fmt"

	"github.com/exanodes/vrtcore/pkg/vrterr"
)

// Access is a stream's access mode.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
	AccessRW
)

func (a Access) Readable() bool  { return a == AccessRead || a == AccessRW }
func (a Access) Writable() bool  { return a == AccessWrite || a == AccessRW }
func (a Access) valid() bool     { return a == AccessRead || a == AccessWrite || a == AccessRW }

// SeekMode selects the reference point for Seek.
type SeekMode int

const (
	SeekFromBeginning SeekMode = iota
	SeekFromEnd
	SeekFromPos
)

func (s SeekMode) valid() bool {
	return s == SeekFromBeginning || s == SeekFromEnd || s == SeekFromPos
}

// TellError is returned by Tell when the position cannot be determined.
const TellError = ^uint64(0)

// Ops is the set of operations a stream implementation provides. Any field
// left nil means "operation not supported"; Stream translates a call to a
// nil op into vrterr.ErrNotSupported.
type Ops struct {
	Read  func(buf []byte) (int, error)
	Write func(buf []byte) (int, error)
	Flush func() error
	Seek  func(offset int64, mode SeekMode) error
	Tell  func() uint64
	Close func()
}

// Stream is a generic synchronous byte stream (spec.md §4.A).
type Stream struct {
	ops    Ops
	access Access
}

// Open validates ops against access and returns a ready Stream. It mirrors
// stream_open()'s contract: a readable access mode requires Ops.Read, a
// writable one requires Ops.Write.
func Open(ops Ops, access Access) (*Stream, error) {
	if !access.valid() {
		return nil, vrterr.ErrInvalid
	}
	if access.Readable() && ops.Read == nil {
		return nil, vrterr.ErrInvalid
	}
	if access.Writable() && ops.Write == nil {
		return nil, vrterr.ErrInvalid
	}
	return &Stream{ops: ops, access: access}, nil
}

// Access reports the stream's access mode.
func (s *Stream) Access() Access { return s.access }

// Read reads up to len(buf) bytes. size==0 short-circuits to (0, nil)
// without calling the underlying op. Reading against the grain of Access
// returns ErrNotSupported.
func (s *Stream) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if !s.access.Readable() {
		return 0, vrterr.ErrNotSupported
	}
	if s.ops.Read == nil {
		return 0, vrterr.ErrNotSupported
	}
	return s.ops.Read(buf)
}

// Write writes len(buf) bytes. size==0 short-circuits to (0, nil). Writing
// against the grain of Access returns ErrNotSupported. A write that would
// go past the end of the stream returns ErrNoSpace and must not mutate any
// bytes (enforced by each adapter, not here).
func (s *Stream) Write(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if !s.access.Writable() {
		return 0, vrterr.ErrNotSupported
	}
	if s.ops.Write == nil {
		return 0, vrterr.ErrNotSupported
	}
	return s.ops.Write(buf)
}

// Printf formats into a temporary buffer and writes it in one shot, as
// stream_printf does.
func (s *Stream) Printf(format string, args ...interface{}) (int, error) {
	buf := []byte(fmt.Sprintf(format, args...))
	return s.Write(buf)
}

// Flush flushes pending writes. A no-op (returning ErrNotSupported) on a
// read-only stream or one without a Flush op.
func (s *Stream) Flush() error {
	if !s.access.Writable() {
		return vrterr.ErrNotSupported
	}
	if s.ops.Flush == nil {
		return vrterr.ErrNotSupported
	}
	return s.ops.Flush()
}

// Seek repositions the stream. Mode-specific bounds (negative
// FromBeginning, positive FromEnd) are rejected with ErrInvalid before the
// underlying op is even called.
func (s *Stream) Seek(offset int64, mode SeekMode) error {
	if !mode.valid() {
		return vrterr.ErrInvalid
	}
	if s.ops.Seek == nil {
		return vrterr.ErrNotSupported
	}

	switch mode {
	case SeekFromBeginning:
		if offset < 0 {
			return vrterr.ErrInvalid
		}
	case SeekFromEnd:
		if offset > 0 {
			return vrterr.ErrInvalid
		}
	}

	return s.ops.Seek(offset, mode)
}

// Rewind is equivalent to Seek(0, SeekFromBeginning).
func (s *Stream) Rewind() error {
	return s.Seek(0, SeekFromBeginning)
}

// Tell returns the current absolute position, or TellError if unsupported.
func (s *Stream) Tell() uint64 {
	if s.ops.Tell == nil {
		return TellError
	}
	return s.ops.Tell()
}

// Close flushes (if writable) then calls the underlying Close op, if any.
func (s *Stream) Close() {
	if s.access.Writable() {
		_ = s.Flush()
	}
	if s.ops.Close != nil {
		s.ops.Close()
	}
}
