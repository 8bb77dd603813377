package stream

import (
	"github.com/exanodes/vrtcore/pkg/vrterr"
)

// narrowedStream exposes the sub-range [start, end] of a base stream as a
// stream of its own, with locally-relative Seek/Tell (spec.md §4.A
// "narrowed_stream"). Closing it does not close the base.
type narrowedStream struct {
	base       *Stream
	start, end uint64
	ofs        uint64
}

// OpenNarrowed returns a stream over base's byte range [start, end]
// (inclusive), presenting offsets relative to start.
func OpenNarrowed(base *Stream, start, end uint64, access Access) (*Stream, error) {
	if base == nil {
		return nil, vrterr.ErrInvalid
	}

	ns := &narrowedStream{base: base, start: start, end: end, ofs: start}

	ops := Ops{
		Read:  ns.read,
		Write: ns.write,
		Flush: ns.flush,
		Seek:  ns.seek,
		Tell:  ns.tell,
		Close: func() {},
	}

	return Open(ops, access)
}

// adjustOffset repositions the base stream to ns.ofs if it has drifted,
// since the narrowed stream does not own the base's position exclusively.
func (ns *narrowedStream) adjustOffset() error {
	if ns.base.Tell() == ns.ofs {
		return nil
	}
	return ns.base.Seek(int64(ns.ofs), SeekFromBeginning)
}

func (ns *narrowedStream) read(buf []byte) (int, error) {
	if err := ns.adjustOffset(); err != nil {
		return 0, err
	}

	size := uint64(len(buf))
	if ns.ofs+size-1 > ns.end {
		size = ns.end - ns.ofs + 1
	}

	n, err := ns.base.Read(buf[:size])
	if err != nil {
		return 0, err
	}

	ns.ofs += uint64(n)
	return n, nil
}

func (ns *narrowedStream) write(buf []byte) (int, error) {
	if err := ns.adjustOffset(); err != nil {
		return 0, err
	}

	size := uint64(len(buf))
	if ns.ofs+size-1 > ns.end {
		return 0, vrterr.ErrNoSpace
	}

	n, err := ns.base.Write(buf)
	if err != nil {
		return 0, err
	}

	ns.ofs += uint64(n)
	return n, nil
}

func (ns *narrowedStream) flush() error {
	return ns.base.Flush()
}

func (ns *narrowedStream) seek(offset int64, mode SeekMode) error {
	var newOfs int64

	switch mode {
	case SeekFromBeginning:
		newOfs = int64(ns.start) + offset
	case SeekFromEnd:
		newOfs = int64(ns.end) + offset
	case SeekFromPos:
		newOfs = int64(ns.base.Tell()) + offset
	}

	if newOfs < int64(ns.start) || newOfs > int64(ns.end) {
		return vrterr.ErrInvalid
	}

	if err := ns.base.Seek(newOfs, SeekFromBeginning); err != nil {
		return err
	}

	ns.ofs = uint64(newOfs)
	return nil
}

func (ns *narrowedStream) tell() uint64 {
	return ns.ofs - ns.start
}
