package stream

import (
	"github.com/exanodes/vrtcore/pkg/vrterr"
)

// teeStream forks every write to two writable substreams in order,
// short-circuiting on the first error (spec.md §4.A "tee_stream"). It is
// write-only: there is no sensible single answer for Read.
type teeStream struct {
	a, b *Stream
}

// OpenTee returns a write-only stream that duplicates every Write to both a
// and b. Tell reflects a's position; Close does not close either leg.
func OpenTee(a, b *Stream) (*Stream, error) {
	if a == nil || b == nil {
		return nil, vrterr.ErrInvalid
	}
	if !a.Access().Writable() || !b.Access().Writable() {
		return nil, vrterr.ErrInvalid
	}

	ts := &teeStream{a: a, b: b}

	ops := Ops{
		Write: ts.write,
		Flush: ts.flush,
		Tell:  ts.tell,
		Close: func() {},
	}

	return Open(ops, AccessWrite)
}

func (ts *teeStream) write(buf []byte) (int, error) {
	n, err := ts.a.Write(buf)
	if err != nil {
		return n, err
	}
	return ts.b.Write(buf)
}

func (ts *teeStream) flush() error {
	errA := ts.a.Flush()
	errB := ts.b.Flush()
	if errA != nil {
		return errA
	}
	return errB
}

func (ts *teeStream) tell() uint64 {
	return ts.a.Tell()
}
