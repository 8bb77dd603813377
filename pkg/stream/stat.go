package stream

import (
	"sync"

	"github.com/exanodes/vrtcore/pkg/vrterr"
)

// OpStats holds the call and error counters for a single operation kind.
type OpStats struct {
	Count      uint64
	ErrorCount uint64
	TotalBytes uint64
}

// Stats is the full counter set maintained by a stat_stream (spec.md §4.A
// "stat_stream"): one OpStats per operation, plus the automatic flush that
// Close triggers on a writable stream is counted under Flush like any other
// call.
type Stats struct {
	mu     sync.Mutex
	Read   OpStats
	Write  OpStats
	Flush  OpStats
	Seek   OpStats
	Tell   OpStats
}

// Snapshot returns a copy of the current counters, safe to read concurrently
// with further stream activity.
func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Read: s.Read, Write: s.Write, Flush: s.Flush, Seek: s.Seek, Tell: s.Tell}
}

type statStream struct {
	base  *Stream
	stats Stats
}

// StatStream is a Stream augmented with a Stats() accessor, returned by
// OpenStat in place of the bare *Stream.
type StatStream struct {
	*Stream
	ss *statStream
}

// Stats returns a snapshot of the counters accumulated so far.
func (s *StatStream) Stats() Stats { return s.ss.stats.Snapshot() }

// OpenStat wraps base, counting every operation performed through the
// returned stream.
func OpenStat(base *Stream) (*StatStream, error) {
	if base == nil {
		return nil, vrterr.ErrInvalid
	}

	ss := &statStream{base: base}

	ops := Ops{
		Read:  ss.read,
		Write: ss.write,
		Flush: ss.flush,
		Seek:  ss.seek,
		Tell:  ss.tell,
		Close: func() {},
	}

	s, err := Open(ops, base.Access())
	if err != nil {
		return nil, err
	}

	return &StatStream{Stream: s, ss: ss}, nil
}

func (ss *statStream) read(buf []byte) (int, error) {
	n, err := ss.base.Read(buf)
	ss.record(&ss.stats.Read, n, err)
	return n, err
}

func (ss *statStream) write(buf []byte) (int, error) {
	n, err := ss.base.Write(buf)
	ss.record(&ss.stats.Write, n, err)
	return n, err
}

func (ss *statStream) flush() error {
	err := ss.base.Flush()
	ss.record(&ss.stats.Flush, 0, err)
	return err
}

func (ss *statStream) seek(offset int64, mode SeekMode) error {
	err := ss.base.Seek(offset, mode)
	ss.record(&ss.stats.Seek, 0, err)
	return err
}

func (ss *statStream) tell() uint64 {
	t := ss.base.Tell()
	ss.stats.mu.Lock()
	ss.stats.Tell.Count++
	if t == TellError {
		ss.stats.Tell.ErrorCount++
	}
	ss.stats.mu.Unlock()
	return t
}

func (ss *statStream) record(op *OpStats, n int, err error) {
	ss.stats.mu.Lock()
	op.Count++
	if err != nil {
		op.ErrorCount++
	}
	op.TotalBytes += uint64(n)
	ss.stats.mu.Unlock()
}
