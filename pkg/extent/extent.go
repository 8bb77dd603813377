// Package extent implements the run-length-encoded representation of a set
// of chunk indices used throughout the VRT to track free/used space (spec.md
// §4.B "extent list"). A List is kept as an ascending, disjoint,
// non-adjacent sequence of inclusive [Start, End] ranges: adding or removing
// a value always re-merges or re-splits neighbouring ranges so the
// invariant holds after every call.
package extent

import (
	"encoding/binary"

	"github.com/exanodes/vrtcore/pkg/stream"
	"github.com/exanodes/vrtcore/pkg/vrterr"
)

// Range is one contiguous inclusive run of values.
type Range struct {
	Start uint64
	End   uint64
}

// List is an ascending, disjoint, non-adjacent sequence of Ranges.
type List struct {
	ranges []Range
}

// New returns an empty list.
func New() *List {
	return &List{}
}

// Count returns the number of ranges in the list.
func (l *List) Count() uint32 {
	return uint32(len(l.ranges))
}

// NumValues returns the total number of individual values covered by the
// list, i.e. the sum of each range's length.
func (l *List) NumValues() uint64 {
	var n uint64
	for _, r := range l.ranges {
		n += r.End - r.Start + 1
	}
	return n
}

// Ranges returns the list's ranges in ascending order. The returned slice
// must not be mutated by the caller.
func (l *List) Ranges() []Range {
	return l.ranges
}

// Contains reports whether value is covered by the list.
func (l *List) Contains(value uint64) bool {
	for _, r := range l.ranges {
		if value >= r.Start && value <= r.End {
			return true
		}
		if value < r.Start {
			break
		}
	}
	return false
}

// Add inserts value into the list, merging with neighbouring ranges as
// needed so the list stays disjoint and non-adjacent.
func (l *List) Add(value uint64) {
	rs := l.ranges

	for i, r := range rs {
		if value >= r.Start && value <= r.End {
			return
		}
		if r.Start > 0 && value == r.Start-1 {
			rs[i].Start--
			l.mergeWithPrev(i)
			return
		}
		if value == r.End+1 {
			rs[i].End++
			l.mergeWithNext(i)
			return
		}
		if value < r.Start {
			l.insertAt(i, Range{Start: value, End: value})
			return
		}
	}

	l.ranges = append(l.ranges, Range{Start: value, End: value})
}

func (l *List) insertAt(i int, r Range) {
	l.ranges = append(l.ranges, Range{})
	copy(l.ranges[i+1:], l.ranges[i:])
	l.ranges[i] = r
}

// mergeWithPrev merges ranges[i] into ranges[i-1] if they now touch, after
// ranges[i].Start was decremented by one.
func (l *List) mergeWithPrev(i int) {
	if i == 0 {
		return
	}
	prev := l.ranges[i-1]
	cur := l.ranges[i]
	if prev.End+1 >= cur.Start {
		l.ranges[i-1].End = cur.End
		l.ranges = append(l.ranges[:i], l.ranges[i+1:]...)
	}
}

// mergeWithNext merges ranges[i] with ranges[i+1] if they now touch, after
// ranges[i].End was incremented by one.
func (l *List) mergeWithNext(i int) {
	if i+1 >= len(l.ranges) {
		return
	}
	cur := l.ranges[i]
	next := l.ranges[i+1]
	if next.Start <= cur.End+1 {
		l.ranges[i].End = next.End
		l.ranges = append(l.ranges[:i+1], l.ranges[i+2:]...)
	}
}

// Remove deletes value from the list, shrinking or splitting the covering
// range as needed. A value not present is a no-op.
func (l *List) Remove(value uint64) {
	for i, r := range l.ranges {
		switch {
		case value == r.Start && value == r.End:
			l.ranges = append(l.ranges[:i], l.ranges[i+1:]...)
			return
		case value == r.Start:
			l.ranges[i].Start++
			return
		case value == r.End:
			l.ranges[i].End--
			return
		case value > r.Start && value < r.End:
			tail := Range{Start: value + 1, End: r.End}
			l.ranges[i].End = value - 1
			l.insertAt(i+1, tail)
			return
		}
	}
}

// Serialize writes the list as a uint32 count followed by count (start,end)
// pairs, each a little-endian uint64, matching the wire shape of
// extent_list_serialize.
func (l *List) Serialize(s *stream.Stream) error {
	var nbuf [4]byte
	binary.LittleEndian.PutUint32(nbuf[:], uint32(len(l.ranges)))
	if _, err := s.Write(nbuf[:]); err != nil {
		return err
	}

	buf := make([]byte, 16)
	for _, r := range l.ranges {
		binary.LittleEndian.PutUint64(buf[0:8], r.Start)
		binary.LittleEndian.PutUint64(buf[8:16], r.End)
		if _, err := s.Write(buf); err != nil {
			return err
		}
	}

	return nil
}

// Deserialize reads a list previously written by Serialize.
func Deserialize(s *stream.Stream) (*List, error) {
	var nbuf [4]byte
	if _, err := readFull(s, nbuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(nbuf[:])

	l := &List{ranges: make([]Range, 0, n)}
	buf := make([]byte, 16)
	for i := uint32(0); i < n; i++ {
		if _, err := readFull(s, buf); err != nil {
			return nil, err
		}
		l.ranges = append(l.ranges, Range{
			Start: binary.LittleEndian.Uint64(buf[0:8]),
			End:   binary.LittleEndian.Uint64(buf[8:16]),
		})
	}

	return l, nil
}

func readFull(s *stream.Stream, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := s.Read(buf[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, vrterr.ErrIO
		}
		total += n
	}
	return total, nil
}
