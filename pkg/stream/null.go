package stream

// OpenNull returns a write-only stream that discards everything written to
// it (spec.md §4.A "null_stream"), useful for dry-run serialization passes
// that only need a byte count. Seek and Tell both report position 0.
func OpenNull() (*Stream, error) {
	ops := Ops{
		Write: func(buf []byte) (int, error) { return len(buf), nil },
		Flush: func() error { return nil },
		Seek:  func(offset int64, mode SeekMode) error { return nil },
		Tell:  func() uint64 { return 0 },
		Close: func() {},
	}

	return Open(ops, AccessWrite)
}
