// Package vrterr collects the error sentinels shared across vrtcore
// packages (spec.md §7 "Error Handling Design"). Where the original design
// names a Unix errno, we reuse syscall.Errno directly so callers can still
// test with errors.Is against the familiar POSIX codes; the VRT-specific
// superblock and group errors that have no POSIX equivalent are declared as
// their own sentinels.
package vrterr

import (
	"syscall"
)

// POSIX-equivalent errors, named as spec.md §7 names them.
var (
	ErrInvalid     = syscall.EINVAL
	ErrNotSupported = syscall.EOPNOTSUPP
	ErrNoSpace     = syscall.ENOSPC
	ErrNotFound    = syscall.ENOENT
	ErrExists      = syscall.EEXIST
	ErrIO          = syscall.EIO
	ErrConnReset   = syscall.ECONNRESET
)

// Superblock corruption errors (spec.md §7, §4.C).
var (
	ErrSBMagic        = newSentinel("VRT_ERR_SB_MAGIC: bad superblock magic")
	ErrSBFormat       = newSentinel("VRT_ERR_SB_FORMAT: unsupported superblock format")
	ErrSBCorruption   = newSentinel("VRT_ERR_SB_CORRUPTION: superblock payload inconsistent with target")
	ErrSBUUIDMismatch = newSentinel("VRT_ERR_SB_UUID_MISMATCH: rdev uuid does not match superblock")
)

// Group-level admin-time errors (spec.md §7).
var (
	ErrGroupNotStarted = newSentinel("VRT_ERR_GROUP_NOT_STARTED")
	ErrRdevTooSmall    = newSentinel("VRT_ERR_RDEV_TOO_SMALL")
	ErrTooManyChunks   = newSentinel("VRT_ERR_TOO_MANY_CHUNKS")
)

// Token client errors (spec.md §4.G "Token client").
var (
	ErrNotConnected = newSentinel("VRT_ERR_TOKEN_NOT_CONNECTED")
	ErrProtocol     = newSentinel("VRT_ERR_TOKEN_PROTOCOL: unexpected reply value")
	ErrStaleConn    = syscall.EBADF
)

type sentinel string

func (s sentinel) Error() string { return string(s) }

func newSentinel(msg string) error { return sentinel(msg) }
