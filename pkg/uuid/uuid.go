// Package uuid implements the Exanodes wire UUID: a 128-bit identifier
// serialized as four big-endian 32-bit segments, printed colon-separated
// (see spec.md §3 "UUID" and common/include/uuid.h in original_source/).
package uuid

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Len is the number of 32-bit segments in a UUID.
const Len = 4

// UUID is the Exanodes 128-bit identifier.
type UUID struct {
	ID [Len]uint32
}

// Zero is the reserved "none" identifier.
var Zero = UUID{}

// Generate returns a fresh random UUID, sourced from a standard RFC 4122
// UUID so the identifier space is globally unique, then folded into the
// four-segment wire representation.
func Generate() UUID {
	u := uuid.New()
	var out UUID
	out.ID[0] = binary.BigEndian.Uint32(u[0:4])
	out.ID[1] = binary.BigEndian.Uint32(u[4:8])
	out.ID[2] = binary.BigEndian.Uint32(u[8:12])
	out.ID[3] = binary.BigEndian.Uint32(u[12:16])
	return out
}

// IsZero reports whether u is the reserved "none" UUID.
func (u UUID) IsZero() bool {
	return u == Zero
}

// Equal reports bitwise equality.
func (u UUID) Equal(other UUID) bool {
	return u == other
}

// Compare returns -1, 0 or 1 comparing u to other segment by segment,
// most-significant segment first.
func (u UUID) Compare(other UUID) int {
	for i := 0; i < Len; i++ {
		if u.ID[i] < other.ID[i] {
			return -1
		}
		if u.ID[i] > other.ID[i] {
			return 1
		}
	}
	return 0
}

// String renders the UUID as "%08X:%08X:%08X:%08X".
func (u UUID) String() string {
	return fmt.Sprintf("%08X:%08X:%08X:%08X", u.ID[0], u.ID[1], u.ID[2], u.ID[3])
}

// Parse parses a colon-separated UUID string back into a UUID.
func Parse(s string) (UUID, error) {
	parts := strings.Split(s, ":")
	if len(parts) != Len {
		return Zero, fmt.Errorf("uuid: expected %d colon-separated segments, got %d", Len, len(parts))
	}

	var out UUID
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 32)
		if err != nil {
			return Zero, fmt.Errorf("uuid: invalid segment %q: %w", p, err)
		}
		out.ID[i] = uint32(v)
	}
	return out, nil
}

// Marshal writes the UUID as 16 big-endian bytes.
func (u UUID) Marshal() [16]byte {
	var b [16]byte
	for i := 0; i < Len; i++ {
		binary.BigEndian.PutUint32(b[i*4:i*4+4], u.ID[i])
	}
	return b
}

// Unmarshal reads a UUID from 16 big-endian bytes.
func Unmarshal(b [16]byte) UUID {
	var out UUID
	for i := 0; i < Len; i++ {
		out.ID[i] = binary.BigEndian.Uint32(b[i*4 : i*4+4])
	}
	return out
}
