// Package token implements the TCP client side of the cluster token
// arbitration protocol (spec.md §4.G "Token client", §6 "Token manager
// protocol"), grounded on token_manager/tm_client/src/tm_client.c. A token
// gates write access to one cluster-wide resource (identified by UUID)
// across a partitioned cluster: whichever node holds it may proceed,
// everyone else must wait or be fenced.
package token

import (
	"encoding/binary"

	"github.com/exanodes/vrtcore/pkg/uuid"
)

// Op is one operation a client may send to the token server.
type Op uint32

const (
	OpAcquire Op = iota
	OpRelease
	OpForceRelease
	OpHeartbeat
)

// Result is the server's reply code.
type Result uint32

const (
	ResultAccepted Result = 0
	ResultDenied   Result = 1
)

func (r Result) valid() bool { return r == ResultAccepted || r == ResultDenied }

// NodeIDNone marks the absence of a sending node, the only legal sender
// value for OpForceRelease (EXA_NODEID_NONE).
const NodeIDNone uint32 = 0xFFFFFFFF

// DefaultPort is TOKEN_MANAGER_DEFAULT_PORT; not pinned to a specific
// value in the retrieved sources, chosen here as a representative
// unregistered TCP port for the arbitration service.
const DefaultPort = 7900

const (
	requestSize = 4 + 16 + 4 // op + cluster_uuid + sender_id
	replySize   = 4          // result
)

// request is the wire record sent for every operation (token_request_msg_t).
type request struct {
	Op          Op
	ClusterUUID uuid.UUID
	SenderID    uint32
}

func (r request) marshal() []byte {
	buf := make([]byte, requestSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Op))
	idBytes := r.ClusterUUID.Marshal()
	copy(buf[4:20], idBytes[:])
	binary.LittleEndian.PutUint32(buf[20:24], r.SenderID)
	return buf
}

// reply is the wire record received for every operation (token_reply_msg_t).
type reply struct {
	Result Result
}

func unmarshalReply(buf []byte) reply {
	return reply{Result: Result(binary.LittleEndian.Uint32(buf[0:4]))}
}
