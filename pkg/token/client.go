package token

import (
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/exanodes/vrtcore/pkg/exalog"
	"github.com/exanodes/vrtcore/pkg/uuid"
	"github.com/exanodes/vrtcore/pkg/vrterr"
)

var log = exalog.New("token")

const (
	handshakeTimeout = 200 * time.Millisecond
	steadyTimeout    = 4 * time.Second
)

// Client is a handle to one token manager connection (token_manager_t).
// It is not safe for concurrent use by multiple goroutines: exactly like
// the original, callers must serialize their own access.
type Client struct {
	mu      sync.Mutex
	address string
	conn    net.Conn
}

// NewClient allocates a client for the token manager at address
// (host:port); port defaults to DefaultPort when omitted (tm_init).
func NewClient(address string) (*Client, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		host, port = address, ""
	}
	if port == "" {
		address = net.JoinHostPort(host, fmt.Sprintf("%d", DefaultPort))
	}

	return &Client{address: address}, nil
}

// IsConnected reports whether the client currently holds an open socket
// (tm_is_connected).
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect opens the TCP connection, consumes the server's handshake
// greeting, then raises the socket timeouts from the 200ms handshake value
// to the 4s steady-state value (tm_connect).
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, err := net.DialTimeout("tcp", c.address, handshakeTimeout)
	if err != nil {
		log.With("address", c.address).Warningf("connect failed: %v", err)
		return errors.Wrap(err, "token: connect")
	}

	if err := conn.SetDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		conn.Close()
		return errors.Wrap(err, "token: set handshake deadline")
	}

	if _, err := readReply(conn); err != nil {
		conn.Close()
		return errors.Wrap(err, "token: handshake")
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return errors.Wrap(err, "token: clear handshake deadline")
	}

	c.conn = conn
	log.With("address", c.address).Debug("connected")
	return nil
}

// Disconnect closes the socket, if any (tm_disconnect).
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectLocked()
}

func (c *Client) disconnectLocked() {
	if c.conn == nil {
		return
	}
	c.conn.Close()
	c.conn = nil
}

func (c *Client) withSteadyDeadline() error {
	return c.conn.SetDeadline(time.Now().Add(steadyTimeout))
}

func (c *Client) roundTrip(op Op, clusterUUID uuid.UUID, senderID uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return vrterr.ErrNotConnected
	}

	if clusterUUID.IsZero() {
		return vrterr.ErrInvalid
	}

	if op != OpForceRelease && senderID == NodeIDNone {
		return vrterr.ErrInvalid
	}
	if op == OpForceRelease && senderID != NodeIDNone {
		return vrterr.ErrInvalid
	}

	if err := c.withSteadyDeadline(); err != nil {
		return err
	}

	req := request{Op: op, ClusterUUID: clusterUUID, SenderID: senderID}
	if err := writeFull(c.conn, req.marshal()); err != nil {
		c.disconnectLocked()
		return err
	}

	res, err := readReply(c.conn)
	if err != nil {
		c.disconnectLocked()
		return err
	}

	if res.Result == ResultAccepted {
		return nil
	}
	if res.Result == ResultDenied {
		return vrterr.ErrNotFound
	}

	c.disconnectLocked()
	return vrterr.ErrProtocol
}

// RequestToken acquires the token identified by clusterUUID on behalf of
// senderID (tm_request_token).
func (c *Client) RequestToken(clusterUUID uuid.UUID, senderID uint32) error {
	return c.roundTrip(OpAcquire, clusterUUID, senderID)
}

// ReleaseToken releases the token (tm_release_token).
func (c *Client) ReleaseToken(clusterUUID uuid.UUID, senderID uint32) error {
	return c.roundTrip(OpRelease, clusterUUID, senderID)
}

// ForceReleaseToken releases the token regardless of current holder
// (tm_force_token_release).
func (c *Client) ForceReleaseToken(clusterUUID uuid.UUID) error {
	return c.roundTrip(OpForceRelease, clusterUUID, NodeIDNone)
}

// CheckConnection verifies the connection is still alive by first checking
// for an unexpected readable/closed socket, then sending a heartbeat
// (tm_check_connection). net.Conn has no select(); a readable socket the
// protocol never writes to unsolicited is detected the idiomatic Go way,
// with a near-zero read deadline distinguishing "nothing to read yet"
// (timeout) from "peer closed" (EOF).
func (c *Client) CheckConnection(clusterUUID uuid.UUID, senderID uint32) error {
	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return vrterr.ErrInvalid
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(time.Microsecond)); err != nil {
		c.mu.Unlock()
		return err
	}

	var probe [1]byte
	_, err := c.conn.Read(probe[:])
	c.conn.SetReadDeadline(time.Time{})

	if err == nil {
		// The peer is not supposed to send unsolicited data; treat a
		// readable byte the same as a closed connection (os_select's
		// "readable with nothing expected" signal).
		c.disconnectLocked()
		c.mu.Unlock()
		return vrterr.ErrStaleConn
	}

	if ne, isNetErr := err.(net.Error); !isNetErr || !ne.Timeout() {
		c.disconnectLocked()
		c.mu.Unlock()
		return vrterr.ErrStaleConn
	}
	c.mu.Unlock()

	return c.roundTrip(OpHeartbeat, clusterUUID, senderID)
}

func writeFull(conn net.Conn, buf []byte) error {
	for len(buf) > 0 {
		n, err := conn.Write(buf)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return err
		}
		buf = buf[n:]
	}
	return nil
}

func readReply(conn net.Conn) (reply, error) {
	buf := make([]byte, replySize)
	read := 0
	for read < len(buf) {
		n, err := conn.Read(buf[read:])
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return reply{}, err
		}
		if n == 0 {
			return reply{}, vrterr.ErrConnReset
		}
		read += n
	}

	r := unmarshalReply(buf)
	if !r.valid() {
		return reply{}, vrterr.ErrProtocol
	}
	return r, nil
}
