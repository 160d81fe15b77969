package ircnet

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/flrl/goat/ircerr"
	"github.com/flrl/goat/ircmsg"
)

// State is one of the six states a Connection may occupy. Transitions
// are the ones returned by the per-state execute functions below; Tick and the public
// lifecycle calls (Connect, Disconnect, ResetError) are the only ways
// to move between them.
type State int

const (
	Disconnected State = iota
	Resolving
	Connecting
	Connected
	Disconnecting
	Error
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Resolving:
		return "RESOLVING"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Disconnecting:
		return "DISCONNECTING"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

const recvBufSize = 516

// Connection drives one socket through the state table in spec §4.E.
// All mutable fields are guarded by mu; Tick, the lifecycle calls, and
// the queue operations may be called from different goroutines.
type Connection struct {
	mu    sync.Mutex
	state State

	resolver  Resolver
	transport SecureTransport

	network, host, service string
	dialHost               string
	secureWanted           bool

	conn net.Conn

	dialDone chan struct{}
	dialConn net.Conn
	dialErr  error

	framer    Framer
	sendQueue [][]byte

	lastError      *ircerr.Error
	malformedCount int
	disconnectWant bool
}

// NewConnection constructs a DISCONNECTED connection. resolver and
// transport back RESOLVING and the TLS leg of CONNECTING respectively;
// a nil transport is only valid for connections that are always
// opened with secure=false.
func NewConnection(resolver Resolver, transport SecureTransport) *Connection {
	return &Connection{resolver: resolver, transport: transport}
}

// SetTransport replaces the SecureTransport used by a future Connect
// call. It must be called before Connect; the transport is read when
// CONNECTING completes the TCP connect, so a change made while the
// connection is still RESOLVING or CONNECTING is used by that
// connection attempt.
func (c *Connection) SetTransport(t SecureTransport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport = t
}

// State returns the connection's current state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the ErrorKind recorded the last time the FSM
// entered ERROR, or ircerr.None if it never has.
func (c *Connection) LastError() ircerr.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastError == nil {
		return ircerr.None
	}
	return c.lastError.Kind
}

// Connect begins connecting to host:service. Only legal from
// DISCONNECTED; any other state fails with ircerr.State.
func (c *Connection) Connect(network, host, service string, secure bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Disconnected {
		return ircerr.New(ircerr.State)
	}

	if secure && c.transport == nil {
		return ircerr.New(ircerr.Inval)
	}

	c.network, c.host, c.service = network, host, service
	c.dialHost = host
	c.secureWanted = secure

	c.enterResolving()
	c.state = Resolving
	return nil
}

// Disconnect requests an orderly shutdown: the next Tick drives
// CONNECTED to DISCONNECTING. It is a no-op outside CONNECTED.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return nil
	}
	c.disconnectWant = true
	return nil
}

// ResetError returns an ERROR connection to DISCONNECTED, clearing
// last_error. Legal only from ERROR.
func (c *Connection) ResetError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Error {
		return ircerr.New(ircerr.State)
	}
	c.lastError = nil
	c.state = Disconnected
	return nil
}

// WantsRead reports whether Tick should be offered a readable socket.
func (c *Connection) WantsRead() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Connecting, Connected, Disconnecting:
		return true
	default:
		return false
	}
}

// WantsWrite reports whether Tick should be offered a writable socket.
func (c *Connection) WantsWrite() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Connecting:
		return true
	case Connected:
		return len(c.sendQueue) > 0
	default:
		return false
	}
}

// WantsTimeout reports whether this connection is the reason a Tick
// needs a bounded wait rather than an indefinite one (RESOLVING polls
// on a timer, not on socket readiness).
func (c *Connection) WantsTimeout() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == Resolving
}

// Fd exposes the underlying connection for callers that want to
// integrate with their own readiness multiplexer instead of the
// per-connection deadline probing Tick uses internally. It returns
// nil outside CONNECTING/CONNECTED/DISCONNECTING.
func (c *Connection) Fd() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// defaultIOTimeout is used whenever a caller ticks a connection
// directly (e.g. in tests) without going through Pool.Tick, which
// always supplies a real budget.
const defaultIOTimeout = 10 * time.Millisecond

// Tick advances the state machine by exactly one step, given this
// round's readiness bits. ioTimeout bounds the nonblocking read/write
// probes CONNECTED performs this tick; a non-positive value falls
// back to defaultIOTimeout rather than blocking indefinitely.
func (c *Connection) Tick(readable, writable bool, ioTimeout time.Duration) {
	if ioTimeout <= 0 {
		ioTimeout = defaultIOTimeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.execute(c.state, readable, writable, ioTimeout)
	if next != c.state {
		c.exit(c.state)
		c.state = next
		c.enter(next)
	}
}

func (c *Connection) execute(s State, readable, writable bool, ioTimeout time.Duration) State {
	switch s {
	case Disconnected:
		return Disconnected
	case Resolving:
		return c.executeResolving()
	case Connecting:
		return c.executeConnecting(writable)
	case Connected:
		return c.executeConnected(readable, writable, ioTimeout)
	case Disconnecting:
		return c.executeDisconnecting()
	case Error:
		return Error
	default:
		return s
	}
}

func (c *Connection) enter(s State) {
	switch s {
	case Resolving:
		c.enterResolving()
	case Connecting:
		c.enterConnecting()
	case Connected:
		c.framer = Framer{}
	case Error:
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
	}
}

func (c *Connection) exit(s State) {
	switch s {
	case Disconnecting:
		c.sendQueue = nil
		c.framer = Framer{}
	}
}

func (c *Connection) enterResolving() {
	c.resolver.Start(c.network, c.host, c.service)
}

func (c *Connection) executeResolving() State {
	status, addr, err := c.resolver.Poll()
	switch status {
	case ResolveReady:
		c.dialHost = addr
		return Connecting
	case ResolveFailed:
		c.lastError = ircerr.Wrap(ircerr.Resolv, err)
		return Error
	default:
		return Resolving
	}
}

func (c *Connection) enterConnecting() {
	c.dialDone = make(chan struct{})
	addr := c.dialHost
	network := c.network
	done := c.dialDone
	go func() {
		conn, err := net.DialTimeout(network, addr, 30*time.Second)
		c.mu.Lock()
		c.dialConn, c.dialErr = conn, err
		c.mu.Unlock()
		close(done)
	}()
}

func (c *Connection) executeConnecting(writable bool) State {
	if !writable {
		return Connecting
	}
	select {
	case <-c.dialDone:
	default:
		return Connecting
	}

	if c.dialErr != nil {
		c.lastError = ircerr.Wrap(ircerr.Connect, c.dialErr)
		return Error
	}

	conn := c.dialConn
	if c.secureWanted {
		out, ok, err := c.transport.Wrap(conn, c.host)
		if err != nil {
			conn.Close()
			c.lastError = ircerr.Wrap(ircerr.Connect, err)
			return Error
		}
		if !ok {
			// handshake wants another round; stay in CONNECTING with
			// the same dialDone already closed, so re-check next tick
			return Connecting
		}
		conn = out
	}

	c.conn = conn
	return Connected
}

func (c *Connection) executeConnected(readable, writable bool, ioTimeout time.Duration) State {
	if c.disconnectWant {
		c.disconnectWant = false
		return Disconnecting
	}

	if writable {
		if closed := c.sendPending(ioTimeout); closed {
			return Disconnecting
		}
		if c.lastError != nil {
			return Error
		}
	}

	if readable {
		eof, err := c.recvPending(ioTimeout)
		if err != nil {
			c.lastError = ircerr.Wrap(ircerr.Connect, err)
			return Error
		}
		if eof {
			return Disconnecting
		}
	}

	return Connected
}

// sendPending drains as much of the send queue as a single nonblocking
// pass allows, reinserting any unwritten suffix at the queue head.
// Returns true if the peer appears to have closed the connection.
// ioTimeout bounds each Write's deadline.
func (c *Connection) sendPending(ioTimeout time.Duration) bool {
	for len(c.sendQueue) > 0 {
		head := c.sendQueue[0]

		c.conn.SetWriteDeadline(time.Now().Add(ioTimeout))
		n, err := c.conn.Write(head)
		c.conn.SetWriteDeadline(time.Time{})

		if n > 0 {
			if n == len(head) {
				c.sendQueue = c.sendQueue[1:]
			} else {
				c.sendQueue[0] = head[n:]
			}
		}

		if err != nil {
			if isWouldBlock(err) {
				return false
			}
			c.lastError = ircerr.Wrap(ircerr.Connect, err)
			return false
		}
		if n == 0 {
			return true
		}
	}
	return false
}

// recvPending reads as many bytes as are immediately available and
// feeds them to the framer. eof=true signals the peer closed the
// socket (a zero-length read), which moves CONNECTED to DISCONNECTING.
// ioTimeout bounds each Read's deadline.
func (c *Connection) recvPending(ioTimeout time.Duration) (eof bool, err error) {
	buf := make([]byte, recvBufSize)
	for {
		c.conn.SetReadDeadline(time.Now().Add(ioTimeout))
		n, rerr := c.conn.Read(buf)
		c.conn.SetReadDeadline(time.Time{})

		if n > 0 {
			c.framer.Feed(buf[:n])
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				c.framer.EndRead()
				return true, nil
			}
			if isWouldBlock(rerr) {
				c.framer.EndRead()
				return false, nil
			}
			return false, rerr
		}
		if n == 0 {
			c.framer.EndRead()
			return true, nil
		}
	}
}

func (c *Connection) executeDisconnecting() State {
	c.sendQueue = nil
	c.framer = Framer{}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return Disconnected
}

func isWouldBlock(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// QueueMessage formats m and appends it to the send queue. Fails with
// ircerr.MsgLen if the serialized message exceeds the protocol cap;
// the message is never partially enqueued.
func (c *Connection) QueueMessage(m *ircmsg.Message) error {
	out, err := m.Serialize()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendQueue = append(c.sendQueue, out)
	return nil
}

// RecvMessage pops and parses the oldest complete line received so
// far. A malformed line is discarded and counted, not surfaced as an
// FSM error; callers should loop until ok is false to drain everything
// queued this tick.
func (c *Connection) RecvMessage() (m *ircmsg.Message, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		line, has := c.framer.PopLine()
		if !has {
			return nil, false
		}
		parsed, err := ircmsg.Parse(line)
		if err != nil {
			c.malformedCount++
			continue
		}
		return parsed, true
	}
}

// PendingMessageCount returns the number of complete, undispatched
// lines currently queued for RecvMessage.
func (c *Connection) PendingMessageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.framer.CompleteLineCount()
}

// MalformedCount returns the number of received lines discarded for
// being unparseable since the connection was created.
func (c *Connection) MalformedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.malformedCount
}
