// Package ircpool hosts the connection pool and event dispatch layer
// that sit above a bare ircnet.Connection: a sparse handle-addressed
// vector of connections, driven by a single-tick/dispatch driver loop,
// plus the per-CommandID callback table events are delivered through.
package ircpool

import (
	"net"
	"sync"
	"time"

	"github.com/flrl/goat/ircerr"
	"github.com/flrl/goat/ircmsg"
	"github.com/flrl/goat/ircnet"
)

// allocIncr is the slot-vector growth increment, taken from the
// original CONN_ALLOC_INCR.
const allocIncr = 16

// Handle addresses a connection slot. Handles are reused after delete,
// so callers must not retain one past a Delete call.
type Handle int

type slot struct {
	conn *ircnet.Connection
	used bool
}

// NewConnectionFunc builds the ircnet.Connection backing a new slot;
// Pool.New calls it so tests can substitute fake resolvers/transports
// without the pool knowing about DNS or TLS.
type NewConnectionFunc func() *ircnet.Connection

// Pool is the sparse, handle-addressed connection vector of spec §4.F.
// All structural operations (New/Delete) take the write lock; Tick and
// DispatchEvents take the read lock, per the single-driver concurrency
// model of spec §5.
type Pool struct {
	mu      sync.RWMutex
	slots   []slot
	newConn NewConnectionFunc

	cbMu      sync.Mutex
	callbacks map[ircmsg.CommandID]EventCallback
	generic   EventCallback
}

// NewPool constructs an empty pool. newConn is called once per New to
// build the ircnet.Connection for that slot.
func NewPool(newConn NewConnectionFunc) *Pool {
	return &Pool{
		newConn:   newConn,
		callbacks: make(map[ircmsg.CommandID]EventCallback),
	}
}

// New allocates a slot, growing the vector by allocIncr if every
// existing slot is occupied, and returns its handle.
func (p *Pool) New() Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.slots {
		if !p.slots[i].used {
			p.slots[i] = slot{conn: p.newConn(), used: true}
			return Handle(i)
		}
	}

	base := len(p.slots)
	grown := make([]slot, base+allocIncr)
	copy(grown, p.slots)
	p.slots = grown

	p.slots[base] = slot{conn: p.newConn(), used: true}
	return Handle(base)
}

// Delete closes and frees the connection at handle, nulling the slot
// for reuse by a later New.
func (p *Pool) Delete(h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.valid(h) {
		return ircerr.New(ircerr.Inval)
	}
	p.slots[h].conn.Disconnect()
	if fd := p.slots[h].conn.Fd(); fd != nil {
		fd.Close()
	}
	p.slots[h] = slot{}
	return nil
}

// Get returns the connection at handle, for callers that need direct
// access (QueueMessage, State, LastError) between ticks.
func (p *Pool) Get(h Handle) (*ircnet.Connection, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.valid(h) {
		return nil, ircerr.New(ircerr.Inval)
	}
	return p.slots[h].conn, nil
}

func (p *Pool) valid(h Handle) bool {
	return h >= 0 && int(h) < len(p.slots) && p.slots[h].used
}

// minConnTickTimeout floors the per-connection slice of timeout handed
// to ircnet.Connection.Tick, so a large pool never divides the sweep's
// budget down to an unusably small (or zero) deadline.
const minConnTickTimeout = 1 * time.Millisecond

// Tick performs one readiness wait across every occupied slot and
// advances each connection's state machine exactly once. The pool's
// read lock is taken only to snapshot the occupied slots, not during
// the readiness wait; each connection's probes run inside its own
// Connection.Tick, which holds that connection's mutex while it
// reads and writes.
//
// Go's net.Conn does not expose a portable fd for select(2), so
// "readiness wait" here means: for each wants_read/wants_write
// connection, attempt a short nonblocking probe via a deadline (the
// goroutine-per-connection idiom ircnet.Connection itself uses
// internally for CONNECTING/RESOLVING). timeout is split evenly across
// the connections participating in this sweep (floored at
// minConnTickTimeout) and passed through as each one's read/write
// deadline budget, so the argument actually bounds the sweep's I/O
// instead of being purely advisory. Tick returns the number of new
// messages received across all connections.
func (p *Pool) Tick(timeout time.Duration) int {
	p.mu.RLock()
	conns := make([]*ircnet.Connection, 0, len(p.slots))
	for i := range p.slots {
		if p.slots[i].used {
			conns = append(conns, p.slots[i].conn)
		}
	}
	p.mu.RUnlock()

	// timeout bounds the whole sweep; each participating connection's
	// nonblocking read/write probe gets an equal share of it, so the
	// sweep as a whole still finishes within timeout even when several
	// connections are read/write-ready at once.
	connTimeout := timeout
	if n := len(conns); n > 1 {
		connTimeout = timeout / time.Duration(n)
	}
	if connTimeout < minConnTickTimeout {
		connTimeout = minConnTickTimeout
	}

	before := make([]int, len(conns))
	for i, c := range conns {
		before[i] = c.PendingMessageCount()
	}

	for _, c := range conns {
		readable := c.WantsRead()
		writable := c.WantsWrite()
		if !readable && !writable && !c.WantsTimeout() {
			continue
		}
		c.Tick(readable, writable, connTimeout)
	}

	// recv_message is drained in DispatchEvents, not here; Tick's
	// return value counts lines that arrived this sweep and are
	// waiting to be dispatched.
	received := 0
	for i, c := range conns {
		if d := c.PendingMessageCount() - before[i]; d > 0 {
			received += d
		}
	}

	return received
}

// populateFDSets is the Go-idiomatic analogue of spec §4.F's
// populate_fd_sets: rather than raw fd_sets, it returns the sockets
// that currently want read/write attention, for callers integrating
// with their own external multiplexer instead of Tick's internal
// deadline-probing.
func (p *Pool) populateFDSets() (readers, writers []net.Conn) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for i := range p.slots {
		if !p.slots[i].used {
			continue
		}
		c := p.slots[i].conn
		fd := c.Fd()
		if fd == nil {
			continue
		}
		if c.WantsRead() {
			readers = append(readers, fd)
		}
		if c.WantsWrite() {
			writers = append(writers, fd)
		}
	}
	return readers, writers
}

// SelectFDs is the public name matching spec §6's select_fds entry
// point.
func (p *Pool) SelectFDs() (readers, writers []net.Conn) {
	return p.populateFDSets()
}

// Connections returns the handles of every occupied slot, in slot
// order, for callers that want to iterate without reaching into pool
// internals.
func (p *Pool) Connections() []Handle {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Handle, 0, len(p.slots))
	for i := range p.slots {
		if p.slots[i].used {
			out = append(out, Handle(i))
		}
	}
	return out
}
